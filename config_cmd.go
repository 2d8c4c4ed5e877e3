package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `batchtts:
  # synthesis engine: mock, mock-nobatch or piper
  engine: "mock"
  sample_rate: 24000
  # secondary engine that takes over after repeated failures (empty disables)
  fallback: ""
  fallback_after: 3

  batching:
    # per-parameter tolerance; 0 matches exactly
    tolerance: 0.05
    min_batch_size: 2
    max_batch_size: 8
    # group consecutive runs only; false groups across the whole manifest
    preserve_order: true
    # quantized or absolute
    match: "quantized"

  pipeline:
    queue_size: 16
    max_batch: 8
    flush_timeout: "50ms"
    submit_timeout: "1s"
    poll_interval: "10ms"
    join_timeout: "5s"
    result_timeout: "30s"
    workers: 4

  cache:
    enabled: false
    memory_entries: 256
    memory_bytes: 104857600
    # dir: "~/.cache/batchtts/audio"
    disk_bytes: 1073741824
    ttl: "168h"

  mock:
    generation_delay: "5ms"
    native_batch: true
    failure_rate: 0.0

  piper:
    # binary: "/usr/local/bin/piper"
    # model: "~/.local/share/piper/en_US-lessac-medium.onnx"
    sample_rate: 22050
    timeout: "30s"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the batchtts config file",
	Long:    paragraph(fmt.Sprintf("\n%s the batchtts config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("batchtts config\nbatchtts config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("batchtts", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
