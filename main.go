// Package main provides the entry point for the batchtts CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/batchtts/internal/cache"
	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/engines"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	verbose    bool
	engineName string
	useCache   bool

	rootCmd = &cobra.Command{
		Use:   "batchtts",
		Short: "Batch text-to-speech chunks by generation parameters",
		Long: paragraph(
			fmt.Sprintf("\nSynthesize chunk manifests with %s: chunks that share generation parameters go to the engine together.", keyword("parameter batching")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				mirrorLogToStderr()
			}
			if !cmd.Flags().Changed("config") {
				return nil
			}
			path, err := homedir.Expand(configFile)
			if err != nil {
				return fmt.Errorf("unable to expand config path: %w", err)
			}
			configFile = path
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("unable to read config file: %w", err)
				}
				log.Warn("Config file does not exist yet", "path", path)
				return nil
			}
			log.Debug("Using configuration file", "path", path)
			return nil
		},
	}
)

// loadConfig resolves configuration from the environment, the config file
// and persistent flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (tts.Config, error) {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("engine") {
		cfg.Engine = engineName
	}
	if cmd.Flags().Changed("cache") {
		cfg.Cache.Enabled = useCache
	}
	if err := cfg.Validate(); err != nil {
		if hint := suggestEngine(cfg.Engine); hint != "" {
			return cfg, fmt.Errorf("%w (did you mean %q?)", err, hint)
		}
		return cfg, err
	}
	return cfg, nil
}

// suggestEngine returns the closest known engine name for a misspelled one.
func suggestEngine(name string) string {
	for _, e := range tts.Engines {
		if strings.EqualFold(e, name) {
			return ""
		}
	}
	matches := fuzzy.Find(strings.ToLower(name), tts.Engines)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// newEngine builds the configured engine and, when enabled, the audio cache.
// The returned cleanup closes the cache.
func newEngine(cfg tts.Config) (tts.Engine, *cache.AudioCache, func(), error) {
	engine, err := engines.FromConfig(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Cache.Enabled {
		return engine, nil, func() {}, nil
	}

	cc := cache.ConfigFrom(cfg.Cache)
	if cc.Dir == "" {
		dir, err := gap.NewScope(gap.User, "batchtts").CacheDir()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("unable to find cache directory: %w", err)
		}
		cc.Dir = filepath.Join(dir, "audio")
	}
	if cc.Dir, err = homedir.Expand(cc.Dir); err != nil {
		return nil, nil, nil, fmt.Errorf("unable to expand cache directory: %w", err)
	}

	ac, err := cache.New(cc)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug("audio cache enabled", "dir", cc.Dir)
	return engine, ac, func() {
		if err := ac.Close(); err != nil {
			log.Warn("unable to close audio cache", "error", err)
		}
	}, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also write logs to stderr")
	rootCmd.PersistentFlags().StringVarP(&engineName, "engine", "e", "", fmt.Sprintf("synthesis engine %v", tts.Engines))
	rootCmd.PersistentFlags().BoolVar(&useCache, "cache", false, "reuse previously synthesized audio")

	tts.SetDefaults()

	rootCmd.AddCommand(runCmd, streamCmd, analyzeCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "batchtts")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "batchtts")}, dirs...)
	}

	if c := os.Getenv("BATCHTTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("batchtts")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "batchtts.yml")
	}
}
