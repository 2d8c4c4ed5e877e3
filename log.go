package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

var logFile *os.File

// setupLog sends debug logs to a file in the user cache directory. The
// returned closer flushes and closes it.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	scope := gap.NewScope(gap.User, "batchtts")
	dir, err := scope.CacheDir()
	if err != nil {
		return nil, fmt.Errorf("unable to find cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "batchtts.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	logFile = f

	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

// mirrorLogToStderr additionally writes logs to stderr.
func mirrorLogToStderr() {
	if logFile == nil {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
}
