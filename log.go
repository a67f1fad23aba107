package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/speaky-cli/speaky/internal/config"
)

// logFileEnv redirects logs to a file, at debug level.
const logFileEnv = "SPEAKY_LOG_FILE"

func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	log.SetPrefix(config.AppName)
	log.SetReportTimestamp(false)

	logFile := os.Getenv(logFileEnv)
	if logFile == "" {
		return func() error { return nil }, nil
	}

	logFile, err := homedir.Expand(logFile)
	if err != nil {
		return nil, fmt.Errorf("unable to expand %s: %w", logFileEnv, err)
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

// setDebug raises the default logger to debug level.
func setDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}
