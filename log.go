package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/nidza07/nvda/utils"
)

// logConfig is read from the environment.
type logConfig struct {
	Debug   bool   `env:"NVDA_CORE_DEBUG"`
	LogFile string `env:"NVDA_CORE_LOG_FILE"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "nvda-core").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "nvda-core.log"), nil
}

// setupLog discards logs unless debugging is enabled, in which case they
// go to a file so they never interleave with console output.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}
	if !cfg.Debug && cfg.LogFile == "" {
		return func() error { return nil }, nil
	}

	logFile := utils.ExpandPath(cfg.LogFile)
	if logFile == "" {
		if logFile, err = getLogFilePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	log.SetOutput(f)
	log.SetTimeFormat(time.RFC3339)
	log.SetReportTimestamp(true)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return f.Close, nil
}
