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

const defaultConfig = `# Utterance queue
queue:
  # maximum number of queued utterances
  capacity: 64
  # typed echo cuts off background reading in progress
  direct_interrupts_background: true

# How text changes become speech
classifier:
  # typed character echo: off, edit-controls or always
  typing_echo: "edit-controls"
  # replacements longer than this (in characters) are summarized
  summarize_threshold: 80
  # largest gap between two changes on one line that are read together (0 = any)
  merge_distance: 0
  # capital letters
  say_cap_for_capitals: false
  cap_pitch_change: 30
  beep_for_capitals: false

# Event intake
intake:
  # minimum spacing of external updates per source (0 disables throttling)
  throttle_interval: "0s"
  throttle_burst: 1
  # repeated announcements within this window are dropped
  dedupe_window: "2s"
  dedupe_size: 128
  buffer_size: 64

# Output dispatcher
dispatch:
  # longest fragment sent to speech at once
  max_fragment_runes: 120
  # warn when a sink takes longer than this to finish a fragment
  stall_after: "5s"

# Terminal output
console:
  style: true
  # pacing of printed speech (0 prints at once)
  words_per_minute: 180
  braille_cells: 40

# Beeps
tone:
  enabled: false
  sample_rate: 44100
  volume: 0.5

# Websocket intake
server:
  addr: "127.0.0.1:8765"

# Record spoken output (a .zst suffix compresses it)
transcript:
  path: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the nvda-core config file",
	Long:    paragraph(fmt.Sprintf("\n%s the nvda-core config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("nvda-core config\nnvda-core config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// The file being edited may not validate yet.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("nvda-core", configFile)
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
