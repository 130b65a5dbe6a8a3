// Package main provides the entry point for the nvda-core CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/nidza07/nvda/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        config.Config
	isTerminal bool

	// NVDA_CORE_QUEUE_CAPACITY sets queue.capacity
	envKeyReplacer = strings.NewReplacer(".", "_")

	rootCmd = &cobra.Command{
		Use:   "nvda-core",
		Short: "Turn text changes into prioritized speech and braille",
		Long: paragraph(
			fmt.Sprintf("\nTurn text changes into %s speech and braille output.", keyword("prioritized, interruptible")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(*cobra.Command) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	isTerminal = term.IsTerminal(int(os.Stdout.Fd()))
	return nil
}

// signalContext is canceled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Int("queue-capacity", 0, "maximum number of queued utterances")
	rootCmd.PersistentFlags().String("typing-echo", "", "typed character echo: off, edit-controls or always")
	rootCmd.PersistentFlags().Int("wpm", 0, "console speaking rate in words per minute (0 prints at once)")
	rootCmd.PersistentFlags().Bool("tones", false, "play beeps for capital letters")

	// Config bindings
	_ = viper.BindPFlag("queue.capacity", rootCmd.PersistentFlags().Lookup("queue-capacity"))
	_ = viper.BindPFlag("classifier.typing_echo", rootCmd.PersistentFlags().Lookup("typing-echo"))
	_ = viper.BindPFlag("console.words_per_minute", rootCmd.PersistentFlags().Lookup("wpm"))
	_ = viper.BindPFlag("tone.enabled", rootCmd.PersistentFlags().Lookup("tones"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(diffCmd, replayCmd, watchCmd, serveCmd, transcriptCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "nvda-core")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "nvda-core")}, dirs...)
	}

	if c := os.Getenv("NVDA_CORE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("nvda-core")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("nvda_core")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

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
		configFile = filepath.Join(dirs[0], "nvda-core.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
