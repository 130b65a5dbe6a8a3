// Package config holds the runtime configuration of the output core and
// loads it from viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/sinks/tone"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains all configuration options.
type Config struct {
	Queue      QueueConfig      `mapstructure:"queue"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Intake     IntakeConfig     `mapstructure:"intake"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Console    ConsoleConfig    `mapstructure:"console"`
	Tone       ToneConfig       `mapstructure:"tone"`
	Server     ServerConfig     `mapstructure:"server"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
}

// QueueConfig configures the utterance queue.
type QueueConfig struct {
	Capacity                   int  `mapstructure:"capacity"`
	DirectInterruptsBackground bool `mapstructure:"direct_interrupts_background"`
}

// ClassifierConfig configures how changes become utterances.
type ClassifierConfig struct {
	TypingEcho         string `mapstructure:"typing_echo"`
	SummarizeThreshold int    `mapstructure:"summarize_threshold"`
	MergeDistance      int    `mapstructure:"merge_distance"`
	SayCapForCapitals  bool   `mapstructure:"say_cap_for_capitals"`
	CapPitchChange     int    `mapstructure:"cap_pitch_change"`
	BeepForCapitals    bool   `mapstructure:"beep_for_capitals"`
}

// IntakeConfig configures event intake.
type IntakeConfig struct {
	// ThrottleInterval is the minimum spacing of external updates per
	// source. Zero disables throttling.
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
	ThrottleBurst    int           `mapstructure:"throttle_burst"`
	DedupeWindow     time.Duration `mapstructure:"dedupe_window"`
	DedupeSize       int           `mapstructure:"dedupe_size"`
	BufferSize       int           `mapstructure:"buffer_size"`
}

// DispatchConfig configures the dispatcher.
type DispatchConfig struct {
	MaxFragmentRunes int           `mapstructure:"max_fragment_runes"`
	StallAfter       time.Duration `mapstructure:"stall_after"`
}

// ConsoleConfig configures the terminal sinks.
type ConsoleConfig struct {
	Style          bool `mapstructure:"style"`
	WordsPerMinute int  `mapstructure:"words_per_minute"`
	BrailleCells   int  `mapstructure:"braille_cells"`
}

// ToneConfig configures beeps.
type ToneConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	SampleRate int     `mapstructure:"sample_rate"`
	Volume     float64 `mapstructure:"volume"`
}

// ServerConfig configures the websocket intake.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TranscriptConfig configures transcript recording.
type TranscriptConfig struct {
	// Path of the transcript file; empty disables recording. A .zst
	// suffix compresses it.
	Path string `mapstructure:"path"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	policy := classify.DefaultPolicy()
	toneCfg := tone.DefaultConfig()
	return Config{
		Queue: QueueConfig{
			Capacity:                   64,
			DirectInterruptsBackground: true,
		},
		Classifier: ClassifierConfig{
			TypingEcho:         policy.TypingEcho.String(),
			SummarizeThreshold: policy.SummarizeThreshold,
			MergeDistance:      policy.MergeDistance,
			SayCapForCapitals:  policy.SayCapForCapitals,
			CapPitchChange:     policy.CapPitchChange,
			BeepForCapitals:    policy.BeepForCapitals,
		},
		Intake: IntakeConfig{
			ThrottleBurst: 1,
			DedupeWindow:  2 * time.Second,
			DedupeSize:    128,
			BufferSize:    64,
		},
		Dispatch: DispatchConfig{
			MaxFragmentRunes: 120,
			StallAfter:       5 * time.Second,
		},
		Console: ConsoleConfig{
			Style:          true,
			WordsPerMinute: 180,
			BrailleCells:   40,
		},
		Tone: ToneConfig{
			SampleRate: toneCfg.SampleRate,
			Volume:     toneCfg.Volume,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// SetDefaults registers the defaults with v so that keys missing from the
// config file and environment still resolve.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("queue.capacity", d.Queue.Capacity)
	v.SetDefault("queue.direct_interrupts_background", d.Queue.DirectInterruptsBackground)
	v.SetDefault("classifier.typing_echo", d.Classifier.TypingEcho)
	v.SetDefault("classifier.summarize_threshold", d.Classifier.SummarizeThreshold)
	v.SetDefault("classifier.merge_distance", d.Classifier.MergeDistance)
	v.SetDefault("classifier.say_cap_for_capitals", d.Classifier.SayCapForCapitals)
	v.SetDefault("classifier.cap_pitch_change", d.Classifier.CapPitchChange)
	v.SetDefault("classifier.beep_for_capitals", d.Classifier.BeepForCapitals)
	v.SetDefault("intake.throttle_interval", d.Intake.ThrottleInterval)
	v.SetDefault("intake.throttle_burst", d.Intake.ThrottleBurst)
	v.SetDefault("intake.dedupe_window", d.Intake.DedupeWindow)
	v.SetDefault("intake.dedupe_size", d.Intake.DedupeSize)
	v.SetDefault("intake.buffer_size", d.Intake.BufferSize)
	v.SetDefault("dispatch.max_fragment_runes", d.Dispatch.MaxFragmentRunes)
	v.SetDefault("dispatch.stall_after", d.Dispatch.StallAfter)
	v.SetDefault("console.style", d.Console.Style)
	v.SetDefault("console.words_per_minute", d.Console.WordsPerMinute)
	v.SetDefault("console.braille_cells", d.Console.BrailleCells)
	v.SetDefault("tone.enabled", d.Tone.Enabled)
	v.SetDefault("tone.sample_rate", d.Tone.SampleRate)
	v.SetDefault("tone.volume", d.Tone.Volume)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("transcript.path", d.Transcript.Path)
}

// Load decodes the configuration held by v on top of the defaults and
// validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Queue.Capacity < 1 || c.Queue.Capacity > 10000 {
		return fmt.Errorf("%w: queue capacity must be between 1 and 10000, got %d", ErrInvalidConfig, c.Queue.Capacity)
	}

	if _, err := classify.ParseEchoMode(c.Classifier.TypingEcho); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Classifier.SummarizeThreshold < 0 {
		return fmt.Errorf("%w: summarize threshold cannot be negative", ErrInvalidConfig)
	}
	if c.Classifier.MergeDistance < 0 {
		return fmt.Errorf("%w: merge distance cannot be negative", ErrInvalidConfig)
	}
	if c.Classifier.CapPitchChange < -100 || c.Classifier.CapPitchChange > 100 {
		return fmt.Errorf("%w: cap pitch change must be between -100 and 100, got %d", ErrInvalidConfig, c.Classifier.CapPitchChange)
	}

	if c.Intake.ThrottleInterval < 0 {
		return fmt.Errorf("%w: throttle interval cannot be negative", ErrInvalidConfig)
	}
	if c.Intake.ThrottleInterval > 0 && c.Intake.ThrottleBurst < 1 {
		return fmt.Errorf("%w: throttle burst must be at least 1", ErrInvalidConfig)
	}
	if c.Intake.DedupeWindow < 0 || c.Intake.DedupeSize < 0 {
		return fmt.Errorf("%w: dedupe window and size cannot be negative", ErrInvalidConfig)
	}
	if c.Intake.BufferSize < 1 {
		return fmt.Errorf("%w: intake buffer size must be at least 1", ErrInvalidConfig)
	}

	if c.Dispatch.MaxFragmentRunes < 8 {
		return fmt.Errorf("%w: max fragment runes must be at least 8, got %d", ErrInvalidConfig, c.Dispatch.MaxFragmentRunes)
	}
	if c.Dispatch.StallAfter < 0 {
		return fmt.Errorf("%w: stall timeout cannot be negative", ErrInvalidConfig)
	}

	if c.Console.WordsPerMinute < 0 || c.Console.WordsPerMinute > 1000 {
		return fmt.Errorf("%w: words per minute must be between 0 and 1000, got %d", ErrInvalidConfig, c.Console.WordsPerMinute)
	}
	if c.Console.BrailleCells < 1 {
		return fmt.Errorf("%w: braille cells must be at least 1", ErrInvalidConfig)
	}

	if c.Tone.SampleRate != 44100 && c.Tone.SampleRate != 48000 {
		return fmt.Errorf("%w: tone sample rate must be 44100 or 48000, got %d", ErrInvalidConfig, c.Tone.SampleRate)
	}
	if c.Tone.Volume < 0 || c.Tone.Volume > 1 {
		return fmt.Errorf("%w: tone volume must be between 0 and 1, got %.2f", ErrInvalidConfig, c.Tone.Volume)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server address is required", ErrInvalidConfig)
	}
	return nil
}

// Policy returns the classifier policy. The config must be valid.
func (c *Config) Policy() classify.Policy {
	echo, _ := classify.ParseEchoMode(c.Classifier.TypingEcho)
	return classify.Policy{
		SummarizeThreshold: c.Classifier.SummarizeThreshold,
		MergeDistance:      c.Classifier.MergeDistance,
		TypingEcho:         echo,
		SayCapForCapitals:  c.Classifier.SayCapForCapitals,
		CapPitchChange:     c.Classifier.CapPitchChange,
		BeepForCapitals:    c.Classifier.BeepForCapitals,
	}
}

// ThrottleLimit returns the intake rate limit. Zero interval means no
// limit.
func (c *Config) ThrottleLimit() rate.Limit {
	if c.Intake.ThrottleInterval <= 0 {
		return rate.Inf
	}
	return rate.Every(c.Intake.ThrottleInterval)
}

// ToneSettings returns the tone synthesis settings.
func (c *Config) ToneSettings() tone.Config {
	return tone.Config{SampleRate: c.Tone.SampleRate, Volume: c.Tone.Volume}
}
