package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/nidza07/nvda/internal/classify"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Policy() != classify.DefaultPolicy() {
		t.Errorf("Expected default policy, got %+v", cfg.Policy())
	}
	if cfg.ThrottleLimit() != rate.Inf {
		t.Errorf("Expected no throttle by default, got %v", cfg.ThrottleLimit())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero capacity", func(c *Config) { c.Queue.Capacity = 0 }, "queue capacity"},
		{"bad echo mode", func(c *Config) { c.Classifier.TypingEcho = "sometimes" }, "typing echo"},
		{"negative threshold", func(c *Config) { c.Classifier.SummarizeThreshold = -1 }, "summarize threshold"},
		{"pitch out of range", func(c *Config) { c.Classifier.CapPitchChange = 200 }, "cap pitch"},
		{"throttle without burst", func(c *Config) {
			c.Intake.ThrottleInterval = time.Second
			c.Intake.ThrottleBurst = 0
		}, "throttle burst"},
		{"tiny fragments", func(c *Config) { c.Dispatch.MaxFragmentRunes = 2 }, "max fragment runes"},
		{"bad sample rate", func(c *Config) { c.Tone.SampleRate = 22050 }, "sample rate"},
		{"loud tone", func(c *Config) { c.Tone.Volume = 2 }, "tone volume"},
		{"no address", func(c *Config) { c.Server.Addr = "" }, "server address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestLoad(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
queue:
  capacity: 8
classifier:
  typing_echo: always
intake:
  throttle_interval: 250ms
dispatch:
  stall_after: 2s
transcript:
  path: session.jsonl.zst
`))
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Queue.Capacity != 8 {
		t.Errorf("Expected capacity 8, got %d", cfg.Queue.Capacity)
	}
	if !cfg.Queue.DirectInterruptsBackground {
		t.Error("Expected default to survive for unset keys")
	}
	if cfg.Policy().TypingEcho != classify.EchoAlways {
		t.Errorf("Expected echo always, got %v", cfg.Policy().TypingEcho)
	}
	if cfg.Intake.ThrottleInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms throttle, got %v", cfg.Intake.ThrottleInterval)
	}
	if cfg.ThrottleLimit() != rate.Every(250*time.Millisecond) {
		t.Errorf("Expected 4/s limit, got %v", cfg.ThrottleLimit())
	}
	if cfg.Dispatch.StallAfter != 2*time.Second {
		t.Errorf("Expected 2s stall, got %v", cfg.Dispatch.StallAfter)
	}
	if cfg.Transcript.Path != "session.jsonl.zst" {
		t.Errorf("Expected transcript path, got %q", cfg.Transcript.Path)
	}
}

func TestLoad_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("tone.volume", 5.0)
	if _, err := Load(v); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}
