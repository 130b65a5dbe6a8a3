package main

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/config"
	"github.com/nidza07/nvda/internal/script"
	"github.com/nidza07/nvda/internal/transcript"
)

func TestDefaultConfigFile(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		t.Fatalf("Default config file does not parse: %v", err)
	}
	got, err := config.Load(v)
	if err != nil {
		t.Fatalf("Default config file does not load: %v", err)
	}
	if want := config.Default(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected config file to match defaults:\nwant %+v\n got %+v", want, got)
	}
}

func TestPrintDiff(t *testing.T) {
	cfg = config.Default()
	isTerminal = false

	var buf bytes.Buffer
	err := printDiff(&buf, "Hello world", "Hello brave world", classify.Context{
		Caret:     6,
		PrevCaret: 6,
		UserTyped: true,
		SourceID:  "cli",
	})
	if err != nil {
		t.Fatalf("printDiff failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Edits", "insert", `"brave "`, "Utterances", "direct", "typed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestReplayToConsole(t *testing.T) {
	cfg = config.Default()
	cfg.Console.WordsPerMinute = 6000
	isTerminal = false

	path := filepath.Join(t.TempDir(), "out.jsonl"+transcript.CompressedExt)
	s := &script.Script{Steps: []script.Step{{Source: "app", Announce: "Hello there"}}}

	var buf bytes.Buffer
	if err := replayToConsole(context.Background(), &buf, s, path); err != nil {
		t.Fatalf("replayToConsole failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Hello there") {
		t.Errorf("Expected spoken text in output:\n%s", buf.String())
	}

	// The transcript is only readable once the zstd stream was closed.
	r, err := transcript.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close() //nolint:errcheck
	records, err := transcript.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 1 || records[0].Text != "Hello there" {
		t.Errorf("Expected one spoken record, got %v", records)
	}
}
