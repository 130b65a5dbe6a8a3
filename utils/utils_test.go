package utils

import (
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestExpandPath(t *testing.T) {
	t.Setenv("NVDA_CORE_TEST_DIR", "/tmp/nvda")
	home, err := homedir.Dir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"plain/path", "plain/path"},
		{"$NVDA_CORE_TEST_DIR/out.jsonl", "/tmp/nvda/out.jsonl"},
		{"~/transcripts", filepath.Join(home, "transcripts")},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
