package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nidza07/nvda/internal/intake"
	"github.com/nidza07/nvda/internal/queue"
	"github.com/nidza07/nvda/internal/speech"
)

const session = `
name: typing
steps:
  - source: editor
    text: "Hello world"
  - source: editor
    text: "Hello brave world"
    caret: 6
    prev_caret: 6
    typed: true
    role: edit
  - announce: "Saved"
    priority: alert
    source: app
  - pause: true
  - delay: 1ms
  - resume: true
  - cancel: editor
  - silence: true
`

type recordingOutput struct {
	calls []string
}

func (o *recordingOutput) Cancel(source string) int {
	o.calls = append(o.calls, "cancel:"+source)
	return 0
}
func (o *recordingOutput) Silence() int { o.calls = append(o.calls, "silence"); return 0 }
func (o *recordingOutput) Pause()       { o.calls = append(o.calls, "pause") }
func (o *recordingOutput) Resume()      { o.calls = append(o.calls, "resume") }

func TestLoad(t *testing.T) {
	s, err := Load(strings.NewReader(session))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Name != "typing" {
		t.Errorf("Expected name 'typing', got %q", s.Name)
	}

	kinds := []string{KindSnapshot, KindSnapshot, KindAnnounce, KindPause, KindDelay, KindResume, KindCancel, KindSilence}
	if len(s.Steps) != len(kinds) {
		t.Fatalf("Expected %d steps, got %d", len(kinds), len(s.Steps))
	}
	for i, want := range kinds {
		if got := s.Steps[i].Kind(); got != want {
			t.Errorf("Step %d: expected %s, got %s", i+1, want, got)
		}
	}
	if s.Steps[4].Delay != time.Millisecond {
		t.Errorf("Expected 1ms delay, got %v", s.Steps[4].Delay)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no action", "steps:\n  - source: a\n", "step 1"},
		{"two actions", "steps:\n  - pause: true\n  - text: a\n    announce: b\n", "step 2"},
		{"bad role", "steps:\n  - text: a\n    role: spreadsheet\n", "step 1"},
		{"bad priority", "steps:\n  - announce: a\n    priority: urgent\n", "step 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			if !errors.Is(err, ErrInvalidStep) {
				t.Fatalf("Expected ErrInvalidStep, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q in %q", tt.want, err.Error())
			}
		})
	}

	if _, err := Load(strings.NewReader("steps:\n  - bogus: 1\n")); err == nil {
		t.Error("Expected unknown field to be rejected")
	}
}

func TestRun(t *testing.T) {
	s, err := Load(strings.NewReader(session))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	q := queue.New(16, nil)
	out := &recordingOutput{}
	if err := NewRunner(intake.New(q), out).Run(context.Background(), s); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	pending := q.Pending()
	if len(pending) != 3 {
		t.Fatalf("Expected 3 utterances, got %d", len(pending))
	}
	if pending[0].Priority != speech.PriorityAlert || pending[0].Text() != "Saved" {
		t.Errorf("Expected alert first, got %s %q", pending[0].Priority, pending[0].Text())
	}

	want := []string{"pause", "resume", "cancel:editor", "silence"}
	if strings.Join(out.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected calls %v, got %v", want, out.calls)
	}
}

func TestRun_WithoutOutput(t *testing.T) {
	s, err := Load(strings.NewReader("steps:\n  - silence: true\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err = NewRunner(intake.New(queue.New(4, nil)), nil).Run(context.Background(), s)
	if !errors.Is(err, ErrInvalidStep) {
		t.Errorf("Expected ErrInvalidStep, got %v", err)
	}
}

func TestRun_DelayHonorsContext(t *testing.T) {
	s := &Script{Steps: []Step{{Delay: time.Hour}}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := NewRunner(intake.New(queue.New(4, nil)), nil).Run(ctx, s)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
