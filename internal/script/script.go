// Package script loads and runs YAML replay scripts: recorded sequences of
// snapshot events and announcements fed through the output pipeline.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/internal/intake"
	"github.com/nidza07/nvda/internal/speech"
)

// ErrInvalidStep is returned for a step that does not name exactly one
// action.
var ErrInvalidStep = errors.New("invalid script step")

// Step kinds.
const (
	KindSnapshot = "snapshot"
	KindAnnounce = "announce"
	KindCancel   = "cancel"
	KindSilence  = "silence"
	KindPause    = "pause"
	KindResume   = "resume"
	KindDelay    = "delay"
)

// Script is a named list of steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one scripted action. Exactly one of Text, Announce, Cancel,
// Silence, Pause, Resume and Delay must be set.
type Step struct {
	// Snapshot event
	Source    string  `yaml:"source"`
	Text      *string `yaml:"text"`
	Caret     *int    `yaml:"caret"`
	PrevCaret *int    `yaml:"prev_caret"`
	Typed     bool    `yaml:"typed"`
	Role      string  `yaml:"role"`

	// Announcement; Source is shared with snapshot events
	Announce string `yaml:"announce"`
	Priority string `yaml:"priority"`
	Preserve bool   `yaml:"preserve"`
	Braille  bool   `yaml:"braille"`
	Dedupe   bool   `yaml:"dedupe"`

	Cancel  string        `yaml:"cancel"`
	Silence bool          `yaml:"silence"`
	Pause   bool          `yaml:"pause"`
	Resume  bool          `yaml:"resume"`
	Delay   time.Duration `yaml:"delay"`
}

// Kind returns the action the step performs, or "" when it names none or
// more than one.
func (s Step) Kind() string {
	var kinds []string
	if s.Text != nil {
		kinds = append(kinds, KindSnapshot)
	}
	if s.Announce != "" {
		kinds = append(kinds, KindAnnounce)
	}
	if s.Cancel != "" {
		kinds = append(kinds, KindCancel)
	}
	if s.Silence {
		kinds = append(kinds, KindSilence)
	}
	if s.Pause {
		kinds = append(kinds, KindPause)
	}
	if s.Resume {
		kinds = append(kinds, KindResume)
	}
	if s.Delay > 0 {
		kinds = append(kinds, KindDelay)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Load decodes and validates a script.
func Load(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

// LoadFile loads a script from path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return Load(f)
}

func (s Step) validate() error {
	switch s.Kind() {
	case "":
		return fmt.Errorf("%w: expected exactly one action", ErrInvalidStep)
	case KindSnapshot:
		if _, err := classify.ParseRole(s.Role); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStep, err)
		}
	case KindAnnounce:
		if _, err := speech.ParsePriority(s.Priority); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStep, err)
		}
	}
	return nil
}

// Output is the part of the dispatcher a script drives.
type Output interface {
	Cancel(sourceID string) int
	Silence() int
	Pause()
	Resume()
}

// Runner feeds a script into an intake and output.
type Runner struct {
	intake *intake.Intake
	output Output
	logger *log.Logger
}

// NewRunner creates a runner. output may be nil when the script has no
// cancel, silence, pause or resume steps.
func NewRunner(in *intake.Intake, output Output) *Runner {
	return &Runner{
		intake: in,
		output: output,
		logger: log.Default().WithPrefix("script"),
	}
}

// Run executes the steps in order. It stops at the first failing step or
// when ctx ends.
func (r *Runner) Run(ctx context.Context, s *Script) error {
	r.logger.Debug("Running script", "name", s.Name, "steps", len(s.Steps))
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(ctx, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, s Step) error {
	kind := s.Kind()
	if r.output == nil {
		switch kind {
		case KindCancel, KindSilence, KindPause, KindResume:
			return fmt.Errorf("%w: no output to %s", ErrInvalidStep, kind)
		}
	}

	switch kind {
	case KindSnapshot:
		return r.intake.Process(s.event())

	case KindAnnounce:
		p, err := speech.ParsePriority(s.Priority)
		if err != nil {
			return err
		}
		return r.intake.Announce(intake.Announcement{
			Text:     s.Announce,
			Priority: p,
			SourceID: s.Source,
			Preserve: s.Preserve,
			Braille:  s.Braille,
			Dedupe:   s.Dedupe,
		})

	case KindCancel:
		n := r.output.Cancel(s.Cancel)
		r.logger.Debug("Canceled source", "source", s.Cancel, "utterances", n)
	case KindSilence:
		r.output.Silence()
	case KindPause:
		r.output.Pause()
	case KindResume:
		r.output.Resume()

	case KindDelay:
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}

	default:
		return ErrInvalidStep
	}
	return nil
}

func (s Step) event() intake.Event {
	role, _ := classify.ParseRole(s.Role)
	ctx := classify.Context{
		Caret:     classify.NoCaret,
		PrevCaret: classify.NoCaret,
		UserTyped: s.Typed,
		Role:      role,
		SourceID:  s.Source,
	}
	if s.Caret != nil {
		ctx.Caret = *s.Caret
	}
	if s.PrevCaret != nil {
		ctx.PrevCaret = *s.PrevCaret
	}
	return intake.Event{New: diff.NewSnapshot(*s.Text), Context: ctx}
}

// Run executes s against in and out with a default runner.
func Run(ctx context.Context, s *Script, in *intake.Intake, out Output) error {
	return NewRunner(in, out).Run(ctx, s)
}
