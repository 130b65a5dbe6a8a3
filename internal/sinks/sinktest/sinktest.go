// Package sinktest provides recording speech and braille sinks for tests.
package sinktest

import (
	"sync"

	"github.com/nidza07/nvda/internal/speech"
)

// Speech is a fake speech sink. In manual mode each fragment stays in
// flight until Complete or CancelCurrent is called; otherwise fragments
// complete immediately.
type Speech struct {
	// Started receives every fragment handed to Speak, if there is room
	Started chan speech.Fragment

	mu      sync.Mutex
	manual  bool
	failOn  map[string]error
	started []speech.Fragment
	cancels int
	pending chan error
}

// NewSpeech creates a fake speech sink.
func NewSpeech(manual bool) *Speech {
	return &Speech{
		Started: make(chan speech.Fragment, 256),
		manual:  manual,
		failOn:  make(map[string]error),
	}
}

// FailOn makes fragments with this text complete with err.
func (s *Speech) FailOn(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failOn[text] = err
}

// Speak implements speech.SpeechSink.
func (s *Speech) Speak(f speech.Fragment) <-chan error {
	ch := make(chan error, 1)

	s.mu.Lock()
	s.started = append(s.started, f)
	switch err, fail := s.failOn[f.Text]; {
	case fail:
		ch <- err
	case !s.manual:
		ch <- nil
	default:
		s.pending = ch
	}
	s.mu.Unlock()

	select {
	case s.Started <- f:
	default:
	}
	return ch
}

// CancelCurrent implements speech.SpeechSink. The in-flight fragment
// completes with nil, which is the acknowledgment.
func (s *Speech) CancelCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancels++
	if s.pending != nil {
		s.pending <- nil
		s.pending = nil
	}
}

// Complete finishes the in-flight fragment. It reports false if nothing
// was in flight.
func (s *Speech) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return false
	}
	s.pending <- nil
	s.pending = nil
	return true
}

// Texts returns the text of every fragment started so far.
func (s *Speech) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.started))
	for i, f := range s.started {
		out[i] = f.Text
	}
	return out
}

// Fragments returns every fragment started so far.
func (s *Speech) Fragments() []speech.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]speech.Fragment(nil), s.started...)
}

// Cancels returns how many times CancelCurrent was called.
func (s *Speech) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancels
}

// Braille is a fake braille sink that completes immediately.
type Braille struct {
	mu      sync.Mutex
	err     error
	regions []speech.BrailleRegion
}

// NewBraille creates a fake braille sink.
func NewBraille() *Braille {
	return &Braille{}
}

// FailWith makes every render complete with err.
func (b *Braille) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.err = err
}

// Render implements speech.BrailleSink.
func (b *Braille) Render(region speech.BrailleRegion) <-chan error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.regions = append(b.regions, region)
	return speech.Done(b.err)
}

// Regions returns every region rendered so far.
func (b *Braille) Regions() []speech.BrailleRegion {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]speech.BrailleRegion(nil), b.regions...)
}
