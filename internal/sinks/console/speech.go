package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nidza07/nvda/internal/fragment"
	"github.com/nidza07/nvda/internal/speech"
)

// Speech prints fragments and holds each one for roughly as long as a
// synthesizer would take to say it.
type Speech struct {
	w    io.Writer
	opts options

	mu     sync.Mutex
	cancel chan struct{}
}

// NewSpeech creates a speech sink writing to w.
func NewSpeech(w io.Writer, opts ...Option) *Speech {
	return &Speech{w: w, opts: newOptions(opts)}
}

// Speak implements speech.SpeechSink.
func (s *Speech) Speak(f speech.Fragment) <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(s.w, s.format(f)); err != nil {
		return speech.Done(fmt.Errorf("%w: %w", speech.ErrSinkFailure, err))
	}

	d := fragment.EstimateDuration(f.Text, s.opts.wpm)
	if s.opts.wpm <= 0 || d <= 0 {
		return speech.Done(nil)
	}

	done := make(chan error, 1)
	cancel := make(chan struct{})
	s.cancel = cancel
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-cancel:
		}
		done <- nil
	}()
	return done
}

// CancelCurrent implements speech.SpeechSink.
func (s *Speech) CancelCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
}

func (s *Speech) format(f speech.Fragment) string {
	var b strings.Builder
	if f.Role != "" {
		b.WriteString(s.opts.render(roleStyles[f.Role], "["+f.Role+"]"))
		b.WriteByte(' ')
	}
	b.WriteString(f.Text)
	if f.Pitch != 0 {
		b.WriteString(s.opts.render(annotationStyle, fmt.Sprintf(" (pitch %+d)", f.Pitch)))
	}
	if f.Beep != nil {
		b.WriteString(s.opts.render(annotationStyle, fmt.Sprintf(" (beep %gHz %s)", f.Beep.Hz, f.Beep.Duration)))
	}
	return b.String()
}
