package tone

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nidza07/nvda/internal/speech"
)

// Beeper plays tones.
type Beeper interface {
	Beep(b speech.Beep) <-chan error
	Stop()
}

// Speech plays the beep of a fragment, then hands its text to the wrapped
// speech sink.
type Speech struct {
	next   speech.SpeechSink
	beeper Beeper
	logger *log.Logger

	mu     sync.Mutex
	cancel chan struct{}
}

// Wrap returns a speech sink that beeps through b before speaking
// through next.
func Wrap(next speech.SpeechSink, b Beeper) *Speech {
	return &Speech{
		next:   next,
		beeper: b,
		logger: log.Default().WithPrefix("tone"),
	}
}

// Speak implements speech.SpeechSink.
func (s *Speech) Speak(f speech.Fragment) <-chan error {
	if f.Beep == nil {
		return s.next.Speak(f)
	}

	s.mu.Lock()
	cancel := make(chan struct{})
	s.cancel = cancel
	s.mu.Unlock()

	beep := *f.Beep
	f.Beep = nil

	done := make(chan error, 1)
	go func() {
		select {
		case err := <-s.beeper.Beep(beep):
			if err != nil {
				s.logger.Warn("Failed to play beep", "hz", beep.Hz, "err", err)
			}
		case <-cancel:
			done <- nil
			return
		}

		if f.Text == "" {
			done <- nil
			return
		}

		s.mu.Lock()
		select {
		case <-cancel:
			s.mu.Unlock()
			done <- nil
			return
		default:
		}
		spoken := s.next.Speak(f)
		s.mu.Unlock()

		done <- <-spoken
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
	s.beeper.Stop()
	s.next.CancelCurrent()
}
