package viewer

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nidza07/nvda/internal/speech"
)

// Sender delivers messages to a running program. *tea.Program implements
// it.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink forwards speech and braille output to the viewer. Speech timing is
// taken from an optional pacing sink; without one every fragment completes
// as soon as it is shown.
type Sink struct {
	program Sender
	pace    speech.SpeechSink
}

// NewSink creates a sink forwarding to program. pace may be nil.
func NewSink(program Sender, pace speech.SpeechSink) *Sink {
	return &Sink{program: program, pace: pace}
}

// Speak implements speech.SpeechSink.
func (s *Sink) Speak(f speech.Fragment) <-chan error {
	s.program.Send(FragmentMsg{Fragment: f})
	if s.pace == nil {
		return speech.Done(nil)
	}
	return s.pace.Speak(f)
}

// CancelCurrent implements speech.SpeechSink.
func (s *Sink) CancelCurrent() {
	s.program.Send(CanceledMsg{})
	if s.pace != nil {
		s.pace.CancelCurrent()
	}
}

// Render implements speech.BrailleSink.
func (s *Sink) Render(region speech.BrailleRegion) <-chan error {
	s.program.Send(BrailleMsg{Region: region})
	return speech.Done(nil)
}
