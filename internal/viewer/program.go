package viewer

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

// NewProgram returns a new Tea program running m.
func NewProgram(m Model) *tea.Program {
	log.Debug("Starting viewer", "braille_cells", m.brailleCells)
	return tea.NewProgram(m, tea.WithAltScreen())
}

// Relay is a Sender whose program is attached after the sinks using it
// were built. Messages sent before Attach are dropped.
type Relay struct {
	mu     sync.Mutex
	target Sender
}

// Attach sets the program messages are forwarded to.
func (r *Relay) Attach(target Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = target
}

// Send implements Sender.
func (r *Relay) Send(msg tea.Msg) {
	r.mu.Lock()
	target := r.target
	r.mu.Unlock()
	if target != nil {
		target.Send(msg)
	}
}
