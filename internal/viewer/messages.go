package viewer

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nidza07/nvda/internal/dispatch"
	"github.com/nidza07/nvda/internal/speech"
)

// FragmentMsg is sent when a fragment is handed to speech
type FragmentMsg struct {
	Fragment speech.Fragment
}

// BrailleMsg is sent when a region is shown on the display
type BrailleMsg struct {
	Region speech.BrailleRegion
}

// CanceledMsg is sent when the speech in progress is cut off
type CanceledMsg struct{}

// StateMsg is sent when the dispatcher changes state
type StateMsg struct {
	State dispatch.StateType
}

type (
	statsTickMsg            struct{}
	statusMessageTimeoutMsg struct{}
)

const (
	statsInterval        = 500 * time.Millisecond
	statusMessageTimeout = 3 * time.Second
)

func tickStats() tea.Cmd {
	return tea.Tick(statsInterval, func(time.Time) tea.Msg {
		return statsTickMsg{}
	})
}

func waitForStatusMessageTimeout() tea.Cmd {
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}
