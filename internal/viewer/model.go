// Package viewer is a terminal speech viewer: a scrolling history of what
// was spoken, the braille line and a status bar with dispatcher state.
package viewer

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/dispatch"
	"github.com/nidza07/nvda/internal/sinks/console"
	"github.com/nidza07/nvda/internal/speech"
)

const (
	maxHistory   = 500
	footerHeight = 2
	ellipsis     = "…"
)

var (
	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(console.Fuchsia).
			Bold(true).
			Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(console.MintGreen).
				Background(console.DarkGreen).
				Render

	cursorStyle = lipgloss.NewStyle().Reverse(true).Render

	canceledStyle = lipgloss.NewStyle().Foreground(console.Red).Render
)

// Controls is the part of the dispatcher the viewer drives.
type Controls interface {
	Pause()
	Resume()
	Paused() bool
	Silence() int
	State() dispatch.StateType
}

// Model is the bubbletea model of the viewer.
type Model struct {
	viewport viewport.Model
	controls Controls
	statsFn  func() diag.Stats

	history      []string
	lastText     string
	braille      speech.BrailleRegion
	brailleCells int

	state         dispatch.StateType
	stats         diag.Stats
	statusMessage string

	width  int
	height int
}

// New creates a viewer model. statsFn may be nil.
func New(controls Controls, statsFn func() diag.Stats, brailleCells int) Model {
	if brailleCells <= 0 {
		brailleCells = console.DefaultCells
	}
	vp := viewport.New(0, 0)
	return Model{
		viewport:     vp,
		controls:     controls,
		statsFn:      statsFn,
		brailleCells: brailleCells,
		braille:      speech.BrailleRegion{Cursor: -1},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickStats()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit

		case " ", "p":
			if m.controls != nil {
				if m.controls.Paused() {
					m.controls.Resume()
					cmds = append(cmds, m.showStatusMessage("Resumed"))
				} else {
					m.controls.Pause()
					cmds = append(cmds, m.showStatusMessage("Paused"))
				}
			}

		case "s":
			if m.controls != nil {
				n := m.controls.Silence()
				cmds = append(cmds, m.showStatusMessage(fmt.Sprintf("Silenced %d", n)))
			}

		case "c":
			if m.lastText != "" {
				// Copy using OSC 52
				termenv.Copy(m.lastText)
				// Copy using native system clipboard
				_ = clipboard.WriteAll(m.lastText)
				cmds = append(cmds, m.showStatusMessage("Copied last utterance"))
			}

		case "home", "g":
			m.viewport.GotoTop()
		case "end", "G":
			m.viewport.GotoBottom()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(0, msg.Height-footerHeight)
		m.refresh()

	case FragmentMsg:
		m.appendLine(formatFragment(msg.Fragment))
		if msg.Fragment.Text != "" {
			m.lastText = msg.Fragment.Text
		}

	case CanceledMsg:
		m.appendLine(canceledStyle("  (interrupted)"))

	case BrailleMsg:
		m.braille = msg.Region

	case StateMsg:
		m.state = msg.State

	case statsTickMsg:
		if m.statsFn != nil {
			m.stats = m.statsFn()
		}
		if m.controls != nil {
			m.state = m.controls.State()
		}
		cmds = append(cmds, tickStats())

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) showStatusMessage(text string) tea.Cmd {
	m.statusMessage = text
	return waitForStatusMessageTimeout()
}

func (m *Model) appendLine(line string) {
	m.history = append(m.history, line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	if atBottom || m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	fmt.Fprint(&b, m.brailleView()+"\n")
	m.statusBarView(&b)
	return b.String()
}

// brailleView draws the display line with the cursor cell highlighted.
func (m Model) brailleView() string {
	visible, col := console.Window(m.braille.Text, m.braille.Cursor, m.brailleCells)

	var b strings.Builder
	b.WriteString("⣿ ")
	width := 0
	marked := false
	for _, r := range visible {
		if width == col {
			b.WriteString(cursorStyle(string(r)))
			marked = true
		} else {
			b.WriteRune(r)
		}
		width += runewidth.RuneWidth(r)
	}
	if col >= 0 && !marked {
		b.WriteString(cursorStyle(" "))
	}
	return b.String()
}

func (m Model) statusBarView(b *strings.Builder) {
	logo := logoStyle(" nvda ")
	state := statusBarNoteStyle(" " + m.state.String() + " ")

	note := m.stats.String()
	if m.statusMessage != "" {
		note = m.statusMessage
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(state),
	)), ellipsis)

	style := statusBarNoteStyle
	if m.statusMessage != "" {
		style = statusBarMessageStyle
	}
	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(state)-
			ansi.PrintableRuneWidth(note),
	)

	fmt.Fprintf(b, "%s%s%s%s",
		logo,
		state,
		style(note),
		style(strings.Repeat(" ", padding)),
	)
}

func formatFragment(f speech.Fragment) string {
	text := f.Text
	if text == "" && f.Beep != nil {
		text = fmt.Sprintf("(beep %gHz)", f.Beep.Hz)
	}
	if style := console.RoleStyle(f.Role); style != nil {
		return style(text)
	}
	return text
}
