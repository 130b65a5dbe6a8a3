// Package console provides speech and braille sinks that write to a
// terminal or any other io.Writer.
package console

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nidza07/nvda/internal/speech"
)

// Colors shared by every terminal renderer.
var (
	MintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	DarkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	Fuchsia   = lipgloss.Color("#EE6FF8")
	Red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	Gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
)

var (
	roleStyles = map[string]func(...string) string{
		speech.RoleTyped:    lipgloss.NewStyle().Foreground(MintGreen).Render,
		speech.RoleInserted: lipgloss.NewStyle().Foreground(DarkGreen).Render,
		speech.RoleDeleted:  lipgloss.NewStyle().Foreground(Red).Strikethrough(true).Render,
		speech.RolePosition: lipgloss.NewStyle().Foreground(Gray).Render,
		speech.RoleSummary:  lipgloss.NewStyle().Foreground(Gray).Italic(true).Render,
		speech.RoleMessage:  lipgloss.NewStyle().Foreground(Fuchsia).Bold(true).Render,
		speech.RoleFormat:   lipgloss.NewStyle().Foreground(Fuchsia).Italic(true).Render,
	}

	annotationStyle = lipgloss.NewStyle().Foreground(Gray).Render
	brailleStyle    = lipgloss.NewStyle().Foreground(Fuchsia).Render
)

// RoleStyle returns the render function for a fragment role, or nil when
// the role is drawn unstyled.
func RoleStyle(role string) func(...string) string {
	return roleStyles[role]
}

type options struct {
	styled bool
	wpm    int
}

// Option configures a console sink.
type Option func(*options)

// WithStyle turns terminal styling on or off. On by default.
func WithStyle(enabled bool) Option {
	return func(o *options) { o.styled = enabled }
}

// WithWordsPerMinute sets the simulated speaking rate. Zero completes
// every fragment as soon as it is written.
func WithWordsPerMinute(wpm int) Option {
	return func(o *options) { o.wpm = wpm }
}

func newOptions(opts []Option) options {
	o := options{styled: true, wpm: 180}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) render(style func(...string) string, s string) string {
	if !o.styled || style == nil {
		return s
	}
	return style(s)
}
