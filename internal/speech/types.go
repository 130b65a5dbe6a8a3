// Package speech contains the output types shared by the classifier, queue,
// dispatcher and sinks. It sits at the bottom of the import graph so those
// packages never import each other for type definitions.
package speech

import (
	"fmt"
	"strings"
	"time"
)

// Priority orders utterances in the queue. Higher values drain first.
type Priority int

const (
	// PriorityBackground is used for content the user did not ask for, such
	// as external updates and caret position reports.
	PriorityBackground Priority = iota

	// PriorityDirect is used for immediate feedback to user input.
	PriorityDirect

	// PriorityAlert interrupts background chatter.
	PriorityAlert
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "background"
	case PriorityDirect:
		return "direct"
	case PriorityAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// ParsePriority parses the names produced by Priority.String.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "background", "":
		return PriorityBackground, nil
	case "direct":
		return PriorityDirect, nil
	case "alert":
		return PriorityAlert, nil
	default:
		return PriorityBackground, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Fragment roles attached by the classifier. Sinks may style or voice them
// differently; the dispatcher treats them as opaque.
const (
	RoleTyped    = "typed"
	RoleDeleted  = "deleted"
	RoleInserted = "inserted"
	RolePosition = "position"
	RoleSummary  = "summary"
	RoleMessage  = "message"
	RoleFormat   = "format"
)

// Beep is a short tone played in place of, or before, spoken text.
type Beep struct {
	Hz       float64
	Duration time.Duration
}

// Fragment is the smallest unit handed to a speech sink. Fragment
// boundaries are the only points where the dispatcher observes
// cancellation.
type Fragment struct {
	// Text is the speakable content
	Text string

	// Role is an optional prosody/role tag
	Role string

	// Pitch is a relative pitch offset in percent (0 = unchanged)
	Pitch int

	// Beep, when set, is played before Text
	Beep *Beep
}

// BrailleRegion is display-size independent text plus a cursor offset.
// Translating it into cells is the braille sink's job.
type BrailleRegion struct {
	Text string

	// Cursor is a rune offset into Text, or -1 when there is no cursor
	Cursor int
}

// Utterance is one schedulable unit of spoken and/or braille output.
type Utterance struct {
	// ID uniquely identifies the utterance. Assigned by intake, not the
	// classifier, so classification stays deterministic.
	ID string

	// SourceID groups utterances that are interrupted together
	SourceID string

	// Priority decides drain order
	Priority Priority

	// Preserve exempts a background utterance from alert interruption
	Preserve bool

	// Kind describes what produced the utterance (typed, position, ...)
	Kind string

	// Fragments is the speakable content, in order
	Fragments []Fragment

	// Braille is the optional braille region
	Braille *BrailleRegion
}

// Text joins the fragment texts.
func (u Utterance) Text() string {
	var b strings.Builder
	for i, f := range u.Fragments {
		if i > 0 && b.Len() > 0 && f.Text != "" {
			b.WriteByte(' ')
		}
		b.WriteString(f.Text)
	}
	return b.String()
}

// Key identifies utterances that say the same thing to the same source at
// the same priority. The queue uses it for coalescing.
func (u Utterance) Key() string {
	var braille string
	if u.Braille != nil {
		braille = fmt.Sprintf("%s@%d", u.Braille.Text, u.Braille.Cursor)
	}
	return fmt.Sprintf("%s|%d|%s|%s", u.SourceID, u.Priority, u.Text(), braille)
}

// IsEmpty reports whether the utterance has nothing to speak or show.
func (u Utterance) IsEmpty() bool {
	if u.Braille != nil {
		return false
	}
	for _, f := range u.Fragments {
		if f.Text != "" || f.Beep != nil {
			return false
		}
	}
	return true
}
