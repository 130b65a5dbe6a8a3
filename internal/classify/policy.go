package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/nidza07/nvda/internal/speech"
)

// EchoMode controls whether typed characters are spoken.
type EchoMode int

const (
	EchoOff EchoMode = iota
	EchoEditControls
	EchoAlways
)

// String returns the string representation of the echo mode
func (m EchoMode) String() string {
	switch m {
	case EchoOff:
		return "off"
	case EchoEditControls:
		return "edit-controls"
	case EchoAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ParseEchoMode parses the names produced by EchoMode.String.
func ParseEchoMode(s string) (EchoMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return EchoOff, nil
	case "edit-controls", "":
		return EchoEditControls, nil
	case "always":
		return EchoAlways, nil
	default:
		return EchoEditControls, fmt.Errorf("unknown typing echo mode %q", s)
	}
}

// Policy holds the tunable thresholds of the classifier.
type Policy struct {
	// SummarizeThreshold is the replacement length (in runes) above which a
	// replace is summarized instead of read. Zero disables summarizing.
	SummarizeThreshold int

	// MergeDistance is the largest gap (in runes) between two changes on the
	// same line that still coalesces them. Zero means any gap on the line.
	MergeDistance int

	TypingEcho EchoMode

	// Capital letter notification when a single character is spoken
	SayCapForCapitals bool
	CapPitchChange    int
	BeepForCapitals   bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		SummarizeThreshold: 80,
		MergeDistance:      0,
		TypingEcho:         EchoEditControls,
		CapPitchChange:     30,
	}
}

// capitalBeep is the tone used for capital letters.
var capitalBeep = speech.Beep{Hz: 2000, Duration: 50 * time.Millisecond}
