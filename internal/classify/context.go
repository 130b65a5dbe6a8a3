package classify

import (
	"fmt"
	"strings"

	"github.com/nidza07/nvda/internal/diff"
)

// Role describes the kind of control a change happened in.
type Role int

const (
	RoleUnknown Role = iota
	RoleEdit
	RoleDocument
	RoleTerminal
	RolePasswordEdit
	RoleStaticText
	RoleLiveRegion
	RoleDialog
)

var roleNames = map[Role]string{
	RoleUnknown:      "unknown",
	RoleEdit:         "edit",
	RoleDocument:     "document",
	RoleTerminal:     "terminal",
	RolePasswordEdit: "password",
	RoleStaticText:   "static",
	RoleLiveRegion:   "liveregion",
	RoleDialog:       "dialog",
}

// String returns the string representation of the role
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole parses the names produced by Role.String. Unknown names map to
// RoleUnknown with an error.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleUnknown, nil
	}
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown control role %q", s)
}

// editable reports whether typing echo applies in EchoEditControls mode.
// Unknown controls are assumed editable since the user typed into them.
func (r Role) editable() bool {
	switch r {
	case RoleStaticText, RoleLiveRegion, RoleDialog:
		return false
	}
	return true
}

// Context is everything the classifier knows about a change besides the
// edit operations themselves.
type Context struct {
	Old diff.Snapshot
	New diff.Snapshot

	// Caret is the caret offset in New, or -1 when unknown
	Caret int

	// PrevCaret is the caret offset in Old, or -1 when unknown
	PrevCaret int

	// UserTyped is true when the change came from user input rather than an
	// external update
	UserTyped bool

	Role     Role
	SourceID string
}

// NoCaret is the caret value meaning "unknown".
const NoCaret = -1
