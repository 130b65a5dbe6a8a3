package diff

import "fmt"

// OpKind tags an edit operation.
type OpKind int

const (
	// OpEqual marks a span that is identical in both snapshots
	OpEqual OpKind = iota
	// OpInsert marks text present only in the new snapshot
	OpInsert
	// OpDelete marks text present only in the old snapshot
	OpDelete
	// OpReplace marks old text replaced by new text
	OpReplace
)

// String returns the string representation of the kind
func (k OpKind) String() string {
	switch k {
	case OpEqual:
		return "equal"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// EditOp is one change between two snapshots. Old and new ranges are
// half-open rune ranges; an insert has an empty old range and a delete an
// empty new range.
type EditOp struct {
	Kind     OpKind
	OldStart int
	OldEnd   int
	NewStart int
	NewEnd   int
}

// OldLen returns the number of old runes the op covers.
func (op EditOp) OldLen() int { return op.OldEnd - op.OldStart }

// NewLen returns the number of new runes the op covers.
func (op EditOp) NewLen() int { return op.NewEnd - op.NewStart }

// OldText returns the old text covered by the op.
func (op EditOp) OldText(old Snapshot) string {
	return old.Slice(op.OldStart, op.OldEnd)
}

// NewText returns the new text covered by the op.
func (op EditOp) NewText(new Snapshot) string {
	return new.Slice(op.NewStart, op.NewEnd)
}

// String renders the op for logs and the diff command.
func (op EditOp) String() string {
	return fmt.Sprintf("%s old[%d:%d] new[%d:%d]", op.Kind, op.OldStart, op.OldEnd, op.NewStart, op.NewEnd)
}

func kindFor(oldLen, newLen int) OpKind {
	switch {
	case oldLen == 0 && newLen == 0:
		return OpEqual
	case oldLen == 0:
		return OpInsert
	case newLen == 0:
		return OpDelete
	default:
		return OpReplace
	}
}

func changeOp(oldStart, oldEnd, newStart, newEnd int) EditOp {
	return EditOp{
		Kind:     kindFor(oldEnd-oldStart, newEnd-newStart),
		OldStart: oldStart,
		OldEnd:   oldEnd,
		NewStart: newStart,
		NewEnd:   newEnd,
	}
}
