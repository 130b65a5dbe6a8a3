package diff

import "fmt"

// Apply rebuilds the new text from old, taking inserted and replacing text
// from new. Unchanged gaps are copied from old, so the result equals new
// only if the ops are a correct diff. Ops must be ordered and
// non-overlapping; Equal ops are accepted but not required.
func Apply(old, new Snapshot, ops []EditOp) ([]rune, error) {
	out := make([]rune, 0, new.Len())
	oi, ni := 0, 0

	for i, op := range ops {
		if op.OldStart < oi || op.NewStart < ni || op.OldEnd < op.OldStart || op.NewEnd < op.NewStart {
			return nil, fmt.Errorf("%w: op %d (%s) is out of order", ErrInvalidOps, i, op)
		}
		if op.OldEnd > old.Len() || op.NewEnd > new.Len() {
			return nil, fmt.Errorf("%w: op %d (%s) is out of range", ErrInvalidOps, i, op)
		}
		if op.OldStart-oi != op.NewStart-ni {
			return nil, fmt.Errorf("%w: op %d (%s) leaves unequal gap", ErrInvalidOps, i, op)
		}
		out = append(out, old.Text[oi:op.OldStart]...)

		switch op.Kind {
		case OpEqual:
			if op.OldLen() != op.NewLen() {
				return nil, fmt.Errorf("%w: equal op %d has unequal lengths", ErrInvalidOps, i)
			}
			out = append(out, old.Text[op.OldStart:op.OldEnd]...)
		case OpInsert, OpReplace:
			out = append(out, new.Text[op.NewStart:op.NewEnd]...)
		case OpDelete:
		default:
			return nil, fmt.Errorf("%w: op %d has unknown kind", ErrInvalidOps, i)
		}
		oi, ni = op.OldEnd, op.NewEnd
	}

	if old.Len()-oi != new.Len()-ni {
		return nil, fmt.Errorf("%w: trailing gap differs", ErrInvalidOps)
	}
	out = append(out, old.Text[oi:]...)
	return out, nil
}
