// Package classify turns edit operations into utterances. It decides what is
// worth saying about a change and at which priority, and never talks to the
// queue or the sinks itself.
package classify

import (
	"fmt"
	"strings"

	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/internal/speech"
)

// Utterance kinds produced by the classifier.
const (
	KindTyped    = "typed"
	KindInserted = "inserted"
	KindDeleted  = "deleted"
	KindChanged  = "changed"
	KindSummary  = "summary"
	KindPosition = "position"
)

// contentChanged is spoken when a change cannot be described.
const contentChanged = "content changed"

// Classifier maps edit operations plus context onto utterances. It holds
// only its policy and is safe for concurrent use.
type Classifier struct {
	policy Policy
}

// New creates a classifier with the given policy.
func New(policy Policy) *Classifier {
	return &Classifier{policy: policy}
}

// Policy returns the classifier's policy.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify returns the utterances describing ops. Without text changes it
// reports formatting changes and caret moves. Output depends only on its
// inputs. Malformed input degrades to a generic "content changed"
// utterance.
func (c *Classifier) Classify(ops []diff.EditOp, ctx Context) []speech.Utterance {
	changes := make([]diff.EditOp, 0, len(ops))
	for _, op := range ops {
		if op.Kind != diff.OpEqual {
			changes = append(changes, op)
		}
	}
	if err := checkOps(ops, ctx); err != nil {
		return []speech.Utterance{c.generic(ctx)}
	}

	if len(changes) == 0 {
		var out []speech.Utterance
		if u, ok := c.formatting(ctx); ok {
			out = append(out, u)
		}
		if u, ok := c.position(ctx); ok {
			out = append(out, u)
		}
		return out
	}

	var out []speech.Utterance
	for _, group := range c.coalesce(changes, ctx.New.Text) {
		u := c.describe(group, ctx)
		if u.IsEmpty() {
			continue
		}
		out = append(out, u)
	}
	return out
}

// checkOps validates ordering and ranges against the context snapshots.
func checkOps(ops []diff.EditOp, ctx Context) error {
	oi, ni := 0, 0
	for i, op := range ops {
		if op.OldStart < oi || op.NewStart < ni || op.OldEnd < op.OldStart || op.NewEnd < op.NewStart {
			return fmt.Errorf("op %d out of order", i)
		}
		if op.OldEnd > ctx.Old.Len() || op.NewEnd > ctx.New.Len() {
			return fmt.Errorf("op %d out of range", i)
		}
		oi, ni = op.OldEnd, op.NewEnd
	}
	return nil
}

// coalesce groups changes that touch the same line of the new text.
func (c *Classifier) coalesce(changes []diff.EditOp, text []rune) [][]diff.EditOp {
	var groups [][]diff.EditOp
	for _, op := range changes {
		if n := len(groups); n > 0 {
			last := groups[n-1][len(groups[n-1])-1]
			gap := op.NewStart - last.NewEnd
			sameLine := !containsNewline(text[last.NewStart:op.NewStart])
			if sameLine && (c.policy.MergeDistance <= 0 || gap <= c.policy.MergeDistance) {
				groups[n-1] = append(groups[n-1], op)
				continue
			}
		}
		groups = append(groups, []diff.EditOp{op})
	}
	return groups
}

// describe builds the utterance for one coalesced group.
func (c *Classifier) describe(group []diff.EditOp, ctx Context) speech.Utterance {
	first, last := group[0], group[len(group)-1]
	typed := ctx.UserTyped && ctx.Caret >= first.NewStart && ctx.Caret <= last.NewEnd

	u := speech.Utterance{
		SourceID: ctx.SourceID,
		Priority: c.priority(typed, ctx.Role),
		Preserve: ctx.Role == RoleLiveRegion,
		Kind:     kindOf(group, typed),
	}

	echo := c.echoes(ctx.Role)
	for _, op := range group {
		switch op.Kind {
		case diff.OpInsert:
			if typed && !echo {
				continue
			}
			u.Fragments = append(u.Fragments, c.insertFragments(op, ctx, typed)...)
		case diff.OpDelete:
			text := op.OldText(ctx.Old)
			if ctx.Role == RolePasswordEdit {
				text = stars(op.OldLen())
			}
			if typed && op.OldLen() == 1 && ctx.Role != RolePasswordEdit {
				u.Fragments = append(u.Fragments, c.characterFragment(ctx.Old.Text[op.OldStart], speech.RoleDeleted))
				continue
			}
			if speakable(text) {
				u.Fragments = append(u.Fragments, speech.Fragment{Text: text, Role: speech.RoleDeleted})
			}
		case diff.OpReplace:
			if typed && !echo {
				continue
			}
			if n := max(op.OldLen(), op.NewLen()); c.policy.SummarizeThreshold > 0 && n > c.policy.SummarizeThreshold {
				u.Kind = KindSummary
				u.Fragments = append(u.Fragments, speech.Fragment{
					Text: fmt.Sprintf("%d characters changed", n),
					Role: speech.RoleSummary,
				})
				continue
			}
			u.Fragments = append(u.Fragments, c.insertFragments(op, ctx, typed)...)
		}
	}

	u.Braille = brailleFor(ctx, first.NewStart)
	return u
}

// insertFragments speaks the new text of an insert or replace.
func (c *Classifier) insertFragments(op diff.EditOp, ctx Context, typed bool) []speech.Fragment {
	role := speech.RoleInserted
	if typed {
		role = speech.RoleTyped
	}
	if ctx.Role == RolePasswordEdit {
		return []speech.Fragment{{Text: stars(op.NewLen()), Role: role}}
	}
	if typed && op.NewLen() == 1 {
		return []speech.Fragment{c.characterFragment(ctx.New.Text[op.NewStart], role)}
	}
	text := op.NewText(ctx.New)
	if !speakable(text) {
		return nil
	}
	return []speech.Fragment{{Text: text, Role: role}}
}

func (c *Classifier) priority(typed bool, role Role) speech.Priority {
	switch {
	case typed:
		return speech.PriorityDirect
	case role == RoleDialog:
		return speech.PriorityAlert
	default:
		return speech.PriorityBackground
	}
}

// echoes reports whether typed text is spoken in a control of this role.
func (c *Classifier) echoes(role Role) bool {
	switch c.policy.TypingEcho {
	case EchoAlways:
		return true
	case EchoEditControls:
		return role.editable()
	default:
		return false
	}
}

func kindOf(group []diff.EditOp, typed bool) string {
	if typed {
		return KindTyped
	}
	kind := group[0].Kind
	for _, op := range group[1:] {
		if op.Kind != kind {
			return KindChanged
		}
	}
	switch kind {
	case diff.OpInsert:
		return KindInserted
	case diff.OpDelete:
		return KindDeleted
	default:
		return KindChanged
	}
}

// position describes a caret move over unchanged text.
func (c *Classifier) position(ctx Context) (speech.Utterance, bool) {
	text := ctx.New.Text
	if ctx.Caret < 0 || ctx.Caret > len(text) || ctx.Caret == ctx.PrevCaret {
		return speech.Utterance{}, false
	}

	u := speech.Utterance{
		SourceID: ctx.SourceID,
		Priority: speech.PriorityBackground,
		Kind:     KindPosition,
		Braille:  brailleFor(ctx, ctx.Caret),
	}

	lineStart, lineEnd := lineBounds(text, ctx.Caret)
	prevOnLine := ctx.PrevCaret >= lineStart && ctx.PrevCaret <= lineEnd
	delta := ctx.Caret - ctx.PrevCaret

	switch {
	case ctx.PrevCaret < 0 || !prevOnLine:
		line := string(text[lineStart:lineEnd])
		if ctx.Role == RolePasswordEdit {
			line = stars(lineEnd - lineStart)
		}
		if !speakable(line) {
			line = "blank"
		}
		u.Fragments = []speech.Fragment{{Text: line, Role: speech.RolePosition}}
	case (delta == 1 || delta == -1) || ctx.Role == RolePasswordEdit:
		u.Fragments = []speech.Fragment{c.charAt(text, ctx.Caret, lineEnd, ctx.Role)}
	default:
		ws, we := wordBounds(text, ctx.Caret)
		if ws == we {
			u.Fragments = []speech.Fragment{c.charAt(text, ctx.Caret, lineEnd, ctx.Role)}
			break
		}
		u.Fragments = []speech.Fragment{{Text: string(text[ws:we]), Role: speech.RolePosition}}
	}
	if entered := crossing(ctx); len(entered) > 0 {
		u.Fragments = append(entered, u.Fragments...)
	}
	return u, true
}

// charAt describes the character under the caret.
func (c *Classifier) charAt(text []rune, off, lineEnd int, role Role) speech.Fragment {
	if off >= lineEnd {
		return speech.Fragment{Text: "blank", Role: speech.RolePosition}
	}
	if role == RolePasswordEdit {
		return speech.Fragment{Text: "star", Role: speech.RolePosition}
	}
	return c.characterFragment(text[off], speech.RolePosition)
}

// generic is the fallback for changes that cannot be described.
func (c *Classifier) generic(ctx Context) speech.Utterance {
	return speech.Utterance{
		SourceID:  ctx.SourceID,
		Priority:  speech.PriorityBackground,
		Kind:      KindChanged,
		Fragments: []speech.Fragment{{Text: contentChanged, Role: speech.RoleSummary}},
	}
}

// brailleFor returns the line of the new text holding the caret, or the line
// at fallback when the caret is unknown. The cursor is relative to the line.
func brailleFor(ctx Context, fallback int) *speech.BrailleRegion {
	text := ctx.New.Text
	at := fallback
	if ctx.Caret >= 0 && ctx.Caret <= len(text) {
		at = ctx.Caret
	}
	start, end := lineBounds(text, at)

	line := string(text[start:end])
	if ctx.Role == RolePasswordEdit {
		line = strings.Repeat("*", end-start)
	}
	cursor := -1
	if ctx.Caret >= start && ctx.Caret <= end {
		cursor = ctx.Caret - start
	}
	return &speech.BrailleRegion{Text: line, Cursor: cursor}
}

func stars(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("star ", n), " ")
}
