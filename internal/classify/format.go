package classify

import (
	"slices"
	"sort"
	"strings"

	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/internal/speech"
)

// KindFormat marks utterances about formatting and control boundaries.
const KindFormat = "format"

// runAt returns the run covering off. An offset at the end of the text
// takes the run of the last character, where typing would continue.
func runAt(s diff.Snapshot, off int) diff.Run {
	if off >= s.Len() && off > 0 {
		off = s.Len() - 1
	}
	r, _ := s.RunAt(off)
	return r
}

// transition describes moving from one run into another: leaving and
// entering controls, then format attributes switched off and on. Format is
// read as a space separated attribute list.
func transition(from, to diff.Run) []string {
	var out []string
	if from.Control != to.Control {
		if from.Control != "" {
			out = append(out, "out of "+from.Control)
		}
		if to.Control != "" {
			out = append(out, to.Control)
		}
	}

	was, is := strings.Fields(from.Format), strings.Fields(to.Format)
	for _, attr := range was {
		if !slices.Contains(is, attr) {
			out = append(out, attr+" off")
		}
	}
	for _, attr := range is {
		if !slices.Contains(was, attr) {
			out = append(out, attr+" on")
		}
	}
	return out
}

// formatting reports runs that changed over unchanged text, e.g. text that
// was just made bold. Each span with a different transition is described
// once, in text order.
func (c *Classifier) formatting(ctx Context) (speech.Utterance, bool) {
	if !slices.Equal(ctx.Old.Text, ctx.New.Text) || slices.Equal(ctx.Old.Runs, ctx.New.Runs) {
		return speech.Utterance{}, false
	}

	u := speech.Utterance{
		SourceID: ctx.SourceID,
		Priority: c.priority(ctx.UserTyped, ctx.Role),
		Kind:     KindFormat,
	}

	first := -1
	var last string
	for _, seg := range segments(ctx.Old, ctx.New) {
		words := transition(runAt(ctx.Old, seg), runAt(ctx.New, seg))
		key := strings.Join(words, "\x00")
		if len(words) == 0 || key == last {
			last = key
			continue
		}
		last = key
		if first < 0 {
			first = seg
		}
		for _, w := range words {
			u.Fragments = append(u.Fragments, speech.Fragment{Text: w, Role: speech.RoleFormat})
		}
	}
	if first < 0 {
		return speech.Utterance{}, false
	}
	u.Braille = brailleFor(ctx, first)
	return u, true
}

// segments returns the start of every span over which neither snapshot
// changes run.
func segments(a, b diff.Snapshot) []int {
	seen := map[int]bool{0: true}
	for _, runs := range [][]diff.Run{a.Runs, b.Runs} {
		for _, r := range runs {
			seen[r.Start] = true
			seen[r.End] = true
		}
	}
	out := make([]int, 0, len(seen))
	for off := range seen {
		if off < a.Len() {
			out = append(out, off)
		}
	}
	sort.Ints(out)
	return out
}

// crossing describes the runs the caret crossed between PrevCaret and
// Caret in the new snapshot.
func crossing(ctx Context) []speech.Fragment {
	if ctx.PrevCaret < 0 || ctx.Caret < 0 || len(ctx.New.Runs) == 0 {
		return nil
	}
	var out []speech.Fragment
	for _, w := range transition(runAt(ctx.New, ctx.PrevCaret), runAt(ctx.New, ctx.Caret)) {
		out = append(out, speech.Fragment{Text: w, Role: speech.RoleFormat})
	}
	return out
}
