package diff

// DefaultMaxCost bounds each Myers pass. Beyond it a changed block is
// reported as one replacement.
const DefaultMaxCost = 512

// Options configures a Differ.
type Options struct {
	// MaxCost is the largest edit distance a single Myers pass explores.
	// Zero or negative means DefaultMaxCost.
	MaxCost int

	// IncludeEqual emits Equal ops for unchanged gaps so the op list tiles
	// both snapshots completely.
	IncludeEqual bool
}

// Differ computes edit operations between snapshots. A Differ holds only
// configuration and is safe for concurrent use.
type Differ struct {
	opts Options
}

// NewDiffer creates a Differ with the given options.
func NewDiffer(opts Options) *Differ {
	if opts.MaxCost <= 0 {
		opts.MaxCost = DefaultMaxCost
	}
	return &Differ{opts: opts}
}

var defaultDiffer = NewDiffer(Options{})

// Diff compares two snapshots with default options.
func Diff(old, new Snapshot) ([]EditOp, error) {
	return defaultDiffer.Diff(old, new)
}

// Diff returns the ordered change operations turning old into new. Identical
// snapshots yield an empty list, or a single Equal op with IncludeEqual.
func (d *Differ) Diff(old, new Snapshot) ([]EditOp, error) {
	if err := old.Validate(); err != nil {
		return nil, err
	}
	if err := new.Validate(); err != nil {
		return nil, err
	}

	a, b := old.Text, new.Text
	if equalRunes(a, b) {
		if d.opts.IncludeEqual {
			return withEqual(nil, len(a), len(b)), nil
		}
		return nil, nil
	}

	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	suf := 0
	for suf < len(a)-pre && suf < len(b)-pre && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}

	var ops []EditOp
	d.diffLines(a, b, pre, len(a)-suf, pre, len(b)-suf, &ops)
	ops = merge(ops)

	if d.opts.IncludeEqual {
		ops = withEqual(ops, len(a), len(b))
	}
	return ops, nil
}

// diffLines diffs a[aLo:aHi] against b[bLo:bHi] at line granularity and
// refines every changed line block at token granularity.
func (d *Differ) diffLines(a, b []rune, aLo, aHi, bLo, bHi int, ops *[]EditOp) {
	if aLo == aHi || bLo == bHi {
		*ops = append(*ops, changeOp(aLo, aHi, bLo, bHi))
		return
	}

	aLines := lineSpans(a, aLo, aHi)
	bLines := lineSpans(b, bLo, bHi)
	in := interner{}
	blocks, ok := myers(in.ids(a, aLines), in.ids(b, bLines), d.opts.MaxCost)
	if !ok {
		*ops = append(*ops, changeOp(aLo, aHi, bLo, bHi))
		return
	}

	for _, blk := range blocks {
		oldStart, oldEnd := spanRange(aLines, blk.a0, blk.a1, aLo)
		newStart, newEnd := spanRange(bLines, blk.b0, blk.b1, bLo)
		if blk.a0 == blk.a1 || blk.b0 == blk.b1 {
			*ops = append(*ops, changeOp(oldStart, oldEnd, newStart, newEnd))
			continue
		}
		d.diffTokens(a, b, oldStart, oldEnd, newStart, newEnd, ops)
	}
}

// diffTokens refines a changed line block at token boundaries.
func (d *Differ) diffTokens(a, b []rune, aLo, aHi, bLo, bHi int, ops *[]EditOp) {
	aToks := tokenSpans(a, aLo, aHi)
	bToks := tokenSpans(b, bLo, bHi)
	in := interner{}
	blocks, ok := myers(in.ids(a, aToks), in.ids(b, bToks), d.opts.MaxCost)
	if !ok {
		*ops = append(*ops, changeOp(aLo, aHi, bLo, bHi))
		return
	}
	for _, blk := range blocks {
		oldStart, oldEnd := spanRange(aToks, blk.a0, blk.a1, aLo)
		newStart, newEnd := spanRange(bToks, blk.b0, blk.b1, bLo)
		*ops = append(*ops, changeOp(oldStart, oldEnd, newStart, newEnd))
	}
}

// spanRange converts element indexes [i, j) into a rune range. An empty
// element range maps to the boundary before element i (or the end of the
// region when i is past the last element).
func spanRange(spans []span, i, j, regionStart int) (int, int) {
	if i < j {
		return spans[i].start, spans[j-1].end
	}
	if i < len(spans) {
		return spans[i].start, spans[i].start
	}
	if len(spans) == 0 {
		return regionStart, regionStart
	}
	end := spans[len(spans)-1].end
	return end, end
}

// merge joins touching ops and recomputes their kinds.
func merge(ops []EditOp) []EditOp {
	if len(ops) < 2 {
		return ops
	}
	out := ops[:1]
	for _, op := range ops[1:] {
		last := &out[len(out)-1]
		if op.OldStart == last.OldEnd && op.NewStart == last.NewEnd {
			*last = changeOp(last.OldStart, op.OldEnd, last.NewStart, op.NewEnd)
			continue
		}
		out = append(out, op)
	}
	return out
}

// withEqual inserts Equal ops for the gaps between change ops.
func withEqual(ops []EditOp, oldLen, newLen int) []EditOp {
	out := make([]EditOp, 0, 2*len(ops)+1)
	oi, ni := 0, 0
	for _, op := range ops {
		if op.OldStart > oi {
			out = append(out, EditOp{Kind: OpEqual, OldStart: oi, OldEnd: op.OldStart, NewStart: ni, NewEnd: op.NewStart})
		}
		out = append(out, op)
		oi, ni = op.OldEnd, op.NewEnd
	}
	if oi < oldLen {
		out = append(out, EditOp{Kind: OpEqual, OldStart: oi, OldEnd: oldLen, NewStart: ni, NewEnd: newLen})
	}
	return out
}
