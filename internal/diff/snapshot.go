package diff

// Run attaches metadata to a span of a snapshot.
type Run struct {
	Start int
	End   int

	// Format is an opaque formatting descriptor (e.g. "bold")
	Format string

	// Control names the control the span belongs to, if any
	Control string
}

// Snapshot is an immutable capture of on-screen text at one point in time.
// Offsets everywhere in this package are rune offsets.
type Snapshot struct {
	Text []rune
	Runs []Run
}

// NewSnapshot captures text with optional run metadata.
func NewSnapshot(text string, runs ...Run) Snapshot {
	s := Snapshot{Text: []rune(text)}
	if len(runs) > 0 {
		s.Runs = append([]Run(nil), runs...)
	}
	return s
}

// Len returns the number of runes in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Text)
}

// String returns the snapshot text.
func (s Snapshot) String() string {
	return string(s.Text)
}

// Slice returns the text between start and end, clamped to the snapshot.
func (s Snapshot) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s.Text) {
		end = len(s.Text)
	}
	if start >= end {
		return ""
	}
	return string(s.Text[start:end])
}

// RunAt returns the run covering offset, if any.
func (s Snapshot) RunAt(offset int) (Run, bool) {
	for _, r := range s.Runs {
		if offset >= r.Start && offset < r.End {
			return r, true
		}
	}
	return Run{}, false
}

// Validate checks that runs are in bounds, ordered and non-overlapping.
func (s Snapshot) Validate() error {
	prevEnd := 0
	for i, r := range s.Runs {
		switch {
		case r.Start > r.End:
			return &SnapshotError{Code: ErrorCodeRunInverted, Run: i, Offset: r.Start, Message: "run ends before it starts"}
		case r.Start < 0 || r.End > len(s.Text):
			return &SnapshotError{Code: ErrorCodeRunOutOfRange, Run: i, Offset: r.End, Message: "run outside snapshot text"}
		case r.Start < prevEnd:
			return &SnapshotError{Code: ErrorCodeRunOverlap, Run: i, Offset: r.Start, Message: "run overlaps previous run"}
		}
		prevEnd = r.End
	}
	return nil
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
