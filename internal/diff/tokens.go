package diff

import "unicode"

// span is a half-open rune range.
type span struct {
	start, end int
}

type tokenClass int

const (
	classWord tokenClass = iota
	classSpace
	classNewline
	classOther
)

func classOf(r rune) tokenClass {
	switch {
	case r == '\n':
		return classNewline
	case unicode.IsSpace(r):
		return classSpace
	case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r):
		return classWord
	default:
		return classOther
	}
}

// lineSpans splits text[lo:hi] into chunks that each end after a newline
// (the last chunk may not).
func lineSpans(text []rune, lo, hi int) []span {
	var spans []span
	start := lo
	for i := lo; i < hi; i++ {
		if text[i] == '\n' {
			spans = append(spans, span{start, i + 1})
			start = i + 1
		}
	}
	if start < hi {
		spans = append(spans, span{start, hi})
	}
	return spans
}

// tokenSpans splits text[lo:hi] into word runs, whitespace runs, and single
// newline or punctuation runes.
func tokenSpans(text []rune, lo, hi int) []span {
	var spans []span
	i := lo
	for i < hi {
		c := classOf(text[i])
		j := i + 1
		if c == classWord || c == classSpace {
			for j < hi && classOf(text[j]) == c {
				j++
			}
		}
		spans = append(spans, span{i, j})
		i = j
	}
	return spans
}

// interner maps distinct chunk strings to small integers so the Myers pass
// compares ints instead of strings.
type interner map[string]int

func (in interner) ids(text []rune, spans []span) []int {
	ids := make([]int, len(spans))
	for i, s := range spans {
		key := string(text[s.start:s.end])
		id, ok := in[key]
		if !ok {
			id = len(in)
			in[key] = id
		}
		ids[i] = id
	}
	return ids
}
