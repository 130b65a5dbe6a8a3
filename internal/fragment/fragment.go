// Package fragment splits utterances into fragments, the natural
// interruption points the dispatcher checks for cancellation.
package fragment

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nidza07/nvda/internal/speech"
)

// DefaultMaxRunes is the fragment length used when none is configured.
const DefaultMaxRunes = 120

// Splitter cuts fragment text at sentence boundaries, then clause
// punctuation, then word boundaries so that no piece exceeds MaxRunes.
// A word is only cut when it alone is longer than MaxRunes.
type Splitter struct {
	MaxRunes int

	// Common abbreviations that don't end sentences
	abbreviations map[string]bool
}

// NewSplitter creates a splitter. maxRunes <= 0 means DefaultMaxRunes.
func NewSplitter(maxRunes int) *Splitter {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Splitter{
		MaxRunes:      maxRunes,
		abbreviations: makeAbbreviationMap(),
	}
}

// Split returns the fragments of u in speaking order. Role and pitch carry
// over to every piece; a beep stays on the first piece only.
func (s *Splitter) Split(u speech.Utterance) []speech.Fragment {
	out := make([]speech.Fragment, 0, len(u.Fragments))
	for _, f := range u.Fragments {
		pieces := s.Pieces(f.Text)
		if len(pieces) == 0 {
			if f.Beep != nil {
				out = append(out, f)
			}
			continue
		}
		for i, p := range pieces {
			piece := f
			piece.Text = p
			if i > 0 {
				piece.Beep = nil
			}
			out = append(out, piece)
		}
	}
	return out
}

// Pieces splits text into trimmed, non-empty pieces.
func (s *Splitter) Pieces(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, sentence := range s.Sentences(line) {
			if utf8.RuneCountInString(sentence) <= s.MaxRunes {
				out = append(out, sentence)
				continue
			}
			for _, clause := range pack(clauses(sentence), s.MaxRunes) {
				if utf8.RuneCountInString(clause) <= s.MaxRunes {
					out = append(out, clause)
					continue
				}
				out = append(out, pack(words(clause, s.MaxRunes), s.MaxRunes)...)
			}
		}
	}
	return out
}

// Sentences splits a single line into trimmed sentences.
func (s *Splitter) Sentences(text string) []string {
	runes := []rune(text)
	var out []string
	lastStart := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Collect all punctuation
		punctEnd := i + 1
		for punctEnd < len(runes) && strings.ContainsRune(".!?", runes[punctEnd]) {
			punctEnd++
		}
		// Closing quotes or brackets belong to the sentence
		for punctEnd < len(runes) && strings.ContainsRune("\"')]", runes[punctEnd]) {
			punctEnd++
		}
		if !s.isSentenceEnd(runes, i, punctEnd) {
			i = punctEnd - 1
			continue
		}
		if t := strings.TrimSpace(string(runes[lastStart:punctEnd])); t != "" {
			out = append(out, t)
		}
		lastStart = punctEnd
		i = punctEnd - 1
	}

	if t := strings.TrimSpace(string(runes[lastStart:])); t != "" {
		out = append(out, t)
	}
	return out
}

// isSentenceEnd checks whether the punctuation run runes[pos:end] closes a
// sentence.
func (s *Splitter) isSentenceEnd(runes []rune, pos, end int) bool {
	if end >= len(runes) {
		return true
	}
	// Must have whitespace after punctuation
	if !unicode.IsSpace(runes[end]) {
		return false
	}

	punct := runes[pos]
	if punct == '.' && end-pos == 1 {
		start := pos - 1
		for start >= 0 && !unicode.IsSpace(runes[start]) {
			start--
		}
		word := strings.ToLower(string(runes[start+1 : pos]))
		if s.abbreviations[word] {
			return false
		}
		// Multi-part abbreviations like "U.S."
		if strings.Contains(word, ".") {
			return false
		}
	}

	next := end
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	// For exclamation and question marks, be more lenient
	if punct == '!' || punct == '?' {
		return true
	}
	return unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next])
}

// clauses splits a sentence after clause punctuation.
func clauses(sentence string) []string {
	var out []string
	runes := []rune(sentence)
	start := 0
	for i, r := range runes {
		if !strings.ContainsRune(",;:", r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if t := strings.TrimSpace(string(runes[start : i+1])); t != "" {
			out = append(out, t)
		}
		start = i + 1
	}
	if t := strings.TrimSpace(string(runes[start:])); t != "" {
		out = append(out, t)
	}
	return out
}

// words splits text at whitespace, cutting words longer than limit.
func words(text string, limit int) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		runes := []rune(w)
		for len(runes) > limit {
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
	}
	return out
}

// pack greedily joins consecutive parts with spaces while the result stays
// within limit runes.
func pack(parts []string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+1+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

var (
	numberRegex      = regexp.MustCompile(`\d+`)
	punctuationRegex = regexp.MustCompile(`[,;:\-()]`)
)

// EstimateDuration estimates how long text takes to speak at wpm words per
// minute (150 when wpm <= 0). Numbers, punctuation and long words slow the
// estimate down by up to half.
func EstimateDuration(text string, wpm int) time.Duration {
	if wpm <= 0 {
		wpm = 150
	}
	fields := strings.Fields(text)
	n := len(fields)
	if n == 0 {
		n = 1
	}

	complexity := float64(len(numberRegex.FindAllString(text, -1))) * 0.02
	complexity += float64(len(punctuationRegex.FindAllString(text, -1))) * 0.01
	longWords := 0
	for _, w := range fields {
		if utf8.RuneCountInString(w) > 10 {
			longWords++
		}
	}
	complexity += float64(longWords) / float64(len(fields)+1) * 0.1
	if complexity > 0.5 {
		complexity = 0.5
	}

	rate := float64(wpm) * (1.0 - complexity*0.2)
	seconds := float64(n) * 60.0 / rate
	return time.Duration(seconds * float64(time.Second))
}

// makeAbbreviationMap creates a map of common abbreviations.
func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr",
		"inc", "ltd", "co", "corp",
		"etc", "vs", "cf", "al", "no",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"st", "rd", "ave", "blvd",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm",
		"hr", "hrs", "min", "mins", "sec", "secs",
	}

	m := make(map[string]bool, len(abbrevs))
	for _, abbrev := range abbrevs {
		m[abbrev] = true
	}
	return m
}
