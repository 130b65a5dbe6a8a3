package classify

import (
	"strings"
	"unicode"

	"github.com/nidza07/nvda/internal/speech"
)

// symbolNames are spoken in place of characters that speak poorly on their
// own.
var symbolNames = map[rune]string{
	' ':  "space",
	'\t': "tab",
	'\n': "new line",
	'!':  "bang",
	'"':  "quote",
	'#':  "number",
	'$':  "dollar",
	'%':  "percent",
	'&':  "and",
	'\'': "tick",
	'(':  "left paren",
	')':  "right paren",
	'*':  "star",
	'+':  "plus",
	',':  "comma",
	'-':  "dash",
	'.':  "dot",
	'/':  "slash",
	':':  "colon",
	';':  "semi",
	'<':  "less",
	'=':  "equals",
	'>':  "greater",
	'?':  "question",
	'@':  "at",
	'[':  "left bracket",
	'\\': "backslash",
	']':  "right bracket",
	'^':  "caret",
	'_':  "line",
	'`':  "graav",
	'{':  "left brace",
	'|':  "bar",
	'}':  "right brace",
	'~':  "tilde",
}

// characterFragment describes a single character, with capital notification
// applied per policy.
func (c *Classifier) characterFragment(r rune, role string) speech.Fragment {
	if name, ok := symbolNames[r]; ok {
		return speech.Fragment{Text: name, Role: role}
	}
	f := speech.Fragment{Text: string(r), Role: role}
	if !unicode.IsUpper(r) {
		return f
	}
	if c.policy.SayCapForCapitals {
		f.Text = "cap " + f.Text
	}
	f.Pitch = c.policy.CapPitchChange
	if c.policy.BeepForCapitals {
		b := capitalBeep
		f.Beep = &b
	}
	return f
}

// lineBounds returns the line containing off. end excludes the newline.
func lineBounds(text []rune, off int) (start, end int) {
	off = min(max(off, 0), len(text))
	start = off
	for start > 0 && text[start-1] != '\n' {
		start--
	}
	end = off
	for end < len(text) && text[end] != '\n' {
		end++
	}
	return start, end
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r)
}

// wordBounds returns the word containing off, or an empty range when off is
// not on a word character.
func wordBounds(text []rune, off int) (start, end int) {
	if off < 0 || off >= len(text) || !isWordRune(text[off]) {
		return off, off
	}
	start, end = off, off
	for start > 0 && isWordRune(text[start-1]) {
		start--
	}
	for end < len(text) && isWordRune(text[end]) {
		end++
	}
	return start, end
}

func containsNewline(text []rune) bool {
	for _, r := range text {
		if r == '\n' {
			return true
		}
	}
	return false
}

// speakable reports whether text has anything besides whitespace.
func speakable(text string) bool {
	return strings.TrimSpace(text) != ""
}
