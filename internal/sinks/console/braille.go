package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/padding"
	"github.com/muesli/reflow/truncate"

	"github.com/nidza07/nvda/internal/speech"
)

// DefaultCells is the display size used when none is given.
const DefaultCells = 40

const brailleMark = "⣿"

// Braille draws regions as a fixed-width display line, panned so the
// cursor is visible, with a marker line under the cursor cell.
type Braille struct {
	w     io.Writer
	cells int
	opts  options

	mu sync.Mutex
}

// NewBraille creates a braille sink with the given number of cells.
func NewBraille(w io.Writer, cells int, opts ...Option) *Braille {
	if cells <= 0 {
		cells = DefaultCells
	}
	return &Braille{w: w, cells: cells, opts: newOptions(opts)}
}

// Render implements speech.BrailleSink.
func (b *Braille) Render(region speech.BrailleRegion) <-chan error {
	b.mu.Lock()
	defer b.mu.Unlock()

	visible, col := Window(region.Text, region.Cursor, b.cells)

	var out strings.Builder
	out.WriteString(b.opts.render(brailleStyle, brailleMark))
	out.WriteByte(' ')
	out.WriteString(padding.String(visible, uint(b.cells))) //nolint:gosec
	out.WriteByte('\n')
	if col >= 0 {
		out.WriteString(strings.Repeat(" ", runewidth.StringWidth(brailleMark)+1+col))
		out.WriteString("^\n")
	}

	if _, err := io.WriteString(b.w, out.String()); err != nil {
		return speech.Done(fmt.Errorf("%w: %w", speech.ErrSinkFailure, err))
	}
	return speech.Done(nil)
}

// Window returns the part of text shown on a display of the given number
// of cells, and the cursor column within it (-1 when there is no cursor).
// The display pans a whole display width at a time.
func Window(text string, cursor, cells int) (string, int) {
	runes := []rune(text)
	if cursor > len(runes) {
		cursor = len(runes)
	}

	starts := []int{0}
	width := 0
	for i, r := range runes {
		w := runewidth.RuneWidth(r)
		if width > 0 && width+w > cells {
			starts = append(starts, i)
			width = 0
		}
		width += w
	}
	// A cursor past the last character needs a cell of its own
	if cursor == len(runes) && len(runes) > 0 && width >= cells {
		starts = append(starts, len(runes))
	}

	start := 0
	if cursor >= 0 {
		for _, s := range starts {
			if s <= cursor {
				start = s
			}
		}
	}

	visible := truncate.String(string(runes[start:]), uint(cells)) //nolint:gosec
	if cursor < start {
		return visible, -1
	}
	col := runewidth.StringWidth(string(runes[start:cursor]))
	if col >= cells {
		return visible, -1
	}
	return visible, col
}
