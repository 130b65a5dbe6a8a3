// Package transcript records what the output core spoke as JSON lines,
// optionally zstd compressed, and reads such records back.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"github.com/sahilm/fuzzy"

	"github.com/nidza07/nvda/internal/queue"
	"github.com/nidza07/nvda/internal/speech"
)

// Record events.
const (
	EventSpoken   = "spoken"
	EventCanceled = "canceled"
)

// CompressedExt marks transcript paths written with zstd.
const CompressedExt = ".zst"

// Record is one transcript line.
type Record struct {
	Time        time.Time `json:"time"`
	Event       string    `json:"event"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	SourceID    string    `json:"source,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Role        string    `json:"role,omitempty"`
	Text        string    `json:"text,omitempty"`
}

// String renders the record for terminal output.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.Time.Format("15:04:05.000"))
	fmt.Fprintf(&b, " %-8s", r.Event)
	if r.Priority != "" {
		fmt.Fprintf(&b, " %-10s", r.Priority)
	}
	if r.SourceID != "" {
		fmt.Fprintf(&b, " [%s]", r.SourceID)
	}
	if r.Text != "" {
		b.WriteString(" " + r.Text)
	}
	return b.String()
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// Writer appends records. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	closers []io.Closer
	now     func() time.Time
	logger  *log.Logger
}

// NewWriter writes uncompressed records to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	tw := &Writer{
		w:      w,
		now:    time.Now,
		logger: log.Default().WithPrefix("transcript"),
	}
	for _, opt := range opts {
		opt(tw)
	}
	return tw
}

// Create opens path for writing, compressing when it ends in .zst.
func Create(path string, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}
	if !strings.HasSuffix(path, CompressedExt) {
		tw := NewWriter(f, opts...)
		tw.closers = []io.Closer{f}
		return tw, nil
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := NewWriter(enc, opts...)
	tw.closers = []io.Closer{enc, f}
	return tw, nil
}

// Write appends one record. A zero Time is set to now.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if r.Time.IsZero() {
		r.Time = w.now()
	}
	data, err := sonic.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Spoken records a fragment the speech sink finished. It matches the
// dispatcher's spoken hook.
func (w *Writer) Spoken(e *queue.Entry, f speech.Fragment) {
	w.record(e, EventSpoken, f.Role, f.Text)
}

// Canceled records an utterance cut off by cancellation. It matches the
// dispatcher's cancel hook.
func (w *Writer) Canceled(e *queue.Entry) {
	w.record(e, EventCanceled, "", e.Text())
}

func (w *Writer) record(e *queue.Entry, event, role, text string) {
	err := w.Write(Record{
		Event:       event,
		UtteranceID: e.ID,
		SourceID:    e.SourceID,
		Priority:    e.Priority.String(),
		Kind:        e.Kind,
		Role:        role,
		Text:        text,
	})
	if err != nil {
		w.logger.Error("Failed to record transcript", "err", err)
	}
}

// Close flushes and closes the underlying file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for _, c := range w.closers {
		errs = append(errs, c.Close())
	}
	w.closers = nil
	return errors.Join(errs...)
}

// Reader reads records one at a time.
type Reader struct {
	scanner *bufio.Scanner
	closers []func() error
	line    int
}

// NewReader reads uncompressed records from r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{scanner: scanner}
}

// Open opens a transcript file, decompressing when it ends in .zst.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	if !strings.HasSuffix(path, CompressedExt) {
		r := NewReader(f)
		r.closers = []func() error{f.Close}
		return r, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	r := NewReader(dec)
	r.closers = []func() error{
		func() error { dec.Close(); return nil },
		f.Close,
	}
	return r, nil
}

// Next returns the next record, or io.EOF at the end. Blank lines are
// skipped.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := sonic.Unmarshal(line, &rec); err != nil {
			return Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// ReadAll reads every record from r.
func ReadAll(r *Reader) ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

type recordTexts []Record

func (r recordTexts) String(i int) string { return r[i].Text }
func (r recordTexts) Len() int            { return len(r) }

// Filter keeps the records whose text fuzzily matches query, in their
// original order. An empty query keeps everything.
func Filter(records []Record, query string) []Record {
	if query == "" {
		return records
	}
	matches := fuzzy.FindFrom(query, recordTexts(records))
	idx := make([]int, len(matches))
	for i, m := range matches {
		idx[i] = m.Index
	}
	sort.Ints(idx)

	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}
