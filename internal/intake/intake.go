// Package intake turns accessibility events and direct announcements into
// queued utterances. It is the only part of the pipeline that sees raw
// snapshots from the outside world.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/nidza07/nvda/internal/cache"
	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/internal/queue"
	"github.com/nidza07/nvda/internal/speech"
)

// KindMessage marks utterances created by Announce.
const KindMessage = "message"

// DefaultBufferSize is the Submit channel size.
const DefaultBufferSize = 64

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("intake is closed")

// Event is one accessibility event: a snapshot pair and its context. When
// Old is nil the last snapshot seen for the source is used, or an empty
// one for a new source. The Old and New fields of Context are filled in by
// the intake.
type Event struct {
	Old     *diff.Snapshot
	New     diff.Snapshot
	Context classify.Context
}

// Announcement is a message spoken directly rather than derived from a
// text change.
type Announcement struct {
	Text     string
	Priority speech.Priority
	SourceID string
	Preserve bool

	// Braille also shows the text on the display
	Braille bool

	// Dedupe suppresses the same text from the same source within the
	// recent window
	Dedupe bool
}

// Option configures an Intake.
type Option func(*Intake)

// WithClassifier sets the classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(i *Intake) { i.classifier = c }
}

// WithDiffer sets the differ.
func WithDiffer(d *diff.Differ) Option {
	return func(i *Intake) { i.differ = d }
}

// WithDiagnostics sets the diagnostics sink.
func WithDiagnostics(d *diag.Diagnostics) Option {
	return func(i *Intake) { i.diag = d }
}

// WithThrottle limits external updates per source to limit events per
// second with the given burst. Typed changes are never throttled.
func WithThrottle(limit rate.Limit, burst int) Option {
	return func(i *Intake) {
		i.limit = limit
		i.burst = burst
	}
}

// WithRecent sets the cache used by deduplicated announcements.
func WithRecent(r *cache.Recent) Option {
	return func(i *Intake) { i.recent = r }
}

// WithBufferSize sets the Submit channel size.
func WithBufferSize(n int) Option {
	return func(i *Intake) {
		if n > 0 {
			i.events = make(chan Event, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(i *Intake) { i.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Intake) { i.now = now }
}

// WithIDs replaces the utterance ID generator, for tests.
func WithIDs(next func() string) Option {
	return func(i *Intake) { i.newID = next }
}

// Intake feeds the utterance queue.
type Intake struct {
	queue      *queue.Queue
	classifier *classify.Classifier
	differ     *diff.Differ
	diag       *diag.Diagnostics
	recent     *cache.Recent
	logger     *log.Logger
	now        func() time.Time
	newID      func() string

	limit rate.Limit
	burst int

	// mu serializes Process so arrival order is diff order
	mu        sync.Mutex
	baselines map[string]diff.Snapshot
	carets    map[string]int
	limiters  map[string]*rate.Limiter

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an intake feeding q.
func New(q *queue.Queue, opts ...Option) *Intake {
	i := &Intake{
		queue:      q,
		classifier: classify.New(classify.DefaultPolicy()),
		differ:     diff.NewDiffer(diff.Options{}),
		recent:     cache.NewRecent(128, 2*time.Second),
		logger:     log.Default().WithPrefix("intake"),
		now:        time.Now,
		newID:      uuid.NewString,
		limit:      rate.Inf,
		baselines:  make(map[string]diff.Snapshot),
		carets:     make(map[string]int),
		limiters:   make(map[string]*rate.Limiter),
		events:     make(chan Event, DefaultBufferSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Process diffs, classifies and enqueues one event. Calls are serialized.
func (i *Intake) Process(ev Event) error {
	source := ev.Context.SourceID
	_, span := diag.StartSpan(context.Background(), "intake.process",
		attribute.String("utterance.source", source),
		attribute.Bool("user_typed", ev.Context.UserTyped),
	)
	defer span.End()

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := ev.New.Validate(); err != nil {
		return i.invalid(source, err)
	}
	if ev.Old != nil {
		if err := ev.Old.Validate(); err != nil {
			return i.invalid(source, err)
		}
	}

	if !ev.Context.UserTyped && !i.allow(source) {
		i.diag.Throttled()
		i.logger.Debug("Throttled external update", "source", source)
		return nil
	}

	newSnap, newOffset := normalize(ev.New)
	ctx := ev.Context
	ctx.Caret = newOffset(ctx.Caret)

	if ev.Old != nil {
		old, oldOffset := normalize(*ev.Old)
		ctx.Old = old
		ctx.PrevCaret = oldOffset(ctx.PrevCaret)
	} else {
		ctx.Old = i.baselines[source]
		if prev, ok := i.carets[source]; ok && ctx.PrevCaret == classify.NoCaret {
			ctx.PrevCaret = prev
		}
	}
	ctx.New = newSnap

	ops, err := i.differ.Diff(ctx.Old, ctx.New)
	if err != nil {
		return i.invalid(source, err)
	}

	i.baselines[source] = newSnap
	if ctx.Caret != classify.NoCaret {
		i.carets[source] = ctx.Caret
	} else {
		delete(i.carets, source)
	}

	for _, u := range i.classifier.Classify(ops, ctx) {
		if err := i.enqueue(u); err != nil {
			return err
		}
	}
	return nil
}

// Announce enqueues a direct message.
func (i *Intake) Announce(a Announcement) error {
	text := norm.NFC.String(a.Text)
	if strings.TrimSpace(text) == "" {
		return speech.ErrEmptyUtterance
	}
	if a.Priority < speech.PriorityBackground || a.Priority > speech.PriorityAlert {
		return fmt.Errorf("%w: %d", speech.ErrInvalidPriority, a.Priority)
	}

	if a.Dedupe && i.recent != nil && i.recent.Seen(a.SourceID+"\x00"+text, i.now()) {
		i.diag.Deduplicated()
		i.logger.Debug("Suppressed repeated announcement", "source", a.SourceID)
		return nil
	}

	u := speech.Utterance{
		SourceID:  a.SourceID,
		Priority:  a.Priority,
		Preserve:  a.Preserve,
		Kind:      KindMessage,
		Fragments: []speech.Fragment{{Text: text, Role: speech.RoleMessage}},
	}
	if a.Braille {
		u.Braille = &speech.BrailleRegion{Text: text, Cursor: classify.NoCaret}
	}
	return i.enqueue(u)
}

// Forget drops the baseline of a source, so its next event is compared
// with an empty snapshot.
func (i *Intake) Forget(source string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.baselines, source)
	delete(i.carets, source)
	delete(i.limiters, source)
}

// Baseline returns the last snapshot seen for a source.
func (i *Intake) Baseline(source string) (diff.Snapshot, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.baselines[source]
	return s, ok
}

// Submit hands an event to Run. It blocks while the buffer is full.
func (i *Intake) Submit(ctx context.Context, ev Event) error {
	select {
	case <-i.done:
		return ErrClosed
	default:
	}

	select {
	case i.events <- ev:
		return nil
	case <-i.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes submitted events in order until ctx ends or Close is
// called. Events still buffered at Close are processed first.
func (i *Intake) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-i.events:
			i.processLogged(ev)
		case <-ctx.Done():
			return nil
		case <-i.done:
			for {
				select {
				case ev := <-i.events:
					i.processLogged(ev)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting submissions.
func (i *Intake) Close() {
	i.closeOnce.Do(func() { close(i.done) })
}

func (i *Intake) processLogged(ev Event) {
	if err := i.Process(ev); err != nil {
		i.logger.Warn("Failed to process event", "source", ev.Context.SourceID, "err", err)
	}
}

func (i *Intake) enqueue(u speech.Utterance) error {
	u.ID = i.newID()
	e, err := i.queue.Enqueue(u)
	if err != nil {
		return fmt.Errorf("enqueue %s utterance: %w", u.Kind, err)
	}
	if e == nil {
		i.logger.Debug("Utterance dropped by full queue", "source", u.SourceID)
	}
	return nil
}

// invalid records a rejected snapshot. The baseline is left untouched.
func (i *Intake) invalid(source string, err error) error {
	i.diag.InvalidSnapshot()
	i.logger.Warn("Rejected snapshot", "source", source, "err", err)
	return fmt.Errorf("source %q: %w", source, err)
}

// allow applies the per-source external update limit (must be called with
// lock held).
func (i *Intake) allow(source string) bool {
	if i.limit == rate.Inf {
		return true
	}
	l, ok := i.limiters[source]
	if !ok {
		l = rate.NewLimiter(i.limit, i.burst)
		i.limiters[source] = l
	}
	return l.AllowN(i.now(), 1)
}

// normalize returns s in NFC together with a function mapping offsets in s
// to offsets in the result. Runs are remapped; negative offsets pass
// through unchanged.
func normalize(s diff.Snapshot) (diff.Snapshot, func(int) int) {
	text := string(s.Text)
	if norm.NFC.IsNormalString(text) {
		return s, func(off int) int { return off }
	}

	offset := func(off int) int {
		if off < 0 {
			return off
		}
		if off > len(s.Text) {
			off = len(s.Text)
		}
		return utf8.RuneCountInString(norm.NFC.String(string(s.Text[:off])))
	}

	out := diff.Snapshot{Text: []rune(norm.NFC.String(text))}
	for _, r := range s.Runs {
		r.Start, r.End = offset(r.Start), offset(r.End)
		out.Runs = append(out.Runs, r)
	}
	return out, offset
}
