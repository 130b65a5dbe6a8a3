package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/speech"
)

var (
	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueEmpty is returned by Peek when nothing is queued
	ErrQueueEmpty = errors.New("queue is empty")
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Entry wraps a queued utterance.
type Entry struct {
	speech.Utterance

	// Seq is the insertion sequence number, the FIFO tie-break
	Seq uint64

	EnqueuedAt time.Time
	Token      *Token

	key   string
	index int // Index in the heap
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued      int64
	TotalDequeued      int64
	TotalCanceled      int64
	TotalDropped       int64
	TotalCoalesced     int64
	TotalOvercommitted int64
	CurrentSize        int
	PeakSize           int
	LastEnqueue        time.Time
	LastDequeue        time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithDirectInterruptsBackground controls whether a Direct utterance stops
// the Background utterance being played. Enabled by default.
func WithDirectInterruptsBackground(enabled bool) Option {
	return func(q *Queue) { q.directInterrupts = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is the utterance queue. It is safe for many producers and one
// consumer.
type Queue struct {
	items    entryHeap
	capacity int
	seq      uint64

	// active is the entry handed to the consumer and not yet released
	active *Entry

	mu     sync.Mutex
	signal chan struct{}
	done   chan struct{}
	closed bool
	stats  Stats

	directInterrupts bool
	diag             *diag.Diagnostics
	logger           *log.Logger
	now              func() time.Time
}

// New creates a queue holding at most capacity entries. d may be nil.
func New(capacity int, d *diag.Diagnostics, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		items:            make(entryHeap, 0, capacity),
		capacity:         capacity,
		signal:           make(chan struct{}, 1),
		done:             make(chan struct{}),
		directInterrupts: true,
		diag:             d,
		logger:           log.Default().WithPrefix("queue"),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	heap.Init(&q.items)
	return q
}

// Enqueue adds an utterance.
//
// An Alert removes every queued Background utterance not marked Preserve
// and stops the active one. An utterance identical to one still queued is
// coalesced into it and the queued entry is returned. When the queue is
// full the oldest Background entry is dropped; if there is none, an
// incoming Background utterance is dropped and Enqueue returns a nil entry
// with a nil error, while Alert and Direct are admitted over capacity.
func (q *Queue) Enqueue(u speech.Utterance) (*Entry, error) {
	if u.IsEmpty() {
		return nil, speech.ErrEmptyUtterance
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	key := u.Key()
	for _, e := range q.items {
		if e.key == key {
			q.stats.TotalCoalesced++
			q.diag.Deduplicated()
			return e, nil
		}
	}

	switch u.Priority {
	case speech.PriorityAlert:
		q.interruptBackground()
	case speech.PriorityDirect:
		if q.directInterrupts && q.active != nil && interruptible(q.active) && q.cancelActive() {
			q.logger.Debug("Direct utterance interrupts background", "active", q.active.ID)
		}
	}

	if len(q.items) >= q.capacity && !q.makeRoom(u.Priority) {
		q.stats.TotalDropped++
		q.diag.Dropped(u.Priority)
		q.logger.Debug("Queue full, dropping background utterance", "source", u.SourceID)
		return nil, nil
	}

	q.seq++
	e := &Entry{
		Utterance:  u,
		Seq:        q.seq,
		EnqueuedAt: q.now(),
		Token:      NewToken(),
		key:        key,
	}
	heap.Push(&q.items, e)

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = e.EnqueuedAt
	q.stats.CurrentSize = len(q.items)
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}
	q.diag.Enqueued(u.Priority)

	q.notify()
	return e, nil
}

// interruptBackground applies the alert rule (must be called with lock held).
func (q *Queue) interruptBackground() {
	removed := q.removeWhere(interruptible)
	if q.active != nil && interruptible(q.active) && q.cancelActive() {
		removed++
	}
	if removed > 0 {
		q.logger.Debug("Alert interrupts background", "canceled", removed)
	}
}

// makeRoom evicts the oldest Background entry, or admits an Alert or Direct
// utterance over capacity. It reports whether the incoming utterance may be
// added (must be called with lock held).
func (q *Queue) makeRoom(p speech.Priority) bool {
	var oldest *Entry
	for _, e := range q.items {
		if e.Priority == speech.PriorityBackground && (oldest == nil || e.Seq < oldest.Seq) {
			oldest = e
		}
	}
	if oldest != nil {
		heap.Remove(&q.items, oldest.index)
		oldest.Token.Cancel()
		q.stats.TotalDropped++
		q.diag.Dropped(oldest.Priority)
		q.logger.Debug("Queue full, dropped oldest background utterance", "id", oldest.ID)
		return true
	}
	if p == speech.PriorityBackground {
		return false
	}
	q.stats.TotalOvercommitted++
	q.diag.Overcommitted(p)
	q.logger.Warn("Queue over capacity", "capacity", q.capacity, "priority", p)
	return true
}

// Cancel removes queued entries of sourceID and stops the active entry if
// it belongs to sourceID. It returns the number of entries affected.
func (q *Queue) Cancel(sourceID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.removeWhere(func(e *Entry) bool { return e.SourceID == sourceID })
	if q.active != nil && q.active.SourceID == sourceID && q.cancelActive() {
		n++
	}
	return n
}

// CancelAll empties the queue and stops the active entry.
func (q *Queue) CancelAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.removeWhere(func(*Entry) bool { return true })
	if q.active != nil && q.cancelActive() {
		n++
	}
	return n
}

// cancelActive signals the active entry's token. It reports false if the
// token was already canceled (must be called with lock held).
func (q *Queue) cancelActive() bool {
	if q.active.Token.Canceled() {
		return false
	}
	q.active.Token.Cancel()
	q.stats.TotalCanceled++
	q.diag.Canceled(1)
	return true
}

// removeWhere drops matching queued entries and cancels their tokens (must
// be called with lock held).
func (q *Queue) removeWhere(match func(*Entry) bool) int {
	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if match(e) {
			e.Token.Cancel()
			e.index = -1
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	if removed > 0 {
		for i, e := range q.items {
			e.index = i
		}
		heap.Init(&q.items)
		q.stats.TotalCanceled += int64(removed)
		q.stats.CurrentSize = len(q.items)
		q.diag.Canceled(removed)
	}
	return removed
}

// DrainNext removes the next entry and marks it active. It never blocks.
func (q *Queue) DrainNext() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false
	}
	return q.popLocked()
}

func (q *Queue) popLocked() (*Entry, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	e := heap.Pop(&q.items).(*Entry)
	q.active = e
	q.stats.TotalDequeued++
	q.stats.LastDequeue = q.now()
	q.stats.CurrentSize = len(q.items)
	return e, true
}

// Next blocks until an entry is available, the context ends or the queue
// is closed. The lock is never held while waiting.
func (q *Queue) Next(ctx context.Context) (*Entry, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		e, ok := q.popLocked()
		q.mu.Unlock()
		if ok {
			return e, nil
		}

		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release tells the queue the consumer is finished with e.
func (q *Queue) Release(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == e {
		q.active = nil
	}
}

// Active returns the entry being played, if any.
func (q *Queue) Active() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.active
}

// Peek returns the next entry without removing it.
func (q *Queue) Peek() (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return nil, ErrQueueEmpty
	}
	return q.items[0], nil
}

// Pending returns the queued utterances in drain order.
func (q *Queue) Pending() []speech.Utterance {
	q.mu.Lock()
	cp := make(entryHeap, len(q.items))
	for i, e := range q.items {
		c := *e
		cp[i] = &c
	}
	q.mu.Unlock()

	heap.Init(&cp)
	out := make([]speech.Utterance, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*Entry).Utterance)
	}
	return out
}

// Size returns the number of queued entries, excluding the active one.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	return stats
}

// Close shuts the queue down. Blocked Next calls return ErrQueueClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// notify wakes the consumer without blocking (must be called with lock held).
func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// interruptible reports whether the alert rule applies to e.
func interruptible(e *Entry) bool {
	return e.Priority == speech.PriorityBackground && !e.Preserve
}
