package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/speech"
)

func utterance(source, text string, p speech.Priority) speech.Utterance {
	return speech.Utterance{
		ID:        source + ":" + text,
		SourceID:  source,
		Priority:  p,
		Fragments: []speech.Fragment{{Text: text}},
	}
}

func preserved(u speech.Utterance) speech.Utterance {
	u.Preserve = true
	return u
}

func mustEnqueue(t *testing.T, q *Queue, u speech.Utterance) *Entry {
	t.Helper()
	e, err := q.Enqueue(u)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return e
}

func drainTexts(q *Queue) []string {
	var out []string
	for {
		e, ok := q.DrainNext()
		if !ok {
			return out
		}
		q.Release(e)
		out = append(out, e.Text())
	}
}

func TestQueue_BasicOperations(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	if size := q.Size(); size != 0 {
		t.Errorf("Expected empty queue, got size %d", size)
	}
	if _, err := q.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty, got %v", err)
	}

	e := mustEnqueue(t, q, utterance("s", "hello", speech.PriorityBackground))
	if e.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", e.Seq)
	}
	if size := q.Size(); size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}

	peeked, err := q.Peek()
	if err != nil || peeked != e {
		t.Errorf("Expected to peek the entry, got %v (%v)", peeked, err)
	}

	got, ok := q.DrainNext()
	if !ok || got != e {
		t.Fatalf("Expected to drain the entry, got %v", got)
	}
	if q.Active() != e {
		t.Error("Expected drained entry to be active")
	}
	q.Release(e)
	if q.Active() != nil {
		t.Error("Expected no active entry after release")
	}
	if _, ok := q.DrainNext(); ok {
		t.Error("Expected empty queue after drain")
	}
}

func TestQueue_RejectsEmptyUtterance(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	if _, err := q.Enqueue(speech.Utterance{SourceID: "s"}); !errors.Is(err, speech.ErrEmptyUtterance) {
		t.Errorf("Expected ErrEmptyUtterance, got %v", err)
	}
}

func TestQueue_PriorityThenFIFO(t *testing.T) {
	q := New(20, nil)
	defer q.Close()

	mustEnqueue(t, q, preserved(utterance("a", "b1", speech.PriorityBackground)))
	mustEnqueue(t, q, utterance("a", "d1", speech.PriorityDirect))
	mustEnqueue(t, q, preserved(utterance("a", "b2", speech.PriorityBackground)))
	mustEnqueue(t, q, utterance("a", "a1", speech.PriorityAlert))
	mustEnqueue(t, q, utterance("a", "d2", speech.PriorityDirect))
	mustEnqueue(t, q, utterance("a", "a2", speech.PriorityAlert))

	got := drainTexts(q)
	want := []string{"a1", "a2", "d1", "d2", "b1", "b2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected drain order %v, got %v", want, got)
	}
}

func TestQueue_AlertInterruptsBackground(t *testing.T) {
	d := diag.New()
	q := New(20, d, WithDirectInterruptsBackground(false))
	defer q.Close()

	playing := mustEnqueue(t, q, utterance("doc", "paragraph text", speech.PriorityBackground))
	if e, _ := q.DrainNext(); e != playing {
		t.Fatal("Expected the paragraph to be active")
	}

	b1 := mustEnqueue(t, q, utterance("doc", "more text", speech.PriorityBackground))
	kept := mustEnqueue(t, q, preserved(utterance("live", "chat message", speech.PriorityBackground)))
	direct := mustEnqueue(t, q, utterance("kbd", "x", speech.PriorityDirect))

	mustEnqueue(t, q, utterance("dlg", "dialog appeared", speech.PriorityAlert))

	if !playing.Token.Canceled() {
		t.Error("Expected the active background entry to be signaled")
	}
	if !b1.Token.Canceled() {
		t.Error("Expected queued background entry to be canceled")
	}
	if kept.Token.Canceled() || direct.Token.Canceled() {
		t.Error("Expected preserved and direct entries to survive")
	}

	q.Release(playing)
	got := drainTexts(q)
	want := []string{"dialog appeared", "x", "chat message"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if n := d.Count(diag.CounterCanceled); n != 2 {
		t.Errorf("Expected 2 canceled, got %d", n)
	}
}

func TestQueue_DirectInterruptsActiveBackground(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	playing := mustEnqueue(t, q, utterance("doc", "long paragraph", speech.PriorityBackground))
	q.DrainNext()
	queued := mustEnqueue(t, q, utterance("doc", "next paragraph", speech.PriorityBackground))

	mustEnqueue(t, q, utterance("kbd", "a", speech.PriorityDirect))
	if !playing.Token.Canceled() {
		t.Error("Expected key press to stop the active paragraph")
	}
	if queued.Token.Canceled() {
		t.Error("Expected queued background to stay queued")
	}
}

func TestQueue_DirectInterruptDisabled(t *testing.T) {
	q := New(10, nil, WithDirectInterruptsBackground(false))
	defer q.Close()

	playing := mustEnqueue(t, q, utterance("doc", "long paragraph", speech.PriorityBackground))
	q.DrainNext()
	mustEnqueue(t, q, utterance("kbd", "a", speech.PriorityDirect))
	if playing.Token.Canceled() {
		t.Error("Expected active background to keep playing")
	}
}

func TestQueue_CancelBySource(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	active := mustEnqueue(t, q, utterance("a", "one", speech.PriorityDirect))
	q.DrainNext()
	mustEnqueue(t, q, preserved(utterance("a", "two", speech.PriorityBackground)))
	mustEnqueue(t, q, preserved(utterance("b", "three", speech.PriorityBackground)))
	mustEnqueue(t, q, utterance("a", "four", speech.PriorityAlert))

	if n := q.Cancel("a"); n != 3 {
		t.Errorf("Expected 3 affected entries, got %d", n)
	}
	if !active.Token.Canceled() {
		t.Error("Expected active entry of the source to be signaled")
	}
	if n := q.Cancel("a"); n != 0 {
		t.Errorf("Expected repeated cancel to affect nothing, got %d", n)
	}

	q.Release(active)
	got := drainTexts(q)
	if fmt.Sprint(got) != "[three]" {
		t.Errorf("Expected only source b left, got %v", got)
	}
}

func TestQueue_CancelAll(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	active := mustEnqueue(t, q, utterance("a", "one", speech.PriorityAlert))
	q.DrainNext()
	mustEnqueue(t, q, utterance("b", "two", speech.PriorityDirect))
	mustEnqueue(t, q, utterance("c", "three", speech.PriorityBackground))

	if n := q.CancelAll(); n != 3 {
		t.Errorf("Expected 3 affected entries, got %d", n)
	}
	if !active.Token.Canceled() {
		t.Error("Expected active entry to be signaled")
	}
	if q.Size() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Size())
	}
}

func TestQueue_Deduplicates(t *testing.T) {
	d := diag.New()
	q := New(10, d)
	defer q.Close()

	first := mustEnqueue(t, q, utterance("a", "same", speech.PriorityBackground))
	second := mustEnqueue(t, q, utterance("a", "same", speech.PriorityBackground))
	if first != second {
		t.Error("Expected duplicate to coalesce into the queued entry")
	}
	mustEnqueue(t, q, utterance("b", "same", speech.PriorityBackground))

	if q.Size() != 2 {
		t.Errorf("Expected 2 entries, got %d", q.Size())
	}
	if d.Count(diag.CounterDeduplicated) != 1 {
		t.Errorf("Expected 1 deduplicated, got %d", d.Count(diag.CounterDeduplicated))
	}
	if q.Stats().TotalCoalesced != 1 {
		t.Errorf("Expected 1 coalesced, got %d", q.Stats().TotalCoalesced)
	}
}

func TestQueue_OverflowDropsOldestBackground(t *testing.T) {
	d := diag.New()
	q := New(3, d)
	defer q.Close()

	oldest := mustEnqueue(t, q, utterance("a", "b1", speech.PriorityBackground))
	mustEnqueue(t, q, utterance("a", "d1", speech.PriorityDirect))
	mustEnqueue(t, q, utterance("a", "b2", speech.PriorityBackground))
	mustEnqueue(t, q, utterance("a", "b3", speech.PriorityBackground))

	if !oldest.Token.Canceled() {
		t.Error("Expected oldest background entry to be dropped")
	}
	if q.Size() != 3 {
		t.Errorf("Expected size to stay at capacity, got %d", q.Size())
	}
	if d.Count(diag.CounterDropped) != 1 {
		t.Errorf("Expected 1 dropped, got %d", d.Count(diag.CounterDropped))
	}

	got := drainTexts(q)
	want := []string{"d1", "b2", "b3"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestQueue_OverflowNeverDropsDirectOrAlert(t *testing.T) {
	d := diag.New()
	q := New(2, d)
	defer q.Close()

	mustEnqueue(t, q, utterance("a", "d1", speech.PriorityDirect))
	mustEnqueue(t, q, utterance("a", "d2", speech.PriorityDirect))

	e, err := q.Enqueue(utterance("a", "b1", speech.PriorityBackground))
	if err != nil || e != nil {
		t.Errorf("Expected background to be dropped silently, got %v (%v)", e, err)
	}
	mustEnqueue(t, q, utterance("a", "d3", speech.PriorityDirect))
	mustEnqueue(t, q, utterance("a", "a1", speech.PriorityAlert))

	if q.Size() != 4 {
		t.Errorf("Expected direct and alert admitted over capacity, got size %d", q.Size())
	}
	if d.Count(diag.CounterOvercommitted) != 2 {
		t.Errorf("Expected 2 overcommitted, got %d", d.Count(diag.CounterOvercommitted))
	}
	if d.Count(diag.CounterDropped) != 1 {
		t.Errorf("Expected 1 dropped, got %d", d.Count(diag.CounterDropped))
	}
}

func TestQueue_NextBlocksUntilEnqueue(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	got := make(chan *Entry, 1)
	go func() {
		e, err := q.Next(context.Background())
		if err != nil {
			t.Errorf("Next failed: %v", err)
		}
		got <- e
	}()

	select {
	case <-got:
		t.Fatal("Next should have blocked on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	want := mustEnqueue(t, q, utterance("a", "wake", speech.PriorityBackground))
	select {
	case e := <-got:
		if e != want {
			t.Errorf("Expected the enqueued entry, got %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after enqueue")
	}
}

func TestQueue_NextHonorsContext(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestQueue_CloseHandling(t *testing.T) {
	q := New(10, nil)

	done := make(chan error, 1)
	go func() {
		_, err := q.Next(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := q.Close(); err != nil {
		t.Fatalf("Failed to close queue: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed from blocked Next, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Blocked Next did not return after close")
	}

	if _, err := q.Enqueue(utterance("a", "x", speech.PriorityAlert)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on enqueue after close, got %v", err)
	}
	if _, err := q.Peek(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on peek after close, got %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("Double close failed: %v", err)
	}
}

func TestQueue_Pending(t *testing.T) {
	q := New(10, nil)
	defer q.Close()

	mustEnqueue(t, q, utterance("a", "b", speech.PriorityBackground))
	mustEnqueue(t, q, utterance("a", "d", speech.PriorityDirect))

	pending := q.Pending()
	if len(pending) != 2 || pending[0].Text() != "d" || pending[1].Text() != "b" {
		t.Errorf("Expected [d b], got %+v", pending)
	}
	if q.Size() != 2 {
		t.Error("Expected Pending to leave the queue untouched")
	}
}

func TestQueue_Stats(t *testing.T) {
	now := time.Unix(100, 0)
	q := New(10, nil, WithClock(func() time.Time { return now }))
	defer q.Close()

	mustEnqueue(t, q, utterance("a", "1", speech.PriorityBackground))
	mustEnqueue(t, q, utterance("a", "2", speech.PriorityBackground))
	q.DrainNext()

	stats := q.Stats()
	if stats.TotalEnqueued != 2 || stats.TotalDequeued != 1 {
		t.Errorf("Expected 2 enqueued and 1 dequeued, got %+v", stats)
	}
	if stats.PeakSize != 2 || stats.CurrentSize != 1 {
		t.Errorf("Expected peak 2 and current 1, got %+v", stats)
	}
	if !stats.LastEnqueue.Equal(now) {
		t.Errorf("Expected last enqueue %v, got %v", now, stats.LastEnqueue)
	}
}

// Never drain a lower priority while a higher one is pending, whatever the
// interleaving of enqueues and drains.
func TestQueue_OrderingProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := New(1000, nil)
	defer q.Close()

	pending := map[speech.Priority]int{}
	lastSeq := map[speech.Priority]uint64{}
	for i := 0; i < 2000; i++ {
		if rng.Intn(3) > 0 {
			p := speech.Priority(rng.Intn(3))
			u := utterance(fmt.Sprintf("s%d", rng.Intn(4)), fmt.Sprintf("u%d", i), p)
			u.Preserve = true
			if _, err := q.Enqueue(u); err != nil {
				t.Fatalf("Enqueue failed: %v", err)
			}
			pending[p]++
			continue
		}

		e, ok := q.DrainNext()
		if !ok {
			continue
		}
		q.Release(e)
		for higher := e.Priority + 1; higher <= speech.PriorityAlert; higher++ {
			if pending[higher] > 0 {
				t.Fatalf("Drained %s while %d %s entries were pending", e.Priority, pending[higher], higher)
			}
		}
		if e.Seq <= lastSeq[e.Priority] {
			t.Fatalf("Expected FIFO within %s, got seq %d after %d", e.Priority, e.Seq, lastSeq[e.Priority])
		}
		lastSeq[e.Priority] = e.Seq
		pending[e.Priority]--
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New(1000, nil)
	defer q.Close()

	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				u := utterance(fmt.Sprintf("p%d", producer), fmt.Sprintf("%d-%d", producer, i), speech.PriorityBackground)
				u.Preserve = true
				if _, err := q.Enqueue(u); err != nil {
					t.Errorf("producer %d enqueue failed: %v", producer, err)
				}
			}
		}(p)
	}
	wg.Wait()

	last := map[string]int{}
	count := 0
	for {
		e, ok := q.DrainNext()
		if !ok {
			break
		}
		var producer, i int
		if _, err := fmt.Sscanf(e.Text(), "%d-%d", &producer, &i); err != nil {
			t.Fatalf("Unexpected text %q", e.Text())
		}
		key := e.SourceID
		if prev, seen := last[key]; seen && i <= prev {
			t.Errorf("Expected producer order to be preserved for %s: %d after %d", key, i, prev)
		}
		last[key] = i
		count++
	}
	if count != 250 {
		t.Errorf("Expected 250 entries, got %d", count)
	}
}
