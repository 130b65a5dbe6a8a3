package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/queue"
	"github.com/nidza07/nvda/internal/sinks/sinktest"
	"github.com/nidza07/nvda/internal/speech"
)

const waitTimeout = 2 * time.Second

func utterance(source string, p speech.Priority, text string) speech.Utterance {
	return speech.Utterance{
		ID:        source + ":" + text,
		SourceID:  source,
		Priority:  p,
		Fragments: []speech.Fragment{{Text: text}},
	}
}

func enqueue(t *testing.T, q *queue.Queue, u speech.Utterance) {
	t.Helper()
	if _, err := q.Enqueue(u); err != nil {
		t.Fatalf("Enqueue(%q) failed: %v", u.Text(), err)
	}
}

// start runs d in the background and returns a function that stops it.
func start(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Expected Run to return nil, got %v", err)
			}
		case <-time.After(waitTimeout):
			t.Error("Run did not return after cancel")
		}
	}
}

func waitStarted(t *testing.T, s *sinktest.Speech) string {
	t.Helper()
	select {
	case f := <-s.Started:
		return f.Text
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for speech")
		return ""
	}
}

func expectNoSpeech(t *testing.T, s *sinktest.Speech, within time.Duration) {
	t.Helper()
	select {
	case f := <-s.Started:
		t.Errorf("Expected no speech, got %q", f.Text)
	case <-time.After(within):
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestDispatcherDrainsInPriorityOrder(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(false)

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "background one"))
	enqueue(t, q, utterance("doc", speech.PriorityBackground, "background two"))
	enqueue(t, q, utterance("edit", speech.PriorityDirect, "typed"))

	d := New(q, sink, nil, WithDiagnostics(dg))
	stop := start(t, d)
	defer stop()

	eventually(t, "three dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 3 })

	want := []string{"typed", "background one", "background two"}
	if got := sink.Texts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestDispatcherSpeaksFragments(t *testing.T) {
	q := queue.New(16, nil)
	sink := sinktest.NewSpeech(false)
	d := New(q, sink, nil)

	var mu sync.Mutex
	var spoken []string
	d.OnSpoken(func(_ *queue.Entry, f speech.Fragment) {
		mu.Lock()
		spoken = append(spoken, f.Text)
		mu.Unlock()
	})

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "One. Two. Three."))
	stop := start(t, d)
	defer stop()

	eventually(t, "three fragments", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(spoken) == 3
	})

	want := []string{"One.", "Two.", "Three."}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(spoken, want) {
		t.Errorf("Expected %v, got %v", want, spoken)
	}
}

func TestAlertPreemptsBackground(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(true)
	d := New(q, sink, nil, WithDiagnostics(dg))

	canceledIDs := make(chan string, 4)
	d.OnCanceled(func(e *queue.Entry) { canceledIDs <- e.ID })

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "One. Two. Three."))
	stop := start(t, d)
	defer stop()

	if got := waitStarted(t, sink); got != "One." {
		t.Fatalf("Expected first fragment 'One.', got %q", got)
	}

	enqueue(t, q, utterance("dialog", speech.PriorityAlert, "Dialog opened"))

	if got := waitStarted(t, sink); got != "Dialog opened" {
		t.Fatalf("Expected alert next, got %q", got)
	}
	if sink.Cancels() != 1 {
		t.Errorf("Expected 1 sink cancel, got %d", sink.Cancels())
	}
	select {
	case id := <-canceledIDs:
		if id != "doc:One. Two. Three." {
			t.Errorf("Expected background utterance canceled, got %q", id)
		}
	case <-time.After(waitTimeout):
		t.Error("Expected cancel callback")
	}

	sink.Complete()
	eventually(t, "alert dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 1 })
	expectNoSpeech(t, sink, 30*time.Millisecond)

	want := []string{"One.", "Dialog opened"}
	if got := sink.Texts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestCancelStopsAtFragmentBoundary(t *testing.T) {
	q := queue.New(16, nil)
	sink := sinktest.NewSpeech(true)
	d := New(q, sink, nil)

	enqueue(t, q, utterance("a", speech.PriorityBackground, "One. Two. Three."))
	enqueue(t, q, utterance("b", speech.PriorityBackground, "Other"))
	stop := start(t, d)
	defer stop()

	waitStarted(t, sink)
	if n := q.Cancel("a"); n != 1 {
		t.Errorf("Expected 1 canceled, got %d", n)
	}

	if got := waitStarted(t, sink); got != "Other" {
		t.Errorf("Expected 'Other' after cancel, got %q", got)
	}
	sink.Complete()

	want := []string{"One.", "Other"}
	if got := sink.Texts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestDirectInterruptsBackground(t *testing.T) {
	q := queue.New(16, nil)
	sink := sinktest.NewSpeech(true)
	d := New(q, sink, nil)

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "Reading. A long document."))
	stop := start(t, d)
	defer stop()

	waitStarted(t, sink)
	enqueue(t, q, utterance("edit", speech.PriorityDirect, "h"))

	if got := waitStarted(t, sink); got != "h" {
		t.Errorf("Expected typed character next, got %q", got)
	}
	sink.Complete()
}

func TestSinkFailureAbandonsUtterance(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(false)
	sink.FailOn("Two.", errors.New("synthesizer crashed"))
	d := New(q, sink, nil, WithDiagnostics(dg))

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "One. Two. Three."))
	enqueue(t, q, utterance("doc", speech.PriorityBackground, "Next"))
	stop := start(t, d)
	defer stop()

	eventually(t, "next utterance dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 1 })

	if n := dg.Count(diag.CounterAbandoned); n != 1 {
		t.Errorf("Expected 1 abandoned, got %d", n)
	}
	if n := dg.Count(diag.CounterSinkFailures); n != 1 {
		t.Errorf("Expected 1 sink failure, got %d", n)
	}
	want := []string{"One.", "Two.", "Next"}
	if got := sink.Texts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestBrailleRenderedBeforeSpeech(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(false)
	display := sinktest.NewBraille()
	d := New(q, sink, display, WithDiagnostics(dg))

	var mu sync.Mutex
	var states []StateType
	d.OnStateChange(func(s StateType) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	u := utterance("edit", speech.PriorityDirect, "brave")
	u.Braille = &speech.BrailleRegion{Text: "hello brave world", Cursor: 12}
	enqueue(t, q, u)

	stop := start(t, d)
	eventually(t, "dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 1 })
	stop()

	regions := display.Regions()
	if len(regions) != 1 || regions[0].Text != "hello brave world" || regions[0].Cursor != 12 {
		t.Errorf("Expected one rendered region, got %+v", regions)
	}

	want := []StateType{StateIdle, StateBrailling, StateSpeaking, StateIdle, StateStopped}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(states, want) {
		t.Errorf("Expected states %v, got %v", want, states)
	}
}

func TestBrailleOnlyUtterance(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(false)
	display := sinktest.NewBraille()
	d := New(q, sink, display, WithDiagnostics(dg))

	enqueue(t, q, speech.Utterance{
		SourceID: "edit",
		Braille:  &speech.BrailleRegion{Text: "line", Cursor: -1},
	})
	stop := start(t, d)
	defer stop()

	eventually(t, "dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 1 })
	if len(sink.Texts()) != 0 {
		t.Errorf("Expected no speech, got %v", sink.Texts())
	}
	if len(display.Regions()) != 1 {
		t.Errorf("Expected 1 region, got %d", len(display.Regions()))
	}
}

func TestBrailleFailureAbandonsUtterance(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(false)
	display := sinktest.NewBraille()
	display.FailWith(speech.ErrSinkFailure)
	d := New(q, sink, display, WithDiagnostics(dg))

	u := utterance("edit", speech.PriorityDirect, "word")
	u.Braille = &speech.BrailleRegion{Text: "word", Cursor: 0}
	enqueue(t, q, u)
	stop := start(t, d)
	defer stop()

	eventually(t, "abandoned", func() bool { return dg.Count(diag.CounterAbandoned) == 1 })
	if len(sink.Texts()) != 0 {
		t.Errorf("Expected no speech after braille failure, got %v", sink.Texts())
	}
	if n := dg.Count(diag.CounterDispatched); n != 0 {
		t.Errorf("Expected 0 dispatched, got %d", n)
	}
}

func TestPauseAndResume(t *testing.T) {
	q := queue.New(16, nil)
	sink := sinktest.NewSpeech(true)
	d := New(q, sink, nil)

	pauses := make(chan bool, 4)
	d.OnPaused(func(p bool) { pauses <- p })

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "One. Two."))
	stop := start(t, d)
	defer stop()

	waitStarted(t, sink)
	d.Pause()
	d.Pause()
	if !d.Paused() {
		t.Fatal("Expected dispatcher to be paused")
	}
	sink.Complete()

	eventually(t, "paused state", func() bool { return d.State() == StatePaused })
	expectNoSpeech(t, sink, 30*time.Millisecond)

	d.Resume()
	if got := waitStarted(t, sink); got != "Two." {
		t.Errorf("Expected 'Two.' after resume, got %q", got)
	}
	sink.Complete()

	want := []bool{true, false}
	for _, w := range want {
		select {
		case got := <-pauses:
			if got != w {
				t.Errorf("Expected pause callback %v, got %v", w, got)
			}
		case <-time.After(waitTimeout):
			t.Fatal("Expected pause callback")
		}
	}
}

func TestSilence(t *testing.T) {
	q := queue.New(16, nil)
	sink := sinktest.NewSpeech(true)
	d := New(q, sink, nil)

	enqueue(t, q, utterance("a", speech.PriorityBackground, "One. Two."))
	enqueue(t, q, utterance("b", speech.PriorityBackground, "Later"))
	stop := start(t, d)
	defer stop()

	waitStarted(t, sink)
	d.Pause()

	if n := d.Silence(); n != 2 {
		t.Errorf("Expected 2 canceled, got %d", n)
	}
	if d.Paused() {
		t.Error("Expected silence to lift the pause")
	}

	eventually(t, "idle", func() bool { return d.State() == StateIdle && q.Active() == nil })
	expectNoSpeech(t, sink, 30*time.Millisecond)

	if got := sink.Texts(); !reflect.DeepEqual(got, []string{"One."}) {
		t.Errorf("Expected only 'One.', got %v", got)
	}
}

func TestStallIsCounted(t *testing.T) {
	dg := diag.New()
	q := queue.New(16, dg)
	sink := sinktest.NewSpeech(true)
	d := New(q, sink, nil, WithDiagnostics(dg), WithStallAfter(10*time.Millisecond))

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "Slow"))
	stop := start(t, d)
	defer stop()

	waitStarted(t, sink)
	eventually(t, "stall", func() bool { return dg.Count(diag.CounterStalls) == 1 })
	time.Sleep(30 * time.Millisecond)

	sink.Complete()
	eventually(t, "dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 1 })
	if n := dg.Count(diag.CounterStalls); n != 1 {
		t.Errorf("Expected one stall per fragment, got %d", n)
	}
}

func TestLatencyRecorded(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	dg := diag.New()
	q := queue.New(16, dg, queue.WithClock(func() time.Time { return base }))
	sink := sinktest.NewSpeech(false)
	d := New(q, sink, nil,
		WithDiagnostics(dg),
		WithClock(func() time.Time { return base.Add(30 * time.Millisecond) }))

	enqueue(t, q, utterance("doc", speech.PriorityBackground, "One. Two."))
	stop := start(t, d)
	defer stop()

	eventually(t, "dispatched", func() bool { return dg.Count(diag.CounterDispatched) == 1 })

	stats := dg.Stats()
	if stats.LatencyCount != 1 {
		t.Errorf("Expected latency recorded once per utterance, got %d", stats.LatencyCount)
	}
	if stats.LatencyMax != 30*time.Millisecond {
		t.Errorf("Expected 30ms latency, got %v", stats.LatencyMax)
	}
}

func TestRunEndsWhenQueueCloses(t *testing.T) {
	q := queue.New(16, nil)
	d := New(q, sinktest.NewSpeech(false), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()

	eventually(t, "idle", func() bool { return d.State() == StateIdle })
	if err := d.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	q.Close()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after queue closed")
	}
	if d.State() != StateStopped {
		t.Errorf("Expected stopped state, got %v", d.State())
	}
}
