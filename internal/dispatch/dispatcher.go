// Package dispatch drains the utterance queue into the speech and braille
// sinks, one fragment at a time, honoring cancellation at every fragment
// boundary.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/fragment"
	"github.com/nidza07/nvda/internal/queue"
	"github.com/nidza07/nvda/internal/speech"
)

// ErrAlreadyRunning is returned when Run is called twice concurrently.
var ErrAlreadyRunning = errors.New("dispatcher is already running")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSplitter sets the fragment splitter.
func WithSplitter(s *fragment.Splitter) Option {
	return func(d *Dispatcher) { d.splitter = s }
}

// WithDiagnostics sets the diagnostics sink.
func WithDiagnostics(dg *diag.Diagnostics) Option {
	return func(d *Dispatcher) { d.diag = dg }
}

// WithStallAfter sets how long a fragment may go unacknowledged before a
// stall is logged. Zero disables stall detection.
func WithStallAfter(after time.Duration) Option {
	return func(d *Dispatcher) { d.stallAfter = after }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// outcome is how a single sink request ended.
type outcome int

const (
	completed outcome = iota
	canceled
	failed
	stopped
)

// Dispatcher is the single consumer of a queue.
type Dispatcher struct {
	queue    *queue.Queue
	speech   speech.SpeechSink
	braille  speech.BrailleSink
	splitter *fragment.Splitter

	diag       *diag.Diagnostics
	logger     *log.Logger
	stallAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	machine *StateMachine
	running bool
	paused  bool
	resume  chan struct{}

	// Callbacks
	onStateChange func(StateType)
	onCanceled    func(*queue.Entry)
	onPaused      func(bool)
	onSpoken      func(*queue.Entry, speech.Fragment)
}

// New creates a dispatcher. Either sink may be nil.
func New(q *queue.Queue, sp speech.SpeechSink, br speech.BrailleSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:      q,
		speech:     sp,
		braille:    br,
		splitter:   fragment.NewSplitter(fragment.DefaultMaxRunes),
		logger:     log.Default().WithPrefix("dispatch"),
		stallAfter: 5 * time.Second,
		now:        time.Now,
		machine:    NewStateMachine(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnStateChange registers a callback for state changes.
func (d *Dispatcher) OnStateChange(fn func(StateType)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onStateChange = fn
}

// OnCanceled registers a callback for utterances stopped by cancellation.
func (d *Dispatcher) OnCanceled(fn func(*queue.Entry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCanceled = fn
}

// OnPaused registers a callback for pause and resume.
func (d *Dispatcher) OnPaused(fn func(bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPaused = fn
}

// OnSpoken registers a callback for every fragment the speech sink
// finished.
func (d *Dispatcher) OnSpoken(fn func(*queue.Entry, speech.Fragment)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSpoken = fn
}

// State returns the current state.
func (d *Dispatcher) State() StateType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Current()
}

// Paused reports whether output is paused.
func (d *Dispatcher) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Run drains the queue until ctx ends or the queue is closed. Both end
// the loop with a nil error.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	d.setState(StateIdle)
	d.logger.Debug("Dispatch loop started")

	defer func() {
		d.setState(StateStopped)
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		d.logger.Debug("Dispatch loop stopped")
	}()

	for {
		e, err := d.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		d.play(ctx, e)
		d.queue.Release(e)
		d.setState(StateIdle)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// play sends one entry to the sinks.
func (d *Dispatcher) play(ctx context.Context, e *queue.Entry) {
	ctx, span := diag.StartSpan(ctx, "dispatch.utterance",
		attribute.String("utterance.id", e.ID),
		attribute.String("utterance.source", e.SourceID),
		attribute.String("utterance.priority", e.Priority.String()),
	)
	defer span.End()

	if e.Token.Canceled() {
		d.canceled(e)
		return
	}

	started := false
	markStarted := func() {
		if !started {
			started = true
			d.diag.ObserveLatency(d.now().Sub(e.EnqueuedAt))
		}
	}

	if e.Braille != nil && d.braille != nil {
		d.setState(StateBrailling)
		markStarted()
		res, err := d.await(ctx, e, d.braille.Render(*e.Braille), nil)
		if !d.settle(e, res, err, "braille") {
			span.SetStatus(codes.Error, res.String())
			return
		}
	}

	if d.speech != nil {
		for _, f := range d.splitter.Split(e.Utterance) {
			if e.Token.Canceled() {
				d.canceled(e)
				return
			}
			if res := d.waitIfPaused(ctx, e); res != completed {
				d.settle(e, res, nil, "speech")
				return
			}

			d.setState(StateSpeaking)
			markStarted()
			res, err := d.await(ctx, e, d.speech.Speak(f), d.speech.CancelCurrent)
			if !d.settle(e, res, err, "speech") {
				span.SetStatus(codes.Error, res.String())
				return
			}
			d.spoken(e, f)
		}
	}

	d.diag.Dispatched()
}

// await waits for a sink request to finish. On cancellation it asks the
// sink to stop and waits for the acknowledgment.
func (d *Dispatcher) await(ctx context.Context, e *queue.Entry, done <-chan error, cancel func()) (outcome, error) {
	var stall <-chan time.Time
	if d.stallAfter > 0 {
		timer := time.NewTimer(d.stallAfter)
		defer timer.Stop()
		stall = timer.C
	}

	for {
		select {
		case err := <-done:
			if err != nil {
				return failed, err
			}
			if e.Token.Canceled() {
				return canceled, nil
			}
			return completed, nil

		case <-e.Token.Done():
			if cancel != nil {
				cancel()
			}
			select {
			case <-done:
			case <-ctx.Done():
				return stopped, nil
			}
			return canceled, nil

		case <-ctx.Done():
			if cancel != nil {
				cancel()
			}
			return stopped, nil

		case <-stall:
			d.diag.Stall()
			d.logger.Warn("Sink has not acknowledged output", "id", e.ID, "after", d.stallAfter)
			stall = nil
		}
	}
}

// settle records the end of a sink request. It reports whether playback
// of e should go on.
func (d *Dispatcher) settle(e *queue.Entry, res outcome, err error, sink string) bool {
	switch res {
	case completed:
		return true
	case canceled:
		d.canceled(e)
	case failed:
		d.diag.SinkFailure(sink)
		d.diag.Abandoned()
		d.logger.Error("Sink failed, abandoning utterance", "sink", sink, "id", e.ID, "err", err)
	}
	return false
}

// waitIfPaused holds playback at a fragment boundary while paused.
func (d *Dispatcher) waitIfPaused(ctx context.Context, e *queue.Entry) outcome {
	d.mu.Lock()
	paused, resume := d.paused, d.resume
	d.mu.Unlock()
	if !paused {
		return completed
	}

	d.setState(StatePaused)
	select {
	case <-resume:
		return completed
	case <-e.Token.Done():
		return canceled
	case <-ctx.Done():
		return stopped
	}
}

// Pause holds output at the next fragment boundary.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	if d.paused {
		d.mu.Unlock()
		return
	}
	d.paused = true
	d.resume = make(chan struct{})
	fn := d.onPaused
	d.mu.Unlock()

	d.logger.Debug("Output paused")
	if fn != nil {
		fn(true)
	}
}

// Resume continues output after Pause.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	if !d.paused {
		d.mu.Unlock()
		return
	}
	d.paused = false
	close(d.resume)
	fn := d.onPaused
	d.mu.Unlock()

	d.logger.Debug("Output resumed")
	if fn != nil {
		fn(false)
	}
}

// Silence cancels everything queued and playing, and lifts a pause. It
// returns the number of utterances canceled.
func (d *Dispatcher) Silence() int {
	n := d.queue.CancelAll()
	d.Resume()
	d.logger.Debug("Silenced", "canceled", n)
	return n
}

// Cancel stops everything queued or playing for a source.
func (d *Dispatcher) Cancel(sourceID string) int {
	return d.queue.Cancel(sourceID)
}

func (d *Dispatcher) canceled(e *queue.Entry) {
	d.logger.Debug("Utterance canceled", "id", e.ID, "source", e.SourceID)

	d.mu.Lock()
	fn := d.onCanceled
	d.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (d *Dispatcher) spoken(e *queue.Entry, f speech.Fragment) {
	d.mu.Lock()
	fn := d.onSpoken
	d.mu.Unlock()
	if fn != nil {
		fn(e, f)
	}
}

// setState moves the state machine, notifying the state callback.
func (d *Dispatcher) setState(to StateType) {
	d.mu.Lock()
	from := d.machine.Current()
	if from == to {
		d.mu.Unlock()
		return
	}
	if !d.machine.Transition(to) {
		d.mu.Unlock()
		d.logger.Debug("Ignoring invalid state transition", "from", from, "to", to)
		return
	}
	fn := d.onStateChange
	d.mu.Unlock()

	if fn != nil {
		fn(to)
	}
}

func (o outcome) String() string {
	switch o {
	case completed:
		return "completed"
	case canceled:
		return "canceled"
	case failed:
		return "failed"
	case stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
