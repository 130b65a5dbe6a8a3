// Package diag counts what happened to utterances on their way to the
// sinks. Every counter is mirrored into an OpenTelemetry instrument, which
// stays a no-op unless the host installs a meter provider.
package diag

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nidza07/nvda/internal/speech"
)

// Counter names, also used as instrument names under the "nvda." prefix.
const (
	CounterEnqueued         = "enqueued"
	CounterCanceled         = "canceled"
	CounterDropped          = "dropped"
	CounterDeduplicated     = "deduplicated"
	CounterOvercommitted    = "overcommitted"
	CounterDispatched       = "dispatched"
	CounterSinkFailures     = "sink_failures"
	CounterAbandoned        = "abandoned"
	CounterStalls           = "stalls"
	CounterInvalidSnapshots = "invalid_snapshots"
	CounterThrottled        = "throttled"
)

var counterNames = []string{
	CounterEnqueued,
	CounterCanceled,
	CounterDropped,
	CounterDeduplicated,
	CounterOvercommitted,
	CounterDispatched,
	CounterSinkFailures,
	CounterAbandoned,
	CounterStalls,
	CounterInvalidSnapshots,
	CounterThrottled,
}

// Diagnostics holds the pipeline counters. All methods are safe for
// concurrent use and on a nil receiver.
type Diagnostics struct {
	counts map[string]*atomic.Int64

	latencyCount atomic.Int64
	latencyTotal atomic.Int64
	latencyMax   atomic.Int64
	latencyLast  atomic.Int64

	counters map[string]metric.Int64Counter
	latency  metric.Float64Histogram
}

// New creates a Diagnostics with all counters at zero.
func New() *Diagnostics {
	d := &Diagnostics{
		counts:   make(map[string]*atomic.Int64, len(counterNames)),
		counters: make(map[string]metric.Int64Counter, len(counterNames)),
	}
	for _, name := range counterNames {
		d.counts[name] = new(atomic.Int64)

		c, err := meter.Int64Counter("nvda.utterances."+name,
			metric.WithDescription("Utterances "+strings.ReplaceAll(name, "_", " ")))
		if err != nil {
			log.Warn("Failed to create counter", "name", name, "error", err)
			continue
		}
		d.counters[name] = c
	}

	h, err := meter.Float64Histogram("nvda.dispatch.latency",
		metric.WithDescription("Time from enqueue to the first fragment reaching a sink"),
		metric.WithUnit("ms"))
	if err != nil {
		log.Warn("Failed to create latency histogram", "error", err)
	} else {
		d.latency = h
	}
	return d
}

// Add increments the named counter by n. Unknown names are ignored.
func (d *Diagnostics) Add(name string, n int64, attrs ...attribute.KeyValue) {
	if d == nil || n == 0 {
		return
	}
	c, ok := d.counts[name]
	if !ok {
		return
	}
	c.Add(n)
	if inst, ok := d.counters[name]; ok {
		inst.Add(context.Background(), n, metric.WithAttributes(attrs...))
	}
}

// Count returns the current value of the named counter.
func (d *Diagnostics) Count(name string) int64 {
	if d == nil {
		return 0
	}
	if c, ok := d.counts[name]; ok {
		return c.Load()
	}
	return 0
}

// Enqueued records an accepted utterance.
func (d *Diagnostics) Enqueued(p speech.Priority) {
	d.Add(CounterEnqueued, 1, attribute.String("priority", p.String()))
}

// Canceled records n utterances removed or stopped by cancellation.
func (d *Diagnostics) Canceled(n int) {
	d.Add(CounterCanceled, int64(n))
}

// Dropped records an utterance lost to queue overflow.
func (d *Diagnostics) Dropped(p speech.Priority) {
	d.Add(CounterDropped, 1, attribute.String("priority", p.String()))
}

// Deduplicated records an utterance coalesced into an identical one.
func (d *Diagnostics) Deduplicated() {
	d.Add(CounterDeduplicated, 1)
}

// Overcommitted records an Alert or Direct utterance admitted over capacity.
func (d *Diagnostics) Overcommitted(p speech.Priority) {
	d.Add(CounterOvercommitted, 1, attribute.String("priority", p.String()))
}

// Dispatched records an utterance that finished playing.
func (d *Diagnostics) Dispatched() {
	d.Add(CounterDispatched, 1)
}

// SinkFailure records a sink reporting failure.
func (d *Diagnostics) SinkFailure(sink string) {
	d.Add(CounterSinkFailures, 1, attribute.String("sink", sink))
}

// Abandoned records an utterance given up after a sink failure.
func (d *Diagnostics) Abandoned() {
	d.Add(CounterAbandoned, 1)
}

// Stall records a sink completion that is overdue.
func (d *Diagnostics) Stall() {
	d.Add(CounterStalls, 1)
}

// InvalidSnapshot records an event rejected by the diff engine.
func (d *Diagnostics) InvalidSnapshot() {
	d.Add(CounterInvalidSnapshots, 1)
}

// Throttled records an event skipped by the intake rate limit.
func (d *Diagnostics) Throttled() {
	d.Add(CounterThrottled, 1)
}

// ObserveLatency records the dispatch latency of one utterance.
func (d *Diagnostics) ObserveLatency(latency time.Duration) {
	if d == nil {
		return
	}
	if latency < 0 {
		latency = 0
	}
	ns := int64(latency)
	d.latencyCount.Add(1)
	d.latencyTotal.Add(ns)
	d.latencyLast.Store(ns)
	for {
		cur := d.latencyMax.Load()
		if ns <= cur || d.latencyMax.CompareAndSwap(cur, ns) {
			break
		}
	}
	if d.latency != nil {
		d.latency.Record(context.Background(), float64(latency)/float64(time.Millisecond))
	}
}

// StartSpan starts a trace span for a unit of pipeline work.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Counts map[string]int64

	LatencyCount int64
	LatencyTotal time.Duration
	LatencyMax   time.Duration
	LatencyLast  time.Duration
}

// Stats returns a snapshot of all counters.
func (d *Diagnostics) Stats() Stats {
	s := Stats{Counts: make(map[string]int64, len(counterNames))}
	if d == nil {
		return s
	}
	for _, name := range counterNames {
		s.Counts[name] = d.counts[name].Load()
	}
	s.LatencyCount = d.latencyCount.Load()
	s.LatencyTotal = time.Duration(d.latencyTotal.Load())
	s.LatencyMax = time.Duration(d.latencyMax.Load())
	s.LatencyLast = time.Duration(d.latencyLast.Load())
	return s
}

// AverageLatency returns the mean dispatch latency.
func (s Stats) AverageLatency() time.Duration {
	if s.LatencyCount == 0 {
		return 0
	}
	return s.LatencyTotal / time.Duration(s.LatencyCount)
}

// String renders the non-zero counters on one line.
func (s Stats) String() string {
	var parts []string
	for _, name := range counterNames {
		if n := s.Counts[name]; n != 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", name, humanize.Comma(n)))
		}
	}
	if s.LatencyCount > 0 {
		parts = append(parts, fmt.Sprintf("latency avg=%s max=%s",
			s.AverageLatency().Round(time.Microsecond), s.LatencyMax.Round(time.Microsecond)))
	}
	if len(parts) == 0 {
		return "no activity"
	}
	return strings.Join(parts, " ")
}
