package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nidza07/nvda/internal/cache"
	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/config"
	"github.com/nidza07/nvda/internal/diag"
	"github.com/nidza07/nvda/internal/dispatch"
	"github.com/nidza07/nvda/internal/fragment"
	"github.com/nidza07/nvda/internal/intake"
	"github.com/nidza07/nvda/internal/queue"
	"github.com/nidza07/nvda/internal/sinks/console"
	"github.com/nidza07/nvda/internal/sinks/tone"
	"github.com/nidza07/nvda/internal/speech"
	"github.com/nidza07/nvda/internal/transcript"
	"github.com/nidza07/nvda/utils"
)

// idlePoll is how often waitIdle checks the queue.
const idlePoll = 20 * time.Millisecond

// pipeline wires intake, queue and dispatcher to a pair of sinks.
type pipeline struct {
	cfg        config.Config
	diag       *diag.Diagnostics
	queue      *queue.Queue
	intake     *intake.Intake
	dispatcher *dispatch.Dispatcher
	transcript *transcript.Writer
	player     *tone.Player
}

// consoleSinks returns the terminal speech and braille sinks, wrapping
// speech with beeps when tones are enabled.
func consoleSinks(cfg config.Config, w io.Writer, styled bool) (speech.SpeechSink, speech.BrailleSink, *tone.Player) {
	opts := []console.Option{
		console.WithStyle(styled && cfg.Console.Style),
		console.WithWordsPerMinute(cfg.Console.WordsPerMinute),
	}
	var sp speech.SpeechSink = console.NewSpeech(w, opts...)
	br := console.NewBraille(w, cfg.Console.BrailleCells, opts...)

	if !cfg.Tone.Enabled {
		return sp, br, nil
	}
	player, err := tone.NewPlayer(cfg.ToneSettings())
	if err != nil {
		log.Warn("Tones disabled", "err", err)
		return sp, br, nil
	}
	return tone.Wrap(sp, player), br, player
}

func newPipeline(cfg config.Config, sp speech.SpeechSink, br speech.BrailleSink, transcriptPath string) (*pipeline, error) {
	p := &pipeline{cfg: cfg, diag: diag.New()}

	p.queue = queue.New(cfg.Queue.Capacity, p.diag,
		queue.WithDirectInterruptsBackground(cfg.Queue.DirectInterruptsBackground))

	opts := []intake.Option{
		intake.WithClassifier(classify.New(cfg.Policy())),
		intake.WithDiagnostics(p.diag),
		intake.WithThrottle(cfg.ThrottleLimit(), cfg.Intake.ThrottleBurst),
		intake.WithBufferSize(cfg.Intake.BufferSize),
	}
	if cfg.Intake.DedupeSize > 0 && cfg.Intake.DedupeWindow > 0 {
		opts = append(opts, intake.WithRecent(cache.NewRecent(cfg.Intake.DedupeSize, cfg.Intake.DedupeWindow)))
	}
	p.intake = intake.New(p.queue, opts...)

	p.dispatcher = dispatch.New(p.queue, sp, br,
		dispatch.WithDiagnostics(p.diag),
		dispatch.WithSplitter(fragment.NewSplitter(cfg.Dispatch.MaxFragmentRunes)),
		dispatch.WithStallAfter(cfg.Dispatch.StallAfter))

	if transcriptPath != "" {
		w, err := transcript.Create(utils.ExpandPath(transcriptPath))
		if err != nil {
			return nil, err
		}
		p.transcript = w
		p.dispatcher.OnSpoken(w.Spoken)
		p.dispatcher.OnCanceled(w.Canceled)
	}
	return p, nil
}

// run starts the dispatcher and the intake loop, then calls feed. When feed
// returns the queue is drained and everything is shut down.
func (p *pipeline) run(ctx context.Context, feed func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.dispatcher.Run(gctx) })
	g.Go(func() error { return p.intake.Run(gctx) })

	err := feed(gctx)
	if err == nil {
		err = p.waitIdle(gctx)
	}
	p.intake.Close()
	_ = p.queue.Close()
	cancel()

	if gerr := g.Wait(); err == nil && !errors.Is(gerr, context.Canceled) {
		err = gerr
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	return err
}

// waitIdle blocks until nothing is queued or playing.
func (p *pipeline) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for {
		if p.queue.Size() == 0 && p.queue.Active() == nil {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pipeline) close() error {
	var errs []error
	if p.player != nil {
		p.player.Stop()
	}
	if p.transcript != nil {
		if err := p.transcript.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unable to close transcript: %w", err))
		}
	}
	return errors.Join(errs...)
}
