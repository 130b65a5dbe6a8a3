package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nidza07/nvda/internal/dispatch"
	"github.com/nidza07/nvda/internal/script"
	"github.com/nidza07/nvda/internal/sinks/console"
	"github.com/nidza07/nvda/internal/viewer"
	"github.com/nidza07/nvda/utils"
)

var (
	replayViewer     bool
	replayTranscript string

	replayCmd = &cobra.Command{
		Use:   "replay FILE",
		Short: "Run a recorded script of text changes through the output pipeline",
		Long: paragraph(fmt.Sprintf("\n%s a YAML script of snapshot events, announcements and controls. "+
			"Speech and braille are printed to the terminal, or shown in an interactive viewer.", keyword("Replay"))),
		Example: paragraph("nvda-core replay session.yml\nnvda-core replay session.yml --viewer --transcript out.jsonl.zst"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.LoadFile(utils.ExpandPath(args[0]))
			if err != nil {
				return err
			}

			transcriptPath := cfg.Transcript.Path
			if replayTranscript != "" {
				transcriptPath = replayTranscript
			}

			ctx, stop := signalContext()
			defer stop()

			if replayViewer {
				return replayInViewer(ctx, s, transcriptPath)
			}
			return replayToConsole(ctx, cmd.OutOrStdout(), s, transcriptPath)
		},
	}
)

func replayToConsole(ctx context.Context, w io.Writer, s *script.Script, transcriptPath string) (err error) {
	sp, br, player := consoleSinks(cfg, w, isTerminal)
	p, err := newPipeline(cfg, sp, br, transcriptPath)
	if err != nil {
		return err
	}
	p.player = player
	defer func() {
		if cerr := p.close(); err == nil {
			err = cerr
		}
	}()

	err = p.run(ctx, func(ctx context.Context) error {
		return script.Run(ctx, s, p.intake, p.dispatcher)
	})
	fmt.Fprintln(w, p.diag.Stats())
	return err
}

func replayInViewer(ctx context.Context, s *script.Script, transcriptPath string) error {
	relay := &viewer.Relay{}
	pace := console.NewSpeech(io.Discard, console.WithWordsPerMinute(cfg.Console.WordsPerMinute))
	sink := viewer.NewSink(relay, pace)

	p, err := newPipeline(cfg, sink, sink, transcriptPath)
	if err != nil {
		return err
	}
	defer p.close() //nolint:errcheck

	program := viewer.NewProgram(viewer.New(p.dispatcher, p.diag.Stats, cfg.Console.BrailleCells))
	relay.Attach(program)
	p.dispatcher.OnStateChange(func(state dispatch.StateType) {
		relay.Send(viewer.StateMsg{State: state})
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.run(ctx, func(ctx context.Context) error {
			if err := script.Run(ctx, s, p.intake, p.dispatcher); err != nil {
				return err
			}
			// Keep the pipeline up until the viewer is closed.
			<-ctx.Done()
			return nil
		})
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("unable to run viewer: %w", err)
	}
	cancel()
	return <-done
}

func init() {
	replayCmd.Flags().BoolVarP(&replayViewer, "viewer", "v", false, "show output in an interactive viewer")
	replayCmd.Flags().StringVarP(&replayTranscript, "transcript", "o", "", "record spoken output to this file (.zst compresses)")
}
