package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/internal/intake"
	"github.com/nidza07/nvda/utils"
)

var (
	watchRole string

	watchCmd = &cobra.Command{
		Use:   "watch FILE",
		Short: "Speak changes to a text file as they happen",
		Long: paragraph(fmt.Sprintf("\n%s a text file and read out every change made to it, "+
			"the way a screen reader reports updates it did not cause.", keyword("Watch"))),
		Example: paragraph("nvda-core watch build.log --role terminal"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(utils.ExpandPath(args[0]))
			if err != nil {
				return fmt.Errorf("unable to get absolute path: %w", err)
			}
			role, err := classify.ParseRole(watchRole)
			if err != nil {
				return err
			}

			sp, br, player := consoleSinks(cfg, cmd.OutOrStdout(), isTerminal)
			p, err := newPipeline(cfg, sp, br, cfg.Transcript.Path)
			if err != nil {
				return err
			}
			p.player = player
			defer p.close() //nolint:errcheck

			ctx, stop := signalContext()
			defer stop()

			return p.run(ctx, func(ctx context.Context) error {
				return watchFile(ctx, path, role, p.intake)
			})
		},
	}
)

// watchFile submits the file's content as a snapshot every time it is
// written, until ctx ends.
func watchFile(ctx context.Context, path string, role classify.Role, in *intake.Intake) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("unable to watch %s: %w", path, err)
	}

	submit := func() error {
		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to read file: %w", err)
		}
		return in.Submit(ctx, intake.Event{
			New: diff.NewSnapshot(string(b)),
			Context: classify.Context{
				Caret:     classify.NoCaret,
				PrevCaret: classify.NoCaret,
				Role:      role,
				SourceID:  path,
			},
		})
	}

	// The first read speaks the current content and sets the baseline.
	if err := submit(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			log.Debug("File changed", "path", path, "op", event.Op)
			if err := submit(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", "err", err)
		}
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchRole, "role", "document", "control role of the file: document, terminal, liveregion, ...")
}
