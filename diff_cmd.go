package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nidza07/nvda/internal/classify"
	"github.com/nidza07/nvda/internal/diff"
	"github.com/nidza07/nvda/utils"
)

var (
	diffFiles     bool
	diffCaret     int
	diffPrevCaret int
	diffTyped     bool
	diffRole      string

	opStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Render
	textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render

	diffCmd = &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Show the edit ops and utterances for a text change",
		Long: paragraph(fmt.Sprintf("\n%s two snapshots of a text and print the edit ops between them, "+
			"followed by the utterances a screen reader would queue for the change.", keyword("Compare"))),
		Example: paragraph("nvda-core diff 'Hello world' 'Hello brave world' --caret 6 --typed\n" +
			"nvda-core diff --files before.txt after.txt"),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldText, err := diffArg(args[0])
			if err != nil {
				return err
			}
			newText, err := diffArg(args[1])
			if err != nil {
				return err
			}
			role, err := classify.ParseRole(diffRole)
			if err != nil {
				return err
			}

			return printDiff(cmd.OutOrStdout(), oldText, newText, classify.Context{
				Caret:     diffCaret,
				PrevCaret: diffPrevCaret,
				UserTyped: diffTyped,
				Role:      role,
				SourceID:  "cli",
			})
		},
	}
)

func diffArg(arg string) (string, error) {
	if !diffFiles {
		return arg, nil
	}
	b, err := os.ReadFile(utils.ExpandPath(arg))
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	return string(b), nil
}

func printDiff(w io.Writer, oldText, newText string, ctx classify.Context) error {
	ctx.Old = diff.NewSnapshot(oldText)
	ctx.New = diff.NewSnapshot(newText)

	ops, err := diff.NewDiffer(diff.Options{}).Diff(ctx.Old, ctx.New)
	if err != nil {
		return err
	}

	style := func(render func(...string) string, s string) string {
		if !isTerminal {
			return s
		}
		return render(s)
	}

	fmt.Fprintln(w, style(keyword, "Edits"))
	if len(ops) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, op := range ops {
		fmt.Fprintf(w, "  %s  %s -> %s\n", style(opStyle, op.String()),
			strconv.Quote(op.OldText(ctx.Old)), style(textStyle, strconv.Quote(op.NewText(ctx.New))))
	}

	fmt.Fprintln(w, style(keyword, "Utterances"))
	utterances := classify.New(cfg.Policy()).Classify(ops, ctx)
	if len(utterances) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, u := range utterances {
		fmt.Fprintf(w, "  %-10s %-9s %s\n", u.Priority, u.Kind, style(textStyle, strconv.Quote(u.Text())))
		if u.Braille != nil {
			fmt.Fprintf(w, "  %-10s %-9s %s cursor=%d\n", "", "braille", strconv.Quote(u.Braille.Text), u.Braille.Cursor)
		}
	}
	return nil
}

func init() {
	diffCmd.Flags().BoolVarP(&diffFiles, "files", "f", false, "treat OLD and NEW as file paths")
	diffCmd.Flags().IntVar(&diffCaret, "caret", classify.NoCaret, "caret offset in NEW (-1 for none)")
	diffCmd.Flags().IntVar(&diffPrevCaret, "prev-caret", classify.NoCaret, "caret offset in OLD (-1 for none)")
	diffCmd.Flags().BoolVar(&diffTyped, "typed", false, "the change was typed by the user")
	diffCmd.Flags().StringVar(&diffRole, "role", "", "control role: edit, document, terminal, password, static, liveregion or dialog")
}
