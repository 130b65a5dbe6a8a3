package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nidza07/nvda/internal/transcript"
	"github.com/nidza07/nvda/utils"
)

var (
	transcriptGrep string

	transcriptCmd = &cobra.Command{
		Use:   "transcript FILE",
		Short: "Print a recorded transcript",
		Long: paragraph(fmt.Sprintf("\n%s a transcript written by replay, watch or serve. "+
			"Use --grep to keep only lines fuzzily matching a query.", keyword("Print"))),
		Example: paragraph("nvda-core transcript out.jsonl.zst --grep dialog"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := transcript.Open(utils.ExpandPath(args[0]))
			if err != nil {
				return err
			}
			defer r.Close() //nolint:errcheck

			records, err := transcript.ReadAll(r)
			if err != nil {
				return err
			}
			total := len(records)
			records = transcript.Filter(records, transcriptGrep)

			w := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintln(w, rec)
			}
			if transcriptGrep != "" {
				fmt.Fprintf(w, "%s of %s records match\n", humanize.Comma(int64(len(records))), humanize.Comma(int64(total)))
			}
			return nil
		},
	}
)

func init() {
	transcriptCmd.Flags().StringVarP(&transcriptGrep, "grep", "g", "", "fuzzy filter on spoken text")
}
