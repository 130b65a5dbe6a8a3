package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nidza07/nvda/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept text changes and announcements over a websocket",
	Long: paragraph(fmt.Sprintf("\n%s snapshot events, announcements, cancel and silence requests "+
		"as JSON websocket messages and speak them in the terminal.", keyword("Accept"))),
	Example: paragraph("nvda-core serve --addr 127.0.0.1:8765"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sp, br, player := consoleSinks(cfg, cmd.OutOrStdout(), isTerminal)
		p, err := newPipeline(cfg, sp, br, cfg.Transcript.Path)
		if err != nil {
			return err
		}
		p.player = player
		defer p.close() //nolint:errcheck

		ctx, stop := signalContext()
		defer stop()

		srv := server.New(p.intake, p.dispatcher)
		return p.run(ctx, func(ctx context.Context) error {
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}
