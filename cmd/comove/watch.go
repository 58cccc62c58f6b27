package main

import (
	"encoding/json"
	neturl "net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"comove/internal/domain/models"
	"comove/internal/service/feed"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		url       string
		primaries []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print report summaries pushed by a running service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := root.logger()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(primaries) > 0 {
				url += "?primary=" + neturl.QueryEscape(strings.Join(primaries, ","))
			}
			c := feed.New(url, 3*time.Second, 30*time.Second, l)
			defer c.Close()
			enc := json.NewEncoder(os.Stdout)
			return c.Watch(ctx, func(s models.ReportSummary) {
				_ = enc.Encode(s)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws/reports", "report feed URL")
	cmd.Flags().StringSliceVar(&primaries, "primary", nil, "only print reports for these primaries")
	return cmd
}
