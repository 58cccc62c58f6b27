package main

import (
	"github.com/spf13/cobra"

	"comove/pkg/logger"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "comove",
		Short:         "Time-windowed correlation and alignment of market series",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newIngestCmd(opts),
		newServeCmd(),
		newWatchCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: o.logLevel, Format: "console", Output: "stderr"})
}
