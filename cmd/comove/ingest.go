package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"comove/internal/di"
	domrepo "comove/internal/domain/repository"
	"comove/internal/repository"
	"comove/internal/usecase"
	"comove/pkg/config"
	"comove/pkg/logger"
)

type ingestOptions struct {
	config    string
	csv       string
	timeframe string
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	o := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a combined CSV into ClickHouse bar tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := root.logger()
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), o, l)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.config, "config", "config/config.yaml", "config file path")
	f.StringVar(&o.csv, "csv", "", "combined CSV file")
	f.StringVar(&o.timeframe, "timeframe", "1wk", "bar timeframe of the file (1d, 1wk)")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func runIngest(ctx context.Context, o *ingestOptions, l *logger.Logger) error {
	if !domrepo.IsValidTimeframe(domrepo.Timeframe(o.timeframe)) {
		return fmt.Errorf("unsupported timeframe %q", o.timeframe)
	}
	cfg, err := config.LoadWithEnv(o.config)
	if err != nil {
		return err
	}

	f, err := os.Open(o.csv)
	if err != nil {
		return err
	}
	defer f.Close()
	table, err := repository.ReadCombined(f)
	if err != nil {
		return err
	}

	ch, err := di.NewClickHouseClient(cfg)
	if err != nil {
		return err
	}
	defer ch.Close()

	uc := usecase.NewSeriesIngestUseCase(repository.NewCHSeriesStore(ch, l), l)
	res, err := uc.Ingest(ctx, domrepo.Timeframe(o.timeframe), table.Candles())
	if err != nil {
		return err
	}
	l.Info("ingest complete",
		logger.String("timeframe", string(res.Timeframe)),
		logger.Int("symbols", len(res.Symbols)),
		logger.Int("rows", res.Rows),
	)
	return nil
}
