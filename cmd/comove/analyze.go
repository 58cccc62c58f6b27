package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"comove/internal/domain/models"
	"comove/internal/repository"
	"comove/internal/services/smoothing"
	"comove/internal/usecase"
	pkghttp "comove/pkg/http"
	"comove/pkg/logger"
)

type analyzeOptions struct {
	csv         string
	primary     string
	compare     []string
	from, to    string
	timeframe   string
	field       string
	window      int
	maxWarp     int
	band        []float64
	minStrength float64
	weighted    float64
	smoothing   string
	normalize   bool
	out         string
	timeout     time.Duration
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a full analysis over a combined CSV and export the tables",
		Example: "  comove analyze --csv data/combined_1wk.csv --primary GME --compare CHWY,SPY \\\n" +
			"    --window 6 --max-warp 5 --band 0.02,0.5 --out out/",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := root.logger()
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), o, l)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.csv, "csv", "", "combined CSV file")
	f.StringVar(&o.primary, "primary", "", "primary ticker")
	f.StringSliceVar(&o.compare, "compare", nil, "comparison tickers")
	f.StringVar(&o.from, "from", "", "first date (inclusive)")
	f.StringVar(&o.to, "to", "", "last date (inclusive)")
	f.StringVar(&o.timeframe, "timeframe", "1wk", "bar timeframe (1d, 1wk)")
	f.StringVar(&o.field, "field", "return", "series field (close, return, logreturn, volume)")
	f.IntVar(&o.window, "window", 6, "rolling window in observations")
	f.IntVar(&o.maxWarp, "max-warp", 0, "DTW warping radius")
	f.Float64SliceVar(&o.band, "band", nil, "frequency band as low,high fractions of Nyquist")
	f.Float64Var(&o.minStrength, "min-strength", 0, "minimum |correlation| for a handoff")
	f.Float64Var(&o.weighted, "weighted-min-strength", 0.3, "minimum weighted strength for a handoff")
	f.StringVar(&o.smoothing, "smoothing", string(smoothing.MethodLLT), "smoothing method (llt, ema, savgol, none)")
	f.BoolVar(&o.normalize, "normalize-dtw", false, "divide DTW cost by path length")
	f.StringVar(&o.out, "out", "out", "output directory")
	f.DurationVar(&o.timeout, "timeout", 5*time.Minute, "analysis timeout")

	for _, name := range []string{"csv", "primary", "compare", "max-warp", "band"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (o *analyzeOptions) params() (usecase.AnalysisParams, error) {
	maxWarp := o.maxWarp
	req := &models.AnalysisRequest{
		Primary:             o.primary,
		Comparisons:         o.compare,
		From:                o.from,
		To:                  o.to,
		Timeframe:           o.timeframe,
		Field:               o.field,
		Window:              o.window,
		MaxWarp:             &maxWarp,
		FreqBand:            o.band,
		MinStrength:         o.minStrength,
		WeightedMinStrength: o.weighted,
		Smoothing:           o.smoothing,
		NormalizeDTW:        o.normalize,
	}
	if verrs := pkghttp.ValidateRequest(context.Background(), req); len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.Message)
		}
		return usecase.AnalysisParams{}, fmt.Errorf("invalid flags: %s", strings.Join(msgs, "; "))
	}
	return usecase.RequestParams(req, smoothing.DefaultParams())
}

func runAnalyze(ctx context.Context, o *analyzeOptions, l *logger.Logger) error {
	p, err := o.params()
	if err != nil {
		return err
	}

	store := repository.NewCSVFileStore(o.csv, l)
	uc := usecase.NewAnalysisUseCase(store, nil, nil, nil, nil, l, usecase.WithAnalysisTimeout(o.timeout))
	r, err := uc.Run(ctx, p)
	if err != nil {
		return err
	}

	tables := repository.ReportTables(r)
	paths, err := repository.WriteCSVDir(o.out, tables)
	if err != nil {
		return err
	}
	xlsx := filepath.Join(o.out, "report.xlsx")
	if err := repository.WriteXLSXFile(xlsx, tables); err != nil {
		return err
	}
	paths = append(paths, xlsx)

	s := r.Summary()
	l.Info("analysis complete",
		logger.String("id", r.ID),
		logger.String("primary", r.Primary),
		logger.Int("windows", s.Rows),
		logger.Int("transitions", s.Transitions),
		logger.Strings("missing", r.Missing),
	)
	for label, msg := range r.Errors {
		l.Warn("comparison failed", logger.String("label", label), logger.String("error", msg))
	}
	fmt.Fprintln(os.Stdout, strings.Join(paths, "\n"))
	return nil
}
