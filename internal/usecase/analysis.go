package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	domsvc "comove/internal/domain/service"
	svcmetrics "comove/internal/service/metrics"
	"comove/internal/services/dtw"
	"comove/internal/services/entropy"
	"comove/internal/services/features"
	"comove/internal/services/influence"
	"comove/internal/services/rolling"
	"comove/internal/services/smoothing"
	"comove/internal/services/spectral"
	pkgcache "comove/pkg/cache"
	"comove/pkg/logger"
)

const (
	defaultAnalysisTimeout = 30 * time.Second
	fetchConcurrency       = 8
)

// AnalysisParams are the inputs of one full analysis run.
type AnalysisParams struct {
	Primary             string
	Comparisons         []string
	From                time.Time
	To                  time.Time
	Timeframe           domrepo.Timeframe
	Field               domrepo.Field
	Window              int
	MaxWarp             int
	FreqBand            []float64
	MinStrength         float64
	WeightedMinStrength float64
	Smoothing           smoothing.Params
	NormalizeDTW        bool
	// Refresh skips the cache lookup; the new report still replaces the cached one.
	Refresh bool
}

// Validate checks everything that can be checked before any data is loaded.
func (p AnalysisParams) Validate() error {
	if strings.TrimSpace(p.Primary) == "" {
		return errs.InvalidParameter("primary", "is required")
	}
	if len(p.Comparisons) == 0 {
		return errs.InvalidParameter("comparisons", "at least one comparison is required")
	}
	seen := make(map[string]struct{}, len(p.Comparisons))
	for _, c := range p.Comparisons {
		if strings.TrimSpace(c) == "" {
			return errs.InvalidParameter("comparisons", "labels must not be empty")
		}
		if c == p.Primary {
			return errs.InvalidParameter("comparisons", "primary %q must not be compared with itself", c)
		}
		if _, dup := seen[c]; dup {
			return errs.InvalidParameter("comparisons", "duplicate label %q", c)
		}
		seen[c] = struct{}{}
	}
	if p.Window < 2 {
		return errs.InvalidParameter("window", "must be >= 2, got %d", p.Window)
	}
	if p.MaxWarp < 0 {
		return errs.InvalidParameter("max_warp", "must be >= 0, got %d", p.MaxWarp)
	}
	if _, err := spectral.NewBand(p.FreqBand); err != nil {
		return err
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return errs.InvalidParameter("from", "must not be after to")
	}
	if p.MinStrength < 0 || p.WeightedMinStrength < 0 {
		return errs.InvalidParameter("min_strength", "must be >= 0")
	}
	return nil
}

// CacheKey is a digest of every parameter that affects the report.
func (p AnalysisParams) CacheKey() string {
	comps := append([]string(nil), p.Comparisons...)
	sort.Strings(comps)
	return pkgcache.HashKey(pkgcache.GenerateKeyWithParams("analysis",
		p.Primary, strings.Join(comps, ","),
		formatBound(p.From), formatBound(p.To),
		p.Timeframe, p.Field, p.Window, p.MaxWarp, p.FreqBand,
		p.MinStrength, p.WeightedMinStrength, p.NormalizeDTW,
		fmt.Sprintf("%+v", p.Smoothing),
	))
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// AnalysisUseCase runs the full correlation and alignment pipeline for one
// primary series against a set of comparisons.
type AnalysisUseCase struct {
	source    domrepo.SeriesSource
	cache     domrepo.ReportCache
	publisher domrepo.ReportPublisher
	notifier  domrepo.ReportNotifier
	metrics   domrepo.Metrics
	log       *logger.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	newID     func() string
	now       func() time.Time
}

type AnalysisOption func(*AnalysisUseCase)

func WithAnalysisTimeout(d time.Duration) AnalysisOption {
	return func(uc *AnalysisUseCase) {
		if d > 0 {
			uc.timeout = d
		}
	}
}

func WithTracer(t trace.Tracer) AnalysisOption {
	return func(uc *AnalysisUseCase) {
		if t != nil {
			uc.tracer = t
		}
	}
}

// NewAnalysisUseCase wires the pipeline. cache, publisher, notifier and
// metrics are optional.
func NewAnalysisUseCase(
	source domrepo.SeriesSource,
	cache domrepo.ReportCache,
	publisher domrepo.ReportPublisher,
	notifier domrepo.ReportNotifier,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...AnalysisOption,
) *AnalysisUseCase {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	uc := &AnalysisUseCase{
		source:    source,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		metrics:   metrics,
		log:       log,
		tracer:    otel.Tracer("comove/usecase"),
		timeout:   defaultAnalysisTimeout,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, o := range opts {
		o(uc)
	}
	return uc
}

// Report returns a previously computed report by run id.
func (uc *AnalysisUseCase) Report(ctx context.Context, id string) (*models.AnalysisReport, error) {
	if uc.cache == nil {
		return nil, models.ErrReportNotFound
	}
	return uc.cache.Get(ctx, id)
}

// PurgeReports drops cached reports so the next run recomputes. Caches that
// cannot purge are left as they are.
func (uc *AnalysisUseCase) PurgeReports(ctx context.Context) error {
	p, ok := uc.cache.(domrepo.ReportPurger)
	if !ok {
		return nil
	}
	if err := p.Purge(ctx); err != nil {
		uc.metrics.RecordError("cache")
		return err
	}
	uc.log.Info("report cache purged")
	return nil
}

// Run executes the pipeline. Only invalid parameters, a failed primary
// fetch, or a primary without data fail the run; per-comparison problems
// are reported in the result.
func (uc *AnalysisUseCase) Run(ctx context.Context, p AnalysisParams) (*models.AnalysisReport, error) {
	start := time.Now()
	if err := p.Validate(); err != nil {
		uc.metrics.RecordError("invalid_parameter")
		return nil, err
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}
	if p.Field == "" {
		p.Field = domrepo.FieldReturn
	}

	key := p.CacheKey()
	if uc.cache != nil && !p.Refresh {
		if r, err := uc.cache.Get(ctx, key); err == nil {
			uc.metrics.RecordRun(p.Primary, "cached")
			uc.log.Debug("analysis cache hit", logger.String("primary", p.Primary), logger.String("id", r.ID))
			return r, nil
		} else if !errors.Is(err, models.ErrReportNotFound) {
			uc.log.Warn("analysis cache get failed", logger.String("primary", p.Primary), logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	ctx, span := uc.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("primary", p.Primary),
		attribute.Int("comparisons", len(p.Comparisons)),
		attribute.Int("window", p.Window),
	))
	defer span.End()

	r, err := uc.run(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.metrics.RecordRun(p.Primary, "error")
		uc.metrics.RecordError(errorKind(err))
		uc.log.Error("analysis failed",
			logger.String("primary", p.Primary),
			logger.Strings("comparisons", p.Comparisons),
			logger.Error(err),
		)
		return nil, err
	}

	uc.deliver(ctx, key, r)

	uc.metrics.RecordRun(p.Primary, "ok")
	uc.metrics.RecordLatency("analysis", time.Since(start).Seconds())
	for label, n := range r.MissingWindows {
		uc.metrics.RecordMissingWindows(p.Primary, label, n)
	}
	if n := len(r.Entropy); n > 0 {
		uc.metrics.RecordEntropy(p.Primary, r.Entropy[n-1].Entropy)
	}
	uc.log.Info("analysis completed",
		logger.String("id", r.ID),
		logger.String("primary", p.Primary),
		logger.Int("window", p.Window),
		logger.Int("rows", r.Correlations.Len()),
		logger.Int("transitions", len(r.Transitions)),
		logger.Int("label_errors", len(r.Errors)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return r, nil
}

func (uc *AnalysisUseCase) run(ctx context.Context, p AnalysisParams) (*models.AnalysisReport, error) {
	band, _ := spectral.NewBand(p.FreqBand)
	r := &models.AnalysisReport{
		ID:          uc.newID(),
		Primary:     p.Primary,
		Comparisons: append([]string(nil), p.Comparisons...),
		Timeframe:   string(p.Timeframe),
		Field:       string(p.Field),
		From:        p.From,
		To:          p.To,
		Window:      p.Window,
		MaxWarp:     p.MaxWarp,
		FreqBand:    [2]float64{band.Low, band.High},
		Errors:      map[string]string{},
		CreatedAt:   uc.now().UTC(),
	}

	primary, comparisons, err := uc.fetch(ctx, p, r)
	if err != nil {
		return nil, err
	}
	if n := presentCount(primary); n == 0 {
		return nil, errs.InsufficientData("analysis", 1, 0)
	}

	pair := PairParams{
		MaxWarp:      p.MaxWarp,
		FreqBand:     p.FreqBand,
		Smoothing:    p.Smoothing,
		NormalizeDTW: p.NormalizeDTW,
		Window:       p.Window,
	}
	r.Alignments, r.Distances = uc.alignAll(ctx, primary, comparisons, pair, r.Errors)
	features.AlignmentScores(r.Alignments)

	stageStart := time.Now()
	table, err := rolling.Correlate(primary, comparisons, p.Window)
	if err != nil {
		return nil, fmt.Errorf("rolling correlation: %w", err)
	}
	svcmetrics.EngineLatency.WithLabelValues("rolling").Observe(time.Since(stageStart).Seconds())

	r.Correlations = table
	r.Influence = influence.Rank(table)
	r.Transitions = influence.Transitions(r.Influence, p.MinStrength)
	r.Entropy = entropy.Compute(table)
	r.MissingWindows = table.MissingCount()

	if len(r.Alignments) > 0 {
		scores := make(map[string]float64, len(r.Alignments))
		for _, a := range r.Alignments {
			scores[a.Label] = a.Score
		}
		r.WeightedInfluence = influence.Rank(influence.Weight(table, scores))
		r.WeightedTransitions = influence.Transitions(r.WeightedInfluence, p.WeightedMinStrength)
	}

	if len(r.Errors) == 0 {
		r.Errors = nil
	}
	return r, nil
}

// fetch loads the primary and every comparison concurrently. Comparisons
// that fail or come back empty are recorded on r and left out of the set.
func (uc *AnalysisUseCase) fetch(ctx context.Context, p AnalysisParams, r *models.AnalysisReport) (models.Series, models.SeriesSet, error) {
	start := time.Now()
	query := func(label string) domrepo.SeriesQuery {
		return domrepo.SeriesQuery{Label: label, Field: p.Field, From: p.From, To: p.To, Timeframe: p.Timeframe}
	}

	var (
		mu          sync.Mutex
		primary     models.Series
		comparisons = make(models.SeriesSet, len(p.Comparisons))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	g.Go(func() error {
		s, err := uc.source.Series(gctx, query(p.Primary))
		if err != nil {
			return fmt.Errorf("fetch primary %s: %w", p.Primary, err)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("primary %s: %w", p.Primary, err)
		}
		primary = s
		return nil
	})
	for _, label := range p.Comparisons {
		g.Go(func() error {
			s, err := uc.source.Series(gctx, query(label))
			if err == nil {
				err = s.Validate()
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				r.Errors[label] = err.Error()
				uc.log.Warn("comparison fetch failed", logger.String("primary", p.Primary), logger.String("label", label), logger.Error(err))
			case presentCount(s) == 0:
				r.Missing = append(r.Missing, label)
			default:
				s.Label = label
				comparisons[label] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Series{}, nil, err
	}
	sort.Strings(r.Missing)
	primary.Label = p.Primary
	svcmetrics.EngineLatency.WithLabelValues("fetch").Observe(time.Since(start).Seconds())
	return primary, comparisons, nil
}

func (uc *AnalysisUseCase) alignAll(
	ctx context.Context,
	primary models.Series,
	comparisons models.SeriesSet,
	pair PairParams,
	labelErrs map[string]string,
) ([]models.AlignmentResult, map[string][]models.DistancePoint) {
	start := time.Now()
	var (
		mu        sync.Mutex
		results   = make([]models.AlignmentResult, 0, len(comparisons))
		distances = make(map[string][]models.DistancePoint, len(comparisons))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, label := range comparisons.Labels() {
		cmp := comparisons[label]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				labelErrs[label] = err.Error()
				mu.Unlock()
				return nil
			}
			res, dist, err := alignSeries(primary, cmp, pair)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				labelErrs[label] = err.Error()
				uc.log.Warn("alignment failed",
					logger.String("primary", primary.Label),
					logger.String("label", label),
					logger.Error(err),
				)
				return nil
			}
			results = append(results, res)
			distances[label] = dist
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Label < results[j].Label })
	svcmetrics.EngineLatency.WithLabelValues("align").Observe(time.Since(start).Seconds())
	if len(distances) == 0 {
		distances = nil
	}
	return results, distances
}

// deliver stores, publishes and announces r. Failures are logged only.
func (uc *AnalysisUseCase) deliver(ctx context.Context, key string, r *models.AnalysisReport) {
	if uc.cache != nil {
		for _, k := range []string{key, r.ID} {
			if err := uc.cache.Set(ctx, k, r); err != nil {
				uc.metrics.RecordError("cache_set")
				uc.log.Warn("analysis cache set failed", logger.String("id", r.ID), logger.Error(err))
			}
		}
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishReport(ctx, r); err != nil {
			uc.metrics.RecordError("publish")
			uc.log.Warn("report publish failed", logger.String("id", r.ID), logger.Error(err))
		}
	}
	if uc.notifier != nil {
		uc.notifier.NotifyReport(r.Summary())
	}
}

// PairParams configure the alignment of one pair.
type PairParams struct {
	MaxWarp      int
	FreqBand     []float64
	Smoothing    smoothing.Params
	NormalizeDTW bool
	// Window > 0 also computes the windowed DTW distance series.
	Window int
}

func (p PairParams) engines() (domsvc.Smoother, domsvc.Aligner, domsvc.Correlator, error) {
	if p.MaxWarp < 0 {
		return nil, nil, nil, errs.InvalidParameter("max_warp", "must be >= 0, got %d", p.MaxWarp)
	}
	band, err := spectral.NewBand(p.FreqBand)
	if err != nil {
		return nil, nil, nil, err
	}
	return smoothing.New(p.Smoothing),
		dtw.New(dtw.Options{MaxWarp: p.MaxWarp, Normalize: p.NormalizeDTW}),
		spectral.New(band),
		nil
}

// alignSeries inner-joins a and b, smooths both sides and scores the pair.
func alignSeries(a, b models.Series, p PairParams) (models.AlignmentResult, []models.DistancePoint, error) {
	times, av, bv := features.InnerJoin(a, b)
	if len(times) < 2 {
		return models.AlignmentResult{}, nil, errs.InsufficientData("align "+b.Label, 2, len(times))
	}
	sa, err := models.NewSeries(a.Label, times, av)
	if err != nil {
		return models.AlignmentResult{}, nil, err
	}
	sb, err := models.NewSeries(b.Label, times, bv)
	if err != nil {
		return models.AlignmentResult{}, nil, err
	}
	res, smoothed, err := alignPair(sa, sb, p)
	if err != nil {
		return models.AlignmentResult{}, nil, err
	}
	res.Label = b.Label

	var dist []models.DistancePoint
	if p.Window > 0 {
		dist, err = dtw.Windowed(times, smoothed[0], smoothed[1], p.Window,
			dtw.Options{MaxWarp: p.MaxWarp, Normalize: p.NormalizeDTW})
		if err != nil {
			return models.AlignmentResult{}, nil, fmt.Errorf("windowed dtw: %w", err)
		}
	}
	return res, dist, nil
}

func alignPair(a, b models.Series, p PairParams) (models.AlignmentResult, [2][]float64, error) {
	smoother, aligner, correlator, err := p.engines()
	if err != nil {
		return models.AlignmentResult{}, [2][]float64{}, err
	}
	sa, err := smoother.Smooth(a)
	if err != nil {
		return models.AlignmentResult{}, [2][]float64{}, fmt.Errorf("smooth %s: %w", a.Label, err)
	}
	sb, err := smoother.Smooth(b)
	if err != nil {
		return models.AlignmentResult{}, [2][]float64{}, fmt.Errorf("smooth %s: %w", b.Label, err)
	}
	av, bv := sa.Values(), sb.Values()
	cost, err := aligner.Cost(av, bv)
	if err != nil {
		return models.AlignmentResult{}, [2][]float64{}, err
	}
	corr, err := correlator.Correlate(av, bv)
	if err != nil {
		return models.AlignmentResult{}, [2][]float64{}, err
	}
	return models.AlignmentResult{
		Label:           b.Label,
		AlignmentCost:   cost,
		PeakCorrelation: corr,
		Points:          len(av),
		Score:           features.Score(cost),
		RelativeScore:   1,
	}, [2][]float64{av, bv}, nil
}

// Align scores an inline pair of equally long value sequences.
func (uc *AnalysisUseCase) Align(_ context.Context, a, b []float64, p PairParams) (models.AlignmentResult, error) {
	start := time.Now()
	if len(a) != len(b) {
		return models.AlignmentResult{}, errs.InvalidParameter("b", "must have the same length as a (%d != %d)", len(b), len(a))
	}
	if len(a) < 2 {
		return models.AlignmentResult{}, errs.InsufficientData("align", 2, len(a))
	}
	times := make([]time.Time, len(a))
	for i := range times {
		times[i] = time.Unix(int64(i), 0).UTC()
	}
	sa, err := models.NewSeries("a", times, a)
	if err != nil {
		return models.AlignmentResult{}, err
	}
	sb, err := models.NewSeries("b", times, b)
	if err != nil {
		return models.AlignmentResult{}, err
	}
	for i := range a {
		if models.IsMissing(a[i]) || models.IsMissing(b[i]) {
			return models.AlignmentResult{}, errs.InvalidParameter("values", "non-finite value at index %d", i)
		}
	}
	res, _, err := alignPair(sa, sb, p)
	if err != nil {
		return models.AlignmentResult{}, err
	}
	svcmetrics.EngineLatency.WithLabelValues("align_inline").Observe(time.Since(start).Seconds())
	return res, nil
}

// RollingResult is the windowed part of a report, computed from inline series.
type RollingResult struct {
	Correlations models.WindowedCorrelationTable `json:"correlations"`
	Influence    []models.InfluenceRecord        `json:"influence"`
	Transitions  []models.Transition             `json:"transitions"`
	Entropy      []models.EntropyRecord          `json:"entropy"`
}

// Rolling correlates inline series and ranks the result.
func (uc *AnalysisUseCase) Rolling(_ context.Context, primary models.Series, comparisons models.SeriesSet, window int, minStrength float64) (*RollingResult, error) {
	start := time.Now()
	if err := primary.Validate(); err != nil {
		return nil, errs.InvalidParameter("primary", "%v", err)
	}
	for label, s := range comparisons {
		if err := s.Validate(); err != nil {
			return nil, errs.InvalidParameter("comparisons", "%s: %v", label, err)
		}
	}
	table, err := rolling.Correlate(primary, comparisons, window)
	if err != nil {
		return nil, err
	}
	rec := influence.Rank(table)
	svcmetrics.EngineLatency.WithLabelValues("rolling_inline").Observe(time.Since(start).Seconds())
	return &RollingResult{
		Correlations: table,
		Influence:    rec,
		Transitions:  influence.Transitions(rec, minStrength),
		Entropy:      entropy.Compute(table),
	}, nil
}

func presentCount(s models.Series) int {
	n := 0
	for _, p := range s.Points {
		if !p.Missing() {
			n++
		}
	}
	return n
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, errs.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, errs.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, errs.ErrAlignmentFailure):
		return "alignment_failure"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "analysis"
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordRun(string, string)                 {}
func (nopMetrics) RecordError(string)                       {}
func (nopMetrics) RecordLatency(string, float64)            {}
func (nopMetrics) RecordMissingWindows(string, string, int) {}
func (nopMetrics) RecordEntropy(string, float64)            {}
