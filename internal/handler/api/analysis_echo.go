package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/handler/ws"
	"comove/internal/service/metrics"
	"comove/internal/services/features"
	"comove/internal/services/smoothing"
	"comove/internal/usecase"
	xhttp "comove/pkg/http"
	xlogger "comove/pkg/logger"
	"comove/pkg/queue"
	"comove/pkg/util"
)

// AnalysisEchoHandler serves the analysis API.
type AnalysisEchoHandler struct {
	logger    *xlogger.Logger
	uc        *usecase.AnalysisUseCase
	smoothing smoothing.Params
	queue     queue.Publisher
	candles   *usecase.CandlesUseCase
}

type HandlerOption func(*AnalysisEchoHandler)

// WithQueue enables POST /api/analysis/async.
func WithQueue(p queue.Publisher) HandlerOption {
	return func(h *AnalysisEchoHandler) { h.queue = p }
}

// WithCandles enables GET /api/candles/:symbol.
func WithCandles(uc *usecase.CandlesUseCase) HandlerOption {
	return func(h *AnalysisEchoHandler) { h.candles = uc }
}

// NewAnalysisEchoHandler takes the configured smoothing settings; requests
// may only override the method.
func NewAnalysisEchoHandler(logger *xlogger.Logger, uc *usecase.AnalysisUseCase, base smoothing.Params, opts ...HandlerOption) *AnalysisEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &AnalysisEchoHandler{logger: logger, uc: uc, smoothing: base}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AnalysisEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/analysis", h.Analyze)
	if h.queue != nil {
		g.POST("/analysis/async", h.AnalyzeAsync)
	}
	g.GET("/analysis/:id", h.Report)
	g.DELETE("/analysis/cache", h.Purge)
	if h.candles != nil {
		g.GET("/candles/:symbol", h.Candles)
	}
	g.POST("/align", h.Align)
	g.POST("/rolling", h.Rolling)
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *AnalysisEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := xhttp.FromError(err)
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, err)
}

func (h *AnalysisEchoHandler) invalid(c echo.Context, endpoint string, verr interface{}) error {
	metrics.EndpointErrors.WithLabelValues(endpoint, "ERR_VALIDATION").Inc()
	return xhttp.BadRequestResponse(c, verr)
}

// Analyze runs a full analysis and returns the report.
func (h *AnalysisEchoHandler) Analyze(c echo.Context) error {
	const endpoint = "analysis"
	defer observe(endpoint, time.Now())

	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, endpoint, verr)
	}
	p, err := usecase.RequestParams(req, h.smoothing)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	r, err := h.uc.Run(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, r)
}

// AnalyzeAsync validates a request and queues it for a background worker.
func (h *AnalysisEchoHandler) AnalyzeAsync(c echo.Context) error {
	const endpoint = "analysis_async"
	defer observe(endpoint, time.Now())

	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, endpoint, verr)
	}
	p, err := usecase.RequestParams(req, h.smoothing)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if err := p.Validate(); err != nil {
		return h.fail(c, endpoint, err)
	}
	if err := h.queue.PublishMessage(c.Request().Context(), usecase.AnalysisJobType, req); err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, models.AnalysisAccepted{
		Status:      "queued",
		Primary:     p.Primary,
		Comparisons: p.Comparisons,
		Feed:        ws.Path,
	})
}

// Report returns a cached report by run id.
func (h *AnalysisEchoHandler) Report(c echo.Context) error {
	const endpoint = "report"
	defer observe(endpoint, time.Now())

	req := &models.ReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, endpoint, verr)
	}
	r, err := h.uc.Report(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, r)
}

// Purge empties the report cache.
func (h *AnalysisEchoHandler) Purge(c echo.Context) error {
	const endpoint = "purge"
	defer observe(endpoint, time.Now())

	if err := h.uc.PurgeReports(c.Request().Context()); err != nil {
		return h.fail(c, endpoint, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Candles returns the stored bars of one symbol.
func (h *AnalysisEchoHandler) Candles(c echo.Context) error {
	const endpoint = "candles"
	defer observe(endpoint, time.Now())

	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, endpoint, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	p := usecase.GetCandlesParams{Symbol: req.Symbol, Timeframe: tf, Limit: req.Limit}
	var ok bool
	if req.From != "" {
		if p.From, ok = util.ParseTime(req.From); !ok {
			return h.fail(c, endpoint, errs.InvalidParameter("from", "invalid time %q", req.From))
		}
	}
	if req.To != "" {
		if p.To, ok = util.ParseTime(req.To); !ok {
			return h.fail(c, endpoint, errs.InvalidParameter("to", "invalid time %q", req.To))
		}
	}
	p.From, p.To = features.AlignFromTo(p.From, p.To, tf)

	res, err := h.candles.GetCandles(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Align scores an inline pair.
func (h *AnalysisEchoHandler) Align(c echo.Context) error {
	const endpoint = "align"
	defer observe(endpoint, time.Now())

	req := &models.AlignRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, endpoint, verr)
	}
	p := usecase.PairParams{
		MaxWarp:      *req.MaxWarp,
		FreqBand:     req.FreqBand,
		Smoothing:    h.smoothing,
		NormalizeDTW: req.NormalizeDTW,
	}
	p.Smoothing.Method = smoothing.Method(req.Smoothing)
	res, err := h.uc.Align(c.Request().Context(), req.A, req.B, p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Rolling correlates inline series.
func (h *AnalysisEchoHandler) Rolling(c echo.Context) error {
	const endpoint = "rolling"
	defer observe(endpoint, time.Now())

	req := &models.RollingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return h.invalid(c, endpoint, verr)
	}
	set := make(models.SeriesSet, len(req.Comparisons))
	for _, s := range req.Comparisons {
		if s.Label == "" {
			return h.invalid(c, endpoint, []xhttp.ValidationError{{Code: "ERR_REQUIRED", Field: "comparisons", Message: "every comparison needs a label"}})
		}
		if _, dup := set[s.Label]; dup {
			return h.invalid(c, endpoint, []xhttp.ValidationError{{Code: "ERR_UNIQUE", Field: "comparisons", Message: "duplicate label " + s.Label}})
		}
		set[s.Label] = s
	}
	res, err := h.uc.Rolling(c.Request().Context(), req.Primary, set, req.Window, req.MinStrength)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

var _ xhttp.Handler = (*AnalysisEchoHandler)(nil)
