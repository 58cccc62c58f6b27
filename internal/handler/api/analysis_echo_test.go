package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/repository"
	"comove/internal/services/smoothing"
	"comove/internal/usecase"
	pkgcache "comove/pkg/cache"
)

type mapSource map[string]models.Series

func (m mapSource) Series(_ context.Context, q domrepo.SeriesQuery) (models.Series, error) {
	if s, ok := m[q.Label]; ok {
		return s, nil
	}
	return models.Series{Label: q.Label}, nil
}

func testSeries(t *testing.T, label string, f func(i int) float64) models.Series {
	t.Helper()
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, 20)
	vals := make([]float64, 20)
	for i := range times {
		times[i] = start.AddDate(0, 0, 7*i)
		vals[i] = f(i)
	}
	s, err := models.NewSeries(label, times, vals)
	require.NoError(t, err)
	return s
}

func newTestServer(t *testing.T) *echo.Echo {
	src := mapSource{
		"GME": testSeries(t, "GME", func(i int) float64 { return math.Sin(float64(i)*0.6) + 0.1*float64(i) }),
		"XRT": testSeries(t, "XRT", func(i int) float64 { return math.Cos(float64(i) * 0.9) }),
	}
	mc := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	uc := usecase.NewAnalysisUseCase(src, repository.NewCachedReportStore(mc, time.Minute), nil, nil, nil, nil)

	e := echo.New()
	NewAnalysisEchoHandler(nil, uc, smoothing.DefaultParams()).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestAnalyzeAndFetchReport(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/analysis", `{"primary":"GME","comparisons":["XRT"],"max_warp":2,"freq_band":[0.02,0.5]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
	assert.Equal(t, "GME", report.Primary)
	assert.Equal(t, 6, report.Window)
	assert.Equal(t, 15, report.Correlations.Len())

	rec = do(e, http.MethodGet, "/api/analysis/"+report.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cached models.AnalysisReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &cached))
	assert.Equal(t, report.ID, cached.ID)
}

func TestAnalyzeValidation(t *testing.T) {
	e := newTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing max_warp", `{"primary":"GME","comparisons":["XRT"],"freq_band":[0.02,0.5]}`, http.StatusBadRequest},
		{"missing band", `{"primary":"GME","comparisons":["XRT"],"max_warp":2}`, http.StatusBadRequest},
		{"band out of range", `{"primary":"GME","comparisons":["XRT"],"max_warp":2,"freq_band":[0.02,1.5]}`, http.StatusBadRequest},
		{"reversed band", `{"primary":"GME","comparisons":["XRT"],"max_warp":2,"freq_band":[0.5,0.02]}`, http.StatusBadRequest},
		{"self comparison", `{"primary":"GME","comparisons":["GME"],"max_warp":2,"freq_band":[0.02,0.5]}`, http.StatusBadRequest},
		{"unknown primary", `{"primary":"TSLA","comparisons":["XRT"],"max_warp":2,"freq_band":[0.02,0.5]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/analysis", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestPurgeDropsCachedReports(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/analysis", `{"primary":"GME","comparisons":["XRT"],"max_warp":2,"freq_band":[0.02,0.5]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))

	rec = do(e, http.MethodDelete, "/api/analysis/cache", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/analysis/"+report.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportNotFound(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodGet, "/api/analysis/6f1c2a8e-9a53-4c39-b3a5-2b3b8f0f6b1d", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/analysis/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlignEndpoint(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/align", `{"a":[1,2,3,2,1,2,3,2],"b":[1,2,3,2,1,2,3,2],"max_warp":1,"freq_band":[0,1],"smoothing":"none"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.AlignmentResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &res))
	assert.InDelta(t, 0, res.AlignmentCost, 1e-12)
	assert.InDelta(t, 1, res.PeakCorrelation, 1e-9)

	rec = do(e, http.MethodPost, "/api/align", `{"a":[1,2,3],"b":[1,2],"max_warp":1,"freq_band":[0,1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRollingEndpoint(t *testing.T) {
	e := newTestServer(t)

	body := `{
		"primary":{"label":"P","points":[
			{"time":"2021-01-01T00:00:00Z","value":1},
			{"time":"2021-01-08T00:00:00Z","value":2},
			{"time":"2021-01-15T00:00:00Z","value":4}]},
		"comparisons":[{"label":"C","points":[
			{"time":"2021-01-01T00:00:00Z","value":2},
			{"time":"2021-01-08T00:00:00Z","value":4},
			{"time":"2021-01-15T00:00:00Z","value":null}]}],
		"window":2}`
	rec := do(e, http.MethodPost, "/api/rolling", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res usecase.RollingResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &res))
	require.Equal(t, 2, res.Correlations.Len())
	v, ok := res.Correlations.Rows[0].Get("C")
	require.True(t, ok)
	assert.InDelta(t, 1, v, 1e-12)
	_, ok = res.Correlations.Rows[1].Get("C")
	assert.False(t, ok)
	assert.Equal(t, "C", res.Influence[0].TopLabel)
	assert.Equal(t, models.NoLabel, res.Influence[1].TopLabel)

	dup := `{"primary":{"label":"P","points":[]},"comparisons":[{"label":"C","points":[]},{"label":"C","points":[]}]}`
	rec = do(e, http.MethodPost, "/api/rolling", dup)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type capturePublisher struct {
	msgType string
	payload interface{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	p.msgType, p.payload = msgType, payload
	return nil
}

func TestAnalyzeAsyncQueuesRequest(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	uc := usecase.NewAnalysisUseCase(mapSource{}, repository.NewCachedReportStore(mc, time.Minute), nil, nil, nil, nil)
	pub := &capturePublisher{}
	e := echo.New()
	NewAnalysisEchoHandler(nil, uc, smoothing.DefaultParams(), WithQueue(pub)).RegisterRoutes(e)

	rec := do(e, http.MethodPost, "/api/analysis/async", `{"primary":"GME","comparisons":["XRT"],"max_warp":2,"freq_band":[0.02,0.5]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, usecase.AnalysisJobType, pub.msgType)
	req, ok := pub.payload.(*models.AnalysisRequest)
	require.True(t, ok)
	assert.Equal(t, "GME", req.Primary)

	var ack models.AnalysisAccepted
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &ack))
	assert.Equal(t, "queued", ack.Status)
	assert.Equal(t, "/ws/reports", ack.Feed)

	pub.msgType = ""
	rec = do(e, http.MethodPost, "/api/analysis/async", `{"primary":"GME","comparisons":["GME"],"max_warp":2,"freq_band":[0.02,0.5]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.msgType)
}

func TestAsyncRouteRequiresQueue(t *testing.T) {
	e := newTestServer(t)
	rec := do(e, http.MethodPost, "/api/analysis/async", `{}`)
	assert.NotEqual(t, http.StatusAccepted, rec.Code)
}

type staticCandles []models.Candle

func (s staticCandles) Candles(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	var out []models.Candle
	for _, c := range s {
		if c.Symbol == symbol && !c.Bucket.Before(from) && (to.IsZero() || !c.Bucket.After(to)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestCandlesEndpoint(t *testing.T) {
	start := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	var cs staticCandles
	for i := 0; i < 4; i++ {
		cs = append(cs, models.Candle{Symbol: "GME", Bucket: start.AddDate(0, 0, 7*i), Close: float64(10 + i)})
	}
	e := echo.New()
	NewAnalysisEchoHandler(nil, nil, smoothing.DefaultParams(), WithCandles(usecase.NewCandlesUseCase(cs))).RegisterRoutes(e)

	rec := do(e, http.MethodGet, "/api/candles/GME?from=2021-01-11&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res usecase.GetCandlesResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &res))
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 13.0, res.Candles[1].Close)

	rec = do(e, http.MethodGet, "/api/candles/GME?timeframe=1mo", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/candles/GME?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
