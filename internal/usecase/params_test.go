package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/services/smoothing"
)

func intPtr(v int) *int { return &v }

func TestRequestParams(t *testing.T) {
	req := &models.AnalysisRequest{
		Primary:     " GME ",
		Comparisons: []string{"SPY", " XRT"},
		From:        "2021-01-06",
		To:          "2021-02-03",
		Timeframe:   "1wk",
		Field:       "close",
		Window:      8,
		MaxWarp:     intPtr(0),
		FreqBand:    []float64{0.1, 0.4},
		Smoothing:   "ema",
	}
	p, err := RequestParams(req, smoothing.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "GME", p.Primary)
	assert.Equal(t, []string{"SPY", "XRT"}, p.Comparisons)
	assert.Equal(t, domrepo.FieldClose, p.Field)
	assert.Equal(t, 0, p.MaxWarp)
	assert.Equal(t, smoothing.MethodEMA, p.Smoothing.Method)
	assert.Equal(t, float64(smoothing.DefaultSpan), p.Smoothing.Span)
	// Wednesday to Wednesday widens to Monday through Sunday.
	assert.Equal(t, time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), p.From)
	assert.Equal(t, time.Date(2021, 2, 7, 0, 0, 0, 0, time.UTC), p.To)
	assert.NoError(t, p.Validate())
}

func TestRequestParamsRequiresWarpAndBand(t *testing.T) {
	_, err := RequestParams(&models.AnalysisRequest{Primary: "GME", FreqBand: []float64{0, 1}}, smoothing.DefaultParams())
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = RequestParams(&models.AnalysisRequest{Primary: "GME", MaxWarp: intPtr(3)}, smoothing.DefaultParams())
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestRequestParamsRejectsBadTimes(t *testing.T) {
	req := &models.AnalysisRequest{Primary: "GME", MaxWarp: intPtr(1), FreqBand: []float64{0, 1}, From: "yesterday"}
	_, err := RequestParams(req, smoothing.DefaultParams())
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}
