package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
)

type fakeCandles struct {
	candles []models.Candle
	err     error
}

func (f fakeCandles) Candles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	return f.candles, f.err
}

func TestGetCandlesKeepsMostRecent(t *testing.T) {
	start := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	var cs []models.Candle
	for i := 0; i < 5; i++ {
		cs = append(cs, models.Candle{Symbol: "GME", Bucket: start.AddDate(0, 0, 7*i), Close: float64(i)})
	}
	uc := NewCandlesUseCase(fakeCandles{candles: cs})

	res, err := uc.GetCandles(context.Background(), GetCandlesParams{Symbol: " GME ", Timeframe: domrepo.TF1wk, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "GME", res.Symbol)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 3.0, res.Candles[0].Close)
	assert.Equal(t, 4.0, res.Candles[1].Close)
}

func TestGetCandlesValidation(t *testing.T) {
	uc := NewCandlesUseCase(fakeCandles{})

	_, err := uc.GetCandles(context.Background(), GetCandlesParams{})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	now := time.Now()
	_, err = uc.GetCandles(context.Background(), GetCandlesParams{Symbol: "GME", From: now, To: now.Add(-time.Hour)})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	boom := errors.New("boom")
	_, err = NewCandlesUseCase(fakeCandles{err: boom}).GetCandles(context.Background(), GetCandlesParams{Symbol: "GME"})
	assert.ErrorIs(t, err, boom)
}
