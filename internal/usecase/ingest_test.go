package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
)

type batchWriter struct {
	batches [][]models.Candle
	failAt  int
}

func (w *batchWriter) WriteCandles(_ context.Context, _ domrepo.Timeframe, candles []models.Candle) (int, error) {
	if w.failAt > 0 && len(w.batches)+1 == w.failAt {
		return 0, errors.New("insert failed")
	}
	w.batches = append(w.batches, append([]models.Candle(nil), candles...))
	return len(candles), nil
}

func candle(symbol string, week int) models.Candle {
	return models.Candle{Symbol: symbol, Bucket: time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week), Close: float64(week + 1)}
}

func TestIngestBatchesSortedCandles(t *testing.T) {
	w := &batchWriter{}
	uc := NewSeriesIngestUseCase(w, nil)
	uc.batchSize = 2

	in := []models.Candle{candle("SPY", 1), candle("GME", 1), candle("GME", 0), {Symbol: ""}, candle("SPY", 0)}
	res, err := uc.Ingest(context.Background(), domrepo.TF1wk, in)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, map[string]int{"GME": 2, "SPY": 2}, res.Symbols)
	require.Len(t, w.batches, 2)
	assert.Equal(t, []models.Candle{candle("GME", 0), candle("GME", 1)}, w.batches[0])
	assert.Equal(t, []models.Candle{candle("SPY", 0), candle("SPY", 1)}, w.batches[1])
}

func TestIngestStopsOnWriteError(t *testing.T) {
	w := &batchWriter{failAt: 2}
	uc := NewSeriesIngestUseCase(w, nil)
	uc.batchSize = 1

	res, err := uc.Ingest(context.Background(), domrepo.TF1d, []models.Candle{candle("GME", 0), candle("GME", 1)})
	require.Error(t, err)
	assert.Equal(t, 1, res.Rows)
}

func TestIngestRejectsTimeframe(t *testing.T) {
	uc := NewSeriesIngestUseCase(&batchWriter{}, nil)
	_, err := uc.Ingest(context.Background(), "1h", nil)
	assert.Error(t, err)
}
