package repository

import (
	"context"
	"time"

	"comove/internal/domain/models"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1d  Timeframe = "1d"
	TF1wk Timeframe = "1wk"
)

// Field selects which value of a bar becomes the series value.
type Field string

const (
	FieldClose     Field = "close"
	FieldReturn    Field = "return"
	FieldLogReturn Field = "logreturn"
	FieldVolume    Field = "volume"
)

// SeriesQuery describes one series to load from a market-data source.
type SeriesQuery struct {
	Label     string
	Field     Field
	From      time.Time
	To        time.Time
	Timeframe Timeframe
}

// SeriesSource provides read-only access to labelled series.
// An unknown label yields an empty series and no error.
type SeriesSource interface {
	Series(ctx context.Context, q SeriesQuery) (models.Series, error)
}

// CandleWriter persists bars for later analysis.
type CandleWriter interface {
	WriteCandles(ctx context.Context, tf Timeframe, candles []models.Candle) (int, error)
}

// CandleReader returns stored bars for one symbol, oldest first.
type CandleReader interface {
	Candles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
}
