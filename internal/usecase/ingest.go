package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/pkg/logger"
)

const ingestBatchSize = 5000

// IngestResult reports how many bars were written per symbol.
type IngestResult struct {
	Timeframe domrepo.Timeframe
	Symbols   map[string]int
	Rows      int
}

// SeriesIngestUseCase loads bars into the market-data store in batches.
type SeriesIngestUseCase struct {
	writer    domrepo.CandleWriter
	log       *logger.Logger
	batchSize int
}

func NewSeriesIngestUseCase(writer domrepo.CandleWriter, log *logger.Logger) *SeriesIngestUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &SeriesIngestUseCase{writer: writer, log: log, batchSize: ingestBatchSize}
}

// Ingest writes candles ordered by symbol then bucket. Bars with an empty
// symbol or zero bucket are skipped.
func (uc *SeriesIngestUseCase) Ingest(ctx context.Context, tf domrepo.Timeframe, candles []models.Candle) (*IngestResult, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	start := time.Now()
	valid := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Symbol == "" || c.Bucket.IsZero() {
			continue
		}
		valid = append(valid, c)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Symbol != valid[j].Symbol {
			return valid[i].Symbol < valid[j].Symbol
		}
		return valid[i].Bucket.Before(valid[j].Bucket)
	})

	res := &IngestResult{Timeframe: tf, Symbols: map[string]int{}}
	for lo := 0; lo < len(valid); lo += uc.batchSize {
		hi := min(lo+uc.batchSize, len(valid))
		n, err := uc.writer.WriteCandles(ctx, tf, valid[lo:hi])
		if err != nil {
			return res, fmt.Errorf("write candles %d-%d: %w", lo, hi, err)
		}
		res.Rows += n
		for _, c := range valid[lo:hi] {
			res.Symbols[c.Symbol]++
		}
	}
	uc.log.Info("candles ingested",
		logger.String("timeframe", string(tf)),
		logger.Int("rows", res.Rows),
		logger.Int("symbols", len(res.Symbols)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return res, nil
}
