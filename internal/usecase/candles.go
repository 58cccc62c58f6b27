package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
)

const (
	defaultCandleLimit = 10000
	maxCandleLimit     = 50000
)

// CandlesUseCase returns the stored bars behind an analysis.
type CandlesUseCase struct {
	store domrepo.CandleReader
}

func NewCandlesUseCase(store domrepo.CandleReader) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// GetCandles returns at most Limit bars, the most recent ones when the
// range holds more.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	p.Symbol = strings.TrimSpace(p.Symbol)
	if p.Symbol == "" {
		return nil, errs.InvalidParameter("symbol", "is required")
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return nil, errs.InvalidParameter("from", "must not be after to")
	}
	if p.Limit <= 0 {
		p.Limit = defaultCandleLimit
	}
	p.Limit = min(p.Limit, maxCandleLimit)

	candles, err := uc.store.Candles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
