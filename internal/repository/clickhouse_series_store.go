package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/services/features"
	pkgch "comove/pkg/clickhouse"
	applogger "comove/pkg/logger"
)

// CHSeriesStore reads and writes daily and weekly bars in ClickHouse.
type CHSeriesStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHSeriesStore(ch *pkgch.Client, l *applogger.Logger) *CHSeriesStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSeriesStore{db: ch.DB(), database: ch.Database(), l: l}
}

// Series loads q.Label's bars and derives the requested field. Returns are
// computed from closes in Go, so the first bar of the range has no return.
func (s *CHSeriesStore) Series(ctx context.Context, q domrepo.SeriesQuery) (models.Series, error) {
	candles, err := s.Candles(ctx, q.Label, q.From, q.To, q.Timeframe)
	if err != nil {
		return models.Series{}, err
	}
	return features.CandleSeries(q.Label, candles, q.Field), nil
}

// Candles returns bars in ascending bucket order. Zero from/to leave the
// range open on that side.
func (s *CHSeriesStore) Candles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	q, args := candlesQuery(table, symbol, from, to)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = c.Bucket.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse candles rows error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// WriteCandles inserts bars in a single batch.
func (s *CHSeriesStore) WriteCandles(ctx context.Context, tf domrepo.Timeframe, candles []models.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (symbol, bucket, open, high, low, close, volume)", table))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Bucket.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("append candle %s@%s: %w", c.Symbol, c.Bucket.Format(time.DateOnly), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	s.l.Info("clickhouse candles written",
		applogger.String("table", table),
		applogger.Int("rows", len(candles)),
	)
	return len(candles), nil
}

func candlesQuery(table, symbol string, from, to time.Time) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT bucket, symbol, open, high, low, close, volume FROM %s WHERE symbol = ?", table)
	args := []any{symbol}
	if !from.IsZero() {
		b.WriteString(" AND bucket >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		b.WriteString(" AND bucket <= ?")
		args = append(args, to.UTC())
	}
	b.WriteString(" ORDER BY bucket ASC")
	return b.String(), args
}

func tableForTF(database string, tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1d:
		return database + ".bars_1d", nil
	case domrepo.TF1wk:
		return database + ".bars_1wk", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}
