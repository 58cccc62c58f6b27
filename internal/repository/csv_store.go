package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	svccache "comove/internal/service/cache"
	"comove/internal/services/features"
	applogger "comove/pkg/logger"
	"comove/pkg/util"
)

var columnSuffixes = map[string]domrepo.Field{
	"close":  domrepo.FieldClose,
	"return": domrepo.FieldReturn,
	"volume": domrepo.FieldVolume,
}

// ParseColumn splits a combined-table column such as "GME_Return" into its
// ticker and field.
func ParseColumn(name string) (string, domrepo.Field, bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	f, ok := columnSuffixes[strings.ToLower(name[i+1:])]
	if !ok {
		return "", "", false
	}
	return strings.ToUpper(strings.TrimSpace(name[:i])), f, true
}

// NormalizeLabel maps a user label to a ticker and field. A label that
// already names a column ("XRT_Close") overrides the requested field.
func NormalizeLabel(label string, field domrepo.Field) (string, domrepo.Field) {
	if ticker, f, ok := ParseColumn(strings.TrimSpace(label)); ok {
		return ticker, f
	}
	return strings.ToUpper(strings.TrimSpace(label)), field
}

// CombinedTable is a parsed combined file: one date column and one column
// per ticker and field. Missing cells are NaN.
type CombinedTable struct {
	Times   []time.Time
	Columns map[string][]float64
}

func columnKey(ticker string, f domrepo.Field) string {
	return ticker + "_" + string(f)
}

// ReadCombined parses a combined table. Rows are sorted by date; rows with an
// unparseable date are rejected.
func ReadCombined(r io.Reader) (*CombinedTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	dateCol := -1
	cols := make(map[int]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if strings.EqualFold(h, "date") {
			dateCol = i
			continue
		}
		if ticker, f, ok := ParseColumn(h); ok {
			cols[i] = columnKey(ticker, f)
		}
	}
	if dateCol < 0 {
		return nil, errors.New("combined table has no date column")
	}

	t := &CombinedTable{Columns: make(map[string][]float64, len(cols))}
	for _, key := range cols {
		t.Columns[key] = nil
	}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if dateCol >= len(rec) {
			return nil, fmt.Errorf("line %d: missing date", line)
		}
		ts, ok := util.ParseTime(strings.TrimSpace(rec[dateCol]))
		if !ok {
			return nil, fmt.Errorf("line %d: invalid date %q", line, rec[dateCol])
		}
		t.Times = append(t.Times, ts.UTC())
		for i, key := range cols {
			v := models.Missing()
			if i < len(rec) {
				if cell := strings.TrimSpace(rec[i]); cell != "" {
					if f, err := strconv.ParseFloat(cell, 64); err == nil {
						v = f
					}
				}
			}
			t.Columns[key] = append(t.Columns[key], v)
		}
	}
	t.sortByTime()
	return t, nil
}

func (t *CombinedTable) sortByTime() {
	if sort.SliceIsSorted(t.Times, func(i, j int) bool { return t.Times[i].Before(t.Times[j]) }) {
		return
	}
	idx := make([]int, len(t.Times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return t.Times[idx[i]].Before(t.Times[idx[j]]) })
	times := make([]time.Time, len(idx))
	for i, k := range idx {
		times[i] = t.Times[k]
	}
	t.Times = times
	for key, vals := range t.Columns {
		sorted := make([]float64, len(idx))
		for i, k := range idx {
			sorted[i] = vals[k]
		}
		t.Columns[key] = sorted
	}
}

// Tickers lists every ticker with at least one column, sorted.
func (t *CombinedTable) Tickers() []string {
	seen := make(map[string]struct{})
	for key := range t.Columns {
		if ticker, _, ok := ParseColumn(key); ok {
			seen[ticker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Series extracts one ticker's field over [from, to]. Zero bounds are open.
// Returns fall back to percentage changes of the close when the table has
// no return column for the ticker. Log returns are always derived from the
// close.
func (t *CombinedTable) Series(label string, field domrepo.Field, from, to time.Time) models.Series {
	ticker, f := NormalizeLabel(label, field)
	out := models.Series{Label: label}
	vals, ok := t.Columns[columnKey(ticker, f)]
	if !ok && f == domrepo.FieldReturn {
		if closes, ok2 := t.Columns[columnKey(ticker, domrepo.FieldClose)]; ok2 {
			vals, ok = features.PctChange(closes), true
		}
	}
	if f == domrepo.FieldLogReturn {
		closes, ok2 := t.Columns[columnKey(ticker, domrepo.FieldClose)]
		if ok2 {
			vals = features.LogReturns(closes)
		}
		ok = ok2
	}
	if !ok {
		return out
	}
	for i, ts := range t.Times {
		if (!from.IsZero() && ts.Before(from)) || (!to.IsZero() && ts.After(to)) {
			continue
		}
		out.Points = append(out.Points, models.Point{Time: ts, Value: vals[i]})
	}
	return out
}

// Candles converts every ticker's closes and volumes into bars. The combined
// table carries closes only, so open, high and low repeat the close. Rows
// without a close are skipped.
func (t *CombinedTable) Candles() []models.Candle {
	var out []models.Candle
	for _, ticker := range t.Tickers() {
		closes, ok := t.Columns[columnKey(ticker, domrepo.FieldClose)]
		if !ok {
			continue
		}
		vols := t.Columns[columnKey(ticker, domrepo.FieldVolume)]
		for i, c := range closes {
			if models.IsMissing(c) {
				continue
			}
			var v float64
			if i < len(vols) && !models.IsMissing(vols[i]) {
				v = vols[i]
			}
			out = append(out, models.Candle{
				Bucket: t.Times[i], Symbol: ticker,
				Open: c, High: c, Low: c, Close: c, Volume: v,
			})
		}
	}
	return out
}

// CSVStore serves series from combined tables on disk. Parsed files are
// kept for the configured ttl.
type CSVStore struct {
	dir   string
	file  string
	files *svccache.TTL[string, *CombinedTable]
	l     *applogger.Logger
}

// NewCSVStore reads <dir>/combined_<timeframe>.csv.
func NewCSVStore(dir string, ttl time.Duration, l *applogger.Logger) *CSVStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CSVStore{dir: dir, files: svccache.NewTTL[string, *CombinedTable](ttl), l: l}
}

// NewCSVFileStore reads a single file whatever timeframe is requested.
func NewCSVFileStore(path string, l *applogger.Logger) *CSVStore {
	s := NewCSVStore(filepath.Dir(path), 0, l)
	s.file = path
	return s
}

func (s *CSVStore) path(tf domrepo.Timeframe) string {
	if s.file != "" {
		return s.file
	}
	return filepath.Join(s.dir, fmt.Sprintf("combined_%s.csv", tf))
}

// Table loads and caches the combined table for tf.
func (s *CSVStore) Table(tf domrepo.Timeframe) (*CombinedTable, error) {
	p := s.path(tf)
	if t, ok := s.files.Get(p); ok {
		return t, nil
	}
	start := time.Now()
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open combined table: %w", err)
	}
	defer f.Close()
	t, err := ReadCombined(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	s.files.Set(p, t)
	s.l.Debug("csv table loaded",
		applogger.String("path", p),
		applogger.Int("rows", len(t.Times)),
		applogger.Int("columns", len(t.Columns)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return t, nil
}

func (s *CSVStore) Series(ctx context.Context, q domrepo.SeriesQuery) (models.Series, error) {
	if err := ctx.Err(); err != nil {
		return models.Series{}, err
	}
	t, err := s.Table(q.Timeframe)
	if err != nil {
		return models.Series{}, err
	}
	return t.Series(q.Label, q.Field, q.From, q.To), nil
}

// Candles returns the bars of one ticker within [from, to]. Zero bounds
// are open.
func (s *CSVStore) Candles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.Table(tf)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := []models.Candle{}
	for _, c := range t.Candles() {
		if c.Symbol != symbol {
			continue
		}
		if (!from.IsZero() && c.Bucket.Before(from)) || (!to.IsZero() && c.Bucket.After(to)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
