// Package rolling slides a fixed-size observation window over a primary
// series and correlates it with every comparison series.
package rolling

import (
	"math"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
)

// MinPoints is the fewest overlapping observations a window needs before a
// correlation is reported.
const MinPoints = 2

// Correlate returns one row per trailing window of primary, keyed by the
// window's last timestamp. Within a window each comparison is inner-joined
// on timestamps and missing observations are dropped; a comparison with
// fewer than MinPoints overlapping observations, or with no variation, is
// recorded as missing for that row. A primary shorter than window yields an
// empty table.
func Correlate(primary models.Series, comparisons models.SeriesSet, window int) (models.WindowedCorrelationTable, error) {
	if window < 2 {
		return models.WindowedCorrelationTable{}, errs.InvalidParameter("window", "must be >= 2, got %d", window)
	}
	labels := comparisons.Labels()
	table := models.WindowedCorrelationTable{
		Window: window,
		Labels: labels,
		Rows:   []models.CorrelationRow{},
	}
	n := primary.Len()
	if n < window {
		return table, nil
	}

	index := make(map[string]map[int64]float64, len(labels))
	for _, l := range labels {
		index[l] = byTime(comparisons[l])
	}

	xs := make([]float64, 0, window)
	ys := make([]float64, 0, window)
	table.Rows = make([]models.CorrelationRow, 0, n-window+1)
	for i := window - 1; i < n; i++ {
		span := primary.Points[i-window+1 : i+1]
		row := models.CorrelationRow{
			Time:   primary.Points[i].Time,
			Values: make(map[string]null.Float, len(labels)),
		}
		for _, l := range labels {
			xs, ys = xs[:0], ys[:0]
			for _, p := range span {
				if p.Missing() {
					continue
				}
				v, ok := index[l][p.Time.UnixNano()]
				if !ok || models.IsMissing(v) {
					continue
				}
				xs = append(xs, p.Value)
				ys = append(ys, v)
			}
			row.Values[l] = models.NullFloat(Pearson(xs, ys))
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Pearson returns the correlation coefficient of xs and ys, or NaN when
// fewer than MinPoints pairs exist or either side has no variation.
func Pearson(xs, ys []float64) float64 {
	if len(xs) < MinPoints || len(xs) != len(ys) {
		return math.NaN()
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return math.NaN()
	}
	return math.Max(-1, math.Min(1, r))
}

func byTime(s models.Series) map[int64]float64 {
	m := make(map[int64]float64, s.Len())
	for _, p := range s.Points {
		m[p.Time.UnixNano()] = p.Value
	}
	return m
}
