// Package entropy measures how evenly co-movement is spread across the
// comparisons in each window.
package entropy

import (
	"math"

	"comove/internal/domain/models"
)

// Epsilon is the smallest total |correlation| a row needs to be scored.
const Epsilon = 1e-9

// Compute returns the Shannon entropy (base 2) of the normalized absolute
// correlations of every row. Rows whose missing values leave a total below
// Epsilon are omitted.
func Compute(table models.WindowedCorrelationTable) []models.EntropyRecord {
	out := make([]models.EntropyRecord, 0, len(table.Rows))
	vals := make([]float64, 0, len(table.Labels))
	for _, row := range table.Rows {
		vals = vals[:0]
		for _, l := range table.Labels {
			if v, ok := row.Get(l); ok {
				vals = append(vals, v)
			}
		}
		h, ok := Row(vals)
		if !ok {
			continue
		}
		out = append(out, models.EntropyRecord{Time: row.Time, Entropy: h})
	}
	return out
}

// Row computes the entropy of one row of correlations. It reports false
// when the absolute values sum to less than Epsilon.
func Row(corrs []float64) (float64, bool) {
	total := 0.0
	for _, c := range corrs {
		if models.IsMissing(c) {
			continue
		}
		total += math.Abs(c)
	}
	if total < Epsilon {
		return 0, false
	}
	h := 0.0
	for _, c := range corrs {
		if models.IsMissing(c) {
			continue
		}
		p := math.Abs(c) / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	// -0 for a single label
	return math.Abs(h), true
}

// Max returns the upper bound log2(k) for k labels.
func Max(k int) float64 {
	if k < 2 {
		return 0
	}
	return math.Log2(float64(k))
}
