// Package influence ranks comparisons per window ("baton handoff") and
// detects changes of the leading comparison between windows.
package influence

import (
	"math"
	"sort"

	"github.com/guregu/null/v6"

	"comove/internal/domain/models"
)

// DefaultMinStrength is the |correlation| a new leader needs for a
// filtered transition.
const DefaultMinStrength = 0.3

// Rank selects, for every row, the comparison with the greatest absolute
// correlation. Ties go to the lexically smaller label. The record carries
// the signed correlation of the selected label; rows without any
// correlation get models.NoLabel and a null correlation.
func Rank(table models.WindowedCorrelationTable) []models.InfluenceRecord {
	labels := append([]string(nil), table.Labels...)
	sort.Strings(labels)

	out := make([]models.InfluenceRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec := models.InfluenceRecord{Time: row.Time, TopLabel: models.NoLabel}
		best := -1.0
		for _, l := range labels {
			v, ok := row.Get(l)
			if !ok {
				continue
			}
			if a := math.Abs(v); a > best {
				best = a
				rec.TopLabel = l
				rec.Correlation = null.FloatFrom(v)
			}
		}
		out = append(out, rec)
	}
	return out
}

// Transitions reports every record whose top label differs from the
// immediately preceding record's. Records must be in ascending time order.
// With minStrength > 0 a transition is kept only when the new leader's
// |correlation| exceeds minStrength.
func Transitions(records []models.InfluenceRecord, minStrength float64) []models.Transition {
	out := []models.Transition{}
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		if cur.TopLabel == prev.TopLabel {
			continue
		}
		if minStrength > 0 && (!cur.Correlation.Valid || math.Abs(cur.Correlation.Float64) <= minStrength) {
			continue
		}
		out = append(out, models.Transition{
			Time:        cur.Time,
			From:        prev.TopLabel,
			To:          cur.TopLabel,
			Correlation: cur.Correlation,
		})
	}
	return out
}

// Weight scales every correlation by its label's alignment score, keeping
// the sign, so that ranking favours comparisons that are both correlated
// and well aligned. Labels without a score are treated as missing.
func Weight(table models.WindowedCorrelationTable, scores map[string]float64) models.WindowedCorrelationTable {
	out := models.WindowedCorrelationTable{
		Window: table.Window,
		Labels: append([]string(nil), table.Labels...),
		Rows:   make([]models.CorrelationRow, 0, len(table.Rows)),
	}
	for _, row := range table.Rows {
		w := models.CorrelationRow{Time: row.Time, Values: make(map[string]null.Float, len(row.Values))}
		for _, l := range table.Labels {
			v, ok := row.Get(l)
			s, scored := scores[l]
			if !ok || !scored || models.IsMissing(s) {
				w.Values[l] = null.Float{}
				continue
			}
			w.Values[l] = null.FloatFrom(v * s)
		}
		out.Rows = append(out.Rows, w)
	}
	return out
}
