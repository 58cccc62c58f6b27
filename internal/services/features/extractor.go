// Package features derives analysis inputs from raw bars and series.
package features

import (
	"math"
	"time"

	"comove/internal/domain/models"
	"comove/internal/domain/repository"
)

// PctChange computes simple returns r_t = v_t / v_{t-1} - 1. The first
// value, and any value whose neighbour is missing or zero, is missing.
func PctChange(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		prev, cur := values[i-1], values[i]
		if models.IsMissing(prev) || models.IsMissing(cur) || prev == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cur/prev - 1
	}
	return out
}

// LogReturns computes r_t = ln(v_t / v_{t-1}) with the same missing rules
// as PctChange; non-positive prices are missing.
func LogReturns(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		prev, cur := values[i-1], values[i]
		if models.IsMissing(prev) || models.IsMissing(cur) || prev <= 0 || cur <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(cur / prev)
	}
	return out
}

// CandleSeries turns bars into a series of the requested field. Returns are
// simple percentage changes of the close.
func CandleSeries(label string, candles []models.Candle, field repository.Field) models.Series {
	s := models.Series{Label: label, Points: make([]models.Point, len(candles))}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		s.Points[i].Time = c.Bucket
	}
	var vals []float64
	switch field {
	case repository.FieldClose:
		vals = closes
	case repository.FieldVolume:
		vals = make([]float64, len(candles))
		for i, c := range candles {
			vals[i] = c.Volume
		}
	case repository.FieldLogReturn:
		vals = LogReturns(closes)
	default:
		vals = PctChange(closes)
	}
	for i := range s.Points {
		s.Points[i].Value = vals[i]
	}
	return s
}

// InnerJoin pairs the observations of a and b that share a timestamp and
// are present on both sides, in a's order.
func InnerJoin(a, b models.Series) ([]time.Time, []float64, []float64) {
	idx := make(map[int64]float64, b.Len())
	for _, p := range b.Points {
		if !p.Missing() {
			idx[p.Time.UnixNano()] = p.Value
		}
	}
	times := make([]time.Time, 0, a.Len())
	av := make([]float64, 0, a.Len())
	bv := make([]float64, 0, a.Len())
	for _, p := range a.Points {
		if p.Missing() {
			continue
		}
		v, ok := idx[p.Time.UnixNano()]
		if !ok {
			continue
		}
		times = append(times, p.Time)
		av = append(av, p.Value)
		bv = append(bv, v)
	}
	return times, av, bv
}

// Score maps an alignment cost to (0, 1]; zero cost scores 1.
func Score(cost float64) float64 {
	if models.IsMissing(cost) || cost < 0 {
		return 0
	}
	return 1 / (1 + cost)
}

// AlignmentScores fills Score and RelativeScore on every result. The
// relative score is 1 - cost/max(cost) over the given results, or 1 for
// all when every cost is zero.
func AlignmentScores(results []models.AlignmentResult) {
	maxCost := 0.0
	for _, r := range results {
		if !models.IsMissing(r.AlignmentCost) && r.AlignmentCost > maxCost {
			maxCost = r.AlignmentCost
		}
	}
	for i := range results {
		results[i].Score = Score(results[i].AlignmentCost)
		switch {
		case models.IsMissing(results[i].AlignmentCost):
			results[i].RelativeScore = 0
		case maxCost == 0:
			results[i].RelativeScore = 1
		default:
			results[i].RelativeScore = 1 - results[i].AlignmentCost/maxCost
		}
	}
}

// AlignFromTo rounds a time range to bar boundaries of the timeframe.
// Weekly ranges are widened to whole Monday-based weeks.
func AlignFromTo(from, to time.Time, tf repository.Timeframe) (time.Time, time.Time) {
	day := func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if !from.IsZero() {
		from = day(from)
	}
	if !to.IsZero() {
		to = day(to)
	}
	if tf == repository.TF1wk {
		if !from.IsZero() {
			from = from.AddDate(0, 0, -((int(from.Weekday()) + 6) % 7))
		}
		if !to.IsZero() {
			to = to.AddDate(0, 0, (7-int(to.Weekday()))%7)
		}
	}
	return from, to
}
