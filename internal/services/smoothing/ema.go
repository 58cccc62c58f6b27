package smoothing

import (
	"math"

	"comove/internal/domain/errs"
)

// EMA is an exponential moving average with smoothing factor 2/(span+1),
// seeded with the first observed value. Missing inputs carry the previous
// average forward.
func EMA(values []float64, span float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, errs.InsufficientData("ema", 1, 0)
	}
	if !(span >= 1) {
		return nil, errs.InvalidParameter("span", "must be >= 1, got %g", span)
	}
	a := 2 / (span + 1)
	out := make([]float64, len(values))
	prev := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(prev):
			prev = v
		default:
			prev = a*v + (1-a)*prev
		}
		out[i] = prev
	}
	return out, nil
}
