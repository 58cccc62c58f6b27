package smoothing

import (
	"math"

	"github.com/montanaflynn/stats"

	"comove/internal/domain/errs"
)

// LLT runs `iterations` passes of a centered rolling median followed by a
// centered rolling mean, both of width window. Each pass output is blended
// with its input by alpha, and positions left undefined by centering are
// back-filled then forward-filled. Inputs shorter than window are returned
// unchanged.
func LLT(values []float64, window int, alpha float64, iterations int) ([]float64, error) {
	if len(values) == 0 {
		return nil, errs.InsufficientData("llt", 1, 0)
	}
	if window == 0 {
		window = DefaultWindow
	}
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if window < 1 {
		return nil, errs.InvalidParameter("window", "must be >= 1, got %d", window)
	}
	if iterations < 1 {
		return nil, errs.InvalidParameter("iterations", "must be >= 1, got %d", iterations)
	}
	if math.IsNaN(alpha) {
		return nil, errs.InvalidParameter("alpha", "must be a number")
	}
	alpha = ClampAlpha(alpha)

	out := make([]float64, len(values))
	copy(out, values)
	if len(values) < window {
		return out, nil
	}

	for it := 0; it < iterations; it++ {
		med := centeredRolling(out, window, stats.Median)
		pass := centeredRolling(med, window, stats.Mean)
		if !fill(pass) {
			return out, nil
		}
		for i := range out {
			if math.IsNaN(out[i]) {
				out[i] = pass[i]
				continue
			}
			out[i] = alpha*pass[i] + (1-alpha)*out[i]
		}
	}
	return out, nil
}

// centeredRolling evaluates fn over the window [i-w/2, i-w/2+w-1] for each i.
// Windows reaching past either end yield NaN; NaN inputs inside a window are
// skipped and an all-NaN window yields NaN.
func centeredRolling(values []float64, w int, fn func(stats.Float64Data) (float64, error)) []float64 {
	n := len(values)
	out := make([]float64, n)
	buf := make([]float64, 0, w)
	for i := 0; i < n; i++ {
		start := i - w/2
		end := start + w - 1
		if start < 0 || end >= n {
			out[i] = math.NaN()
			continue
		}
		buf = buf[:0]
		for _, v := range values[start : end+1] {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		v, err := fn(buf)
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// fill back-fills then forward-fills NaN positions in place.
// It reports false when every value is NaN.
func fill(values []float64) bool {
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
		} else {
			next = values[i]
		}
	}
	prev := math.NaN()
	for i := range values {
		if math.IsNaN(values[i]) {
			values[i] = prev
		} else {
			prev = values[i]
		}
	}
	return len(values) > 0 && !math.IsNaN(values[0])
}
