// Package dtw computes bounded dynamic time warping costs between two
// pre-aligned sequences.
//
// The warping path is restricted to a Sakoe–Chiba band: matched indices
// never differ by more than MaxWarp, so the work is O(n·MaxWarp) instead of
// O(n²). With MaxWarp = 0 only the diagonal is reachable and the cost is the
// plain pointwise distance sum.
//
// Recurrence:
//
//	D[i][j] = dist(a[i], b[j]) + min(D[i-1][j], D[i][j-1], D[i-1][j-1])
//
// Only two rows of D are kept. Among equal-cost paths the one with the
// fewest steps is kept, which makes the normalized cost symmetric too.
//
// The raw cost never increases as MaxWarp grows. The normalized cost carries
// no such guarantee, since a wider band can pick a longer optimal path.
package dtw

import (
	"fmt"
	"math"
	"time"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
)

type Metric string

const (
	MetricAbsolute Metric = "abs"
	MetricSquared  Metric = "squared"
)

// Options configures the alignment.
type Options struct {
	MaxWarp   int
	Metric    Metric
	Normalize bool // divide the terminal cost by the optimal path length
}

// Align returns the unnormalized absolute-difference cost within the band.
func Align(a, b []float64, maxWarp int) (float64, error) {
	return Distance(a, b, Options{MaxWarp: maxWarp})
}

// Distance returns the minimal cumulative cost over warping paths from
// (0,0) to (n-1,n-1) that stay within the band.
func Distance(a, b []float64, opts Options) (float64, error) {
	n := len(a)
	if n < 2 || len(b) < 2 {
		return 0, errs.InsufficientData("dtw", 2, min(n, len(b)))
	}
	if n != len(b) {
		return 0, errs.InvalidParameter("series", "sequences must share a common index, got lengths %d and %d", n, len(b))
	}
	if opts.MaxWarp < 0 {
		return 0, errs.InvalidParameter("max_warp", "must be >= 0, got %d", opts.MaxWarp)
	}
	dist, err := metricFunc(opts.Metric)
	if err != nil {
		return 0, err
	}
	if i := firstNonFinite(a); i >= 0 {
		return 0, errs.Alignment("dtw", fmt.Errorf("non-finite value %v at index %d of first sequence", a[i], i))
	}
	if i := firstNonFinite(b); i >= 0 {
		return 0, errs.Alignment("dtw", fmt.Errorf("non-finite value %v at index %d of second sequence", b[i], i))
	}

	w := opts.MaxWarp
	if w > n-1 {
		w = n - 1
	}

	inf := math.Inf(1)
	prev := make([]float64, n+1)
	curr := make([]float64, n+1)
	prevLen := make([]int, n+1)
	currLen := make([]int, n+1)
	for j := range prev {
		prev[j] = inf
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		lo := max(1, i-w)
		hi := min(n, i+w)
		curr[lo-1] = inf
		if hi < n {
			curr[hi+1] = inf
		}
		for j := lo; j <= hi; j++ {
			best, steps := prev[j-1], prevLen[j-1]
			if better(prev[j], prevLen[j], best, steps) {
				best, steps = prev[j], prevLen[j]
			}
			if better(curr[j-1], currLen[j-1], best, steps) {
				best, steps = curr[j-1], currLen[j-1]
			}
			curr[j] = dist(a[i-1], b[j-1]) + best
			currLen[j] = steps + 1
		}
		prev, curr = curr, prev
		prevLen, currLen = currLen, prevLen
	}

	cost := prev[n]
	if math.IsInf(cost, 0) || math.IsNaN(cost) {
		return 0, errs.Alignment("dtw", fmt.Errorf("terminal cost is %v", cost))
	}
	if opts.Normalize && prevLen[n] > 0 {
		cost /= float64(prevLen[n])
	}
	return cost, nil
}

// Engine binds Options so the aligner can be passed around as a value.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine { return &Engine{opts: opts} }

func (e *Engine) Cost(a, b []float64) (float64, error) { return Distance(a, b, e.opts) }

// Windowed returns the bounded DTW cost of every trailing window of length
// window over a pre-aligned pair, keyed by the window's last timestamp.
// Pairs shorter than window yield an empty result.
func Windowed(times []time.Time, a, b []float64, window int, opts Options) ([]models.DistancePoint, error) {
	if window < 2 {
		return nil, errs.InvalidParameter("window", "must be >= 2, got %d", window)
	}
	if len(times) != len(a) || len(a) != len(b) {
		return nil, errs.InvalidParameter("series", "times and values must share a common index")
	}
	if len(a) < window {
		return []models.DistancePoint{}, nil
	}
	out := make([]models.DistancePoint, 0, len(a)-window+1)
	for i := window - 1; i < len(a); i++ {
		lo := i - window + 1
		cost, err := Distance(a[lo:i+1], b[lo:i+1], opts)
		if err != nil {
			return nil, fmt.Errorf("window ending %s: %w", times[i].Format(time.DateOnly), err)
		}
		out = append(out, models.DistancePoint{Time: times[i], Cost: cost})
	}
	return out, nil
}

// better orders predecessors by cost, then by path length. Among equal-cost
// paths the shortest wins in either direction, so swapping the sequences
// yields the same normalized cost.
func better(cost float64, steps int, bestCost float64, bestSteps int) bool {
	return cost < bestCost || (cost == bestCost && steps < bestSteps)
}

func metricFunc(m Metric) (func(x, y float64) float64, error) {
	switch m {
	case MetricAbsolute, "":
		return func(x, y float64) float64 { return math.Abs(x - y) }, nil
	case MetricSquared:
		return func(x, y float64) float64 { d := x - y; return d * d }, nil
	default:
		return nil, errs.InvalidParameter("metric", "unknown distance metric %q", m)
	}
}

func firstNonFinite(xs []float64) int {
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return i
		}
	}
	return -1
}
