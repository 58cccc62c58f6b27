package dtw

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/errs"
)

var (
	seqA = []float64{0, 1, 2, 3, 2, 1, 0, -1, -2, -1, 0, 1}
	seqB = []float64{0, 0, 1, 2, 3, 2, 1, 0, -1, -2, -1, 0}
)

func TestAlignIdenticalIsZero(t *testing.T) {
	for _, w := range []int{0, 1, 3, 100} {
		cost, err := Align(seqA, seqA, w)
		require.NoError(t, err)
		assert.Equal(t, 0.0, cost, "identical sequences must align at zero cost (warp=%d)", w)
	}
}

func TestAlignZeroWarpIsPointwise(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{2, 2, 5, 1}
	cost, err := Align(a, b, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1+0+2+3, cost, 1e-12)

	cost, err = Distance(a, b, Options{Metric: MetricSquared})
	require.NoError(t, err)
	assert.InDelta(t, 1+0+4+9, cost, 1e-12)
}

func TestAlignSymmetric(t *testing.T) {
	for _, w := range []int{0, 1, 2, 5} {
		ab, err := Align(seqA, seqB, w)
		require.NoError(t, err)
		ba, err := Align(seqB, seqA, w)
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-12, "warp=%d", w)
	}
}

func TestDistanceNormalizedSymmetric(t *testing.T) {
	a := []float64{1, 3, 2, 1, 1}
	b := []float64{3, 1, 1, 2, 3}
	opts := Options{MaxWarp: 3, Normalize: true}
	ab, err := Distance(a, b, opts)
	require.NoError(t, err)
	ba, err := Distance(b, a, opts)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	// Small integer values produce many equal-cost predecessors.
	r := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 2000; trial++ {
		n := 2 + r.IntN(7)
		a, b := make([]float64, n), make([]float64, n)
		for i := range a {
			a[i] = float64(r.IntN(4))
			b[i] = float64(r.IntN(4))
		}
		for _, m := range []Metric{MetricAbsolute, MetricSquared} {
			opts := Options{MaxWarp: r.IntN(n + 1), Metric: m, Normalize: true}
			ab, err := Distance(a, b, opts)
			require.NoError(t, err)
			ba, err := Distance(b, a, opts)
			require.NoError(t, err)
			require.Equal(t, ab, ba, "a=%v b=%v warp=%d metric=%s", a, b, opts.MaxWarp, m)
		}
	}
}

func TestAlignMonotoneInWarp(t *testing.T) {
	prev := math.Inf(1)
	for w := 0; w <= len(seqA); w++ {
		cost, err := Align(seqA, seqB, w)
		require.NoError(t, err)
		assert.LessOrEqual(t, cost, prev, "cost must not increase when warp grows to %d", w)
		prev = cost
	}
}

func TestAlignShiftedSeriesRecovered(t *testing.T) {
	// seqB is seqA delayed by one step; a one-step band absorbs the lag
	// except for the boundary points.
	unwarped, err := Align(seqA, seqB, 0)
	require.NoError(t, err)
	warped, err := Align(seqA, seqB, 1)
	require.NoError(t, err)
	assert.Less(t, warped, unwarped)
	assert.InDelta(t, 1.0, warped, 1e-12)
}

func TestDistanceNormalized(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{2, 3, 4, 5}
	raw, err := Distance(a, b, Options{MaxWarp: 0})
	require.NoError(t, err)
	norm, err := Distance(a, b, Options{MaxWarp: 0, Normalize: true})
	require.NoError(t, err)
	assert.InDelta(t, raw/4, norm, 1e-12)
}

func TestAlignErrors(t *testing.T) {
	_, err := Align([]float64{1}, []float64{1}, 1)
	assert.ErrorIs(t, err, errs.ErrInsufficientData)

	_, err = Align(nil, []float64{1, 2}, 1)
	assert.ErrorIs(t, err, errs.ErrInsufficientData)

	_, err = Align([]float64{1, 2}, []float64{1, 2}, -1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = Align([]float64{1, 2, 3}, []float64{1, 2}, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = Align([]float64{1, math.NaN()}, []float64{1, 2}, 1)
	assert.ErrorIs(t, err, errs.ErrAlignmentFailure)

	_, err = Distance([]float64{1, 2}, []float64{1, 2}, Options{Metric: "cosine"})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestEngineCost(t *testing.T) {
	e := New(Options{MaxWarp: 1})
	got, err := e.Cost(seqA, seqB)
	require.NoError(t, err)
	want, err := Align(seqA, seqB, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWindowed(t *testing.T) {
	start := time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, len(seqA))
	for i := range times {
		times[i] = start.AddDate(0, 0, 7*i)
	}

	out, err := Windowed(times, seqA, seqB, 4, Options{MaxWarp: 1})
	require.NoError(t, err)
	require.Len(t, out, len(seqA)-4+1)
	assert.Equal(t, times[3], out[0].Time)
	assert.Equal(t, times[len(times)-1], out[len(out)-1].Time)

	first, err := Align(seqA[:4], seqB[:4], 1)
	require.NoError(t, err)
	assert.Equal(t, first, out[0].Cost)

	short, err := Windowed(times[:3], seqA[:3], seqB[:3], 4, Options{})
	require.NoError(t, err)
	assert.Empty(t, short)

	_, err = Windowed(times, seqA, seqB, 1, Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}
