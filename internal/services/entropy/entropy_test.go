package entropy

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/models"
)

func row(day int, vals map[string]null.Float) models.CorrelationRow {
	return models.CorrelationRow{Time: time.Date(2021, 2, day, 0, 0, 0, 0, time.UTC), Values: vals}
}

func TestRowSingleLabel(t *testing.T) {
	h, ok := Row([]float64{-0.7})
	require.True(t, ok)
	assert.Equal(t, 0.0, h)
}

func TestRowEqualMagnitudes(t *testing.T) {
	for k := 2; k <= 8; k++ {
		corrs := make([]float64, k)
		for i := range corrs {
			corrs[i] = 0.4
			if i%2 == 1 {
				corrs[i] = -0.4
			}
		}
		h, ok := Row(corrs)
		require.True(t, ok)
		assert.InDelta(t, math.Log2(float64(k)), h, 1e-12)
		assert.InDelta(t, Max(k), h, 1e-12)
	}
}

func TestRowBounds(t *testing.T) {
	h, ok := Row([]float64{0.9, 0.05, -0.3, math.NaN()})
	require.True(t, ok)
	assert.Greater(t, h, 0.0)
	assert.Less(t, h, Max(3))
}

func TestRowZeroTotal(t *testing.T) {
	_, ok := Row([]float64{0, 0})
	assert.False(t, ok)
	_, ok = Row(nil)
	assert.False(t, ok)
}

func TestComputeSkipsEmptyRows(t *testing.T) {
	tbl := models.WindowedCorrelationTable{
		Window: 6,
		Labels: []string{"AMC", "SPY"},
		Rows: []models.CorrelationRow{
			row(5, map[string]null.Float{"AMC": null.FloatFrom(0.5), "SPY": null.FloatFrom(-0.5)}),
			row(12, map[string]null.Float{"AMC": {}, "SPY": {}}),
			row(19, map[string]null.Float{"AMC": null.FloatFrom(0.8), "SPY": {}}),
		},
	}
	recs := Compute(tbl)
	require.Len(t, recs, 2)
	assert.InDelta(t, 1.0, recs[0].Entropy, 1e-12)
	assert.Equal(t, tbl.Rows[2].Time, recs[1].Time)
	assert.Equal(t, 0.0, recs[1].Entropy)
}
