package rolling

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
)

var day0 = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

func daily(label string, values ...float64) models.Series {
	pts := make([]models.Point, len(values))
	for i, v := range values {
		pts[i] = models.Point{Time: day0.AddDate(0, 0, i), Value: v}
	}
	return models.Series{Label: label, Points: pts}
}

func TestCorrelateScaledSeries(t *testing.T) {
	primary := daily("GME", 1, 2, 3, 4, 5, 6)
	comps := models.SeriesSet{"CHWY": daily("CHWY", 2, 4, 6, 8, 10, 12)}

	table, err := Correlate(primary, comps, 3)
	require.NoError(t, err)
	require.Equal(t, 6-3+1, table.Len())
	assert.Equal(t, []string{"CHWY"}, table.Labels)
	for i, row := range table.Rows {
		assert.Equal(t, primary.Points[i+2].Time, row.Time, "row key is the window's last timestamp")
		v, ok := row.Get("CHWY")
		require.True(t, ok)
		assert.InDelta(t, 1.0, v, 1e-12)
	}
}

func TestCorrelateShortPrimaryIsEmpty(t *testing.T) {
	table, err := Correlate(daily("GME", 1, 2), models.SeriesSet{"SPY": daily("SPY", 1, 2)}, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.NotNil(t, table.Rows)
}

func TestCorrelateInvalidWindow(t *testing.T) {
	_, err := Correlate(daily("GME", 1, 2, 3), models.SeriesSet{}, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestCorrelateInnerJoinAndMissing(t *testing.T) {
	primary := daily("GME", 1, 3, 2, 5, 4, 6)
	// AMC trades only on the first, fourth and sixth day.
	amc := models.Series{Label: "AMC", Points: []models.Point{
		{Time: day0, Value: 10},
		{Time: day0.AddDate(0, 0, 3), Value: 12},
		{Time: day0.AddDate(0, 0, 5), Value: 11},
	}}
	spy := daily("SPY", 4, math.NaN(), 5, 6, 5, 7)

	table, err := Correlate(primary, models.SeriesSet{"AMC": amc, "SPY": spy}, 3)
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())
	assert.Equal(t, []string{"AMC", "SPY"}, table.Labels)

	// window days 0..2 overlaps AMC on day 0 only
	_, ok := table.Rows[0].Get("AMC")
	assert.False(t, ok)
	// window days 0..2 has SPY on days 0 and 2 after dropping the gap
	v, ok := table.Rows[0].Get("SPY")
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-12)

	// window days 3..5 overlaps AMC on days 3 and 5
	v, ok = table.Rows[3].Get("AMC")
	require.True(t, ok)
	assert.InDelta(t, -1.0, v, 1e-12)

	missing := table.MissingCount()
	assert.Equal(t, 3, missing["AMC"])
	assert.Equal(t, 0, missing["SPY"])
}

func TestCorrelateFlatComparisonIsMissing(t *testing.T) {
	table, err := Correlate(daily("GME", 1, 2, 3, 4), models.SeriesSet{"XRT": daily("XRT", 5, 5, 5, 5)}, 3)
	require.NoError(t, err)
	for _, row := range table.Rows {
		_, ok := row.Get("XRT")
		assert.False(t, ok)
	}
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
	assert.True(t, math.IsNaN(Pearson([]float64{1}, []float64{1})))
	assert.True(t, math.IsNaN(Pearson([]float64{1, 2}, []float64{1})))
}
