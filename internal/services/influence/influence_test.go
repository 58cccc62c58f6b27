package influence

import (
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/internal/domain/models"
)

var week0 = time.Date(2021, 1, 8, 0, 0, 0, 0, time.UTC)

type cells map[string]null.Float

func table(rows ...cells) models.WindowedCorrelationTable {
	labelSet := map[string]bool{}
	t := models.WindowedCorrelationTable{Window: 6}
	for i, r := range rows {
		t.Rows = append(t.Rows, models.CorrelationRow{Time: week0.AddDate(0, 0, 7*i), Values: r})
		for l := range r {
			labelSet[l] = true
		}
	}
	for l := range labelSet {
		t.Labels = append(t.Labels, l)
	}
	return t
}

func f(v float64) null.Float { return null.FloatFrom(v) }

func TestRankPicksGreatestMagnitudeKeepsSign(t *testing.T) {
	recs := Rank(table(cells{"AMC": f(0.4), "SPY": f(-0.7), "XRT": f(0.6)}))
	require.Len(t, recs, 1)
	assert.Equal(t, "SPY", recs[0].TopLabel)
	assert.Equal(t, -0.7, recs[0].Correlation.Float64)
	assert.Equal(t, week0, recs[0].Time)
}

func TestRankTieBreaksLexically(t *testing.T) {
	recs := Rank(table(cells{"SPY": f(0.5), "CHWY": f(-0.5)}))
	require.Len(t, recs, 1)
	assert.Equal(t, "CHWY", recs[0].TopLabel)
	assert.Equal(t, -0.5, recs[0].Correlation.Float64, "selected label keeps its own sign")
}

func TestRankAllMissing(t *testing.T) {
	recs := Rank(table(cells{"SPY": null.Float{}, "XRT": null.Float{}}))
	require.Len(t, recs, 1)
	assert.Equal(t, models.NoLabel, recs[0].TopLabel)
	assert.False(t, recs[0].Correlation.Valid)
}

func TestTransitionsAlternatingDominance(t *testing.T) {
	tbl := table(
		cells{"AMC": f(0.9), "BB": f(-0.2)},
		cells{"AMC": f(-0.1), "BB": f(0.8)},
		cells{"AMC": f(0.85), "BB": f(-0.3)},
		cells{"AMC": f(0.2), "BB": f(-0.95)},
	)
	recs := Rank(tbl)
	got := Transitions(recs, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "AMC", got[0].From)
	assert.Equal(t, "BB", got[0].To)
	assert.Equal(t, "BB", got[2].To)
	assert.Equal(t, -0.95, got[2].Correlation.Float64)
	assert.Equal(t, recs[3].Time, got[2].Time)
}

func TestTransitionsIncludeNone(t *testing.T) {
	recs := Rank(table(
		cells{"SPY": f(0.5)},
		cells{"SPY": null.Float{}},
		cells{"SPY": f(0.1)},
	))
	got := Transitions(recs, 0)
	require.Len(t, got, 2)
	assert.Equal(t, models.NoLabel, got[0].To)
	assert.Equal(t, models.NoLabel, got[1].From)

	// the weak handoffs, including the one into "none", are filtered out
	assert.Empty(t, Transitions(recs, DefaultMinStrength))
}

func TestTransitionsMinStrength(t *testing.T) {
	recs := Rank(table(
		cells{"AMC": f(0.9), "KOSS": f(0.1)},
		cells{"AMC": f(0.1), "KOSS": f(0.25)},
		cells{"AMC": f(0.6), "KOSS": f(0.2)},
	))
	all := Transitions(recs, 0)
	assert.Len(t, all, 2)
	strong := Transitions(recs, DefaultMinStrength)
	require.Len(t, strong, 1)
	assert.Equal(t, "KOSS", strong[0].From)
	assert.Equal(t, "AMC", strong[0].To)
}

func TestWeight(t *testing.T) {
	tbl := table(cells{"AMC": f(-0.8), "SPY": f(0.6), "XRT": f(0.9)})
	w := Weight(tbl, map[string]float64{"AMC": 0.5, "SPY": 1})

	v, ok := w.Rows[0].Get("AMC")
	require.True(t, ok)
	assert.InDelta(t, -0.4, v, 1e-12)
	v, ok = w.Rows[0].Get("SPY")
	require.True(t, ok)
	assert.InDelta(t, 0.6, v, 1e-12)
	_, ok = w.Rows[0].Get("XRT")
	assert.False(t, ok, "unscored labels are missing")

	recs := Rank(w)
	assert.Equal(t, "SPY", recs[0].TopLabel)
}
