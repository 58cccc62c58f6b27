package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// NoLabel marks a window in which no comparison had a usable correlation.
const NoLabel = "none"

// AlignmentResult summarizes how well one comparison tracks the primary series.
type AlignmentResult struct {
	Label           string  `json:"label"`
	AlignmentCost   float64 `json:"alignment_cost"`
	PeakCorrelation float64 `json:"peak_correlation"`
	Points          int     `json:"points"`
	Score           float64 `json:"score"`
	RelativeScore   float64 `json:"relative_score"`
}

// CorrelationRow holds one window's correlation per comparison label.
type CorrelationRow struct {
	Time   time.Time             `json:"time"`
	Values map[string]null.Float `json:"values"`
}

// Get returns the label's correlation and whether it is present.
func (r CorrelationRow) Get(label string) (float64, bool) {
	v, ok := r.Values[label]
	if !ok || !v.Valid {
		return 0, false
	}
	return v.Float64, true
}

// WindowedCorrelationTable is ordered by window-end timestamp.
type WindowedCorrelationTable struct {
	Window int              `json:"window"`
	Labels []string         `json:"labels"`
	Rows   []CorrelationRow `json:"rows"`
}

func (t WindowedCorrelationTable) Len() int { return len(t.Rows) }

// MissingCount returns, per label, the number of rows without a correlation.
func (t WindowedCorrelationTable) MissingCount() map[string]int {
	out := make(map[string]int, len(t.Labels))
	for _, l := range t.Labels {
		out[l] = 0
	}
	for _, row := range t.Rows {
		for _, l := range t.Labels {
			if _, ok := row.Get(l); !ok {
				out[l]++
			}
		}
	}
	return out
}

type InfluenceRecord struct {
	Time        time.Time  `json:"time"`
	TopLabel    string     `json:"top_label"`
	Correlation null.Float `json:"correlation"`
}

// Transition is a change of top label between consecutive windows.
type Transition struct {
	Time        time.Time  `json:"time"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	Correlation null.Float `json:"correlation"`
}

type EntropyRecord struct {
	Time    time.Time `json:"time"`
	Entropy float64   `json:"entropy"`
}

// DistancePoint is the bounded DTW cost of the window ending at Time.
type DistancePoint struct {
	Time time.Time `json:"time"`
	Cost float64   `json:"cost"`
}

// AnalysisReport is the complete, read-only output of one analysis run.
type AnalysisReport struct {
	ID                  string                     `json:"id"`
	Primary             string                     `json:"primary"`
	Comparisons         []string                   `json:"comparisons"`
	Timeframe           string                     `json:"timeframe"`
	Field               string                     `json:"field"`
	From                time.Time                  `json:"from"`
	To                  time.Time                  `json:"to"`
	Window              int                        `json:"window"`
	MaxWarp             int                        `json:"max_warp"`
	FreqBand            [2]float64                 `json:"freq_band"`
	Alignments          []AlignmentResult          `json:"alignments"`
	Correlations        WindowedCorrelationTable   `json:"correlations"`
	Influence           []InfluenceRecord          `json:"influence"`
	Transitions         []Transition               `json:"transitions"`
	WeightedInfluence   []InfluenceRecord          `json:"weighted_influence,omitempty"`
	WeightedTransitions []Transition               `json:"weighted_transitions,omitempty"`
	Entropy             []EntropyRecord            `json:"entropy"`
	Distances           map[string][]DistancePoint `json:"distances,omitempty"`
	MissingWindows      map[string]int             `json:"missing_windows,omitempty"`
	Missing             []string                   `json:"missing,omitempty"`
	Errors              map[string]string          `json:"errors,omitempty"`
	CreatedAt           time.Time                  `json:"created_at"`
}

// ReportSummary is the compact view pushed to live subscribers.
type ReportSummary struct {
	ID          string     `json:"id"`
	Primary     string     `json:"primary"`
	TopLabel    string     `json:"top_label"`
	Correlation null.Float `json:"correlation"`
	Entropy     null.Float `json:"entropy"`
	Transitions int        `json:"transitions"`
	Rows        int        `json:"rows"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Summary condenses the report to its latest window.
func (r *AnalysisReport) Summary() ReportSummary {
	s := ReportSummary{
		ID:          r.ID,
		Primary:     r.Primary,
		TopLabel:    NoLabel,
		Transitions: len(r.Transitions),
		Rows:        r.Correlations.Len(),
		CreatedAt:   r.CreatedAt,
	}
	if n := len(r.Influence); n > 0 {
		s.TopLabel = r.Influence[n-1].TopLabel
		s.Correlation = r.Influence[n-1].Correlation
	}
	if n := len(r.Entropy); n > 0 {
		s.Entropy = null.FloatFrom(r.Entropy[n-1].Entropy)
	}
	return s
}
