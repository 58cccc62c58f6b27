package models

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"
)

// Point is one observation. A NaN Value marks the observation as missing.
type Point struct {
	Time  time.Time
	Value float64
}

type pointJSON struct {
	Time  time.Time  `json:"time"`
	Value null.Float `json:"value"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{Time: p.Time, Value: NullFloat(p.Value)})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Time = raw.Time
	p.Value = FromNull(raw.Value)
	return nil
}

// Missing reports whether the point carries no usable value.
func (p Point) Missing() bool { return IsMissing(p.Value) }

// Series is an ordered sequence of observations with strictly increasing timestamps.
type Series struct {
	Label  string  `json:"label"`
	Points []Point `json:"points"`
}

// NewSeries zips timestamps and values into a Series and checks ordering.
func NewSeries(label string, times []time.Time, values []float64) (Series, error) {
	if len(times) != len(values) {
		return Series{}, ErrLengthMismatch
	}
	pts := make([]Point, len(times))
	for i := range times {
		pts[i] = Point{Time: times[i], Value: values[i]}
	}
	s := Series{Label: label, Points: pts}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

func (s Series) Len() int { return len(s.Points) }

func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time
	}
	return out
}

// WithValues returns a copy of s carrying the given values on the same timestamps.
// values must have the same length as s.
func (s Series) WithValues(values []float64) Series {
	pts := make([]Point, len(s.Points))
	for i, p := range s.Points {
		pts[i] = Point{Time: p.Time, Value: values[i]}
	}
	return Series{Label: s.Label, Points: pts}
}

// Validate checks that timestamps are strictly increasing.
func (s Series) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Time.After(s.Points[i-1].Time) {
			return ErrUnorderedSeries
		}
	}
	return nil
}

// SeriesSet maps a label to its series.
type SeriesSet map[string]Series

// Labels returns the set's labels in lexical order.
func (ss SeriesSet) Labels() []string {
	out := make([]string, 0, len(ss))
	for k := range ss {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Missing is the value used for absent observations.
func Missing() float64 { return math.NaN() }

func IsMissing(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// NullFloat converts a possibly-missing float into its nullable form.
func NullFloat(v float64) null.Float {
	if IsMissing(v) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

// FromNull converts a nullable float back to a NaN-marked float.
func FromNull(f null.Float) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
