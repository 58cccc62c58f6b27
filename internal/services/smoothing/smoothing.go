// Package smoothing denoises series before they are compared.
//
// Three filters are available: LLT (iterated centered rolling median and
// mean), an exponential moving average, and a Savitzky–Golay polynomial
// filter. All of them return a series of the same length and timestamps
// as their input.
package smoothing

import (
	"math"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
)

type Method string

const (
	MethodLLT    Method = "llt"
	MethodEMA    Method = "ema"
	MethodSavGol Method = "savgol"
	MethodNone   Method = "none"
)

const (
	DefaultWindow       = 5
	DefaultAlpha        = 0.5
	DefaultIterations   = 3
	DefaultSpan         = 5
	DefaultSavGolWindow = 7
	DefaultSavGolOrder  = 2

	minAlpha = 0.01
	maxAlpha = 0.99
)

// Params selects a filter and its settings. Zero Window, Iterations, Span,
// SavGolWindow select the defaults; Alpha is clamped into [0.01, 0.99].
type Params struct {
	Method       Method
	Window       int
	Alpha        float64
	Iterations   int
	Span         float64
	SavGolWindow int
	SavGolOrder  int
}

func DefaultParams() Params {
	return Params{
		Method:       MethodLLT,
		Window:       DefaultWindow,
		Alpha:        DefaultAlpha,
		Iterations:   DefaultIterations,
		Span:         DefaultSpan,
		SavGolWindow: DefaultSavGolWindow,
		SavGolOrder:  DefaultSavGolOrder,
	}
}

// Filter applies one configured smoothing method.
type Filter struct {
	p Params
}

func New(p Params) *Filter { return &Filter{p: p} }

func (f *Filter) Smooth(s models.Series) (models.Series, error) { return Smooth(s, f.p) }

// Smooth applies the filter selected by p to the values of s.
func Smooth(s models.Series, p Params) (models.Series, error) {
	values, err := Values(s.Values(), p)
	if err != nil {
		return models.Series{}, err
	}
	return s.WithValues(values), nil
}

// Values applies the filter selected by p to a plain value slice.
func Values(values []float64, p Params) ([]float64, error) {
	if len(values) == 0 {
		return nil, errs.InsufficientData("smooth", 1, 0)
	}
	switch p.Method {
	case MethodLLT, "":
		return LLT(values, p.Window, p.Alpha, p.Iterations)
	case MethodEMA:
		span := p.Span
		if span == 0 {
			span = DefaultSpan
		}
		return EMA(values, span)
	case MethodSavGol:
		w := p.SavGolWindow
		if w == 0 {
			w = DefaultSavGolWindow
		}
		return SavGol(values, w, p.SavGolOrder)
	case MethodNone:
		out := make([]float64, len(values))
		copy(out, values)
		return out, nil
	default:
		return nil, errs.InvalidParameter("method", "unknown smoothing method %q", p.Method)
	}
}

// ClampAlpha forces alpha into [0.01, 0.99].
func ClampAlpha(alpha float64) float64 {
	return math.Min(math.Max(alpha, minAlpha), maxAlpha)
}
