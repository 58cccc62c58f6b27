// Package spectral correlates two series after restricting both to a
// frequency band.
//
// Each series is linearly detrended and z-normalized, transformed with a
// real FFT, stripped of every component outside the band (expressed as a
// fraction of the Nyquist frequency), and reconstructed. The result is the
// Pearson correlation of the two reconstructions.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"comove/internal/domain/errs"
)

const (
	nyquist = 0.5 // cycles per sample
	flatEps = 1e-12
)

// Band is a frequency range as fractions of the Nyquist frequency.
type Band struct {
	Low  float64
	High float64
}

// NewBand builds a Band from a two-element slice.
func NewBand(b []float64) (Band, error) {
	if len(b) != 2 {
		return Band{}, errs.InvalidParameter("freq_band", "must have exactly two bounds, got %d", len(b))
	}
	band := Band{Low: b[0], High: b[1]}
	return band, band.Validate()
}

func (b Band) Validate() error {
	if math.IsNaN(b.Low) || math.IsNaN(b.High) {
		return errs.InvalidParameter("freq_band", "bounds must be numbers")
	}
	if b.Low < 0 || b.Low > 1 || b.High < 0 || b.High > 1 {
		return errs.InvalidParameter("freq_band", "bounds must lie in [0,1], got [%g,%g]", b.Low, b.High)
	}
	if b.Low >= b.High {
		return errs.InvalidParameter("freq_band", "low bound %g must be below high bound %g", b.Low, b.High)
	}
	return nil
}

func (b Band) contains(f float64) bool { return f >= b.Low && f <= b.High }

// Correlation returns the band-limited correlation of two pre-aligned
// sequences. A sequence with no variation, before or after band limiting,
// has no direction and yields 0.
func Correlation(a, b []float64, band Band) (float64, error) {
	if err := band.Validate(); err != nil {
		return 0, err
	}
	n := len(a)
	if n < 2 || len(b) < 2 {
		return 0, errs.InsufficientData("spectral", 2, min(n, len(b)))
	}
	if n != len(b) {
		return 0, errs.InvalidParameter("series", "sequences must share a common index, got lengths %d and %d", n, len(b))
	}
	if !allFinite(a) || !allFinite(b) {
		return 0, errs.Alignment("spectral", fmt.Errorf("non-finite input value"))
	}

	za, ok := standardize(a)
	if !ok {
		return 0, nil
	}
	zb, ok := standardize(b)
	if !ok {
		return 0, nil
	}

	fft := fourier.NewFFT(n)
	ra := bandLimit(fft, za, band)
	rb := bandLimit(fft, zb, band)
	if isFlat(ra) || isFlat(rb) {
		return 0, nil
	}

	r := stat.Correlation(ra, rb, nil)
	if math.IsNaN(r) {
		return 0, errs.Alignment("spectral", fmt.Errorf("correlation is not a number"))
	}
	return math.Max(-1, math.Min(1, r)), nil
}

// Engine binds a band so the correlator can be passed around as a value.
type Engine struct {
	band Band
}

func New(band Band) *Engine { return &Engine{band: band} }

func (e *Engine) Correlate(a, b []float64) (float64, error) { return Correlation(a, b, e.band) }

// standardize removes the least-squares line and scales to unit variance.
// It reports false when the residual has no variation.
func standardize(xs []float64) ([]float64, bool) {
	t := make([]float64, len(xs))
	floats.Span(t, 0, float64(len(xs)-1))
	alpha, beta := stat.LinearRegression(t, xs, nil, false)

	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x - (alpha + beta*t[i])
	}
	mean, std := stat.MeanStdDev(out, nil)
	if !(std > flatEps) {
		return nil, false
	}
	for i := range out {
		out[i] = (out[i] - mean) / std
	}
	return out, true
}

func bandLimit(fft *fourier.FFT, xs []float64, band Band) []float64 {
	coeff := fft.Coefficients(nil, xs)
	for i := range coeff {
		if !band.contains(fft.Freq(i) / nyquist) {
			coeff[i] = 0
		}
	}
	return fft.Sequence(nil, coeff)
}

func isFlat(xs []float64) bool {
	_, std := stat.MeanStdDev(xs, nil)
	return !(std > flatEps*math.Max(1, floats.Norm(xs, math.Inf(1))))
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
