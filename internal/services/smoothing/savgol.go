package smoothing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"comove/internal/domain/errs"
)

// SavGol fits a least-squares polynomial of the given order over a sliding
// window and evaluates it at the window center. The first and last half
// windows are evaluated on the polynomial fitted to the first and last full
// window. window must be odd and at least order+2; inputs shorter than the
// window are returned unchanged.
func SavGol(values []float64, window, order int) ([]float64, error) {
	if len(values) == 0 {
		return nil, errs.InsufficientData("savgol", 1, 0)
	}
	if order < 0 {
		return nil, errs.InvalidParameter("order", "must be >= 0, got %d", order)
	}
	if order >= window {
		return nil, errs.InvalidParameter("order", "polynomial order %d must be less than window %d", order, window)
	}
	if window%2 == 0 {
		return nil, errs.InvalidParameter("window", "must be odd, got %d", window)
	}
	if window < order+2 {
		return nil, errs.InvalidParameter("window", "must be >= order+2 (%d), got %d", order+2, window)
	}

	n := len(values)
	out := make([]float64, n)
	copy(out, values)
	if n < window {
		return out, nil
	}

	proj, err := savgolProjection(window, order)
	if err != nil {
		return nil, err
	}
	h := window / 2

	fit := func(start int) []float64 {
		y := mat.NewVecDense(window, values[start:start+window])
		var p mat.VecDense
		p.MulVec(proj, y)
		return p.RawVector().Data
	}

	for i := h; i < n-h; i++ {
		out[i] = fit(i - h)[0]
	}
	head := fit(0)
	for i := 0; i < h; i++ {
		out[i] = polyval(head, float64(i-h))
	}
	tail := fit(n - window)
	for i := n - h; i < n; i++ {
		out[i] = polyval(tail, float64(i-(n-window)-h))
	}
	return out, nil
}

// savgolProjection returns (AᵀA)⁻¹Aᵀ for the Vandermonde matrix A over
// offsets -h..h. Multiplying it by a window of values yields the fitted
// polynomial coefficients around the window center.
func savgolProjection(window, order int) (*mat.Dense, error) {
	h := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		t := float64(i - h)
		for k := 0; k <= order; k++ {
			a.Set(i, k, math.Pow(t, float64(k)))
		}
	}
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var proj mat.Dense
	if err := proj.Solve(&ata, a.T()); err != nil {
		return nil, errs.Alignment("savgol", err)
	}
	return &proj, nil
}

func polyval(coeffs []float64, t float64) float64 {
	v := 0.0
	for k := len(coeffs) - 1; k >= 0; k-- {
		v = v*t + coeffs[k]
	}
	return v
}
