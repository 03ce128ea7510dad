package curve

import (
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// Interpolator evaluates a fitted curve. Outside the fitted domain the
// end values are held.
type Interpolator interface {
	Predict(x float64) float64
}

type constant float64

func (c constant) Predict(float64) float64 { return float64(c) }

// NewLinear fits a piecewise-linear interpolator through the curve.
func NewLinear(c *Curve) (Interpolator, error) {
	xs, ys := c.X(), c.Y()
	if len(xs) == 1 {
		return constant(ys[0]), nil
	}
	if err := checkIncreasing(xs); err != nil {
		return nil, err
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, types.Wrap(types.KindConfig, err, "failed to fit curve")
	}
	return &pl, nil
}

// NewSpline fits a cubic smoothing spline. alpha weighs curvature against
// the squared residuals; alpha == 0 interpolates every point.
func NewSpline(c *Curve, alpha float64) (Interpolator, error) {
	if alpha < 0 {
		return nil, types.Errorf(types.KindConfig, "spline smoothing parameter must be >= 0, got %g", alpha)
	}
	xs, ys := c.X(), c.Y()
	if len(xs) < 3 {
		return NewLinear(c)
	}
	if err := checkIncreasing(xs); err != nil {
		return nil, err
	}

	if alpha > 0 {
		smoothed, err := smooth(xs, ys, alpha)
		if err != nil {
			return nil, err
		}
		ys = smoothed
	}

	var nc interp.NaturalCubic
	if err := nc.Fit(xs, ys); err != nil {
		return nil, types.Wrap(types.KindConfig, err, "failed to fit spline")
	}
	return &nc, nil
}

func checkIncreasing(xs []float64) error {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return types.Errorf(types.KindConfig, "curve x values must be strictly increasing (row %d: %g after %g)", i, xs[i], xs[i-1])
		}
	}
	return nil
}

// smooth returns the values at the knots of the penalised regression spline
// (Reinsch): (R + αQᵀQ)γ = Qᵀy, g = y - αQγ. A natural cubic through g is the
// smoothing spline.
func smooth(xs, ys []float64, alpha float64) ([]float64, error) {
	n := len(xs)
	m := n - 2
	h := make([]float64, n-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
	}

	q := mat.NewDense(n, m, nil)
	r := mat.NewDense(m, m, nil)
	for j := 0; j < m; j++ {
		k := j + 1
		q.Set(k-1, j, 1/h[k-1])
		q.Set(k, j, -1/h[k-1]-1/h[k])
		q.Set(k+1, j, 1/h[k])

		r.Set(j, j, (h[k-1]+h[k])/3)
		if j+1 < m {
			r.Set(j, j+1, h[k]/6)
			r.Set(j+1, j, h[k]/6)
		}
	}

	var qtq mat.Dense
	qtq.Mul(q.T(), q)
	qtq.Scale(alpha, &qtq)

	var a mat.Dense
	a.Add(r, &qtq)

	y := mat.NewVecDense(n, append([]float64(nil), ys...))
	var b mat.VecDense
	b.MulVec(q.T(), y)

	var gamma mat.VecDense
	if err := gamma.SolveVec(&a, &b); err != nil {
		return nil, types.Wrap(types.KindConfig, err, "failed to solve smoothing system")
	}

	var correction mat.VecDense
	correction.MulVec(q, &gamma)

	g := make([]float64, n)
	for i := range g {
		g[i] = ys[i] - alpha*correction.AtVec(i)
	}
	return g, nil
}
