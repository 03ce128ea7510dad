package curve

import (
	"math"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"gonum.org/v1/gonum/mat"
)

// Matrix maps power-supply channels (columns) onto magnet functions (rows).
type Matrix struct {
	d *mat.Dense
}

func NewMatrix(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, types.Errorf(types.KindConfig, "matrix is empty")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, types.Errorf(types.KindConfig, "matrix row %d has %d columns, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return &Matrix{d: mat.NewDense(len(rows), cols, data)}, nil
}

func Identity(n int) *Matrix {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return &Matrix{d: d}
}

func (m *Matrix) Dims() (rows, cols int) { return m.d.Dims() }

func (m *Matrix) At(i, j int) float64 { return m.d.At(i, j) }

func (m *Matrix) Rows() [][]float64 {
	r, c := m.d.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		mat.Row(out[i], i, m.d)
	}
	return out
}

// IsIdentity reports a square matrix within tol of the identity.
func (m *Matrix) IsIdentity(tol float64) bool {
	r, c := m.d.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(m.d.At(i, j)-want) > tol {
				return false
			}
		}
	}
	return true
}

// MulVec returns m·v.
func (m *Matrix) MulVec(v []float64) ([]float64, error) {
	r, c := m.d.Dims()
	if len(v) != c {
		return nil, types.Errorf(types.KindValue, "matrix has %d columns, vector has %d values", c, len(v))
	}
	var out mat.VecDense
	out.MulVec(m.d, mat.NewVecDense(c, append([]float64(nil), v...)))
	res := make([]float64, r)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res, nil
}

// Pinv computes the Moore-Penrose pseudo-inverse from a thin SVD, discarding
// singular values below max(rows, cols)·eps·σmax.
func (m *Matrix) Pinv() (*Matrix, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m.d, mat.SVDThin); !ok {
		return nil, types.Errorf(types.KindConfig, "matrix SVD did not converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	r, c := m.d.Dims()
	tol := 0.0
	if len(s) > 0 {
		tol = float64(max(r, c)) * s[0] * 2.220446049250313e-16
	}

	vr, vc := v.Dims()
	scaled := mat.NewDense(vr, vc, nil)
	for j := 0; j < vc; j++ {
		inv := 0.0
		if s[j] > tol {
			inv = 1 / s[j]
		}
		for i := 0; i < vr; i++ {
			scaled.Set(i, j, v.At(i, j)*inv)
		}
	}

	var p mat.Dense
	p.Mul(scaled, u.T())
	return &Matrix{d: &p}, nil
}
