package curve

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

func TestNewRejectsBadShape(t *testing.T) {
	if _, err := New(nil); !types.IsKind(err, types.KindConfig) {
		t.Errorf("empty curve: expected config error, got %v", err)
	}
	if _, err := New([][]float64{{0, 1, 2}}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("3 columns: expected config error, got %v", err)
	}
}

func TestInverseIdempotent(t *testing.T) {
	c, err := New([][]float64{{0, 5}, {1, 3}, {2, 9}, {3, 1}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	back := c.Inverse().Inverse()
	want := c.Points()
	got := back.Points()
	sortPoints(want)
	sortPoints(got)
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("row %d: got %v want %v", i, got[i], want[i])
		}
	}

	inv := c.Inverse()
	xs := inv.X()
	if !sort.Float64sAreSorted(xs) {
		t.Errorf("inverse not sorted by x: %v", xs)
	}
}

func sortPoints(p [][2]float64) {
	sort.Slice(p, func(i, j int) bool {
		if p[i][0] != p[j][0] {
			return p[i][0] < p[j][0]
		}
		return p[i][1] < p[j][1]
	})
}

func TestLinearInterpolation(t *testing.T) {
	c, _ := New([][]float64{{0, 0}, {100, 100}})
	f, err := NewLinear(c)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if v := f.Predict(25); math.Abs(v-25) > 1e-12 {
		t.Errorf("predict(25) = %g", v)
	}
	if v := f.Predict(150); v != 100 {
		t.Errorf("above domain should clamp, got %g", v)
	}
	if v := f.Predict(-5); v != 0 {
		t.Errorf("below domain should clamp, got %g", v)
	}
}

func TestSinglePointCurveIsConstant(t *testing.T) {
	c, _ := New([][]float64{{1, 7}})
	f, err := NewLinear(c)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if f.Predict(-3) != 7 || f.Predict(99) != 7 {
		t.Error("single point curve should be constant")
	}
}

func TestLinearRejectsDuplicateX(t *testing.T) {
	c, _ := New([][]float64{{0, 0}, {1, 1}, {1, 2}})
	if _, err := NewLinear(c); !types.IsKind(err, types.KindConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestSplineInterpolatesAtZeroAlpha(t *testing.T) {
	c, _ := New([][]float64{{0, 0}, {1, 1}, {2, 4}, {3, 9}, {4, 16}})
	f, err := NewSpline(c, 0)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	for _, p := range c.Points() {
		if v := f.Predict(p[0]); math.Abs(v-p[1]) > 1e-9 {
			t.Errorf("spline(%g) = %g, want %g", p[0], v, p[1])
		}
	}
}

func TestSmoothingSplineKeepsLinearData(t *testing.T) {
	c, _ := New([][]float64{{0, 1}, {1, 3}, {2.5, 6}, {4, 9}, {5, 11}})
	f, err := NewSpline(c, 10)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	for _, x := range []float64{0.5, 2, 3.3, 4.9} {
		want := 2*x + 1
		if v := f.Predict(x); math.Abs(v-want) > 1e-9 {
			t.Errorf("spline(%g) = %g, want %g", x, v, want)
		}
	}
}

func TestSmoothingSplineReducesNoise(t *testing.T) {
	c, _ := New([][]float64{{0, 0}, {1, 1.5}, {2, 2}, {3, 3.5}, {4, 4}, {5, 5.5}})
	exact, _ := NewSpline(c, 0)
	smoothed, err := NewSpline(c, 5)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.Abs(smoothed.Predict(1)-1) >= math.Abs(exact.Predict(1)-1) {
		t.Errorf("smoothing did not pull the outlier towards the trend: %g vs %g",
			smoothed.Predict(1), exact.Predict(1))
	}
	if _, err := NewSpline(c, -1); !types.IsKind(err, types.KindConfig) {
		t.Errorf("negative alpha should be rejected, got %v", err)
	}
}

func TestMatrixPinv(t *testing.T) {
	m, err := NewMatrix([][]float64{{1, 1, 0}, {0, 1, 1}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, err := m.Pinv()
	if err != nil {
		t.Fatalf("pinv: %v", err)
	}
	if r, c := p.Dims(); r != 3 || c != 2 {
		t.Fatalf("pinv dims = %dx%d", r, c)
	}

	// m·pinv(m) = I for full row rank.
	for _, v := range [][]float64{{1, 0}, {0, 1}, {2.5, -4}} {
		x, _ := p.MulVec(v)
		y, _ := m.MulVec(x)
		for i := range v {
			if math.Abs(y[i]-v[i]) > 1e-12 {
				t.Errorf("m·pinv(m)·%v = %v", v, y)
			}
		}
	}
}

func TestMatrixIdentity(t *testing.T) {
	if !Identity(3).IsIdentity(0) {
		t.Error("identity not recognised")
	}
	m, _ := NewMatrix([][]float64{{1, 0}, {0.5, 1}})
	if m.IsIdentity(1e-9) {
		t.Error("mixed matrix reported as identity")
	}
	rect, _ := NewMatrix([][]float64{{1, 0, 0}})
	if rect.IsIdentity(1) {
		t.Error("rectangular matrix reported as identity")
	}
	if _, err := NewMatrix([][]float64{{1, 2}, {3}}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("ragged matrix: expected config error, got %v", err)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	curvePath := filepath.Join(dir, "qf.csv")
	if err := os.WriteFile(curvePath, []byte("# current, field\n0, 0\n50, 0.5\n100, 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := ReadCurveFile(curvePath)
	if err != nil {
		t.Fatalf("read curve: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("len = %d", c.Len())
	}

	bad := filepath.Join(dir, "bad.csv")
	_ = os.WriteFile(bad, []byte("0, zero\n"), 0o644)
	if _, err := ReadCurveFile(bad); !types.IsKind(err, types.KindConfig) {
		t.Errorf("malformed file: expected config error, got %v", err)
	}

	if _, err := ReadCurveFile(filepath.Join(dir, "missing.csv")); err == nil ||
		!strings.Contains(err.Error(), "missing.csv") {
		t.Errorf("missing file: %v", err)
	}

	matPath := filepath.Join(dir, "m.csv")
	_ = os.WriteFile(matPath, []byte("1,0\n0,1\n"), 0o644)
	m, err := ReadMatrixFile(matPath)
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	if !m.IsIdentity(0) {
		t.Error("expected identity matrix")
	}
}
