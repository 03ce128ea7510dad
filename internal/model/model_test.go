package model

import (
	"context"
	"math"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

func mustCurve(t *testing.T, points [][]float64) *curve.Curve {
	t.Helper()
	c, err := curve.New(points)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	return c
}

func almost(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func assertVec(t *testing.T, what string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %v, want %v", what, got, want)
	}
	for i := range want {
		if !almost(got[i], want[i]) {
			t.Fatalf("%s: got %v, want %v", what, got, want)
		}
	}
}

func bindTo(t *testing.T, m Model, devices ...device.Access) Model {
	t.Helper()
	bound, err := m.Bind(devices)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	return bound
}

func unitLinear(t *testing.T) *Linear {
	t.Helper()
	m, err := NewLinear(LinearConfig{
		Curve:             mustCurve(t, [][]float64{{0, 0}, {100, 100}}),
		CalibrationFactor: 1,
		Crosstalk:         1,
		Unit:              "1/m",
		PowerConverter:    "PS-Q1",
	})
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	return m
}

func TestLinearExcitation(t *testing.T) {
	m := unitLinear(t)

	m.SetMagnetRigidity(0.5)
	hw, err := m.ComputeHardwareValues([]float64{50})
	if err != nil {
		t.Fatalf("hardware: %v", err)
	}
	assertVec(t, "hardware at brho 0.5", hw, []float64{25})
	s, _ := m.ComputeStrengths([]float64{25})
	assertVec(t, "strength at brho 0.5", s, []float64{50})

	// interp(50*2) = 100 and 100/2 = 50.
	m.SetMagnetRigidity(2)
	hw, _ = m.ComputeHardwareValues([]float64{50})
	assertVec(t, "hardware at brho 2", hw, []float64{100})
	s, _ = m.ComputeStrengths([]float64{100})
	assertVec(t, "strength at brho 2", s, []float64{50})
}

func TestLinearWithoutCurve(t *testing.T) {
	m, err := NewLinear(LinearConfig{CalibrationFactor: 2, CalibrationOffset: 1, Crosstalk: 1, PowerConverter: "PS"})
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	m.SetMagnetRigidity(4)
	s, _ := m.ComputeStrengths([]float64{5})
	assertVec(t, "strength", s, []float64{2}) // (5-1)*2/4
	hw, _ := m.ComputeHardwareValues([]float64{2})
	assertVec(t, "hardware", hw, []float64{5})

	if _, err := NewLinear(LinearConfig{CalibrationFactor: 1}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("zero crosstalk: expected config error, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	lin := unitLinear(t)

	spl, err := NewSpline(SplineConfig{LinearConfig: LinearConfig{
		Curve:             mustCurve(t, [][]float64{{0, 0}, {10, 5}, {20, 10}, {30, 15}, {40, 20}}),
		CalibrationFactor: 1,
		Crosstalk:         1,
		PowerConverter:    "PS-S1",
	}})
	if err != nil {
		t.Fatalf("spline: %v", err)
	}

	cf, err := NewLinearCF(LinearCFConfig{
		Curves: []*curve.Curve{
			mustCurve(t, [][]float64{{-100, -50}, {100, 50}}),
			mustCurve(t, [][]float64{{-100, -200}, {100, 200}}),
		},
		PseudoFactors:   []float64{2, 1},
		PseudoOffsets:   []float64{1, -3},
		PowerConverters: []string{"PS-A", "PS-B"},
	})
	if err != nil {
		t.Fatalf("cf: %v", err)
	}

	plus, _ := NewLinear(LinearConfig{CalibrationFactor: 1, Crosstalk: 1})
	double, _ := NewLinear(LinearConfig{CalibrationFactor: 2, Crosstalk: 1})
	ser, err := NewSerialized(SerializedConfig{Models: []Model{plus, double}, PowerConverters: []string{"PS-D"}})
	if err != nil {
		t.Fatalf("serialized: %v", err)
	}

	cases := []struct {
		name      string
		model     Model
		strengths []float64
	}{
		{"linear", lin, []float64{12.5}},
		{"spline", spl, []float64{3.7}},
		{"combined function", cf, []float64{4, -7}},
		{"serialized", ser, []float64{1.5, 3}},
	}
	for _, tc := range cases {
		tc.model.SetMagnetRigidity(1.3)
		hw, err := tc.model.ComputeHardwareValues(tc.strengths)
		if err != nil {
			t.Fatalf("%s: hardware: %v", tc.name, err)
		}
		if len(hw) != tc.model.NumChannels() {
			t.Fatalf("%s: got %d hardware values", tc.name, len(hw))
		}
		back, err := tc.model.ComputeStrengths(hw)
		if err != nil {
			t.Fatalf("%s: strengths: %v", tc.name, err)
		}
		assertVec(t, tc.name, back, tc.strengths)
	}
}

func TestSplineRoundTripAtKnots(t *testing.T) {
	m, err := NewSpline(SplineConfig{LinearConfig: LinearConfig{
		Curve:             mustCurve(t, [][]float64{{0, 0}, {10, 8}, {20, 14}, {30, 18}, {40, 20}}),
		CalibrationFactor: 1,
		Crosstalk:         1,
	}})
	if err != nil {
		t.Fatalf("spline: %v", err)
	}
	m.SetMagnetRigidity(1)
	for _, field := range []float64{0, 8, 14, 18, 20} {
		hw, _ := m.ComputeHardwareValues([]float64{field})
		s, _ := m.ComputeStrengths(hw)
		assertVec(t, "knot", s, []float64{field})
	}

	if _, err := NewSpline(SplineConfig{LinearConfig: LinearConfig{CalibrationFactor: 1, Crosstalk: 1}}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("spline without curve: expected config error, got %v", err)
	}
}

func TestCombinedFunctionIdentity(t *testing.T) {
	c := mustCurve(t, [][]float64{{0, 0}, {100, 100}})
	m, err := NewLinearCF(LinearCFConfig{
		Curves:          []*curve.Curve{c, c},
		Matrix:          curve.Identity(2),
		PowerConverters: []string{"PS-1", "PS-2"},
	})
	if err != nil {
		t.Fatalf("cf: %v", err)
	}
	if !m.HasHardware() {
		t.Error("identity matrix should give hardware access")
	}
	m.SetMagnetRigidity(0.5)
	hw, _ := m.ComputeHardwareValues([]float64{50, 0})
	assertVec(t, "hardware", hw, []float64{25, 0})
}

func TestCombinedFunctionMixingMatrix(t *testing.T) {
	ident := mustCurve(t, [][]float64{{-1000, -1000}, {1000, 1000}})
	mix, _ := curve.NewMatrix([][]float64{{1, 1, 0}, {0, 1, 1}})
	m, err := NewLinearCF(LinearCFConfig{
		Curves:          []*curve.Curve{ident, ident},
		Matrix:          mix,
		PowerConverters: []string{"PS-1", "PS-2", "PS-3"},
	})
	if err != nil {
		t.Fatalf("cf: %v", err)
	}
	if m.HasHardware() {
		t.Error("mixing matrix must not expose per-function hardware")
	}
	if m.NumFunctions() != 2 || m.NumChannels() != 3 {
		t.Fatalf("shape = %dx%d", m.NumFunctions(), m.NumChannels())
	}

	m.SetMagnetRigidity(1)
	s, _ := m.ComputeStrengths([]float64{1, 2, 3})
	assertVec(t, "strengths", s, []float64{3, 5})

	hw, _ := m.ComputeHardwareValues([]float64{10, 20})
	s, _ = m.ComputeStrengths(hw)
	assertVec(t, "round trip", s, []float64{10, 20})
}

func TestCombinedFunctionConfigErrors(t *testing.T) {
	c := mustCurve(t, [][]float64{{0, 0}, {1, 1}})
	mix, _ := curve.NewMatrix([][]float64{{1, 0}})

	cases := map[string]LinearCFConfig{
		"no curves":          {},
		"matrix rows":        {Curves: []*curve.Curve{c, c}, Matrix: mix},
		"factor count":       {Curves: []*curve.Curve{c, c}, CalibrationFactors: []float64{1}},
		"zero pseudo factor": {Curves: []*curve.Curve{c}, PseudoFactors: []float64{0}},
		"converter count":    {Curves: []*curve.Curve{c}, PowerConverters: []string{"A", "B"}},
		"unit count":         {Curves: []*curve.Curve{c}, Units: []string{"1/m", "1/m2"}},
	}
	for name, cfg := range cases {
		if _, err := NewLinearCF(cfg); !types.IsKind(err, types.KindConfig) {
			t.Errorf("%s: expected config error, got %v", name, err)
		}
	}
}

func TestIdentityModels(t *testing.T) {
	if _, err := NewIdentity(IdentityConfig{}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("no device: expected config error, got %v", err)
	}
	if _, err := NewIdentity(IdentityConfig{Physics: "A", PowerConverter: "B"}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("two devices: expected config error, got %v", err)
	}

	m, err := NewIdentity(IdentityConfig{PowerConverter: "PS", Unit: "A"})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if m.HasPhysics() || !m.HasHardware() {
		t.Error("power converter identity should only have hardware")
	}
	hw, _ := m.ComputeHardwareValues([]float64{3})
	assertVec(t, "pass-through", hw, []float64{3})

	cf, err := NewIdentityCF(IdentityCFConfig{Physics: []string{"K1", "K2"}})
	if err != nil {
		t.Fatalf("identity cf: %v", err)
	}
	if !cf.HasPhysics() || cf.HasHardware() || cf.NumFunctions() != 2 {
		t.Error("physics identity cf has wrong capabilities")
	}
	if _, err := cf.ComputeStrengths([]float64{1}); !types.IsKind(err, types.KindValue) {
		t.Errorf("short vector: expected value error, got %v", err)
	}
}

func TestSerializedSharedSetpoint(t *testing.T) {
	a, _ := NewLinear(LinearConfig{CalibrationFactor: 1, Crosstalk: 1, Unit: "rad"})
	b, _ := NewLinear(LinearConfig{CalibrationFactor: 2, Crosstalk: 1, Unit: "rad"})
	m, err := NewSerialized(SerializedConfig{Models: []Model{a, b}, PowerConverters: []string{"PS-1", "PS-2"}})
	if err != nil {
		t.Fatalf("serialized: %v", err)
	}

	ps1 := device.NewMemory("PS-1", "PS-1:RB", "A", device.Range{})
	ps2 := device.NewMemory("PS-2", "PS-2:RB", "A", device.Range{})
	bound := bindTo(t, m, ps1, ps2)
	bound.SetMagnetRigidity(1)

	all, err := bound.(Coupled).Propagate(0, 3)
	if err != nil {
		t.Fatalf("propagate: %v", err)
	}
	assertVec(t, "propagated", all, []float64{3, 6})

	hw, err := bound.ComputeHardwareValues(all)
	if err != nil {
		t.Fatalf("hardware: %v", err)
	}
	assertVec(t, "shared setpoint", hw, []float64{3, 3})

	if _, err := bound.ComputeHardwareValues([]float64{3, 5}); !types.IsKind(err, types.KindValue) {
		t.Errorf("inconsistent strengths: expected value error, got %v", err)
	}

	ctx := context.Background()
	if err := bound.SendHardwareValues(ctx, hw); err != nil {
		t.Fatalf("send: %v", err)
	}
	if v, _ := ps2.Get(ctx); v != 3 {
		t.Errorf("PS-2 = %g", v)
	}
	if math.IsNaN(bound.MagnetRigidity()) || !math.IsNaN(m.MagnetRigidity()) {
		t.Error("template rigidity must stay unset")
	}
}

func TestBindIsIndependent(t *testing.T) {
	tmpl := unitLinear(t)
	ps := device.NewMemory("PS-Q1", "PS-Q1:RB", "A", device.Range{})

	live := bindTo(t, tmpl, ps)
	design := bindTo(t, tmpl, device.NewMemory("PS-Q1", "", "A", device.Range{}))
	live.SetMagnetRigidity(0.5)

	s, _ := design.ComputeStrengths([]float64{10})
	if !math.IsNaN(s[0]) {
		t.Errorf("unset rigidity should poison conversion, got %g", s[0])
	}
	hw, _ := design.ComputeHardwareValues([]float64{1})
	if !math.IsNaN(hw[0]) {
		t.Errorf("unset rigidity should poison inverse conversion, got %g", hw[0])
	}

	ctx := context.Background()
	if err := live.SendHardwareValues(ctx, []float64{42}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := live.ReadHardwareValues(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	assertVec(t, "read", got, []float64{42})
	rb, _ := live.ReadbackHardwareValues(ctx)
	assertVec(t, "readback", Values(rb), []float64{42})

	if _, err := tmpl.ReadHardwareValues(ctx); !types.IsKind(err, types.KindBinding) {
		t.Errorf("unbound read: expected binding error, got %v", err)
	}
	if _, err := tmpl.Bind(nil); !types.IsKind(err, types.KindBinding) {
		t.Errorf("short bind: expected binding error, got %v", err)
	}
}
