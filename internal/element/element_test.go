package element

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

type testPeer string

func (p testPeer) Name() string { return string(p) }

func unitCurve(t *testing.T) *curve.Curve {
	t.Helper()
	c, err := curve.New([][]float64{{-100, -100}, {100, 100}})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func memory(name string) *device.Memory {
	return device.NewMemory(name, name+":RB", "A", device.Range{})
}

func TestUnboundMagnetHasNoAccessors(t *testing.T) {
	m, _ := model.NewLinear(model.LinearConfig{Curve: unitCurve(t), CalibrationFactor: 1, Crosstalk: 1, PowerConverter: "PS"})
	mag := NewMagnet("QF1", Quadrupole, m, map[string]string{"family": "QF"})

	_, err := mag.Strength()
	if !types.IsKind(err, types.KindBinding) || !strings.Contains(err.Error(), "QF1 has no model that supports physics units") {
		t.Errorf("unexpected error: %v", err)
	}
	if mag.Peer() != nil {
		t.Error("template should have no peer")
	}
	if mag.Attributes()["family"] != "QF" || mag.Attributes()["type"] != "Quadrupole" {
		t.Errorf("attributes = %v", mag.Attributes())
	}
}

func TestBoundMagnet(t *testing.T) {
	tmpl, _ := model.NewLinear(model.LinearConfig{Curve: unitCurve(t), CalibrationFactor: 1, Crosstalk: 1, PowerConverter: "PS"})
	ps := memory("PS")
	bound, _ := tmpl.Bind([]device.Access{ps})
	bound.SetMagnetRigidity(0.5)

	mag := BindMagnet(NewMagnet("QF1", Quadrupole, tmpl, nil), testPeer("live"), bound,
		NewModelStrengths(bound), NewModelHardwares(bound))

	ctx := context.Background()
	s, err := mag.Strength()
	if err != nil {
		t.Fatalf("strength: %v", err)
	}
	if err := s.Set(ctx, 50); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := ps.Get(ctx); v != 25 {
		t.Errorf("power supply = %g, want 25", v)
	}
	h, _ := mag.Hardware()
	if v, _ := h.Get(ctx); v != 25 {
		t.Errorf("hardware = %g", v)
	}
	if err := s.SetAndWait(ctx, 1); !types.IsKind(err, types.KindNotImplemented) {
		t.Errorf("set and wait: %v", err)
	}
	rb, _ := s.Readback(ctx)
	if math.Abs(rb.Value-50) > 1e-9 {
		t.Errorf("readback strength = %g", rb.Value)
	}
}

func TestCombinedFunctionFanOut(t *testing.T) {
	c := unitCurve(t)
	tmpl, _ := model.NewLinearCF(model.LinearCFConfig{
		Curves:          []*curve.Curve{c, c},
		PowerConverters: []string{"PS-1", "PS-2"},
	})
	cfm, err := NewCombinedFunctionMagnet("SH1", tmpl, []Multipole{
		{Name: "SH1-H", Kind: HCorrector},
		{Name: "SH1-V", Kind: VCorrector},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ps1, ps2 := memory("PS-1"), memory("PS-2")
	bound, _ := tmpl.Bind([]device.Access{ps1, ps2})
	bound.SetMagnetRigidity(0.5)
	live := BindCombined(cfm, testPeer("live"), bound, NewModelStrengths(bound), NewModelHardwares(bound))

	subs := live.Multipoles()
	for _, sub := range subs {
		if sub.Model() != live.Model() {
			t.Fatal("multipoles must share the parent's model")
		}
		if sub.Peer() != live.Peer() {
			t.Fatal("multipoles must share the parent's peer")
		}
	}

	ctx := context.Background()
	rw, _ := live.Strengths()
	if err := rw.Set(ctx, []float64{50, 0}); err != nil {
		t.Fatalf("set: %v", err)
	}
	v := subs[1]
	vs, _ := v.Strength()
	if err := vs.Set(ctx, 25); err != nil {
		t.Fatalf("set multipole: %v", err)
	}
	if got, _ := ps1.Get(ctx); math.Abs(got-25) > 1e-9 {
		t.Errorf("PS-1 = %g, co-located multipole was disturbed", got)
	}
	if got, _ := ps2.Get(ctx); math.Abs(got-12.5) > 1e-9 {
		t.Errorf("PS-2 = %g", got)
	}

	if _, err := NewCombinedFunctionMagnet("X", tmpl, []Multipole{{Name: "X-H"}}, nil); !types.IsKind(err, types.KindConfig) {
		t.Errorf("multipole count mismatch: %v", err)
	}
}

func TestSerializedMagnetsMoveTogether(t *testing.T) {
	a, _ := model.NewLinear(model.LinearConfig{CalibrationFactor: 1, Crosstalk: 1})
	b, _ := model.NewLinear(model.LinearConfig{CalibrationFactor: 3, Crosstalk: 1})
	tmpl, _ := model.NewSerialized(model.SerializedConfig{Models: []model.Model{a, b}, PowerConverters: []string{"PS"}})
	ser, err := NewSerializedMagnets("QD-STRING", tmpl, []Multipole{
		{Name: "QD1", Kind: Quadrupole},
		{Name: "QD2", Kind: Quadrupole},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ps := memory("PS")
	bound, _ := tmpl.Bind([]device.Access{ps})
	bound.SetMagnetRigidity(1)
	live, err := BindSerialized(ser, testPeer("live"), bound, NewModelStrengths(bound), NewModelHardwares(bound))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx := context.Background()
	mags := live.Magnets()
	s, _ := mags[1].Strength()
	if err := s.Set(ctx, 6); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := ps.Get(ctx); got != 2 {
		t.Errorf("PS = %g, want 2", got)
	}
	first, _ := mags[0].Strength()
	if got, _ := first.Get(ctx); got != 2 {
		t.Errorf("QD1 = %g, want 2", got)
	}
	h, _ := mags[0].Hardware()
	if err := h.Set(ctx, 4); err != nil {
		t.Fatalf("hardware set: %v", err)
	}
	if got, _ := s.Get(ctx); got != 12 {
		t.Errorf("QD2 = %g, want 12", got)
	}
}

func TestBPMPositions(t *testing.T) {
	tmpl, err := NewBPM("BPM1", BPMConfig{X: "BPM1:X", Y: "BPM1:Y"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	x, y := memory("BPM1:X"), memory("BPM1:Y")
	_ = x.Set(context.Background(), 0.001)
	_ = y.Set(context.Background(), -0.002)

	bpm, err := BindBPM(tmpl, testPeer("live"), []device.Access{x, y})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	ctx := context.Background()
	v, _ := bpm.V()
	if got, _ := v.Get(ctx); got != -0.002 {
		t.Errorf("v = %g", got)
	}
	pos, _ := bpm.Positions()
	if err := pos.Set(ctx, []float64{0, 0}); !types.IsKind(err, types.KindValue) {
		t.Errorf("positions should be read-only, got %v", err)
	}

	vec := device.NewMemoryVector("BPM2:XY", "m", 2)
	_ = vec.Store([]float64{0.1, 0.2})
	tmpl2, _ := NewBPM("BPM2", BPMConfig{Positions: "BPM2:XY"}, nil)
	bpm2, err := BindBPM(tmpl2, testPeer("live"), []device.Access{vec})
	if err != nil {
		t.Fatalf("bind vector: %v", err)
	}
	if _, _, ok := bpm2.ScalarDevices(); ok {
		t.Error("vector bpm should not report scalar devices")
	}
	h, _ := bpm2.H()
	if got, _ := h.Get(ctx); got != 0.1 {
		t.Errorf("h = %g", got)
	}

	if _, err := BindBPM(tmpl2, testPeer("live"), []device.Access{x}); !types.IsKind(err, types.KindBinding) {
		t.Errorf("scalar device for vector bpm: %v", err)
	}
	if _, err := NewBPM("BPM3", BPMConfig{X: "only-x"}, nil); !types.IsKind(err, types.KindConfig) {
		t.Errorf("half configured bpm: %v", err)
	}
}
