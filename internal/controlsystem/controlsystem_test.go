package controlsystem

import (
	"context"
	"math"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/aggregator"
	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

type memResolver struct {
	known map[string]*device.Memory
}

func newResolver(names ...string) *memResolver {
	r := &memResolver{known: make(map[string]*device.Memory)}
	for _, n := range names {
		r.known[n] = device.NewMemory(n, n+":RB", "A", device.Range{})
	}
	return r
}

func (r *memResolver) Resolve(name string) (device.Access, error) {
	d, ok := r.known[name]
	if !ok {
		return nil, types.Errorf(types.KindLookup, "device %s not found", name)
	}
	return d, nil
}

func (r *memResolver) NewList() device.List { return device.NewSequential() }

func quad(t *testing.T, name string) *element.Magnet {
	t.Helper()
	c, _ := curve.New([][]float64{{-100, -200}, {100, 200}})
	m, err := model.NewLinear(model.LinearConfig{Curve: c, CalibrationFactor: 1, Crosstalk: 1, PowerConverter: name + "-PS"})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	return element.NewMagnet(name, element.Quadrupole, m, nil)
}

func TestAttachDrivesResolvedChannel(t *testing.T) {
	ctx := context.Background()
	r := newResolver("QF1-PS")
	cs := New("live", r, 1, nil)

	bound, err := cs.Attach(quad(t, "QF1"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	s, _ := bound.(*element.Magnet).Strength()
	if err := s.Set(ctx, 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if hw, _ := r.known["QF1-PS"].Get(ctx); math.Abs(hw-0.5) > 1e-12 {
		t.Errorf("power supply = %g, want 0.5", hw)
	}

	cs.SetMagnetRigidity(2)
	if v, _ := s.Get(ctx); math.Abs(v-0.5) > 1e-12 {
		t.Errorf("strength at brho 2 = %g", v)
	}
}

func TestArraysUseAggregators(t *testing.T) {
	ctx := context.Background()
	r := newResolver("QF1-PS", "QD1-PS")
	cs := New("live", r, 1, nil)
	for _, n := range []string{"QF1", "QD1"} {
		if _, err := cs.Attach(quad(t, n)); err != nil {
			t.Fatalf("attach %s: %v", n, err)
		}
	}
	if err := cs.Holder().DefineArray("QUADS", []string{"QF1", "QD1"}); err != nil {
		t.Fatalf("define: %v", err)
	}

	arr, err := cs.Holder().Magnets("QUADS")
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	s, err := arr.Strengths()
	if err != nil {
		t.Fatalf("strengths: %v", err)
	}
	if _, ok := s.(*aggregator.Strengths); !ok {
		t.Fatalf("strengths served by %T", s)
	}
	if err := s.Set(ctx, []float64{2, -2}); err != nil {
		t.Fatalf("set: %v", err)
	}
	qd, _ := r.known["QD1-PS"].Get(ctx)
	if math.Abs(qd+1) > 1e-12 {
		t.Errorf("QD1-PS = %g", qd)
	}
}

func TestAttachUnknownChannel(t *testing.T) {
	cs := New("live", newResolver(), 1, nil)
	_, err := cs.Attach(quad(t, "QF1"))
	if !types.IsKind(err, types.KindBinding) {
		t.Fatalf("expected binding error, got %v", err)
	}
	if _, err := cs.Holder().Get("QF1"); err == nil {
		t.Error("failed attach left QF1 registered")
	}
}

func TestCombinedFunctionFanOut(t *testing.T) {
	ctx := context.Background()
	r := newResolver("SX1-PS1", "SX1-PS2")
	cs := New("live", r, 1, nil)

	c, _ := curve.New([][]float64{{-100, -200}, {100, 200}})
	m, _ := model.NewLinearCF(model.LinearCFConfig{Curves: []*curve.Curve{c, c}, PowerConverters: []string{"SX1-PS1", "SX1-PS2"}})
	tmpl, _ := element.NewCombinedFunctionMagnet("SX1", m, []element.Multipole{
		{Name: "SX1-S", Kind: element.Sextupole},
		{Name: "SX1-H", Kind: element.HCorrector},
	}, nil)
	if _, err := cs.Attach(tmpl); err != nil {
		t.Fatalf("attach: %v", err)
	}

	h, err := cs.Holder().Magnet("SX1-H")
	if err != nil {
		t.Fatalf("multipole: %v", err)
	}
	if h.Peer() != cs {
		t.Error("multipole bound to another peer")
	}
	hw, err := h.Hardware()
	if err != nil {
		t.Fatalf("hardware: %v", err)
	}
	if err := hw.Set(ctx, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := r.known["SX1-PS2"].Get(ctx); v != 3 {
		t.Errorf("SX1-PS2 = %g", v)
	}
	if r.known["SX1-PS1"].Writes() != 1 {
		t.Errorf("SX1-PS1 written %d times", r.known["SX1-PS1"].Writes())
	}
}

func TestBPMAttach(t *testing.T) {
	ctx := context.Background()
	r := newResolver("BPM1:X", "BPM1:Y")
	_ = r.known["BPM1:X"].Set(ctx, 0.1)
	cs := New("live", r, 1, nil)

	tmpl, _ := element.NewBPM("BPM1", element.BPMConfig{X: "BPM1:X", Y: "BPM1:Y"}, nil)
	bound, err := cs.Attach(tmpl)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	h, _ := bound.(*element.BPM).H()
	if v, _ := h.Get(ctx); v != 0.1 {
		t.Errorf("h = %g", v)
	}
}
