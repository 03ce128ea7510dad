package simulator

import (
	"context"
	"math"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/lattice"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

func newLattice(t *testing.T) *lattice.Memory {
	t.Helper()
	lat := lattice.NewMemory(3e9)
	for _, spec := range []lattice.ElementSpec{
		{Name: "QF1", Family: "QF", Length: 0.5},
		{Name: "QF1", Family: "QF", Length: 0.25},
		{Name: "HC1"},
		{Name: "SX1", Length: 0.2},
		{Name: "QD1", Length: 0.3},
		{Name: "QD2", Length: 0.3},
		{Name: "BPM1"},
	} {
		if err := lat.Add(spec); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return lat
}

func linear(t *testing.T, ps string) *model.Linear {
	t.Helper()
	c, _ := curve.New([][]float64{{-100, -200}, {100, 200}})
	m, err := model.NewLinear(model.LinearConfig{Curve: c, CalibrationFactor: 1, Crosstalk: 1, PowerConverter: ps})
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	return m
}

func TestMagnetStrengthIsIntegratedOverSlices(t *testing.T) {
	ctx := context.Background()
	lat := newLattice(t)
	sim := New("design", lat, nil)

	bound, err := sim.Attach(element.NewMagnet("QF1", element.Quadrupole, linear(t, "QF1-PS"), nil))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	qf := bound.(*element.Magnet)
	if qf.Peer() != sim {
		t.Fatal("bound magnet does not point at the simulator")
	}

	s, _ := qf.Strength()
	if err := s.Set(ctx, 0.6); err != nil {
		t.Fatalf("set: %v", err)
	}
	slices, _ := lat.Find("QF1")
	for _, sl := range slices {
		if k, _ := sl.Get(lattice.PolynomB, 1); !near(k, 0.8) {
			t.Errorf("PolynomB[1] = %g, want 0.8", k)
		}
	}
	if v, _ := s.Get(ctx); !near(v, 0.6) {
		t.Errorf("strength = %g", v)
	}

	h, err := qf.Hardware()
	if err != nil {
		t.Fatalf("hardware: %v", err)
	}
	if err := h.Set(ctx, 10); err != nil {
		t.Fatalf("set hardware: %v", err)
	}
	if v, _ := h.Get(ctx); !near(v, 10) {
		t.Errorf("hardware = %g", v)
	}
}

func TestHorizontalCorrectorSign(t *testing.T) {
	ctx := context.Background()
	lat := newLattice(t)
	sim := New("design", lat, nil)

	bound, err := sim.Attach(element.NewMagnet("HC1", element.HCorrector, linear(t, "HC1-PS"), nil))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	s, _ := bound.(*element.Magnet).Strength()
	_ = s.Set(ctx, 1e-3)

	hc, _ := lat.Find("HC1")
	if k, _ := hc[0].Get(lattice.PolynomB, 0); !near(k, -1e-3) {
		t.Errorf("thin kicker PolynomB[0] = %g", k)
	}
}

func TestEnergyRescalesHardware(t *testing.T) {
	ctx := context.Background()
	sim := New("design", newLattice(t), nil)
	bound, _ := sim.Attach(element.NewMagnet("QF1", element.Quadrupole, linear(t, "QF1-PS"), nil))
	qf := bound.(*element.Magnet)

	if brho := sim.MagnetRigidity(); !near(brho, 3e9/SpeedOfLight) {
		t.Fatalf("brho = %g", brho)
	}
	s, _ := qf.Strength()
	_ = s.Set(ctx, 0.1)
	h, _ := qf.Hardware()
	before, _ := h.Get(ctx)

	sim.SetEnergy(6e9)
	after, _ := h.Get(ctx)
	if !near(after, 2*before) {
		t.Errorf("hardware %g at 3 GeV, %g at 6 GeV", before, after)
	}
	if v, _ := s.Get(ctx); !near(v, 0.1) {
		t.Errorf("strength changed with energy: %g", v)
	}
}

func TestCombinedFunctionMagnet(t *testing.T) {
	ctx := context.Background()
	lat := newLattice(t)
	sim := New("design", lat, nil)

	c, _ := curve.New([][]float64{{-100, -200}, {100, 200}})
	m, _ := model.NewLinearCF(model.LinearCFConfig{
		Curves:          []*curve.Curve{c, c},
		PowerConverters: []string{"SX1-PS1", "SX1-PS2"},
	})
	tmpl, _ := element.NewCombinedFunctionMagnet("SX1", m, []element.Multipole{
		{Name: "SX1-S", Kind: element.Sextupole},
		{Name: "SX1-V", Kind: element.VCorrector},
	}, nil)
	if _, err := sim.Attach(tmpl); err != nil {
		t.Fatalf("attach: %v", err)
	}

	v, err := sim.Holder().Magnet("SX1-V")
	if err != nil {
		t.Fatalf("virtual magnet not registered: %v", err)
	}
	vs, _ := v.Strength()
	_ = vs.Set(ctx, 2e-4)
	sx, _ := sim.Holder().Magnet("SX1-S")
	ss, _ := sx.Strength()
	_ = ss.Set(ctx, 4)

	el, _ := lat.Find("SX1")
	if k, _ := el[0].Get(lattice.PolynomA, 0); !near(k, 1e-3) {
		t.Errorf("PolynomA[0] = %g", k)
	}
	if k, _ := el[0].Get(lattice.PolynomB, 2); !near(k, 20) {
		t.Errorf("PolynomB[2] = %g", k)
	}
	if got, _ := vs.Get(ctx); !near(got, 2e-4) {
		t.Errorf("sibling write clobbered SX1-V: %g", got)
	}
}

func TestSerializedMagnetsMoveTogether(t *testing.T) {
	ctx := context.Background()
	lat := newLattice(t)
	sim := New("design", lat, nil)

	m, err := model.NewSerialized(model.SerializedConfig{
		Models:          []model.Model{linear(t, ""), linear(t, "")},
		PowerConverters: []string{"QD-PS"},
	})
	if err != nil {
		t.Fatalf("serialized: %v", err)
	}
	tmpl, err := element.NewSerializedMagnets("QD", m, []element.Multipole{
		{Name: "QD1", Kind: element.Quadrupole},
		{Name: "QD2", Kind: element.Quadrupole},
	}, nil)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	bound, err := sim.Attach(tmpl)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	qd1, _ := sim.Holder().Magnet("QD1")
	s1, _ := qd1.Strength()
	_ = s1.Set(ctx, -0.3)

	all, _ := bound.(*element.SerializedMagnets).Strengths()
	got, _ := all.Get(ctx)
	if !near(got[0], -0.3) || !near(got[1], -0.3) {
		t.Errorf("series strengths = %v", got)
	}
}

func TestBPMReadsClosedOrbit(t *testing.T) {
	ctx := context.Background()
	lat := newLattice(t)
	el, _ := lat.Find("BPM1")
	_ = el[0].Set(lattice.ClosedOrbit, 0, 1e-4)
	_ = el[0].Set(lattice.ClosedOrbit, 1, -2e-4)

	for _, cfg := range []element.BPMConfig{{X: "BPM1:X", Y: "BPM1:Y"}, {Positions: "BPM1:XY"}} {
		tmpl, _ := element.NewBPM("BPM1", cfg, nil)
		sim := New("design", lat, nil)
		bound, err := sim.Attach(tmpl)
		if err != nil {
			t.Fatalf("attach %+v: %v", cfg, err)
		}
		pos, _ := bound.(*element.BPM).Positions()
		got, _ := pos.Get(ctx)
		if len(got) != 2 || !near(got[0], 1e-4) || !near(got[1], -2e-4) {
			t.Errorf("%+v: positions = %v", cfg, got)
		}
		if err := pos.Set(ctx, []float64{0, 0}); err == nil {
			t.Errorf("%+v: positions accepted a write", cfg)
		}
	}
}

func TestAttachUnknownLatticeElement(t *testing.T) {
	sim := New("design", newLattice(t), nil)
	_, err := sim.Attach(element.NewMagnet("QX9", element.Quadrupole, linear(t, "QX9-PS"), nil))
	if !types.IsKind(err, types.KindBinding) {
		t.Fatalf("expected binding error, got %v", err)
	}

	override := element.NewMagnet("QX9", element.Quadrupole, linear(t, "QX9-PS"), map[string]string{LatticeAttribute: "QD1"})
	if _, err := sim.Attach(override); err != nil {
		t.Fatalf("lattice override: %v", err)
	}
	if _, err := sim.Attach(override); !types.IsKind(err, types.KindConfig) {
		t.Errorf("second attach of QX9: %v", err)
	}
}
