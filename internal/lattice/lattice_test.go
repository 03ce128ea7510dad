package lattice

import (
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

func TestFindByNameAndFamily(t *testing.T) {
	lat := NewMemory(3e9)
	for _, spec := range []ElementSpec{
		{Name: "QF1", Family: "QF", Length: 0.3},
		{Name: "QF1", Family: "QF", Length: 0.2},
		{Name: "QF2", Family: "QF", Length: 0.5},
		{Name: "BPM1"},
	} {
		if err := lat.Add(spec); err != nil {
			t.Fatalf("add %s: %v", spec.Name, err)
		}
	}

	slices, err := lat.Find("QF1")
	if err != nil || len(slices) != 2 {
		t.Fatalf("QF1: %d slices, %v", len(slices), err)
	}
	fam, _ := lat.Find("QF")
	if len(fam) != 3 {
		t.Errorf("family QF has %d slices", len(fam))
	}
	if _, err := lat.Find("QD1"); !types.IsKind(err, types.KindLookup) {
		t.Errorf("missing element: %v", err)
	}

	if names := lat.Names(); len(names) != 3 || names[0] != "QF1" || names[2] != "BPM1" {
		t.Errorf("names = %v", names)
	}
	if fams := lat.Families(); len(fams) != 1 || fams[0] != "QF" {
		t.Errorf("families = %v", fams)
	}
}

func TestAttributes(t *testing.T) {
	lat := NewMemory(1e9)
	_ = lat.Add(ElementSpec{Name: "SX1", Attributes: map[string][]float64{PolynomB: {0, 0, 1.5}}})
	e, _ := lat.Find("SX1")

	if v, _ := e[0].Get(PolynomB, 2); v != 1.5 {
		t.Errorf("PolynomB[2] = %g", v)
	}
	if _, err := e[0].Get(PolynomB, 3); !types.IsKind(err, types.KindLookup) {
		t.Errorf("short polynom read: %v", err)
	}
	if err := e[0].Set(PolynomA, 3, 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := e[0].Get(PolynomA, 3); v != 2 {
		t.Errorf("PolynomA[3] = %g", v)
	}
	if _, err := e[0].Get("K", 0); err == nil {
		t.Error("unknown attribute accepted")
	}

	lat.SetEnergy(2e9)
	if lat.Energy() != 2e9 {
		t.Errorf("energy = %g", lat.Energy())
	}
}

func TestAddRejectsBadElements(t *testing.T) {
	lat := NewMemory(1e9)
	if err := lat.Add(ElementSpec{}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("unnamed element: %v", err)
	}
	if err := lat.Add(ElementSpec{Name: "D1", Length: -1}); !types.IsKind(err, types.KindConfig) {
		t.Errorf("negative length: %v", err)
	}
}
