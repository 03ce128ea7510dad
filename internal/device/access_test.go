package device

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

func TestMemoryRangeBounds(t *testing.T) {
	ctx := context.Background()
	d := NewMemory("PS1", "", "A", NewRange(Float(0.0), Float(10.0)))

	if err := d.Set(ctx, 10.0); err != nil {
		t.Fatalf("set at upper bound: %v", err)
	}
	if err := d.Set(ctx, 0.0); err != nil {
		t.Fatalf("set at lower bound: %v", err)
	}

	err := d.Set(ctx, 10.0001)
	if err == nil {
		t.Fatal("expected range error above max")
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("unexpected message: %v", err)
	}
	if !types.IsKind(err, types.KindRange) {
		t.Errorf("expected range kind, got %v", err)
	}

	if err := d.Set(ctx, math.NaN()); !types.IsKind(err, types.KindRange) {
		t.Errorf("NaN accepted by channel with range %s: %v", d.Range(), err)
	}

	got, _ := d.Get(ctx)
	if got != 0.0 {
		t.Errorf("rejected write changed setpoint: %g", got)
	}
}

func TestRangeUnbounded(t *testing.T) {
	r := NewRange(nil, Float(1))
	if !r.Contains(-1e12) {
		t.Error("nil min should be unbounded")
	}
	if r.Contains(1.5) {
		t.Error("1.5 should exceed max")
	}
	if !(Range{}).Contains(math.NaN()) {
		t.Error("unbounded range should accept anything")
	}
	if r.String() != "[None, 1]" {
		t.Errorf("unexpected string %q", r.String())
	}
}

func TestMemoryReadbackInjection(t *testing.T) {
	ctx := context.Background()
	d := NewMemory("PS1", "PS1/RB", "A", Range{})
	_ = d.Set(ctx, 3)

	rb, err := d.Readback(ctx)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if rb.Value != 3 || rb.Quality != QualityValid {
		t.Errorf("readback = %+v", rb)
	}

	d.InjectReadback(2.5)
	rb, _ = d.Readback(ctx)
	if rb.Value != 2.5 {
		t.Errorf("injected readback = %g", rb.Value)
	}
	if d.MeasureName() != "PS1/RB" {
		t.Errorf("measure name = %s", d.MeasureName())
	}
}

func TestSequentialList(t *testing.T) {
	ctx := context.Background()
	a := NewMemory("A", "", "A", Range{})
	b := NewMemory("B", "", "V", Range{})
	l := NewSequential(a)
	_ = l.Add(b)

	if err := l.Set(ctx, []float64{1, 2}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := l.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("get = %v", got)
	}
	if u := l.Units(); u[0] != "A" || u[1] != "V" {
		t.Errorf("units = %v", u)
	}
	if err := l.Set(ctx, []float64{1}); !types.IsKind(err, types.KindValue) {
		t.Errorf("expected length error, got %v", err)
	}
}

func TestSequentialSetChecksEveryRangeFirst(t *testing.T) {
	ctx := context.Background()
	a := NewMemory("A", "", "A", NewRange(Float(-5), Float(5)))
	b := NewMemory("B", "", "A", NewRange(Float(-5), Float(5)))
	l := NewSequential(a, b)

	if err := l.Set(ctx, []float64{1, 6}); !types.IsKind(err, types.KindRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := l.SetAndWait(ctx, []float64{1, math.NaN()}); !types.IsKind(err, types.KindRange) {
		t.Fatalf("expected range error for NaN, got %v", err)
	}
	if a.Writes() != 0 || b.Writes() != 0 {
		t.Errorf("partial write: A %d, B %d", a.Writes(), b.Writes())
	}
}
