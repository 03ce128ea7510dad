package simulator

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/lattice"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

type polynom struct {
	attr  string
	index int
	sign  float64
}

// Horizontal kicks have the opposite sign of PolynomB[0].
var polynoms = map[element.MagnetKind]polynom{
	element.HCorrector: {lattice.PolynomB, 0, -1},
	element.VCorrector: {lattice.PolynomA, 0, 1},
	element.Dipole:     {lattice.PolynomB, 0, 1},
	element.Quadrupole: {lattice.PolynomB, 1, 1},
	element.SkewQuad:   {lattice.PolynomA, 1, 1},
	element.Sextupole:  {lattice.PolynomB, 2, 1},
	element.SkewSext:   {lattice.PolynomA, 2, 1},
	element.Octupole:   {lattice.PolynomB, 3, 1},
	element.SkewOctu:   {lattice.PolynomA, 3, 1},
}

// slot is one magnet function spread over the lattice slices that model
// it. Thin slices weigh 1, thick ones their length.
type slot struct {
	name   string
	p      polynom
	slices []lattice.Element
}

func newSlot(lat lattice.Lattice, name, latticeName string, kind element.MagnetKind) (slot, error) {
	p, ok := polynoms[kind]
	if !ok {
		return slot{}, types.Errorf(types.KindConfig, "%s: no lattice polynom for magnet type %s", name, kind)
	}
	slices, err := lat.Find(latticeName)
	if err != nil {
		return slot{}, types.Wrap(types.KindBinding, err, "%s", name)
	}
	return slot{name: name, p: p, slices: slices}, nil
}

func weight(e lattice.Element) float64 {
	if l := e.Length(); l > 0 {
		return l
	}
	return 1
}

func (s slot) get() (float64, error) {
	var sum float64
	for _, e := range s.slices {
		c, err := e.Get(s.p.attr, s.p.index)
		if err != nil {
			return 0, err
		}
		sum += c * weight(e)
	}
	return s.p.sign * sum, nil
}

func (s slot) set(strength float64) error {
	var total float64
	for _, e := range s.slices {
		total += weight(e)
	}
	coeff := s.p.sign * strength / total
	for _, e := range s.slices {
		if err := e.Set(s.p.attr, s.p.index, coeff); err != nil {
			return err
		}
	}
	return nil
}

// strengths reads and writes integrated magnet strengths straight from
// the lattice model.
type strengths struct {
	slots []slot
	units []string
}

func (r *strengths) Get(ctx context.Context) ([]float64, error) {
	out := make([]float64, len(r.slots))
	for i, s := range r.slots {
		v, err := s.get()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *strengths) Set(ctx context.Context, values []float64) error {
	if len(values) != len(r.slots) {
		return types.Errorf(types.KindValue, "expected %d strengths, got %d", len(r.slots), len(values))
	}
	for i, s := range r.slots {
		if err := s.set(values[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetAndWait is Set: the lattice has no settling time.
func (r *strengths) SetAndWait(ctx context.Context, values []float64) error {
	return r.Set(ctx, values)
}

func (r *strengths) Readback(ctx context.Context) ([]device.Value, error) {
	v, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]device.Value, len(v))
	for i := range v {
		out[i] = device.Value{Value: v[i], Quality: device.QualityValid, Timestamp: now}
	}
	return out, nil
}

func (r *strengths) Units() []string { return append([]string(nil), r.units...) }
func (r *strengths) Len() int        { return len(r.slots) }
