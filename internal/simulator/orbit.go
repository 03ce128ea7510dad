package simulator

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/lattice"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

const allPlanes = -1

// orbit is a read-only channel on the closed orbit at a monitor. plane is
// 0 (h), 1 (v) or allPlanes for the [x, y] vector.
type orbit struct {
	name  string
	at    lattice.Element
	plane int
}

func (o *orbit) Name() string        { return o.name }
func (o *orbit) MeasureName() string { return o.name }
func (o *orbit) Unit() string        { return "m" }
func (o *orbit) Range() device.Range { return device.Range{} }

func (o *orbit) Get(ctx context.Context) (float64, error) {
	p := o.plane
	if p == allPlanes {
		p = 0
	}
	return o.at.Get(lattice.ClosedOrbit, p)
}

func (o *orbit) Set(ctx context.Context, value float64) error {
	return types.Errorf(types.KindValue, "%s is read only", o.name)
}

func (o *orbit) SetAndWait(ctx context.Context, value float64) error {
	return o.Set(ctx, value)
}

func (o *orbit) Readback(ctx context.Context) (device.Value, error) {
	v, err := o.Get(ctx)
	if err != nil {
		return device.Value{}, err
	}
	return device.Value{Value: v, Quality: device.QualityValid, Timestamp: time.Now()}, nil
}

func (o *orbit) ReadVector(ctx context.Context) ([]float64, error) {
	x, err := o.at.Get(lattice.ClosedOrbit, 0)
	if err != nil {
		return nil, err
	}
	y, err := o.at.Get(lattice.ClosedOrbit, 1)
	if err != nil {
		return nil, err
	}
	return []float64{x, y}, nil
}
