package aggregator

import (
	"context"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Positions batches BPM readings as [h0, v0, h1, v1, ...]. Only monitors
// publishing separate h and v channels can be aggregated.
type Positions struct {
	mu    sync.Mutex
	list  device.List
	units []string
}

func NewPositions(list device.List) *Positions {
	return &Positions{list: list}
}

func (a *Positions) AddBPM(b *element.BPM) error {
	h, v, ok := b.ScalarDevices()
	if !ok {
		return types.Errorf(types.KindBinding, "%s publishes a position vector and cannot be aggregated", b.Name())
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.list.Add(h, v); err != nil {
		return err
	}
	a.units = append(a.units, h.Unit(), v.Unit())
	return nil
}

func (a *Positions) Get(ctx context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.list.Get(ctx)
}

func (a *Positions) Set(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindValue, "bpm positions are read-only")
}

func (a *Positions) SetAndWait(ctx context.Context, values []float64) error {
	return a.Set(ctx, values)
}

func (a *Positions) Readback(ctx context.Context) ([]device.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.list.Readback(ctx)
}

func (a *Positions) Units() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.units...)
}

func (a *Positions) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.units)
}

// Plane is a strided view on interleaved positions: plane 0 is h, 1 is v.
type Plane struct {
	positions element.RW
	plane     int
}

func NewPlane(positions element.RW, plane int) *Plane {
	return &Plane{positions: positions, plane: plane}
}

func (p *Plane) Get(ctx context.Context) ([]float64, error) {
	all, err := p.positions.Get(ctx)
	if err != nil {
		return nil, err
	}
	return stride(all, p.plane), nil
}

func (p *Plane) Set(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindValue, "bpm positions are read-only")
}

func (p *Plane) SetAndWait(ctx context.Context, values []float64) error {
	return p.Set(ctx, values)
}

func (p *Plane) Readback(ctx context.Context) ([]device.Value, error) {
	all, err := p.positions.Readback(ctx)
	if err != nil {
		return nil, err
	}
	return stride(all, p.plane), nil
}

func (p *Plane) Units() []string { return stride(p.positions.Units(), p.plane) }
func (p *Plane) Len() int        { return p.positions.Len() / 2 }

func stride[T any](all []T, offset int) []T {
	out := make([]T, 0, len(all)/2)
	for i := offset; i < len(all); i += 2 {
		out = append(out, all[i])
	}
	return out
}
