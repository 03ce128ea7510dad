package array

import (
	"context"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/aggregator"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

type MagnetArray struct {
	*ElementArray
	magnets []*element.Magnet
	backend Backend

	mu            sync.Mutex
	strengthAgg   element.RW
	hardwareAgg   element.RW
	noAggregation bool
}

// NewMagnetArray builds an array of magnets. With a backend, Strengths and
// Hardwares are served by aggregators built on first use.
func NewMagnetArray(name string, magnets []*element.Magnet, backend Backend, logger *zap.Logger) (*MagnetArray, error) {
	base, err := New(name, upcast(magnets), logger)
	if err != nil {
		return nil, err
	}
	return &MagnetArray{ElementArray: base, magnets: append([]*element.Magnet(nil), magnets...), backend: backend}, nil
}

func (a *MagnetArray) Magnets() []*element.Magnet {
	return append([]*element.Magnet(nil), a.magnets...)
}

// SetAggregator routes Strengths through agg.
func (a *MagnetArray) SetAggregator(agg *aggregator.Strengths) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strengthAgg = agg
}

// SetHardwareAggregator routes Hardwares through agg.
func (a *MagnetArray) SetHardwareAggregator(agg *aggregator.Hardwares) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hardwareAgg = agg
}

// DisableAggregation forces element-by-element access.
func (a *MagnetArray) DisableAggregation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.noAggregation = true
	a.strengthAgg, a.hardwareAgg = nil, nil
}

// Strengths reads and writes every magnet strength, in array order.
func (a *MagnetArray) Strengths() (element.RW, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.strengthAgg != nil {
		return a.strengthAgg, nil
	}
	if a.backend != nil && !a.noAggregation {
		agg := aggregator.NewStrengths(a.backend.NewDeviceList())
		for _, m := range a.magnets {
			if err := agg.AddMagnet(m); err != nil {
				return nil, types.Wrap(types.KindBinding, err, "%s", a.name)
			}
		}
		a.strengthAgg = agg
		return agg, nil
	}
	return scalars(a.name, a.magnets, (*element.Magnet).Strength)
}

// Hardwares reads and writes every magnet's power-supply value.
func (a *MagnetArray) Hardwares() (element.RW, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hardwareAgg != nil {
		return a.hardwareAgg, nil
	}
	if a.backend != nil && !a.noAggregation {
		agg := aggregator.NewHardwares(a.backend.NewDeviceList())
		for _, m := range a.magnets {
			if err := agg.AddMagnet(m); err != nil {
				return nil, types.Wrap(types.KindBinding, err, "%s", a.name)
			}
		}
		a.hardwareAgg = agg
		return agg, nil
	}
	return scalars(a.name, a.magnets, (*element.Magnet).Hardware)
}

func scalars(name string, magnets []*element.Magnet, accessor func(*element.Magnet) (*element.Scalar, error)) (element.RW, error) {
	parts := make([]element.RW, len(magnets))
	for i, m := range magnets {
		s, err := accessor(m)
		if err != nil {
			return nil, types.Wrap(types.KindBinding, err, "%s", name)
		}
		parts[i] = s.RW()
	}
	return newConcat(name, parts), nil
}

type CombinedFunctionMagnetArray struct {
	*ElementArray
	magnets []*element.CombinedFunctionMagnet
}

func NewCombinedFunctionMagnetArray(name string, magnets []*element.CombinedFunctionMagnet, logger *zap.Logger) (*CombinedFunctionMagnetArray, error) {
	base, err := New(name, upcast(magnets), logger)
	if err != nil {
		return nil, err
	}
	return &CombinedFunctionMagnetArray{ElementArray: base, magnets: magnets}, nil
}

func (a *CombinedFunctionMagnetArray) Magnets() []*element.CombinedFunctionMagnet {
	return append([]*element.CombinedFunctionMagnet(nil), a.magnets...)
}

// Strengths concatenates the function vectors of every magnet.
func (a *CombinedFunctionMagnetArray) Strengths() (element.RW, error) {
	return collect(a.name, a.magnets, (*element.CombinedFunctionMagnet).Strengths)
}

func (a *CombinedFunctionMagnetArray) Hardwares() (element.RW, error) {
	return collect(a.name, a.magnets, (*element.CombinedFunctionMagnet).Hardwares)
}

type SerializedMagnetsArray struct {
	*ElementArray
	magnets []*element.SerializedMagnets
}

func NewSerializedMagnetsArray(name string, magnets []*element.SerializedMagnets, logger *zap.Logger) (*SerializedMagnetsArray, error) {
	base, err := New(name, upcast(magnets), logger)
	if err != nil {
		return nil, err
	}
	return &SerializedMagnetsArray{ElementArray: base, magnets: magnets}, nil
}

func (a *SerializedMagnetsArray) Magnets() []*element.SerializedMagnets {
	return append([]*element.SerializedMagnets(nil), a.magnets...)
}

func (a *SerializedMagnetsArray) Strengths() (element.RW, error) {
	return collect(a.name, a.magnets, (*element.SerializedMagnets).Strengths)
}

func (a *SerializedMagnetsArray) Hardwares() (element.RW, error) {
	return collect(a.name, a.magnets, (*element.SerializedMagnets).Hardwares)
}

func collect[T any](name string, items []T, accessor func(T) (element.RW, error)) (element.RW, error) {
	parts := make([]element.RW, len(items))
	for i, it := range items {
		rw, err := accessor(it)
		if err != nil {
			return nil, types.Wrap(types.KindBinding, err, "%s", name)
		}
		parts[i] = rw
	}
	return newConcat(name, parts), nil
}

// concat visits each part in turn; no batching.
type concat struct {
	name  string
	parts []element.RW
}

func newConcat(name string, parts []element.RW) *concat {
	return &concat{name: name, parts: parts}
}

func (c *concat) Get(ctx context.Context) ([]float64, error) {
	out := make([]float64, 0, c.Len())
	for _, p := range c.parts {
		v, err := p.Get(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

func (c *concat) Set(ctx context.Context, values []float64) error {
	return c.write(values, func(p element.RW, v []float64) error { return p.Set(ctx, v) })
}

func (c *concat) SetAndWait(ctx context.Context, values []float64) error {
	return c.write(values, func(p element.RW, v []float64) error { return p.SetAndWait(ctx, v) })
}

func (c *concat) write(values []float64, set func(element.RW, []float64) error) error {
	if len(values) != c.Len() {
		return types.Errorf(types.KindValue, "%s: expected %d values, got %d", c.name, c.Len(), len(values))
	}
	off := 0
	for _, p := range c.parts {
		n := p.Len()
		if err := set(p, values[off:off+n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}

func (c *concat) Readback(ctx context.Context) ([]device.Value, error) {
	out := make([]device.Value, 0, c.Len())
	for _, p := range c.parts {
		v, err := p.Readback(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

func (c *concat) Units() []string {
	var out []string
	for _, p := range c.parts {
		out = append(out, p.Units()...)
	}
	return out
}

func (c *concat) Len() int {
	n := 0
	for _, p := range c.parts {
		n += p.Len()
	}
	return n
}
