// Package aggregator batches array reads and writes into one round-trip
// per operation over the union of the devices involved.
package aggregator

import (
	"context"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

type slot struct {
	value    int // position in the aggregated vector
	function int // function index inside the model
}

// registration is one model and the device range it occupies in the
// shared list. Sibling multipoles add slots, never devices.
type registration struct {
	model model.Model
	start int
	end   int
	slots []slot
}

// Strengths reads and writes magnet strengths through a device list.
// A write reads every device, recomputes the full function vector of each
// model with only the requested slots replaced, and writes every device
// back, so functions sharing a model with the written ones keep their
// setpoints.
type Strengths struct {
	mu      sync.Mutex
	list    device.List
	regs    []*registration
	byModel map[model.Model]*registration
	units   []string
}

func NewStrengths(list device.List) *Strengths {
	return &Strengths{list: list, byModel: make(map[model.Model]*registration)}
}

func (a *Strengths) AddMagnet(m *element.Magnet) error {
	mdl := m.Model()
	if !mdl.HasPhysics() {
		return types.Errorf(types.KindBinding, "%s has no model that supports physics units", m.Name())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	reg, seen := a.byModel[mdl]
	if !seen {
		devs := mdl.Devices()
		start := a.list.Len()
		if err := a.list.Add(devs...); err != nil {
			return err
		}
		reg = &registration{model: mdl, start: start, end: start + len(devs)}
		a.byModel[mdl] = reg
		a.regs = append(a.regs, reg)
	}
	reg.slots = append(reg.slots, slot{value: len(a.units), function: m.Index()})
	a.units = append(a.units, mdl.StrengthUnits()[m.Index()])
	return nil
}

func (a *Strengths) Get(ctx context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hw, err := a.list.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(a.units))
	for _, reg := range a.regs {
		s, err := reg.model.ComputeStrengths(hw[reg.start:reg.end])
		if err != nil {
			return nil, err
		}
		for _, sl := range reg.slots {
			out[sl.value] = s[sl.function]
		}
	}
	return out, nil
}

func (a *Strengths) Set(ctx context.Context, values []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(values) != len(a.units) {
		return types.Errorf(types.KindValue, "expected %d strengths, got %d", len(a.units), len(values))
	}
	hw, err := a.list.Get(ctx)
	if err != nil {
		return err
	}
	for _, reg := range a.regs {
		cur, err := reg.model.ComputeStrengths(hw[reg.start:reg.end])
		if err != nil {
			return err
		}
		coupled, isCoupled := reg.model.(model.Coupled)
		for _, sl := range reg.slots {
			if isCoupled {
				if cur, err = coupled.Propagate(sl.function, values[sl.value]); err != nil {
					return err
				}
				continue
			}
			cur[sl.function] = values[sl.value]
		}
		next, err := reg.model.ComputeHardwareValues(cur)
		if err != nil {
			return err
		}
		copy(hw[reg.start:reg.end], next)
	}
	return a.list.Set(ctx, hw)
}

func (a *Strengths) SetAndWait(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindNotImplemented, "aggregated strengths: set and wait not implemented yet")
}

func (a *Strengths) Readback(ctx context.Context) ([]device.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rb, err := a.list.Readback(ctx)
	if err != nil {
		return nil, err
	}
	hw := model.Values(rb)
	out := make([]device.Value, len(a.units))
	for _, reg := range a.regs {
		s, err := reg.model.ComputeStrengths(hw[reg.start:reg.end])
		if err != nil {
			return nil, err
		}
		stamped := element.Restamp(s, rb[reg.start:reg.end])
		for _, sl := range reg.slots {
			out[sl.value] = stamped[sl.function]
		}
	}
	return out, nil
}

func (a *Strengths) Units() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.units...)
}

func (a *Strengths) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.units)
}

// Devices returns the union of channels in list order.
func (a *Strengths) Devices() []device.Access { return a.list.Devices() }
