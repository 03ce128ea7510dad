package aggregator

import (
	"context"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Hardwares batches raw power-supply access. Each aggregated value maps
// onto one or more channels (several for magnets in series); channels
// shared by two values appear once in the list.
type Hardwares struct {
	mu      sync.Mutex
	list    device.List
	index   map[device.Access]int
	targets [][]int
	units   []string
}

func NewHardwares(list device.List) *Hardwares {
	return &Hardwares{list: list, index: make(map[device.Access]int)}
}

func (a *Hardwares) AddMagnet(m *element.Magnet) error {
	mdl := m.Model()
	if !mdl.HasHardware() {
		return types.Errorf(types.KindBinding, "%s has no model that supports hardware units", m.Name())
	}
	devs := mdl.Devices()
	channels, unit := devs, 0
	if m.Parent() != "" && !isCoupled(mdl) {
		channels, unit = devs[m.Index():m.Index()+1], m.Index()
	}
	return a.add(channels, mdl.HardwareUnits()[unit])
}

func isCoupled(m model.Model) bool {
	_, ok := m.(model.Coupled)
	return ok
}

func (a *Hardwares) add(channels []device.Access, unit string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var target []int
	for _, d := range channels {
		if d == nil {
			return types.Errorf(types.KindBinding, "hardware aggregator: unbound channel")
		}
		i, ok := a.index[d]
		if !ok {
			i = a.list.Len()
			if err := a.list.Add(d); err != nil {
				return err
			}
			a.index[d] = i
		}
		target = append(target, i)
	}
	if len(target) == 0 {
		return types.Errorf(types.KindBinding, "hardware aggregator: value without channels")
	}
	a.targets = append(a.targets, target)
	if d := channels[0]; d.Unit() != "" {
		unit = d.Unit()
	}
	a.units = append(a.units, unit)
	return nil
}

func (a *Hardwares) Get(ctx context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := a.list.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(a.targets))
	for i, t := range a.targets {
		out[i] = raw[t[0]]
	}
	return out, nil
}

func (a *Hardwares) Set(ctx context.Context, values []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(values) != len(a.targets) {
		return types.Errorf(types.KindValue, "expected %d hardware values, got %d", len(a.targets), len(values))
	}
	raw := make([]float64, a.list.Len())
	for i, t := range a.targets {
		for _, j := range t {
			raw[j] = values[i]
		}
	}
	return a.list.Set(ctx, raw)
}

func (a *Hardwares) SetAndWait(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindNotImplemented, "aggregated hardware values: set and wait not implemented yet")
}

func (a *Hardwares) Readback(ctx context.Context) ([]device.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rb, err := a.list.Readback(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]device.Value, len(a.targets))
	for i, t := range a.targets {
		out[i] = rb[t[0]]
	}
	return out, nil
}

func (a *Hardwares) Units() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.units...)
}

func (a *Hardwares) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.targets)
}
