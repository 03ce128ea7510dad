package devices

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/modbus"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
)

// List routes Modbus channels into one batched modbus.List and everything
// else into a device.Sequential, keeping the caller's channel order.
type List struct {
	metrics *observability.Metrics
	devices []device.Access
	modbus  *modbus.List
	other   *device.Sequential
	route   []ref
}

type ref struct {
	batched bool
	index   int
}

func newList(metrics *observability.Metrics) *List {
	return &List{
		metrics: metrics,
		modbus:  modbus.NewList(),
		other:   device.NewSequential(),
	}
}

func (l *List) Add(devices ...device.Access) error {
	for _, d := range devices {
		if ch, ok := unwrap(d).(*modbus.Channel); ok {
			if err := l.modbus.Add(ch); err != nil {
				return err
			}
			l.route = append(l.route, ref{batched: true, index: l.modbus.Len() - 1})
		} else {
			if err := l.other.Add(d); err != nil {
				return err
			}
			l.route = append(l.route, ref{index: l.other.Len() - 1})
		}
		l.devices = append(l.devices, d)
	}
	return nil
}

func (l *List) Devices() []device.Access { return l.devices }
func (l *List) Len() int                 { return len(l.devices) }
func (l *List) Units() []string          { return device.Units(l.devices) }

func (l *List) Get(ctx context.Context) ([]float64, error) {
	l.metrics.BatchSize("get", len(l.devices))
	batched, err := l.batched("list_get", func() ([]float64, error) { return l.modbus.Get(ctx) })
	if err != nil {
		return nil, err
	}
	other, err := l.other.Get(ctx)
	if err != nil {
		return nil, err
	}
	return merge(l.route, batched, other), nil
}

func (l *List) Readback(ctx context.Context) ([]device.Value, error) {
	l.metrics.BatchSize("readback", len(l.devices))
	var batched []device.Value
	if l.modbus.Len() > 0 {
		start := time.Now()
		var err error
		batched, err = l.modbus.Readback(ctx)
		l.metrics.DeviceOp("modbus", "list_readback", start, err)
		if err != nil {
			return nil, err
		}
	}
	other, err := l.other.Readback(ctx)
	if err != nil {
		return nil, err
	}
	return merge(l.route, batched, other), nil
}

// Set checks every value against its channel before writing any of them.
func (l *List) Set(ctx context.Context, values []float64) error {
	if err := device.CheckLen(l.devices, values); err != nil {
		return err
	}
	for i, d := range l.devices {
		if err := d.Range().Check(d.Name(), values[i]); err != nil {
			return err
		}
	}
	l.metrics.BatchSize("set", len(values))

	batched, other := split(l.route, values)
	if _, err := l.batched("list_set", func() ([]float64, error) { return nil, l.modbus.Set(ctx, batched) }); err != nil {
		return err
	}
	return l.other.Set(ctx, other)
}

func (l *List) SetAndWait(ctx context.Context, values []float64) error {
	if err := device.CheckLen(l.devices, values); err != nil {
		return err
	}
	batched, other := split(l.route, values)
	if l.modbus.Len() > 0 {
		if err := l.modbus.SetAndWait(ctx, batched); err != nil {
			return err
		}
	}
	return l.other.SetAndWait(ctx, other)
}

func (l *List) batched(op string, call func() ([]float64, error)) ([]float64, error) {
	if l.modbus.Len() == 0 {
		return nil, nil
	}
	start := time.Now()
	out, err := call()
	l.metrics.DeviceOp("modbus", op, start, err)
	return out, err
}

func split(route []ref, values []float64) (batched, other []float64) {
	for i, r := range route {
		if r.batched {
			batched = append(batched, values[i])
		} else {
			other = append(other, values[i])
		}
	}
	return batched, other
}

func merge[T any](route []ref, batched, other []T) []T {
	out := make([]T, len(route))
	for i, r := range route {
		if r.batched {
			out[i] = batched[r.index]
		} else {
			out[i] = other[r.index]
		}
	}
	return out
}
