package device

import (
	"context"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// List is a batched view over several channels. Backends that can read or
// write many channels in one round-trip provide their own implementation;
// Sequential is the fallback.
type List interface {
	Add(devices ...Access) error
	Devices() []Access
	Len() int
	Get(ctx context.Context) ([]float64, error)
	Set(ctx context.Context, values []float64) error
	SetAndWait(ctx context.Context, values []float64) error
	Readback(ctx context.Context) ([]Value, error)
	Units() []string
}

// Sequential implements List by visiting each channel in turn.
type Sequential struct {
	devices []Access
}

func NewSequential(devices ...Access) *Sequential {
	return &Sequential{devices: append([]Access(nil), devices...)}
}

func (s *Sequential) Add(devices ...Access) error {
	s.devices = append(s.devices, devices...)
	return nil
}

func (s *Sequential) Devices() []Access { return s.devices }
func (s *Sequential) Len() int          { return len(s.devices) }

func (s *Sequential) Get(ctx context.Context) ([]float64, error) {
	values := make([]float64, len(s.devices))
	for i, d := range s.devices {
		v, err := d.Get(ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (s *Sequential) Set(ctx context.Context, values []float64) error {
	if err := CheckLen(s.devices, values); err != nil {
		return err
	}
	if err := checkRanges(s.devices, values); err != nil {
		return err
	}
	for i, d := range s.devices {
		if err := d.Set(ctx, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequential) SetAndWait(ctx context.Context, values []float64) error {
	if err := CheckLen(s.devices, values); err != nil {
		return err
	}
	if err := checkRanges(s.devices, values); err != nil {
		return err
	}
	for i, d := range s.devices {
		if err := d.SetAndWait(ctx, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequential) Readback(ctx context.Context) ([]Value, error) {
	values := make([]Value, len(s.devices))
	for i, d := range s.devices {
		v, err := d.Readback(ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (s *Sequential) Units() []string {
	return Units(s.devices)
}

// CheckLen fails when a value slice does not match the channel count.
func CheckLen(devices []Access, values []float64) error {
	if len(values) != len(devices) {
		return types.Errorf(types.KindValue, "expected %d values, got %d", len(devices), len(values))
	}
	return nil
}

func Units(devices []Access) []string {
	units := make([]string, len(devices))
	for i, d := range devices {
		units[i] = d.Unit()
	}
	return units
}

// checkRanges rejects the whole write when any value is out of range.
func checkRanges(devices []Access, values []float64) error {
	for i, d := range devices {
		if err := d.Range().Check(d.Name(), values[i]); err != nil {
			return err
		}
	}
	return nil
}
