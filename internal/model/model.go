// Package model converts magnet strengths (physics units) to hardware
// values (power-supply currents or voltages) and back.
//
// A model is built unbound from configuration. DeviceRefs names the channels
// it needs, in the index order used by every array-shaped method, and Bind
// returns an independent instance driving the given channels. Every bound
// instance starts with an unset (NaN) magnet rigidity; conversions done
// before SetMagnetRigidity yield NaN.
package model

import (
	"context"
	"math"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

type Model interface {
	// ComputeHardwareValues converts NumFunctions strengths into NumChannels hardware values.
	ComputeHardwareValues(strengths []float64) ([]float64, error)
	// ComputeStrengths converts NumChannels hardware values into NumFunctions strengths.
	ComputeStrengths(hardware []float64) ([]float64, error)

	StrengthUnits() []string
	HardwareUnits() []string

	ReadHardwareValues(ctx context.Context) ([]float64, error)
	ReadbackHardwareValues(ctx context.Context) ([]device.Value, error)
	SendHardwareValues(ctx context.Context, values []float64) error

	Devices() []device.Access
	DeviceRefs() []string
	Bind(devices []device.Access) (Model, error)

	SetMagnetRigidity(brho float64)
	MagnetRigidity() float64

	HasHardware() bool
	HasPhysics() bool
	// HasPowerConverters reports whether the channels are power converters
	// rather than channels already in strength units.
	HasPowerConverters() bool

	NumFunctions() int
	NumChannels() int
}

// Coupled is implemented by models whose functions cannot be set
// independently. Propagate returns the full strength vector that results
// from setting function index to strength.
type Coupled interface {
	Propagate(index int, strength float64) ([]float64, error)
}

type rigidity struct {
	brho float64
}

func unsetRigidity() rigidity {
	return rigidity{brho: math.NaN()}
}

func (r *rigidity) SetMagnetRigidity(brho float64) { r.brho = brho }
func (r *rigidity) MagnetRigidity() float64        { return r.brho }

func predict(f curve.Interpolator, x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	return f.Predict(x)
}

func checkLen(what string, values []float64, want int) error {
	if len(values) != want {
		return types.Errorf(types.KindValue, "%s: expected %d values, got %d", what, want, len(values))
	}
	return nil
}

func checkBind(refs []string, devices []device.Access) error {
	if len(devices) != len(refs) {
		return types.Errorf(types.KindBinding, "model needs %d devices %v, got %d", len(refs), refs, len(devices))
	}
	return nil
}

func ready(devices []device.Access) error {
	if len(devices) == 0 {
		return types.Errorf(types.KindBinding, "model has no hardware channels")
	}
	for i, d := range devices {
		if d == nil {
			return types.Errorf(types.KindBinding, "model channel %d is not bound to a device", i)
		}
	}
	return nil
}

func readDevices(ctx context.Context, devices []device.Access) ([]float64, error) {
	if err := ready(devices); err != nil {
		return nil, err
	}
	values := make([]float64, len(devices))
	for i, d := range devices {
		v, err := d.Get(ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func readbackDevices(ctx context.Context, devices []device.Access) ([]device.Value, error) {
	if err := ready(devices); err != nil {
		return nil, err
	}
	values := make([]device.Value, len(devices))
	for i, d := range devices {
		v, err := d.Readback(ctx)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func sendDevices(ctx context.Context, devices []device.Access, values []float64) error {
	if err := ready(devices); err != nil {
		return err
	}
	if err := device.CheckLen(devices, values); err != nil {
		return err
	}
	for i, d := range devices {
		if err := d.Set(ctx, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func deviceUnits(devices []device.Access, fallback []string) []string {
	units := append([]string(nil), fallback...)
	for i, d := range devices {
		if d != nil && i < len(units) && d.Unit() != "" {
			units[i] = d.Unit()
		}
	}
	return units
}

// Values extracts the numbers from readback values.
func Values(values []device.Value) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.Value
	}
	return out
}

func defaults(values []float64, n int, def float64, what string) ([]float64, error) {
	if len(values) == 0 {
		out := make([]float64, n)
		for i := range out {
			out[i] = def
		}
		return out, nil
	}
	if len(values) != n {
		return nil, types.Errorf(types.KindConfig, "%s: expected %d values, got %d", what, n, len(values))
	}
	return append([]float64(nil), values...), nil
}

func defaultStrings(values []string, n int, def string, what string) ([]string, error) {
	if len(values) == 0 {
		out := make([]string, n)
		for i := range out {
			out[i] = def
		}
		return out, nil
	}
	if len(values) != n {
		return nil, types.Errorf(types.KindConfig, "%s: expected %d values, got %d", what, n, len(values))
	}
	return append([]string(nil), values...), nil
}
