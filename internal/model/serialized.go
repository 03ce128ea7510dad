package model

import (
	"context"
	"math"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// SerializedConfig describes magnets wired in series: every sub-model
// converts the one shared current into its own strength, and all listed
// power converters receive that same current.
type SerializedConfig struct {
	Models          []Model
	PowerConverters []string
	HardwareUnit    string
}

type Serialized struct {
	subs   []Model
	psRefs []string
	hwUnit string
	ps     []device.Access
}

func NewSerialized(cfg SerializedConfig) (*Serialized, error) {
	if len(cfg.Models) == 0 {
		return nil, types.Errorf(types.KindConfig, "serialized model needs at least one magnet")
	}
	if len(cfg.PowerConverters) == 0 {
		return nil, types.Errorf(types.KindConfig, "serialized model needs at least one power converter")
	}
	m := &Serialized{
		subs:   make([]Model, len(cfg.Models)),
		psRefs: append([]string(nil), cfg.PowerConverters...),
		hwUnit: cfg.HardwareUnit,
	}
	if m.hwUnit == "" {
		m.hwUnit = "A"
	}
	for i, sub := range cfg.Models {
		if sub.NumFunctions() != 1 || sub.NumChannels() != 1 || !sub.HasPhysics() {
			return nil, types.Errorf(types.KindConfig, "serialized magnet %d must be a single-function model with physics units", i)
		}
		// Sub-models only convert; the shared converters are driven here.
		clone, err := sub.Bind(make([]device.Access, len(sub.DeviceRefs())))
		if err != nil {
			return nil, types.Wrap(types.KindConfig, err, "serialized magnet %d", i)
		}
		m.subs[i] = clone
	}
	return m, nil
}

func (m *Serialized) ComputeStrengths(hardware []float64) ([]float64, error) {
	if err := checkLen("hardware values", hardware, len(m.psRefs)); err != nil {
		return nil, err
	}
	return m.strengthsAt(hardware[0])
}

func (m *Serialized) strengthsAt(current float64) ([]float64, error) {
	strengths := make([]float64, len(m.subs))
	for i, sub := range m.subs {
		s, err := sub.ComputeStrengths([]float64{current})
		if err != nil {
			return nil, err
		}
		strengths[i] = s[0]
	}
	return strengths, nil
}

// ComputeHardwareValues fails unless every requested strength corresponds
// to the same current; series magnets cannot be set independently.
func (m *Serialized) ComputeHardwareValues(strengths []float64) ([]float64, error) {
	if err := checkLen("strengths", strengths, len(m.subs)); err != nil {
		return nil, err
	}
	var current float64
	for i, sub := range m.subs {
		hw, err := sub.ComputeHardwareValues([]float64{strengths[i]})
		if err != nil {
			return nil, err
		}
		if i == 0 {
			current = hw[0]
			continue
		}
		if math.Abs(hw[0]-current) > 1e-9*math.Max(1, math.Abs(current)) {
			return nil, types.Errorf(types.KindValue,
				"serialized magnets share one setpoint: strength %d needs %g, strength 0 needs %g", i, hw[0], current)
		}
	}
	out := make([]float64, len(m.psRefs))
	for i := range out {
		out[i] = current
	}
	return out, nil
}

// Propagate sets magnet index to strength and returns the strengths every
// magnet in the series ends up with.
func (m *Serialized) Propagate(index int, strength float64) ([]float64, error) {
	if index < 0 || index >= len(m.subs) {
		return nil, types.Errorf(types.KindLookup, "serialized magnet index %d out of range [0, %d)", index, len(m.subs))
	}
	hw, err := m.subs[index].ComputeHardwareValues([]float64{strength})
	if err != nil {
		return nil, err
	}
	return m.strengthsAt(hw[0])
}

func (m *Serialized) StrengthUnits() []string {
	units := make([]string, len(m.subs))
	for i, sub := range m.subs {
		units[i] = sub.StrengthUnits()[0]
	}
	return units
}

func (m *Serialized) HardwareUnits() []string {
	units := make([]string, len(m.psRefs))
	for i := range units {
		units[i] = m.hwUnit
	}
	return deviceUnits(m.ps, units)
}

func (m *Serialized) ReadHardwareValues(ctx context.Context) ([]float64, error) {
	return readDevices(ctx, m.Devices())
}

func (m *Serialized) ReadbackHardwareValues(ctx context.Context) ([]device.Value, error) {
	return readbackDevices(ctx, m.Devices())
}

func (m *Serialized) SendHardwareValues(ctx context.Context, values []float64) error {
	return sendDevices(ctx, m.Devices(), values)
}

func (m *Serialized) Devices() []device.Access {
	if m.ps == nil {
		return make([]device.Access, len(m.psRefs))
	}
	return append([]device.Access(nil), m.ps...)
}

func (m *Serialized) DeviceRefs() []string { return append([]string(nil), m.psRefs...) }

func (m *Serialized) Bind(devices []device.Access) (Model, error) {
	if err := checkBind(m.psRefs, devices); err != nil {
		return nil, err
	}
	bound := &Serialized{
		subs:   make([]Model, len(m.subs)),
		psRefs: m.psRefs,
		hwUnit: m.hwUnit,
		ps:     append([]device.Access(nil), devices...),
	}
	for i, sub := range m.subs {
		clone, err := sub.Bind(make([]device.Access, len(sub.DeviceRefs())))
		if err != nil {
			return nil, err
		}
		bound.subs[i] = clone
	}
	return bound, nil
}

func (m *Serialized) SetMagnetRigidity(brho float64) {
	for _, sub := range m.subs {
		sub.SetMagnetRigidity(brho)
	}
}

func (m *Serialized) MagnetRigidity() float64 { return m.subs[0].MagnetRigidity() }

func (m *Serialized) HasPhysics() bool         { return true }
func (m *Serialized) HasHardware() bool        { return true }
func (m *Serialized) HasPowerConverters() bool { return true }
func (m *Serialized) NumFunctions() int        { return len(m.subs) }
func (m *Serialized) NumChannels() int         { return len(m.psRefs) }
