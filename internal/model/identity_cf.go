package model

import (
	"context"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// IdentityCFConfig lists one channel per function, either on the physics
// side or the power-converter side.
type IdentityCFConfig struct {
	Units           []string
	Physics         []string
	PowerConverters []string
}

type IdentityCF struct {
	rigidity
	units   []string
	refs    []string
	physics bool
	devs    []device.Access
}

func NewIdentityCF(cfg IdentityCFConfig) (*IdentityCF, error) {
	if (len(cfg.Physics) == 0) == (len(cfg.PowerConverters) == 0) {
		return nil, types.Errorf(types.KindConfig, "identity combined function model needs exactly one of physics or powerconverters")
	}
	m := &IdentityCF{rigidity: unsetRigidity(), physics: len(cfg.Physics) > 0}
	if m.physics {
		m.refs = append([]string(nil), cfg.Physics...)
	} else {
		m.refs = append([]string(nil), cfg.PowerConverters...)
	}
	var err error
	if m.units, err = defaultStrings(cfg.Units, len(m.refs), "", "units"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IdentityCF) ComputeHardwareValues(strengths []float64) ([]float64, error) {
	if err := checkLen("strengths", strengths, len(m.refs)); err != nil {
		return nil, err
	}
	return append([]float64(nil), strengths...), nil
}

func (m *IdentityCF) ComputeStrengths(hardware []float64) ([]float64, error) {
	if err := checkLen("hardware values", hardware, len(m.refs)); err != nil {
		return nil, err
	}
	return append([]float64(nil), hardware...), nil
}

func (m *IdentityCF) StrengthUnits() []string { return deviceUnits(m.devs, m.units) }
func (m *IdentityCF) HardwareUnits() []string { return deviceUnits(m.devs, m.units) }

func (m *IdentityCF) ReadHardwareValues(ctx context.Context) ([]float64, error) {
	return readDevices(ctx, m.Devices())
}

func (m *IdentityCF) ReadbackHardwareValues(ctx context.Context) ([]device.Value, error) {
	return readbackDevices(ctx, m.Devices())
}

func (m *IdentityCF) SendHardwareValues(ctx context.Context, values []float64) error {
	return sendDevices(ctx, m.Devices(), values)
}

func (m *IdentityCF) Devices() []device.Access {
	if m.devs == nil {
		return make([]device.Access, len(m.refs))
	}
	return append([]device.Access(nil), m.devs...)
}

func (m *IdentityCF) DeviceRefs() []string { return append([]string(nil), m.refs...) }

func (m *IdentityCF) Bind(devices []device.Access) (Model, error) {
	if err := checkBind(m.refs, devices); err != nil {
		return nil, err
	}
	bound := *m
	bound.rigidity = unsetRigidity()
	bound.devs = append([]device.Access(nil), devices...)
	return &bound, nil
}

func (m *IdentityCF) HasPhysics() bool         { return m.physics }
func (m *IdentityCF) HasHardware() bool        { return !m.physics }
func (m *IdentityCF) HasPowerConverters() bool { return !m.physics }
func (m *IdentityCF) NumFunctions() int        { return len(m.refs) }
func (m *IdentityCF) NumChannels() int         { return len(m.refs) }
