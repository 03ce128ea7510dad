package model

import (
	"context"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// IdentityConfig configures a pass-through model. Exactly one of Physics
// (a channel already in strength units) or PowerConverter is set.
type IdentityConfig struct {
	Unit           string
	Physics        string
	PowerConverter string
}

// Identity performs no conversion; the single channel is read and written
// as is.
type Identity struct {
	rigidity
	unit       string
	physicsRef string
	psRef      string
	dev        device.Access
}

func NewIdentity(cfg IdentityConfig) (*Identity, error) {
	if (cfg.Physics == "") == (cfg.PowerConverter == "") {
		return nil, types.Errorf(types.KindConfig, "identity model needs exactly one of physics or powerconverter")
	}
	return &Identity{
		rigidity:   unsetRigidity(),
		unit:       cfg.Unit,
		physicsRef: cfg.Physics,
		psRef:      cfg.PowerConverter,
	}, nil
}

func (m *Identity) ComputeHardwareValues(strengths []float64) ([]float64, error) {
	if err := checkLen("identity strengths", strengths, 1); err != nil {
		return nil, err
	}
	return append([]float64(nil), strengths...), nil
}

func (m *Identity) ComputeStrengths(hardware []float64) ([]float64, error) {
	if err := checkLen("identity hardware values", hardware, 1); err != nil {
		return nil, err
	}
	return append([]float64(nil), hardware...), nil
}

func (m *Identity) StrengthUnits() []string { return m.units() }
func (m *Identity) HardwareUnits() []string { return m.units() }

func (m *Identity) units() []string {
	return deviceUnits([]device.Access{m.dev}, []string{m.unit})
}

func (m *Identity) ReadHardwareValues(ctx context.Context) ([]float64, error) {
	return readDevices(ctx, m.Devices())
}

func (m *Identity) ReadbackHardwareValues(ctx context.Context) ([]device.Value, error) {
	return readbackDevices(ctx, m.Devices())
}

func (m *Identity) SendHardwareValues(ctx context.Context, values []float64) error {
	return sendDevices(ctx, m.Devices(), values)
}

func (m *Identity) Devices() []device.Access { return []device.Access{m.dev} }

func (m *Identity) DeviceRefs() []string {
	if m.physicsRef != "" {
		return []string{m.physicsRef}
	}
	return []string{m.psRef}
}

func (m *Identity) Bind(devices []device.Access) (Model, error) {
	if err := checkBind(m.DeviceRefs(), devices); err != nil {
		return nil, err
	}
	bound := *m
	bound.rigidity = unsetRigidity()
	bound.dev = devices[0]
	return &bound, nil
}

func (m *Identity) HasPhysics() bool         { return m.physicsRef != "" }
func (m *Identity) HasHardware() bool        { return m.psRef != "" }
func (m *Identity) HasPowerConverters() bool { return m.psRef != "" }
func (m *Identity) NumFunctions() int        { return 1 }
func (m *Identity) NumChannels() int         { return 1 }
