package model

import (
	"context"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// LinearConfig describes a single-function magnet driven by one power
// converter. Without a curve the excitation is taken as linear:
// strength = (current - offset) * factor * crosstalk / brho.
type LinearConfig struct {
	Curve             *curve.Curve
	CalibrationFactor float64
	CalibrationOffset float64
	Crosstalk         float64
	Unit              string
	HardwareUnit      string
	PowerConverter    string
}

type Linear struct {
	rigidity
	unit    string
	hwUnit  string
	psRef   string
	forward curve.Interpolator
	inverse curve.Interpolator
	gain    float64
	offset  float64
	ps      device.Access
}

func NewLinear(cfg LinearConfig) (*Linear, error) {
	return newExcitation(cfg, curve.NewLinear)
}

type fitter func(*curve.Curve) (curve.Interpolator, error)

func newExcitation(cfg LinearConfig, fit fitter) (*Linear, error) {
	gain := cfg.CalibrationFactor * cfg.Crosstalk
	if gain == 0 {
		return nil, types.Errorf(types.KindConfig,
			"calibration factor (%g) and crosstalk (%g) must be non-zero", cfg.CalibrationFactor, cfg.Crosstalk)
	}
	m := &Linear{
		rigidity: unsetRigidity(),
		unit:     cfg.Unit,
		hwUnit:   cfg.HardwareUnit,
		psRef:    cfg.PowerConverter,
		gain:     gain,
		offset:   cfg.CalibrationOffset,
	}
	if m.hwUnit == "" {
		m.hwUnit = "A"
	}
	if cfg.Curve == nil {
		return m, nil
	}

	scaled := cfg.Curve.Sorted().Scale(gain, cfg.CalibrationOffset)
	var err error
	if m.forward, err = fit(scaled); err != nil {
		return nil, types.Wrap(types.KindConfig, err, "excitation curve")
	}
	if m.inverse, err = fit(scaled.Inverse()); err != nil {
		return nil, types.Wrap(types.KindConfig, err, "excitation curve is not invertible")
	}
	return m, nil
}

func (m *Linear) ComputeHardwareValues(strengths []float64) ([]float64, error) {
	if err := checkLen("strengths", strengths, 1); err != nil {
		return nil, err
	}
	field := strengths[0] * m.brho
	if m.inverse != nil {
		return []float64{predict(m.inverse, field)}, nil
	}
	return []float64{field/m.gain + m.offset}, nil
}

func (m *Linear) ComputeStrengths(hardware []float64) ([]float64, error) {
	if err := checkLen("hardware values", hardware, 1); err != nil {
		return nil, err
	}
	if m.forward != nil {
		return []float64{predict(m.forward, hardware[0]) / m.brho}, nil
	}
	return []float64{(hardware[0] - m.offset) * m.gain / m.brho}, nil
}

func (m *Linear) StrengthUnits() []string { return []string{m.unit} }

func (m *Linear) HardwareUnits() []string {
	return deviceUnits(m.Devices(), []string{m.hwUnit})
}

func (m *Linear) ReadHardwareValues(ctx context.Context) ([]float64, error) {
	return readDevices(ctx, m.Devices())
}

func (m *Linear) ReadbackHardwareValues(ctx context.Context) ([]device.Value, error) {
	return readbackDevices(ctx, m.Devices())
}

func (m *Linear) SendHardwareValues(ctx context.Context, values []float64) error {
	return sendDevices(ctx, m.Devices(), values)
}

func (m *Linear) Devices() []device.Access {
	if m.psRef == "" {
		return nil
	}
	return []device.Access{m.ps}
}

func (m *Linear) DeviceRefs() []string {
	if m.psRef == "" {
		return nil
	}
	return []string{m.psRef}
}

func (m *Linear) Bind(devices []device.Access) (Model, error) {
	return m.bind(devices)
}

func (m *Linear) bind(devices []device.Access) (*Linear, error) {
	if err := checkBind(m.DeviceRefs(), devices); err != nil {
		return nil, err
	}
	bound := *m
	bound.rigidity = unsetRigidity()
	if len(devices) == 1 {
		bound.ps = devices[0]
	}
	return &bound, nil
}

func (m *Linear) HasPhysics() bool         { return true }
func (m *Linear) HasHardware() bool        { return m.psRef != "" }
func (m *Linear) HasPowerConverters() bool { return m.psRef != "" }
func (m *Linear) NumFunctions() int        { return 1 }
func (m *Linear) NumChannels() int         { return 1 }
