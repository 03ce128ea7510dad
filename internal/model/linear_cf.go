package model

import (
	"context"

	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// LinearCFConfig describes a combined-function magnet: N multipole
// functions fed by M power converters through an N×M matrix.
//
// For function i the excitation curve is scaled to
// y' = y*CalibrationFactors[i] + CalibrationOffsets[i], and the pseudo
// current driving it is (matrix·hw)[i], normalised as
// (pseudo - PseudoOffsets[i]) / PseudoFactors[i].
type LinearCFConfig struct {
	Curves             []*curve.Curve
	CalibrationFactors []float64
	CalibrationOffsets []float64
	PseudoFactors      []float64
	PseudoOffsets      []float64
	Matrix             *curve.Matrix
	Units              []string
	HardwareUnits      []string
	PowerConverters    []string
}

type LinearCF struct {
	rigidity
	units         []string
	hwUnits       []string
	psRefs        []string
	forward       []curve.Interpolator
	inverse       []curve.Interpolator
	pseudoFactors []float64
	pseudoOffsets []float64
	matrix        *curve.Matrix
	pinv          *curve.Matrix
	ps            []device.Access
}

func NewLinearCF(cfg LinearCFConfig) (*LinearCF, error) {
	n := len(cfg.Curves)
	if n == 0 {
		return nil, types.Errorf(types.KindConfig, "combined function model needs at least one curve")
	}

	matrix := cfg.Matrix
	if matrix == nil {
		matrix = curve.Identity(n)
	}
	rows, cols := matrix.Dims()
	if rows != n {
		return nil, types.Errorf(types.KindConfig, "matrix has %d rows for %d functions", rows, n)
	}
	if len(cfg.PowerConverters) > 0 && len(cfg.PowerConverters) != cols {
		return nil, types.Errorf(types.KindConfig, "matrix has %d columns for %d power converters", cols, len(cfg.PowerConverters))
	}

	factors, err := defaults(cfg.CalibrationFactors, n, 1, "calibration factors")
	if err != nil {
		return nil, err
	}
	offsets, err := defaults(cfg.CalibrationOffsets, n, 0, "calibration offsets")
	if err != nil {
		return nil, err
	}
	m := &LinearCF{
		rigidity: unsetRigidity(),
		psRefs:   append([]string(nil), cfg.PowerConverters...),
		matrix:   matrix,
		forward:  make([]curve.Interpolator, n),
		inverse:  make([]curve.Interpolator, n),
	}
	if m.pseudoFactors, err = defaults(cfg.PseudoFactors, n, 1, "pseudo factors"); err != nil {
		return nil, err
	}
	if m.pseudoOffsets, err = defaults(cfg.PseudoOffsets, n, 0, "pseudo offsets"); err != nil {
		return nil, err
	}
	if m.units, err = defaultStrings(cfg.Units, n, "", "units"); err != nil {
		return nil, err
	}
	if m.hwUnits, err = defaultStrings(cfg.HardwareUnits, cols, "A", "hardware units"); err != nil {
		return nil, err
	}

	for i, c := range cfg.Curves {
		if c == nil {
			return nil, types.Errorf(types.KindConfig, "curve %d is missing", i)
		}
		if factors[i] == 0 {
			return nil, types.Errorf(types.KindConfig, "calibration factor %d must be non-zero", i)
		}
		if m.pseudoFactors[i] == 0 {
			return nil, types.Errorf(types.KindConfig, "pseudo factor %d must be non-zero", i)
		}
		scaled := c.Sorted().Scale(factors[i], offsets[i])
		if m.forward[i], err = curve.NewLinear(scaled); err != nil {
			return nil, types.Wrap(types.KindConfig, err, "curve %d", i)
		}
		if m.inverse[i], err = curve.NewLinear(scaled.Inverse()); err != nil {
			return nil, types.Wrap(types.KindConfig, err, "curve %d is not invertible", i)
		}
	}

	if m.pinv, err = matrix.Pinv(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LinearCF) ComputeHardwareValues(strengths []float64) ([]float64, error) {
	if err := checkLen("strengths", strengths, m.NumFunctions()); err != nil {
		return nil, err
	}
	pseudo := make([]float64, len(strengths))
	for i, s := range strengths {
		pseudo[i] = m.pseudoFactors[i]*predict(m.inverse[i], s*m.brho) + m.pseudoOffsets[i]
	}
	return m.pinv.MulVec(pseudo)
}

func (m *LinearCF) ComputeStrengths(hardware []float64) ([]float64, error) {
	if err := checkLen("hardware values", hardware, m.NumChannels()); err != nil {
		return nil, err
	}
	pseudo, err := m.matrix.MulVec(hardware)
	if err != nil {
		return nil, err
	}
	strengths := make([]float64, len(pseudo))
	for i, p := range pseudo {
		x := (p - m.pseudoOffsets[i]) / m.pseudoFactors[i]
		strengths[i] = predict(m.forward[i], x) / m.brho
	}
	return strengths, nil
}

func (m *LinearCF) StrengthUnits() []string { return append([]string(nil), m.units...) }

func (m *LinearCF) HardwareUnits() []string {
	return deviceUnits(m.ps, m.hwUnits)
}

func (m *LinearCF) ReadHardwareValues(ctx context.Context) ([]float64, error) {
	return readDevices(ctx, m.Devices())
}

func (m *LinearCF) ReadbackHardwareValues(ctx context.Context) ([]device.Value, error) {
	return readbackDevices(ctx, m.Devices())
}

func (m *LinearCF) SendHardwareValues(ctx context.Context, values []float64) error {
	return sendDevices(ctx, m.Devices(), values)
}

func (m *LinearCF) Devices() []device.Access {
	if len(m.psRefs) == 0 {
		return nil
	}
	if m.ps == nil {
		return make([]device.Access, len(m.psRefs))
	}
	return append([]device.Access(nil), m.ps...)
}

func (m *LinearCF) DeviceRefs() []string { return append([]string(nil), m.psRefs...) }

func (m *LinearCF) Bind(devices []device.Access) (Model, error) {
	if err := checkBind(m.psRefs, devices); err != nil {
		return nil, err
	}
	bound := *m
	bound.rigidity = unsetRigidity()
	bound.ps = append([]device.Access(nil), devices...)
	return &bound, nil
}

func (m *LinearCF) HasPhysics() bool { return true }

// HasHardware reports whether each function maps onto exactly one power
// converter, i.e. the matrix is the identity.
func (m *LinearCF) HasHardware() bool {
	return len(m.psRefs) > 0 && m.matrix.IsIdentity(1e-12)
}

func (m *LinearCF) HasPowerConverters() bool { return len(m.psRefs) > 0 }

func (m *LinearCF) NumFunctions() int { return len(m.forward) }

func (m *LinearCF) NumChannels() int {
	_, cols := m.matrix.Dims()
	return cols
}
