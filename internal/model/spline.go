package model

import (
	"github.com/KevinKickass/OpenBeamCore/internal/curve"
	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// SplineConfig is a LinearConfig whose curve is fitted with a cubic
// smoothing spline instead of straight segments.
type SplineConfig struct {
	LinearConfig
	Smoothing float64
}

type Spline struct {
	*Linear
	smoothing float64
}

func NewSpline(cfg SplineConfig) (*Spline, error) {
	if cfg.Curve == nil {
		return nil, types.Errorf(types.KindConfig, "spline model needs an excitation curve")
	}
	alpha := cfg.Smoothing
	lin, err := newExcitation(cfg.LinearConfig, func(c *curve.Curve) (curve.Interpolator, error) {
		return curve.NewSpline(c, alpha)
	})
	if err != nil {
		return nil, err
	}
	return &Spline{Linear: lin, smoothing: alpha}, nil
}

func (m *Spline) Bind(devices []device.Access) (Model, error) {
	lin, err := m.Linear.bind(devices)
	if err != nil {
		return nil, err
	}
	return &Spline{Linear: lin, smoothing: m.smoothing}, nil
}
