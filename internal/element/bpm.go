package element

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// BPMConfig names the position channels of a beam position monitor:
// either X and Y scalars or one Positions vector publishing [x, y].
type BPMConfig struct {
	X         string
	Y         string
	Positions string
}

type BPM struct {
	Base
	cfg       BPMConfig
	h, v      device.Access
	vector    device.VectorAccess
	positions RW
}

func NewBPM(name string, cfg BPMConfig, attrs map[string]string) (*BPM, error) {
	scalar := cfg.X != "" && cfg.Y != ""
	if scalar == (cfg.Positions != "") || (!scalar && (cfg.X != "" || cfg.Y != "")) {
		return nil, types.Errorf(types.KindConfig, "%s: bpm needs either x and y or positions", name)
	}
	return &BPM{Base: NewBase(name, attrs), cfg: cfg}, nil
}

func (b *BPM) Kind() Kind { return KindBPM }

// DeviceRefs lists the channels BindBPM expects, in order.
func (b *BPM) DeviceRefs() []string {
	if b.cfg.Positions != "" {
		return []string{b.cfg.Positions}
	}
	return []string{b.cfg.X, b.cfg.Y}
}

func BindBPM(tmpl *BPM, peer Peer, devices []device.Access) (*BPM, error) {
	refs := tmpl.DeviceRefs()
	if len(devices) != len(refs) {
		return nil, types.Errorf(types.KindBinding, "%s: needs %d devices, got %d", tmpl.name, len(refs), len(devices))
	}
	b := &BPM{Base: tmpl.Base.bound(peer), cfg: tmpl.cfg}
	if tmpl.cfg.Positions != "" {
		vec, ok := devices[0].(device.VectorAccess)
		if !ok {
			return nil, types.Errorf(types.KindBinding, "%s: device %s does not publish a position vector", tmpl.name, devices[0].Name())
		}
		b.vector = vec
		b.positions = &vectorPositions{dev: vec}
		return b, nil
	}
	b.h, b.v = devices[0], devices[1]
	b.positions = readOnly{RW: NewDevices(b.h, b.v), name: tmpl.name}
	return b, nil
}

// Positions is the [x, y] orbit at the monitor.
func (b *BPM) Positions() (RW, error) {
	if b.positions == nil {
		return nil, unsupported(b.name, "position")
	}
	return b.positions, nil
}

func (b *BPM) H() (*Scalar, error) { return b.plane(0) }
func (b *BPM) V() (*Scalar, error) { return b.plane(1) }

func (b *BPM) plane(i int) (*Scalar, error) {
	p, err := b.Positions()
	if err != nil {
		return nil, err
	}
	return NewScalar(NewMapper(p, i)), nil
}

// ScalarDevices returns the h and v channels when the monitor publishes
// them separately; ok is false for vector monitors.
func (b *BPM) ScalarDevices() (h, v device.Access, ok bool) {
	return b.h, b.v, b.h != nil && b.v != nil
}

type readOnly struct {
	RW
	name string
}

func (r readOnly) Set(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindValue, "%s: positions are read-only", r.name)
}

func (r readOnly) SetAndWait(ctx context.Context, values []float64) error {
	return r.Set(ctx, values)
}

type vectorPositions struct {
	dev device.VectorAccess
}

func (r *vectorPositions) Get(ctx context.Context) ([]float64, error) {
	v, err := r.dev.ReadVector(ctx)
	if err != nil {
		return nil, err
	}
	if len(v) < 2 {
		return nil, types.Errorf(types.KindValue, "%s: position vector has %d values", r.dev.Name(), len(v))
	}
	return v[:2], nil
}

func (r *vectorPositions) Set(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindValue, "%s: positions are read-only", r.dev.Name())
}

func (r *vectorPositions) SetAndWait(ctx context.Context, values []float64) error {
	return r.Set(ctx, values)
}

func (r *vectorPositions) Readback(ctx context.Context) ([]device.Value, error) {
	v, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return []device.Value{
		{Value: v[0], Quality: device.QualityValid, Timestamp: now},
		{Value: v[1], Quality: device.QualityValid, Timestamp: now},
	}, nil
}

func (r *vectorPositions) Units() []string { return []string{r.dev.Unit(), r.dev.Unit()} }
func (r *vectorPositions) Len() int        { return 2 }
