package element

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// RW is an array-shaped read/write endpoint with units, e.g. the strengths
// of a combined-function magnet. Scalar endpoints are RWs of length one.
type RW interface {
	Get(ctx context.Context) ([]float64, error)
	Set(ctx context.Context, values []float64) error
	SetAndWait(ctx context.Context, values []float64) error
	Readback(ctx context.Context) ([]device.Value, error)
	Units() []string
	Len() int
}

func notImplemented(what string) error {
	return types.Errorf(types.KindNotImplemented, "%s: set and wait not implemented yet", what)
}

// Scalar adapts a length-one RW to single values.
type Scalar struct {
	rw RW
}

func NewScalar(rw RW) *Scalar { return &Scalar{rw: rw} }

func (s *Scalar) RW() RW { return s.rw }

func (s *Scalar) Get(ctx context.Context) (float64, error) {
	v, err := s.rw.Get(ctx)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (s *Scalar) Set(ctx context.Context, value float64) error {
	return s.rw.Set(ctx, []float64{value})
}

func (s *Scalar) SetAndWait(ctx context.Context, value float64) error {
	return s.rw.SetAndWait(ctx, []float64{value})
}

func (s *Scalar) Readback(ctx context.Context) (device.Value, error) {
	v, err := s.rw.Readback(ctx)
	if err != nil {
		return device.Value{}, err
	}
	return v[0], nil
}

func (s *Scalar) Unit() string { return s.rw.Units()[0] }

// ModelStrengths reads and writes a model's devices in strength units.
type ModelStrengths struct {
	model model.Model
}

func NewModelStrengths(m model.Model) *ModelStrengths { return &ModelStrengths{model: m} }

func (r *ModelStrengths) Get(ctx context.Context) ([]float64, error) {
	hw, err := r.model.ReadHardwareValues(ctx)
	if err != nil {
		return nil, err
	}
	return r.model.ComputeStrengths(hw)
}

func (r *ModelStrengths) Set(ctx context.Context, values []float64) error {
	hw, err := r.model.ComputeHardwareValues(values)
	if err != nil {
		return err
	}
	return r.model.SendHardwareValues(ctx, hw)
}

func (r *ModelStrengths) SetAndWait(ctx context.Context, values []float64) error {
	return notImplemented("strengths")
}

func (r *ModelStrengths) Readback(ctx context.Context) ([]device.Value, error) {
	rb, err := r.model.ReadbackHardwareValues(ctx)
	if err != nil {
		return nil, err
	}
	s, err := r.model.ComputeStrengths(model.Values(rb))
	if err != nil {
		return nil, err
	}
	return Restamp(s, rb), nil
}

func (r *ModelStrengths) Units() []string { return r.model.StrengthUnits() }
func (r *ModelStrengths) Len() int        { return r.model.NumFunctions() }

// ModelHardwares reads and writes a model's devices without conversion.
type ModelHardwares struct {
	model model.Model
}

func NewModelHardwares(m model.Model) *ModelHardwares { return &ModelHardwares{model: m} }

func (r *ModelHardwares) Get(ctx context.Context) ([]float64, error) {
	return r.model.ReadHardwareValues(ctx)
}

func (r *ModelHardwares) Set(ctx context.Context, values []float64) error {
	return r.model.SendHardwareValues(ctx, values)
}

func (r *ModelHardwares) SetAndWait(ctx context.Context, values []float64) error {
	return notImplemented("hardware values")
}

func (r *ModelHardwares) Readback(ctx context.Context) ([]device.Value, error) {
	return r.model.ReadbackHardwareValues(ctx)
}

func (r *ModelHardwares) Units() []string { return r.model.HardwareUnits() }
func (r *ModelHardwares) Len() int        { return r.model.NumChannels() }

// Devices is an RW over plain channels, one value per device.
type Devices struct {
	list device.List
}

func NewDevices(devices ...device.Access) *Devices {
	return &Devices{list: device.NewSequential(devices...)}
}

func (r *Devices) Get(ctx context.Context) ([]float64, error) { return r.list.Get(ctx) }

func (r *Devices) Set(ctx context.Context, values []float64) error {
	return r.list.Set(ctx, values)
}

func (r *Devices) SetAndWait(ctx context.Context, values []float64) error {
	return r.list.SetAndWait(ctx, values)
}

func (r *Devices) Readback(ctx context.Context) ([]device.Value, error) {
	return r.list.Readback(ctx)
}

func (r *Devices) Units() []string { return r.list.Units() }
func (r *Devices) Len() int        { return r.list.Len() }

// Converted exposes hardware values for a peer that only stores strengths,
// such as a lattice model: reads convert strength to hardware and writes
// convert back before storing.
type Converted struct {
	strengths RW
	model     model.Model
}

func NewConverted(strengths RW, m model.Model) *Converted {
	return &Converted{strengths: strengths, model: m}
}

func (r *Converted) Get(ctx context.Context) ([]float64, error) {
	s, err := r.strengths.Get(ctx)
	if err != nil {
		return nil, err
	}
	return r.model.ComputeHardwareValues(s)
}

func (r *Converted) Set(ctx context.Context, values []float64) error {
	s, err := r.model.ComputeStrengths(values)
	if err != nil {
		return err
	}
	return r.strengths.Set(ctx, s)
}

func (r *Converted) SetAndWait(ctx context.Context, values []float64) error {
	return notImplemented("hardware values")
}

func (r *Converted) Readback(ctx context.Context) ([]device.Value, error) {
	rb, err := r.strengths.Readback(ctx)
	if err != nil {
		return nil, err
	}
	hw, err := r.model.ComputeHardwareValues(model.Values(rb))
	if err != nil {
		return nil, err
	}
	return Restamp(hw, rb), nil
}

func (r *Converted) Units() []string { return r.model.HardwareUnits() }
func (r *Converted) Len() int        { return r.model.NumChannels() }

// Mapper is a length-one view on slot index of a parent RW. A write reads
// the parent, replaces the slot and writes everything back so the other
// slots keep their values. With a coupled model the write propagates to
// the slots that cannot move independently.
type Mapper struct {
	parent  RW
	index   int
	coupled model.Coupled
}

func NewMapper(parent RW, index int) *Mapper {
	return &Mapper{parent: parent, index: index}
}

func NewCoupledMapper(parent RW, index int, coupled model.Coupled) *Mapper {
	return &Mapper{parent: parent, index: index, coupled: coupled}
}

func (r *Mapper) Get(ctx context.Context) ([]float64, error) {
	v, err := r.parent.Get(ctx)
	if err != nil {
		return nil, err
	}
	return []float64{v[r.index]}, nil
}

func (r *Mapper) Set(ctx context.Context, values []float64) error {
	if len(values) != 1 {
		return types.Errorf(types.KindValue, "expected 1 value, got %d", len(values))
	}
	if r.coupled != nil {
		all, err := r.coupled.Propagate(r.index, values[0])
		if err != nil {
			return err
		}
		return r.parent.Set(ctx, all)
	}
	cur, err := r.parent.Get(ctx)
	if err != nil {
		return err
	}
	cur[r.index] = values[0]
	return r.parent.Set(ctx, cur)
}

func (r *Mapper) SetAndWait(ctx context.Context, values []float64) error {
	return notImplemented("mapped value")
}

func (r *Mapper) Readback(ctx context.Context) ([]device.Value, error) {
	v, err := r.parent.Readback(ctx)
	if err != nil {
		return nil, err
	}
	return []device.Value{v[r.index]}, nil
}

func (r *Mapper) Units() []string { return []string{r.parent.Units()[r.index]} }
func (r *Mapper) Len() int        { return 1 }

// Broadcast is a length-one view on an RW whose channels always carry the
// same value, e.g. power converters of magnets in series.
type Broadcast struct {
	parent RW
}

func NewBroadcast(parent RW) *Broadcast { return &Broadcast{parent: parent} }

func (r *Broadcast) Get(ctx context.Context) ([]float64, error) {
	v, err := r.parent.Get(ctx)
	if err != nil {
		return nil, err
	}
	return v[:1], nil
}

func (r *Broadcast) Set(ctx context.Context, values []float64) error {
	if len(values) != 1 {
		return types.Errorf(types.KindValue, "expected 1 value, got %d", len(values))
	}
	all := make([]float64, r.parent.Len())
	for i := range all {
		all[i] = values[0]
	}
	return r.parent.Set(ctx, all)
}

func (r *Broadcast) SetAndWait(ctx context.Context, values []float64) error {
	return notImplemented("shared setpoint")
}

func (r *Broadcast) Readback(ctx context.Context) ([]device.Value, error) {
	v, err := r.parent.Readback(ctx)
	if err != nil {
		return nil, err
	}
	return v[:1], nil
}

func (r *Broadcast) Units() []string { return r.parent.Units()[:1] }
func (r *Broadcast) Len() int        { return 1 }

// Restamp attaches the worst quality and latest timestamp of the source
// readbacks to converted values.
func Restamp(values []float64, source []device.Value) []device.Value {
	quality := device.QualityValid
	var stamp time.Time
	for _, v := range source {
		switch {
		case v.Quality == device.QualityInvalid:
			quality = device.QualityInvalid
		case v.Quality == device.QualityAlarm && quality == device.QualityValid:
			quality = device.QualityAlarm
		}
		if v.Timestamp.After(stamp) {
			stamp = v.Timestamp
		}
	}
	out := make([]device.Value, len(values))
	for i, v := range values {
		out[i] = device.Value{Value: v, Quality: quality, Timestamp: stamp}
	}
	return out
}
