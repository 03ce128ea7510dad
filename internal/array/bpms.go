package array

import (
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/aggregator"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

type BPMArray struct {
	*ElementArray
	bpms    []*element.BPM
	backend Backend

	mu        sync.Mutex
	positions element.RW
}

func NewBPMArray(name string, bpms []*element.BPM, backend Backend, logger *zap.Logger) (*BPMArray, error) {
	base, err := New(name, upcast(bpms), logger)
	if err != nil {
		return nil, err
	}
	return &BPMArray{ElementArray: base, bpms: append([]*element.BPM(nil), bpms...), backend: backend}, nil
}

func (a *BPMArray) BPMs() []*element.BPM {
	return append([]*element.BPM(nil), a.bpms...)
}

// Positions returns [h0, v0, h1, v1, ...]. Monitors publishing a position
// vector are read one by one.
func (a *BPMArray) Positions() (element.RW, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.positions != nil {
		return a.positions, nil
	}
	if a.backend != nil && len(a.bpms) > 1 {
		if rw, ok := a.aggregate(); ok {
			a.positions = rw
			return rw, nil
		}
	}
	rw, err := collect(a.name, a.bpms, (*element.BPM).Positions)
	if err != nil {
		return nil, types.Wrap(types.KindBinding, err, "%s", a.name)
	}
	a.positions = rw
	return rw, nil
}

func (a *BPMArray) aggregate() (element.RW, bool) {
	agg := aggregator.NewPositions(a.backend.NewDeviceList())
	for _, b := range a.bpms {
		if err := agg.AddBPM(b); err != nil {
			a.logger.Warn("BPM array is read element by element",
				zap.String("array", a.name),
				zap.String("bpm", b.Name()),
				zap.Error(err))
			return nil, false
		}
	}
	return agg, true
}

func (a *BPMArray) H() (element.RW, error) { return a.plane(0) }
func (a *BPMArray) V() (element.RW, error) { return a.plane(1) }

func (a *BPMArray) plane(p int) (element.RW, error) {
	pos, err := a.Positions()
	if err != nil {
		return nil, err
	}
	return aggregator.NewPlane(pos, p), nil
}
