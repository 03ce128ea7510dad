// Package simulator is the design peer: elements attached here read and
// write the lattice model instead of devices.
package simulator

import (
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/holder"
	"github.com/KevinKickass/OpenBeamCore/internal/lattice"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpeedOfLight in m/s; brho = E[eV] / c.
const SpeedOfLight = 299792458.0

// LatticeAttribute overrides the lattice name a magnet is looked up by.
const LatticeAttribute = "lattice"

type Simulator struct {
	id      uuid.UUID
	name    string
	lattice lattice.Lattice
	holder  *holder.Holder
	logger  *zap.Logger

	mu     sync.Mutex
	models []model.Model
}

// New creates a simulator peer over lat. The simulator has no batching
// backend: its arrays go element by element.
func New(name string, lat lattice.Lattice, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		id:      uuid.New(),
		name:    name,
		lattice: lat,
		holder:  holder.New(nil, logger),
		logger:  logger.With(zap.String("peer", name)),
	}
}

func (s *Simulator) Name() string             { return s.name }
func (s *Simulator) ID() uuid.UUID            { return s.id }
func (s *Simulator) Holder() *holder.Holder   { return s.holder }
func (s *Simulator) Lattice() lattice.Lattice { return s.lattice }

// MagnetRigidity is the rigidity of the lattice energy in T·m.
func (s *Simulator) MagnetRigidity() float64 {
	return s.lattice.Energy() / SpeedOfLight
}

// SetEnergy changes the lattice energy and pushes the new rigidity to
// every model bound on this peer.
func (s *Simulator) SetEnergy(eV float64) {
	s.lattice.SetEnergy(eV)
	brho := s.MagnetRigidity()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		m.SetMagnetRigidity(brho)
	}
	s.logger.Info("Energy changed", zap.Float64("energy_ev", eV), zap.Float64("brho", brho))
}

// Attach binds tmpl to the lattice and registers the result (and any
// virtual magnets it carries) in the holder.
func (s *Simulator) Attach(tmpl element.Element) (element.Element, error) {
	var (
		bound element.Element
		err   error
	)
	switch t := tmpl.(type) {
	case *element.Magnet:
		bound, err = s.attachMagnet(t)
	case *element.CombinedFunctionMagnet:
		bound, err = s.attachCombined(t)
	case *element.SerializedMagnets:
		bound, err = s.attachSerialized(t)
	case *element.BPM:
		bound, err = s.attachBPM(t)
	default:
		return nil, types.Errorf(types.KindBinding, "%s: cannot attach %T to the simulator", tmpl.Name(), tmpl)
	}
	if err != nil {
		return nil, err
	}
	if err := s.holder.Register(bound); err != nil {
		return nil, err
	}
	return bound, nil
}

// bind clones tmpl without devices and sets the current rigidity.
func (s *Simulator) bind(tmpl model.Model) (model.Model, error) {
	bound, err := tmpl.Bind(make([]device.Access, len(tmpl.DeviceRefs())))
	if err != nil {
		return nil, err
	}
	bound.SetMagnetRigidity(s.MagnetRigidity())

	s.mu.Lock()
	s.models = append(s.models, bound)
	s.mu.Unlock()
	return bound, nil
}

// hardware converts lattice strengths when the model drives power
// converters; models reading physics channels have no hardware side.
func hardware(strengths element.RW, bound model.Model) element.RW {
	if !bound.HasPowerConverters() {
		return nil
	}
	return element.NewConverted(strengths, bound)
}

func latticeName(name string, attrs map[string]string) string {
	if n := attrs[LatticeAttribute]; n != "" {
		return n
	}
	return name
}

func (s *Simulator) attachMagnet(tmpl *element.Magnet) (*element.Magnet, error) {
	bound, err := s.bind(tmpl.Model())
	if err != nil {
		return nil, types.Wrap(types.KindBinding, err, "%s", tmpl.Name())
	}
	sl, err := newSlot(s.lattice, tmpl.Name(), latticeName(tmpl.Name(), tmpl.Attributes()), tmpl.MagnetKind())
	if err != nil {
		return nil, err
	}
	st := &strengths{slots: []slot{sl}, units: bound.StrengthUnits()}
	return element.BindMagnet(tmpl, s, bound, st, hardware(st, bound)), nil
}

// attachCombined maps every multipole onto the parent's lattice slices.
func (s *Simulator) attachCombined(tmpl *element.CombinedFunctionMagnet) (*element.CombinedFunctionMagnet, error) {
	bound, err := s.bind(tmpl.Model())
	if err != nil {
		return nil, types.Wrap(types.KindBinding, err, "%s", tmpl.Name())
	}
	parent := latticeName(tmpl.Name(), tmpl.Attributes())
	st := &strengths{units: bound.StrengthUnits()}
	for _, mp := range tmpl.Multipoles() {
		sl, err := newSlot(s.lattice, mp.Name(), parent, mp.MagnetKind())
		if err != nil {
			return nil, err
		}
		st.slots = append(st.slots, sl)
	}
	return element.BindCombined(tmpl, s, bound, st, hardware(st, bound)), nil
}

// attachSerialized maps each magnet of the series onto its own slices.
func (s *Simulator) attachSerialized(tmpl *element.SerializedMagnets) (*element.SerializedMagnets, error) {
	bound, err := s.bind(tmpl.Model())
	if err != nil {
		return nil, types.Wrap(types.KindBinding, err, "%s", tmpl.Name())
	}
	st := &strengths{units: bound.StrengthUnits()}
	for _, m := range tmpl.Magnets() {
		attrs := m.Attributes()
		if attrs[LatticeAttribute] == tmpl.Attributes()[LatticeAttribute] {
			delete(attrs, LatticeAttribute)
		}
		sl, err := newSlot(s.lattice, m.Name(), latticeName(m.Name(), attrs), m.MagnetKind())
		if err != nil {
			return nil, err
		}
		st.slots = append(st.slots, sl)
	}
	return element.BindSerialized(tmpl, s, bound, st, hardware(st, bound))
}

func (s *Simulator) attachBPM(tmpl *element.BPM) (*element.BPM, error) {
	slices, err := s.lattice.Find(latticeName(tmpl.Name(), tmpl.Attributes()))
	if err != nil {
		return nil, types.Wrap(types.KindBinding, err, "%s", tmpl.Name())
	}
	at := slices[0]
	refs := tmpl.DeviceRefs()
	devices := make([]device.Access, len(refs))
	for i, ref := range refs {
		plane := i
		if len(refs) == 1 {
			plane = allPlanes
		}
		devices[i] = &orbit{name: ref, at: at, plane: plane}
	}
	return element.BindBPM(tmpl, s, devices)
}
