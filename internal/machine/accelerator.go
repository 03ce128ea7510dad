package machine

import (
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/catalog"
	"github.com/KevinKickass/OpenBeamCore/internal/controlsystem"
	"github.com/KevinKickass/OpenBeamCore/internal/holder"
	"github.com/KevinKickass/OpenBeamCore/internal/simulator"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Peer is what the accelerator exposes of each backend.
type Peer interface {
	Name() string
	ID() uuid.UUID
	Holder() *holder.Holder
	MagnetRigidity() float64
}

// Accelerator attaches one set of templates to a design simulator and to
// the live control system. The two peers never share bound elements.
type Accelerator struct {
	templates *catalog.Templates
	design    *simulator.Simulator
	live      *controlsystem.ControlSystem
	logger    *zap.Logger

	mu               sync.RWMutex
	energy           float64
	lastEnergyChange time.Time
}

func New(t *catalog.Templates, resolver controlsystem.DeviceResolver, logger *zap.Logger) (*Accelerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if t.Energy <= 0 {
		return nil, types.Errorf(types.KindConfig, "%s: beam energy must be positive, got %g", t.Name, t.Energy)
	}

	a := &Accelerator{
		templates: t,
		design:    simulator.New(string(PeerDesign), t.Lattice, logger),
		live:      controlsystem.New(string(PeerLive), resolver, t.Energy/simulator.SpeedOfLight, logger),
		logger:    logger.With(zap.String("accelerator", t.Name)),
	}

	for _, tmpl := range t.Elements {
		if _, err := a.design.Attach(tmpl); err != nil {
			return nil, fmt.Errorf("failed to attach %s to the design lattice: %w", tmpl.Name(), err)
		}
		if _, err := a.live.Attach(tmpl); err != nil {
			return nil, fmt.Errorf("failed to attach %s to the control system: %w", tmpl.Name(), err)
		}
	}
	for _, arr := range t.Arrays {
		for _, p := range a.peers() {
			if err := p.Holder().DefineArray(arr.Name, arr.Elements); err != nil {
				return nil, fmt.Errorf("failed to define array %s on %s: %w", arr.Name, p.Name(), err)
			}
		}
	}
	a.setEnergy(t.Energy)

	a.logger.Info("Accelerator attached",
		zap.Int("elements", len(t.Elements)),
		zap.Int("arrays", len(t.Arrays)),
		zap.Float64("energy_ev", t.Energy))

	return a, nil
}

func (a *Accelerator) Name() string                       { return a.templates.Name }
func (a *Accelerator) Design() *simulator.Simulator       { return a.design }
func (a *Accelerator) Live() *controlsystem.ControlSystem { return a.live }
func (a *Accelerator) Templates() *catalog.Templates      { return a.templates }
func (a *Accelerator) peers() []Peer                      { return []Peer{a.design, a.live} }

// Peer returns the backend called name.
func (a *Accelerator) Peer(name PeerName) (Peer, error) {
	switch name {
	case PeerDesign:
		return a.design, nil
	case PeerLive:
		return a.live, nil
	}
	return nil, types.Errorf(types.KindLookup, "unknown peer %q", name)
}

func (a *Accelerator) Energy() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.energy
}

// SetEnergy moves the design lattice to eV and pushes the matching
// rigidity to the control system models.
func (a *Accelerator) SetEnergy(eV float64) error {
	if eV <= 0 {
		return types.Errorf(types.KindValue, "beam energy must be positive, got %g", eV)
	}
	a.setEnergy(eV)
	return nil
}

func (a *Accelerator) setEnergy(eV float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.design.SetEnergy(eV)
	a.live.SetMagnetRigidity(a.design.MagnetRigidity())
	a.energy = eV
	a.lastEnergyChange = time.Now()
}

func (a *Accelerator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		Accelerator:      a.templates.Name,
		Energy:           a.energy,
		Arrays:           a.design.Holder().ArrayNames(),
		LastEnergyChange: a.lastEnergyChange,
	}
	for _, p := range a.peers() {
		st.Peers = append(st.Peers, PeerStatus{
			Name:           PeerName(p.Name()),
			ID:             p.ID().String(),
			Elements:       len(p.Holder().Names()),
			MagnetRigidity: p.MagnetRigidity(),
		})
	}
	return st
}
