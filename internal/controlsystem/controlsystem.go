// Package controlsystem is the live peer: elements attached here drive
// real channels resolved by name.
package controlsystem

import (
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/holder"
	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceResolver turns channel names into live channels and batches them.
// Resolving the same name twice must return the same channel.
type DeviceResolver interface {
	Resolve(name string) (device.Access, error)
	NewList() device.List
}

type ControlSystem struct {
	id       uuid.UUID
	name     string
	resolver DeviceResolver
	holder   *holder.Holder
	logger   *zap.Logger

	mu     sync.Mutex
	brho   float64
	models []model.Model
}

// New creates a control-system peer. Its arrays batch through device
// lists built by resolver.
func New(name string, resolver DeviceResolver, brho float64, logger *zap.Logger) *ControlSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	cs := &ControlSystem{
		id:       uuid.New(),
		name:     name,
		resolver: resolver,
		brho:     brho,
		logger:   logger.With(zap.String("peer", name)),
	}
	cs.holder = holder.New(cs, logger)
	return cs
}

func (c *ControlSystem) Name() string           { return c.name }
func (c *ControlSystem) ID() uuid.UUID          { return c.id }
func (c *ControlSystem) Holder() *holder.Holder { return c.holder }

func (c *ControlSystem) NewDeviceList() device.List {
	return c.resolver.NewList()
}

func (c *ControlSystem) MagnetRigidity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brho
}

// SetMagnetRigidity pushes brho to every model bound on this peer.
func (c *ControlSystem) SetMagnetRigidity(brho float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brho = brho
	for _, m := range c.models {
		m.SetMagnetRigidity(brho)
	}
	c.logger.Info("Magnet rigidity changed", zap.Float64("brho", brho), zap.Int("models", len(c.models)))
}

// Attach resolves the channels of tmpl, binds it and registers the result
// in the holder.
func (c *ControlSystem) Attach(tmpl element.Element) (element.Element, error) {
	var (
		bound element.Element
		err   error
	)
	switch t := tmpl.(type) {
	case *element.Magnet:
		bound, err = c.attachMagnet(t)
	case *element.CombinedFunctionMagnet:
		bound, err = c.attachCombined(t)
	case *element.SerializedMagnets:
		bound, err = c.attachSerialized(t)
	case *element.BPM:
		bound, err = c.attachBPM(t)
	default:
		return nil, types.Errorf(types.KindBinding, "%s: cannot attach %T to the control system", tmpl.Name(), tmpl)
	}
	if err != nil {
		return nil, err
	}
	if err := c.holder.Register(bound); err != nil {
		return nil, err
	}
	c.logger.Debug("Element attached", zap.String("element", tmpl.Name()))
	return bound, nil
}

func (c *ControlSystem) resolve(owner string, refs []string) ([]device.Access, error) {
	devices := make([]device.Access, len(refs))
	for i, ref := range refs {
		d, err := c.resolver.Resolve(ref)
		if err != nil {
			return nil, types.Wrap(types.KindBinding, err, "%s", owner)
		}
		devices[i] = d
	}
	return devices, nil
}

func (c *ControlSystem) bind(owner string, tmpl model.Model) (model.Model, error) {
	devices, err := c.resolve(owner, tmpl.DeviceRefs())
	if err != nil {
		return nil, err
	}
	bound, err := tmpl.Bind(devices)
	if err != nil {
		return nil, types.Wrap(types.KindBinding, err, "%s", owner)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	bound.SetMagnetRigidity(c.brho)
	c.models = append(c.models, bound)
	return bound, nil
}

// accessors builds the model-backed strength and hardware vectors; either
// is nil when the model lacks that side.
func accessors(bound model.Model) (strengths, hardwares element.RW) {
	if bound.HasPhysics() {
		strengths = element.NewModelStrengths(bound)
	}
	if bound.HasPowerConverters() {
		hardwares = element.NewModelHardwares(bound)
	}
	return strengths, hardwares
}

func (c *ControlSystem) attachMagnet(tmpl *element.Magnet) (*element.Magnet, error) {
	bound, err := c.bind(tmpl.Name(), tmpl.Model())
	if err != nil {
		return nil, err
	}
	s, h := accessors(bound)
	return element.BindMagnet(tmpl, c, bound, s, h), nil
}

func (c *ControlSystem) attachCombined(tmpl *element.CombinedFunctionMagnet) (*element.CombinedFunctionMagnet, error) {
	bound, err := c.bind(tmpl.Name(), tmpl.Model())
	if err != nil {
		return nil, err
	}
	s, h := accessors(bound)
	return element.BindCombined(tmpl, c, bound, s, h), nil
}

func (c *ControlSystem) attachSerialized(tmpl *element.SerializedMagnets) (*element.SerializedMagnets, error) {
	bound, err := c.bind(tmpl.Name(), tmpl.Model())
	if err != nil {
		return nil, err
	}
	s, h := accessors(bound)
	return element.BindSerialized(tmpl, c, bound, s, h)
}

func (c *ControlSystem) attachBPM(tmpl *element.BPM) (*element.BPM, error) {
	devices, err := c.resolve(tmpl.Name(), tmpl.DeviceRefs())
	if err != nil {
		return nil, err
	}
	return element.BindBPM(tmpl, c, devices)
}
