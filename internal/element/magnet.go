package element

import (
	"fmt"
	"maps"

	"github.com/KevinKickass/OpenBeamCore/internal/model"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// MagnetKind is the multipole a magnet (or one function of a combined
// magnet) acts as.
type MagnetKind string

const (
	HCorrector MagnetKind = "HCorrector"
	VCorrector MagnetKind = "VCorrector"
	Dipole     MagnetKind = "Dipole"
	Quadrupole MagnetKind = "Quadrupole"
	SkewQuad   MagnetKind = "SkewQuad"
	Sextupole  MagnetKind = "Sextupole"
	SkewSext   MagnetKind = "SkewSext"
	Octupole   MagnetKind = "Octupole"
	SkewOctu   MagnetKind = "SkewOctu"
)

var magnetKinds = map[MagnetKind]bool{
	HCorrector: true, VCorrector: true, Dipole: true,
	Quadrupole: true, SkewQuad: true,
	Sextupole: true, SkewSext: true,
	Octupole: true, SkewOctu: true,
}

func ParseMagnetKind(s string) (MagnetKind, error) {
	k := MagnetKind(s)
	if !magnetKinds[k] {
		return "", types.Errorf(types.KindConfig, "unknown magnet type %q", s)
	}
	return k, nil
}

// Magnet is a single-function magnet, or one function of a combined or
// serialized magnet (then Parent names the physical magnet and Index the
// function slot in the shared model).
type Magnet struct {
	Base
	kind     MagnetKind
	model    model.Model
	index    int
	parent   string
	strength RW
	hardware RW
}

func NewMagnet(name string, kind MagnetKind, m model.Model, attrs map[string]string) *Magnet {
	mag := &Magnet{Base: NewBase(name, attrs), kind: kind, model: m}
	mag.attrs["type"] = string(kind)
	return mag
}

func (m *Magnet) Kind() Kind             { return KindMagnet }
func (m *Magnet) MagnetKind() MagnetKind { return m.kind }
func (m *Magnet) Model() model.Model     { return m.model }
func (m *Magnet) Index() int             { return m.index }
func (m *Magnet) Parent() string         { return m.parent }

// Strength is the magnet strength in physics units.
func (m *Magnet) Strength() (*Scalar, error) {
	if m.strength == nil {
		return nil, unsupported(m.name, "physics")
	}
	return NewScalar(m.strength), nil
}

// Hardware is the power-supply value of the magnet.
func (m *Magnet) Hardware() (*Scalar, error) {
	if m.hardware == nil {
		return nil, unsupported(m.name, "hardware")
	}
	return NewScalar(m.hardware), nil
}

// BindMagnet returns the copy of tmpl bound to peer. strength or hardware
// is nil when the bound model lacks that side.
func BindMagnet(tmpl *Magnet, peer Peer, bound model.Model, strength, hardware RW) *Magnet {
	b := *tmpl
	b.Base = tmpl.Base.bound(peer)
	b.model = bound
	b.strength = strength
	b.hardware = hardware
	return &b
}

// Multipole names one function of a combined-function magnet.
type Multipole struct {
	Name       string
	Kind       MagnetKind
	Attributes map[string]string
}

// CombinedFunctionMagnet is one physical magnet carrying several
// multipole functions through one shared model. Each function is also
// exposed as a virtual Magnet.
type CombinedFunctionMagnet struct {
	Base
	model      model.Model
	multipoles []*Magnet
	strengths  RW
	hardwares  RW
}

func NewCombinedFunctionMagnet(name string, m model.Model, multipoles []Multipole, attrs map[string]string) (*CombinedFunctionMagnet, error) {
	if len(multipoles) != m.NumFunctions() {
		return nil, types.Errorf(types.KindConfig, "%s: %d multipoles declared for a model with %d functions", name, len(multipoles), m.NumFunctions())
	}
	c := &CombinedFunctionMagnet{Base: NewBase(name, attrs), model: m}
	for i, mp := range multipoles {
		c.multipoles = append(c.multipoles, newVirtual(name, mp, m, i, attrs))
	}
	return c, nil
}

func newVirtual(parent string, mp Multipole, m model.Model, index int, attrs map[string]string) *Magnet {
	a := maps.Clone(attrs)
	if a == nil {
		a = map[string]string{}
	}
	maps.Copy(a, mp.Attributes)
	a["parent"] = parent
	v := NewMagnet(mp.Name, mp.Kind, m, a)
	v.index = index
	v.parent = parent
	return v
}

func (c *CombinedFunctionMagnet) Kind() Kind         { return KindCombined }
func (c *CombinedFunctionMagnet) Model() model.Model { return c.model }

// Multipoles returns the per-function virtual magnets in model order.
func (c *CombinedFunctionMagnet) Multipoles() []*Magnet {
	return append([]*Magnet(nil), c.multipoles...)
}

func (c *CombinedFunctionMagnet) Strengths() (RW, error) {
	if c.strengths == nil {
		return nil, unsupported(c.name, "physics")
	}
	return c.strengths, nil
}

func (c *CombinedFunctionMagnet) Hardwares() (RW, error) {
	if c.hardwares == nil {
		return nil, unsupported(c.name, "hardware")
	}
	return c.hardwares, nil
}

// BindCombined binds the magnet and fans it out: every multipole becomes
// a Magnet viewing one slot of the parent's arrays, and all of them hold
// the same bound model.
func BindCombined(tmpl *CombinedFunctionMagnet, peer Peer, bound model.Model, strengths, hardwares RW) *CombinedFunctionMagnet {
	c := &CombinedFunctionMagnet{
		Base:      tmpl.Base.bound(peer),
		model:     bound,
		strengths: strengths,
		hardwares: hardwares,
	}
	for i, sub := range tmpl.multipoles {
		var s, h RW
		if strengths != nil {
			s = NewMapper(strengths, i)
		}
		if hardwares != nil && bound.HasHardware() {
			h = NewMapper(hardwares, i)
		}
		c.multipoles = append(c.multipoles, BindMagnet(sub, peer, bound, s, h))
	}
	return c
}

// SerializedMagnets are physically distinct magnets powered in series.
// Setting one of them moves all of them.
type SerializedMagnets struct {
	Base
	model     model.Model
	magnets   []*Magnet
	strengths RW
	hardwares RW
}

func NewSerializedMagnets(name string, m model.Model, magnets []Multipole, attrs map[string]string) (*SerializedMagnets, error) {
	if len(magnets) != m.NumFunctions() {
		return nil, types.Errorf(types.KindConfig, "%s: %d magnets declared for a model with %d functions", name, len(magnets), m.NumFunctions())
	}
	if _, ok := m.(model.Coupled); !ok {
		return nil, types.Errorf(types.KindConfig, "%s: model %T cannot drive magnets in series", name, m)
	}
	s := &SerializedMagnets{Base: NewBase(name, attrs), model: m}
	for i, mp := range magnets {
		s.magnets = append(s.magnets, newVirtual(name, mp, m, i, attrs))
	}
	return s, nil
}

func (s *SerializedMagnets) Kind() Kind         { return KindSerialized }
func (s *SerializedMagnets) Model() model.Model { return s.model }

func (s *SerializedMagnets) Magnets() []*Magnet {
	return append([]*Magnet(nil), s.magnets...)
}

func (s *SerializedMagnets) Strengths() (RW, error) {
	if s.strengths == nil {
		return nil, unsupported(s.name, "physics")
	}
	return s.strengths, nil
}

func (s *SerializedMagnets) Hardwares() (RW, error) {
	if s.hardwares == nil {
		return nil, unsupported(s.name, "hardware")
	}
	return s.hardwares, nil
}

// BindSerialized binds the series and its magnets. A magnet's strength
// write propagates through the shared current to its siblings.
func BindSerialized(tmpl *SerializedMagnets, peer Peer, bound model.Model, strengths, hardwares RW) (*SerializedMagnets, error) {
	coupled, ok := bound.(model.Coupled)
	if !ok {
		return nil, types.Errorf(types.KindBinding, "%s: bound model %T is not coupled", tmpl.name, bound)
	}
	s := &SerializedMagnets{
		Base:      tmpl.Base.bound(peer),
		model:     bound,
		strengths: strengths,
		hardwares: hardwares,
	}
	for i, sub := range tmpl.magnets {
		var st, h RW
		if strengths != nil {
			st = NewCoupledMapper(strengths, i, coupled)
		}
		if hardwares != nil {
			h = NewBroadcast(hardwares)
		}
		s.magnets = append(s.magnets, BindMagnet(sub, peer, bound, st, h))
	}
	return s, nil
}

func (m *Magnet) String() string {
	if m.parent != "" {
		return fmt.Sprintf("%s(%s[%d])", m.name, m.parent, m.index)
	}
	return m.name
}
