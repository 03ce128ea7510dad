// Package lattice is the boundary to the beam-dynamics model used by the
// simulator peer. The tracking engine itself lives outside this module;
// Memory keeps element attributes in process.
package lattice

import (
	"sort"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Attribute names understood by the simulator.
const (
	PolynomA    = "PolynomA"
	PolynomB    = "PolynomB"
	ClosedOrbit = "ClosedOrbit"
)

// Element is an opaque lattice element: a length plus numeric attribute
// arrays.
type Element interface {
	Name() string
	Length() float64
	Get(attr string, index int) (float64, error)
	Set(attr string, index int, value float64) error
}

// Lattice resolves element names or family tags to the matching slices.
type Lattice interface {
	Find(name string) ([]Element, error)
	Energy() float64
	SetEnergy(eV float64)
}

// ElementSpec describes one element of a Memory lattice.
type ElementSpec struct {
	Name       string
	Family     string
	Length     float64
	Attributes map[string][]float64
}

type Memory struct {
	mu       sync.RWMutex
	energy   float64
	elements []*memoryElement
	index    map[string][]*memoryElement
}

func NewMemory(energy float64) *Memory {
	return &Memory{energy: energy, index: make(map[string][]*memoryElement)}
}

// Add appends an element. Multipole arrays default to four coefficients
// and the closed orbit to [x, y].
func (l *Memory) Add(spec ElementSpec) error {
	if spec.Name == "" {
		return types.Errorf(types.KindConfig, "lattice element without a name")
	}
	if spec.Length < 0 {
		return types.Errorf(types.KindConfig, "lattice element %s has negative length %g", spec.Name, spec.Length)
	}
	e := &memoryElement{name: spec.Name, length: spec.Length, attrs: make(map[string][]float64)}
	for k, v := range spec.Attributes {
		e.attrs[k] = append([]float64(nil), v...)
	}
	for k, n := range map[string]int{PolynomA: 4, PolynomB: 4, ClosedOrbit: 2} {
		if _, ok := e.attrs[k]; !ok {
			e.attrs[k] = make([]float64, n)
		}
	}
	e.mu = &l.mu

	l.mu.Lock()
	defer l.mu.Unlock()
	l.elements = append(l.elements, e)
	l.index[spec.Name] = append(l.index[spec.Name], e)
	if spec.Family != "" && spec.Family != spec.Name {
		l.index[spec.Family] = append(l.index[spec.Family], e)
	}
	return nil
}

func (l *Memory) Find(name string) ([]Element, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	found := l.index[name]
	if len(found) == 0 {
		return nil, types.Errorf(types.KindLookup, "lattice element %s not found", name)
	}
	out := make([]Element, len(found))
	for i, e := range found {
		out[i] = e
	}
	return out, nil
}

func (l *Memory) Energy() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.energy
}

func (l *Memory) SetEnergy(eV float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.energy = eV
}

// Names lists element names in lattice order, without duplicates.
func (l *Memory) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, e := range l.elements {
		if !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	return names
}

// Families lists the family tags.
func (l *Memory) Families() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var fams []string
	for k, v := range l.index {
		if len(v) > 0 && v[0].name != k {
			fams = append(fams, k)
		}
	}
	sort.Strings(fams)
	return fams
}

type memoryElement struct {
	mu     *sync.RWMutex
	name   string
	length float64
	attrs  map[string][]float64
}

func (e *memoryElement) Name() string    { return e.name }
func (e *memoryElement) Length() float64 { return e.length }

func (e *memoryElement) Get(attr string, index int) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, err := e.slot(attr, index)
	if err != nil {
		return 0, err
	}
	return v[index], nil
}

func (e *memoryElement) Set(attr string, index int, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.slot(attr, index)
	if err != nil {
		return err
	}
	v[index] = value
	return nil
}

func (e *memoryElement) slot(attr string, index int) ([]float64, error) {
	v, ok := e.attrs[attr]
	if !ok {
		return nil, types.Errorf(types.KindLookup, "%s has no attribute %s", e.name, attr)
	}
	if index < 0 || index >= len(v) {
		return nil, types.Errorf(types.KindLookup, "%s.%s[%d] out of bounds (len %d)", e.name, attr, index, len(v))
	}
	return v, nil
}
