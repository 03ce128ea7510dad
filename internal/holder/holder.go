// Package holder keeps the bound elements and named arrays of one peer.
package holder

import (
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/array"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

type Holder struct {
	mu       sync.RWMutex
	elements map[string]element.Element
	order    []string
	arrays   map[string][]string
	cache    map[string]array.Array
	backend  array.Backend
	logger   *zap.Logger
}

// New creates an empty holder. backend may be nil; arrays are then
// accessed element by element.
func New(backend array.Backend, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Holder{
		elements: make(map[string]element.Element),
		arrays:   make(map[string][]string),
		cache:    make(map[string]array.Array),
		backend:  backend,
		logger:   logger,
	}
}

func (h *Holder) Add(e element.Element) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.elements[e.Name()]; exists {
		return types.Errorf(types.KindConfig, "element %s is already defined", e.Name())
	}
	h.elements[e.Name()] = e
	h.order = append(h.order, e.Name())
	return nil
}

// Register adds e and, for combined-function and serialized magnets, the
// virtual magnets they carry.
func (h *Holder) Register(e element.Element) error {
	if err := h.Add(e); err != nil {
		return err
	}
	var subs []*element.Magnet
	switch t := e.(type) {
	case *element.CombinedFunctionMagnet:
		subs = t.Multipoles()
	case *element.SerializedMagnets:
		subs = t.Magnets()
	}
	for _, m := range subs {
		if err := h.Add(m); err != nil {
			return err
		}
	}
	return nil
}

// DefineArray registers a named list of element names. Names are
// resolved when the array is first requested.
func (h *Holder) DefineArray(name string, members []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.arrays[name]; exists {
		return types.Errorf(types.KindConfig, "array %s is already defined", name)
	}
	if _, exists := h.elements[name]; exists {
		return types.Errorf(types.KindConfig, "array %s clashes with an element name", name)
	}
	h.arrays[name] = append([]string(nil), members...)
	return nil
}

func (h *Holder) Get(name string) (element.Element, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.get(name)
}

func (h *Holder) get(name string) (element.Element, error) {
	e, ok := h.elements[name]
	if !ok {
		return nil, types.Errorf(types.KindLookup, "element %s is not defined", name)
	}
	return e, nil
}

func lookup[T element.Element](h *Holder, name, what string) (T, error) {
	var zero T
	e, err := h.Get(name)
	if err != nil {
		return zero, types.Errorf(types.KindLookup, "%s %s is not defined", what, name)
	}
	t, ok := e.(T)
	if !ok {
		return zero, types.Errorf(types.KindLookup, "%s is a %s, not a %s", name, e.Kind(), what)
	}
	return t, nil
}

func (h *Holder) Magnet(name string) (*element.Magnet, error) {
	return lookup[*element.Magnet](h, name, "magnet")
}

func (h *Holder) BPM(name string) (*element.BPM, error) {
	return lookup[*element.BPM](h, name, "bpm")
}

func (h *Holder) CombinedFunctionMagnet(name string) (*element.CombinedFunctionMagnet, error) {
	return lookup[*element.CombinedFunctionMagnet](h, name, "combined function magnet")
}

func (h *Holder) SerializedMagnets(name string) (*element.SerializedMagnets, error) {
	return lookup[*element.SerializedMagnets](h, name, "serialized magnet")
}

// Names lists element names in insertion order.
func (h *Holder) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.order...)
}

// ArrayNames lists the configured arrays.
func (h *Holder) ArrayNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.arrays))
	for n := range h.arrays {
		names = append(names, n)
	}
	return names
}

func fill[T element.Element](h *Holder, name string, members []string, what string) ([]T, error) {
	out := make([]T, 0, len(members))
	seen := make(map[string]bool, len(members))
	for i, n := range members {
		if seen[n] {
			return nil, types.Errorf(types.KindBinding, "%s: duplicate name %s @index %d", name, n, i)
		}
		seen[n] = true
		e, err := lookup[T](h, n, what)
		if err != nil {
			return nil, types.Wrap(types.KindLookup, err, "%s", name)
		}
		out = append(out, e)
	}
	return out, nil
}

// FillMagnetArray builds a magnet array from names.
func (h *Holder) FillMagnetArray(name string, members []string) (*array.MagnetArray, error) {
	ms, err := fill[*element.Magnet](h, name, members, "magnet")
	if err != nil {
		return nil, err
	}
	return array.NewMagnetArray(name, ms, h.backend, h.logger)
}

func (h *Holder) FillBPMArray(name string, members []string) (*array.BPMArray, error) {
	bs, err := fill[*element.BPM](h, name, members, "bpm")
	if err != nil {
		return nil, err
	}
	return array.NewBPMArray(name, bs, h.backend, h.logger)
}

func (h *Holder) FillElementArray(name string, members []string) (array.Array, error) {
	es, err := fill[element.Element](h, name, members, "element")
	if err != nil {
		return nil, err
	}
	return array.Narrow(name, es, h.logger, h.backend)
}

// Magnets resolves a configured array, or a single magnet, to a magnet
// array. Results are cached.
func (h *Holder) Magnets(name string) (*array.MagnetArray, error) {
	a, err := h.resolve(name, func(members []string) (array.Array, error) {
		return h.FillMagnetArray(name, members)
	})
	if err != nil {
		return nil, err
	}
	ma, ok := a.(*array.MagnetArray)
	if !ok {
		return nil, types.Errorf(types.KindLookup, "%s is not a magnet array", name)
	}
	return ma, nil
}

func (h *Holder) BPMs(name string) (*array.BPMArray, error) {
	a, err := h.resolve(name, func(members []string) (array.Array, error) {
		return h.FillBPMArray(name, members)
	})
	if err != nil {
		return nil, err
	}
	ba, ok := a.(*array.BPMArray)
	if !ok {
		return nil, types.Errorf(types.KindLookup, "%s is not a bpm array", name)
	}
	return ba, nil
}

// Elements resolves name to the narrowest array type.
func (h *Holder) Elements(name string) (array.Array, error) {
	return h.resolve(name, func(members []string) (array.Array, error) {
		return h.FillElementArray(name, members)
	})
}

func (h *Holder) resolve(name string, build func([]string) (array.Array, error)) (array.Array, error) {
	h.mu.RLock()
	cached, hit := h.cache[name]
	members, isArray := h.arrays[name]
	_, isElement := h.elements[name]
	h.mu.RUnlock()

	if hit {
		return cached, nil
	}
	switch {
	case isArray:
	case isElement:
		members = []string{name}
	default:
		return nil, types.Errorf(types.KindLookup, "array %s is not defined", name)
	}

	a, err := build(members)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if cached, ok := h.cache[name]; ok {
		return cached, nil
	}
	h.cache[name] = a
	return a, nil
}
