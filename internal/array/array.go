// Package array groups bound elements of one peer and gives bulk access
// to their accessors, batched through aggregators when the peer can
// provide device lists.
package array

import (
	"path"
	"strings"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

// Backend is implemented by peers able to batch channel access.
type Backend interface {
	NewDeviceList() device.List
}

// Array is satisfied by ElementArray and every typed array.
type Array interface {
	Name() string
	Len() int
	Names() []string
	Elements() []element.Element
	Peer() element.Peer
	Filter(pattern string) (Array, error)
	Slice(start, end int) (Array, error)
}

type ElementArray struct {
	name     string
	elements []element.Element
	peer     element.Peer
	logger   *zap.Logger
}

// New checks that all elements are bound to the same peer and that names
// are unique.
func New(name string, elements []element.Element, logger *zap.Logger) (*ElementArray, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ElementArray{name: name, elements: append([]element.Element(nil), elements...), logger: logger}

	seen := make(map[string]bool, len(elements))
	for i, e := range elements {
		if seen[e.Name()] {
			return nil, types.Errorf(types.KindBinding, "%s: duplicate name %s @index %d", name, e.Name(), i)
		}
		seen[e.Name()] = true

		p := e.Peer()
		if p == nil {
			return nil, types.Errorf(types.KindBinding, "%s: element %s is not attached to a peer", name, e.Name())
		}
		if i == 0 {
			a.peer = p
			continue
		}
		if p != a.peer {
			return nil, types.Errorf(types.KindBinding, "%s: all elements must be attached to the same peer (%s is attached to %s, %s to %s)",
				name, elements[0].Name(), a.peer.Name(), e.Name(), p.Name())
		}
	}
	return a, nil
}

func (a *ElementArray) Name() string        { return a.name }
func (a *ElementArray) Len() int            { return len(a.elements) }
func (a *ElementArray) Peer() element.Peer  { return a.peer }
func (a *ElementArray) Logger() *zap.Logger { return a.logger }

func (a *ElementArray) Elements() []element.Element {
	return append([]element.Element(nil), a.elements...)
}

func (a *ElementArray) Names() []string {
	names := make([]string, len(a.elements))
	for i, e := range a.elements {
		names[i] = e.Name()
	}
	return names
}

// Filter selects elements by name glob ("QF*") or by attribute glob
// ("family:QF*"), keeping array order. The result has the narrowest type
// shared by the matches.
func (a *ElementArray) Filter(pattern string) (Array, error) {
	attr, glob := "name", pattern
	if k, v, ok := strings.Cut(pattern, ":"); ok && a.hasAttribute(k) {
		attr, glob = k, v
	}
	if _, err := path.Match(glob, ""); err != nil {
		return nil, types.Wrap(types.KindValue, err, "%s: bad pattern %q", a.name, pattern)
	}

	var matches []element.Element
	for _, e := range a.elements {
		v, ok := e.Attributes()[attr]
		if !ok {
			continue
		}
		if ok, _ := path.Match(glob, v); ok {
			matches = append(matches, e)
		}
	}
	return Narrow(a.name+"["+pattern+"]", matches, a.logger, a.backend())
}

func (a *ElementArray) hasAttribute(key string) bool {
	for _, e := range a.elements {
		if _, ok := e.Attributes()[key]; ok {
			return true
		}
	}
	return false
}

// Slice selects elements[start:end].
func (a *ElementArray) Slice(start, end int) (Array, error) {
	if start < 0 || end > len(a.elements) || start > end {
		return nil, types.Errorf(types.KindLookup, "%s: slice [%d:%d] out of range for %d elements", a.name, start, end, len(a.elements))
	}
	return Narrow(a.name, a.elements[start:end], a.logger, a.backend())
}

func (a *ElementArray) backend() Backend {
	b, _ := a.peer.(Backend)
	return b
}

// Narrow builds the most specific array type for elements. When backend
// is non-nil, typed arrays batch their accessors through it.
func Narrow(name string, elements []element.Element, logger *zap.Logger, backend Backend) (Array, error) {
	if len(elements) == 0 {
		return result(New(name, nil, logger))
	}
	switch elements[0].(type) {
	case *element.Magnet:
		if ms, ok := all[*element.Magnet](elements); ok {
			return result(NewMagnetArray(name, ms, backend, logger))
		}
	case *element.BPM:
		if bs, ok := all[*element.BPM](elements); ok {
			return result(NewBPMArray(name, bs, backend, logger))
		}
	case *element.CombinedFunctionMagnet:
		if cs, ok := all[*element.CombinedFunctionMagnet](elements); ok {
			return result(NewCombinedFunctionMagnetArray(name, cs, logger))
		}
	case *element.SerializedMagnets:
		if ss, ok := all[*element.SerializedMagnets](elements); ok {
			return result(NewSerializedMagnetsArray(name, ss, logger))
		}
	}
	return result(New(name, elements, logger))
}

// result keeps a failed constructor from yielding a non-nil Array.
func result[T Array](a T, err error) (Array, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

func all[T element.Element](elements []element.Element) ([]T, bool) {
	out := make([]T, 0, len(elements))
	for _, e := range elements {
		t, ok := e.(T)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}

func upcast[T element.Element](elements []T) []element.Element {
	out := make([]element.Element, len(elements))
	for i, e := range elements {
		out[i] = e
	}
	return out
}
