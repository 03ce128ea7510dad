// Package element holds the named accelerator objects (magnets, BPMs) and
// their accessors. Elements are created unbound from configuration and
// become usable once a peer (simulator or control system) binds them.
package element

import (
	"maps"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Peer is the backend an element is bound to.
type Peer interface {
	Name() string
}

type Kind string

const (
	KindMagnet     Kind = "magnet"
	KindCombined   Kind = "combined_function_magnet"
	KindSerialized Kind = "serialized_magnet"
	KindBPM        Kind = "bpm"
)

type Element interface {
	Name() string
	Kind() Kind
	Attributes() map[string]string
	Peer() Peer
}

// Base carries the fields every element shares.
type Base struct {
	name  string
	attrs map[string]string
	peer  Peer
}

func NewBase(name string, attrs map[string]string) Base {
	b := Base{name: name, attrs: maps.Clone(attrs)}
	if b.attrs == nil {
		b.attrs = map[string]string{}
	}
	b.attrs["name"] = name
	return b
}

func (b *Base) Name() string { return b.name }

// Attributes returns the filterable attributes (name, family, ...).
func (b *Base) Attributes() map[string]string { return maps.Clone(b.attrs) }

// Peer is nil for unbound elements.
func (b *Base) Peer() Peer { return b.peer }

func (b Base) bound(peer Peer) Base {
	b.peer = peer
	return b
}

func unsupported(name, units string) error {
	return types.Errorf(types.KindBinding, "%s has no model that supports %s units", name, units)
}
