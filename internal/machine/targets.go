package machine

import (
	"fmt"

	"github.com/KevinKickass/OpenBeamCore/internal/array"
	"github.com/KevinKickass/OpenBeamCore/internal/element"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Quantity names what an endpoint reads or writes.
type Quantity string

const (
	QuantityStrengths Quantity = "strengths"
	QuantityHardwares Quantity = "hardwares"
	QuantityPositions Quantity = "positions"
)

func ParseQuantity(s string) (Quantity, error) {
	switch q := Quantity(s); q {
	case QuantityStrengths, QuantityHardwares, QuantityPositions:
		return q, nil
	}
	return "", types.Errorf(types.KindLookup, "unknown quantity %q", s)
}

// Endpoint is a resolved read/write target: the accessor plus one label
// per value.
type Endpoint struct {
	Target   string
	Quantity Quantity
	RW       element.RW
	Labels   []string
}

// Resolve maps an element or array name of peer to the accessor for
// quantity. Single elements resolve as one-member arrays.
func Resolve(p Peer, target string, q Quantity) (*Endpoint, error) {
	arr, err := p.Holder().Elements(target)
	if err != nil {
		return nil, err
	}

	var (
		rw     element.RW
		labels []string
	)
	switch a := arr.(type) {
	case *array.MagnetArray:
		rw, err = magnetQuantity(a, q)
		labels = a.Names()
	case *array.CombinedFunctionMagnetArray:
		rw, err = magnetQuantity(a, q)
		if q == QuantityStrengths {
			for _, m := range a.Magnets() {
				for _, mp := range m.Multipoles() {
					labels = append(labels, mp.Name())
				}
			}
		}
	case *array.SerializedMagnetsArray:
		rw, err = magnetQuantity(a, q)
		if q == QuantityStrengths {
			for _, s := range a.Magnets() {
				for _, m := range s.Magnets() {
					labels = append(labels, m.Name())
				}
			}
		}
	case *array.BPMArray:
		if q != QuantityPositions {
			return nil, types.Errorf(types.KindLookup, "%s has no %s", target, q)
		}
		rw, err = a.Positions()
		for _, name := range a.Names() {
			labels = append(labels, name+":H", name+":V")
		}
	default:
		return nil, types.Errorf(types.KindLookup, "%s has no %s", target, q)
	}
	if err != nil {
		return nil, err
	}

	if len(labels) != rw.Len() {
		labels = make([]string, rw.Len())
		for i := range labels {
			labels[i] = fmt.Sprintf("%s[%d]", target, i)
		}
	}
	return &Endpoint{Target: target, Quantity: q, RW: rw, Labels: labels}, nil
}

type magnetAccessors interface {
	Strengths() (element.RW, error)
	Hardwares() (element.RW, error)
}

func magnetQuantity(a magnetAccessors, q Quantity) (element.RW, error) {
	switch q {
	case QuantityStrengths:
		return a.Strengths()
	case QuantityHardwares:
		return a.Hardwares()
	}
	return nil, types.Errorf(types.KindLookup, "magnets have no %s", q)
}
