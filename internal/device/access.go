package device

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Access is one scalar control-system channel: a setpoint, a measured
// readback and a physical unit. Implementations never convert units.
type Access interface {
	Name() string
	MeasureName() string
	Get(ctx context.Context) (float64, error)
	Set(ctx context.Context, value float64) error
	SetAndWait(ctx context.Context, value float64) error
	Readback(ctx context.Context) (Value, error)
	Unit() string
	Range() Range
}

// VectorAccess is implemented by channels whose readback is an array,
// e.g. a BPM publishing [x, y] on one attribute.
type VectorAccess interface {
	Access
	ReadVector(ctx context.Context) ([]float64, error)
}

type Quality string

const (
	QualityValid   Quality = "valid"
	QualityInvalid Quality = "invalid"
	QualityAlarm   Quality = "alarm"
)

// Value is a measured readback.
type Value struct {
	Value     float64   `json:"value"`
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// Range is an inclusive interval; a nil bound is unbounded.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

func NewRange(min, max *float64) Range {
	return Range{Min: min, Max: max}
}

// Contains reports whether value lies in r. NaN is outside any bounded range.
func (r Range) Contains(value float64) bool {
	if math.IsNaN(value) && (r.Min != nil || r.Max != nil) {
		return false
	}
	if r.Min != nil && value < *r.Min {
		return false
	}
	if r.Max != nil && value > *r.Max {
		return false
	}
	return true
}

// Check returns a range error naming the channel when value is outside r.
func (r Range) Check(name string, value float64) error {
	if r.Contains(value) {
		return nil
	}
	return types.Errorf(types.KindRange, "%s: value %g out of range [%s, %s]",
		name, value, bound(r.Min), bound(r.Max))
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", bound(r.Min), bound(r.Max))
}

func bound(b *float64) string {
	if b == nil {
		return "None"
	}
	return strconv.FormatFloat(*b, 'g', -1, 64)
}

// Float is a helper to build range bounds inline.
func Float(v float64) *float64 {
	return &v
}
