package device

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Memory is an in-process soft channel. The readback follows the setpoint
// unless a readback value has been injected.
type Memory struct {
	name        string
	measureName string
	unit        string
	rng         Range

	mu       sync.RWMutex
	setpoint float64
	readback float64
	injected bool
	writes   int
}

func NewMemory(name, measureName, unit string, rng Range) *Memory {
	if measureName == "" {
		measureName = name
	}
	return &Memory{
		name:        name,
		measureName: measureName,
		unit:        unit,
		rng:         rng,
	}
}

func (m *Memory) Name() string        { return m.name }
func (m *Memory) MeasureName() string { return m.measureName }
func (m *Memory) Unit() string        { return m.unit }
func (m *Memory) Range() Range        { return m.rng }

func (m *Memory) Get(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.setpoint, nil
}

func (m *Memory) Set(ctx context.Context, value float64) error {
	if err := m.rng.Check(m.name, value); err != nil {
		return err
	}

	m.mu.Lock()
	m.setpoint = value
	m.writes++
	m.mu.Unlock()

	return nil
}

func (m *Memory) SetAndWait(ctx context.Context, value float64) error {
	return m.Set(ctx, value)
}

func (m *Memory) Readback(ctx context.Context) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := m.setpoint
	if m.injected {
		v = m.readback
	}
	return Value{Value: v, Quality: QualityValid, Timestamp: time.Now()}, nil
}

// InjectReadback pins the measured value, e.g. to emulate a power supply
// that has not reached its setpoint.
func (m *Memory) InjectReadback(value float64) {
	m.mu.Lock()
	m.readback = value
	m.injected = true
	m.mu.Unlock()
}

// Writes counts successful Set calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// MemoryVector is an array-valued soft channel, e.g. a BPM publishing [x, y].
type MemoryVector struct {
	*Memory
	mu     sync.RWMutex
	values []float64
}

func NewMemoryVector(name, unit string, size int) *MemoryVector {
	return &MemoryVector{
		Memory: NewMemory(name, name, unit, Range{}),
		values: make([]float64, size),
	}
}

func (v *MemoryVector) ReadVector(ctx context.Context) ([]float64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]float64(nil), v.values...), nil
}

func (v *MemoryVector) Store(values []float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(values) != len(v.values) {
		return types.Errorf(types.KindValue, "%s: expected %d values, got %d", v.name, len(v.values), len(values))
	}
	copy(v.values, values)
	return nil
}
