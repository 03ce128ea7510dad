package devices

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/modbus"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

// Manager turns device descriptors into live channels. Channels are built
// on first use and cached by name, so two models naming the same channel
// share one instance. Modbus channels on the same host:port share one
// client connection.
type Manager struct {
	descriptors map[string]types.DeviceDescriptor
	channels    map[string]device.Access
	clients     map[string]*modbus.Client
	pollers     []*Poller
	timeout     time.Duration
	metrics     *observability.Metrics
	mu          sync.RWMutex
	logger      *zap.Logger
}

func NewManager(descriptors []types.DeviceDescriptor, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		descriptors: make(map[string]types.DeviceDescriptor, len(descriptors)),
		channels:    make(map[string]device.Access),
		clients:     make(map[string]*modbus.Client),
		timeout:     timeout,
		metrics:     metrics,
		logger:      logger,
	}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, types.Errorf(types.KindConfig, "device without name")
		}
		if _, dup := m.descriptors[d.Name]; dup {
			return nil, types.Errorf(types.KindConfig, "duplicate device %s", d.Name)
		}
		m.descriptors[d.Name] = d
	}
	return m, nil
}

// Resolve returns the channel called name.
func (m *Manager) Resolve(name string) (device.Access, error) {
	m.mu.RLock()
	ch, ok := m.channels[name]
	m.mu.RUnlock()
	if ok {
		return ch, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[name]; ok {
		return ch, nil
	}
	desc, ok := m.descriptors[name]
	if !ok {
		return nil, types.Errorf(types.KindLookup, "no device named %s", name)
	}

	ch, err := m.build(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create device %s: %w", name, err)
	}
	m.channels[name] = ch

	m.logger.Info("Device loaded",
		zap.String("name", name),
		zap.String("protocol", desc.Protocol))

	return ch, nil
}

func (m *Manager) build(desc types.DeviceDescriptor) (device.Access, error) {
	rng := device.NewRange(desc.Min, desc.Max)

	switch desc.Protocol {
	case types.ProtocolMemory, "":
		if desc.Size > 1 {
			return instrument(device.NewMemoryVector(desc.Name, desc.Unit, desc.Size), types.ProtocolMemory, m.metrics), nil
		}
		return instrument(device.NewMemory(desc.Name, "", desc.Unit, rng), types.ProtocolMemory, m.metrics), nil

	case types.ProtocolModbusTCP:
		if desc.Modbus == nil {
			return nil, types.Errorf(types.KindConfig, "%s: modbus_tcp device needs a modbus section", desc.Name)
		}
		if desc.Size > 1 {
			return nil, types.Errorf(types.KindConfig, "%s: vector channels are not supported over modbus", desc.Name)
		}
		mb := desc.Modbus
		if mb.UnitID < 0 || mb.UnitID > 255 {
			return nil, types.Errorf(types.KindConfig, "%s: unit id %d out of range", desc.Name, mb.UnitID)
		}
		ch, err := modbus.NewChannel(m.client(mb.Host, mb.Port), modbus.ChannelConfig{
			Name:        desc.Name,
			Unit:        desc.Unit,
			Range:       rng,
			UnitID:      uint8(mb.UnitID),
			Setpoint:    mb.Setpoint,
			Readback:    mb.Readback,
			DataType:    mb.DataType,
			ScaleFactor: mb.ScaleFactor,
			ReadOnly:    mb.ReadOnly,
		})
		if err != nil {
			return nil, err
		}
		return instrument(ch, types.ProtocolModbusTCP, m.metrics), nil

	default:
		return nil, types.Errorf(types.KindConfig, "%s: unknown protocol %q", desc.Name, desc.Protocol)
	}
}

// client must be called with m.mu held.
func (m *Manager) client(host string, port int) *modbus.Client {
	if port == 0 {
		port = 502
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if c, ok := m.clients[addr]; ok {
		return c
	}
	c := modbus.NewClient(addr, m.timeout)
	m.clients[addr] = c
	return c
}

// NewList returns an empty batched list for aggregators.
func (m *Manager) NewList() device.List {
	return newList(m.metrics)
}

// Channels returns the channels resolved so far, sorted by name.
func (m *Manager) Channels() []device.Access {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]device.Access, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// StartPoller polls every resolved channel. Channels resolved later are
// not picked up.
func (m *Manager) StartPoller(interval time.Duration, publish func([]Reading)) (*Poller, error) {
	list := m.NewList()
	if err := list.Add(m.Channels()...); err != nil {
		return nil, fmt.Errorf("failed to build poll list: %w", err)
	}

	poller := NewPoller(list, interval, publish, m.metrics, m.logger)
	if err := poller.Start(); err != nil {
		return nil, fmt.Errorf("failed to start poller: %w", err)
	}

	m.mu.Lock()
	m.pollers = append(m.pollers, poller)
	m.mu.Unlock()

	return poller, nil
}

// StopAll stops all pollers and disconnects all Modbus clients
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = nil
	m.mu.Unlock()

	for _, poller := range pollers {
		poller.Stop()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for addr, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("Failed to disconnect device",
				zap.String("address", addr),
				zap.Error(err))
		}
	}

	return nil
}
