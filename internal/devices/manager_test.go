package devices

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/modbus"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
	"go.uber.org/zap"
)

// registerBank is a minimal Modbus TCP server with one shared register
// space for holding and input registers.
type registerBank struct {
	mu       sync.Mutex
	regs     map[uint16]uint16
	requests int
}

func startBank(t *testing.T) (*registerBank, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	b := &registerBank{regs: map[uint16]uint16{}}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.serve(conn)
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return b, host, p
}

func (b *registerBank) serve(conn net.Conn) {
	defer conn.Close()
	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		body := make([]byte, int(binary.BigEndian.Uint16(header[4:6]))-1)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		req, err := modbus.DecodeFrame(append(header, body...))
		if err != nil {
			return
		}

		b.mu.Lock()
		b.requests++
		start := binary.BigEndian.Uint16(req.Data[0:2])
		qty := binary.BigEndian.Uint16(req.Data[2:4])
		resp := &modbus.ModbusFrame{TransactionID: req.TransactionID, UnitID: req.UnitID, FunctionCode: req.FunctionCode}
		if req.FunctionCode == modbus.FuncCodeWriteMultipleRegisters {
			for i := uint16(0); i < qty; i++ {
				b.regs[start+i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
			}
			resp.Data = req.Data[0:4]
		} else {
			resp.Data = make([]byte, 1+2*int(qty))
			resp.Data[0] = byte(2 * qty)
			for i := uint16(0); i < qty; i++ {
				binary.BigEndian.PutUint16(resp.Data[1+2*i:], b.regs[start+i])
			}
		}
		b.mu.Unlock()

		if _, err := conn.Write(resp.Encode()); err != nil {
			return
		}
	}
}

func (b *registerBank) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

func (b *registerBank) get(addr uint16) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[addr]
}

func newTestManager(t *testing.T, host string, port int) *Manager {
	t.Helper()
	descs := []types.DeviceDescriptor{
		{Name: "QF-PS", Protocol: types.ProtocolModbusTCP, Unit: "A", Max: device.Float(200),
			Modbus: &types.ModbusChannel{Host: host, Port: port, UnitID: 1, Setpoint: 0}},
		{Name: "SOFT", Protocol: types.ProtocolMemory, Unit: "A"},
		{Name: "QD-PS", Protocol: types.ProtocolModbusTCP, Unit: "A",
			Modbus: &types.ModbusChannel{Host: host, Port: port, UnitID: 1, Setpoint: 1}},
		{Name: "BPM1", Protocol: types.ProtocolMemory, Unit: "m", Size: 2},
	}
	m, err := NewManager(descs, time.Second, observability.NewMetrics(), zap.NewNop())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	t.Cleanup(func() { m.StopAll(context.Background()) })
	return m
}

func TestResolveCachesChannels(t *testing.T) {
	_, host, port := startBank(t)
	m := newTestManager(t, host, port)

	a, err := m.Resolve("QF-PS")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, _ := m.Resolve("QF-PS")
	if a != b {
		t.Fatal("second resolve built a new channel")
	}
	qd, _ := m.Resolve("QD-PS")
	if unwrap(a).(*modbus.Channel).Client() != unwrap(qd).(*modbus.Channel).Client() {
		t.Fatal("channels on one server use separate clients")
	}

	if _, err := m.Resolve("NOPE"); !types.IsKind(err, types.KindLookup) {
		t.Fatalf("expected lookup error, got %v", err)
	}

	bpm, err := m.Resolve("BPM1")
	if err != nil {
		t.Fatalf("resolve vector: %v", err)
	}
	if _, ok := bpm.(device.VectorAccess); !ok {
		t.Fatal("vector channel lost ReadVector")
	}
}

func TestManagerRejectsBadDescriptors(t *testing.T) {
	dup := []types.DeviceDescriptor{{Name: "A"}, {Name: "A"}}
	if _, err := NewManager(dup, time.Second, nil, zap.NewNop()); !types.IsKind(err, types.KindConfig) {
		t.Fatalf("expected config error for duplicate, got %v", err)
	}

	m, err := NewManager([]types.DeviceDescriptor{
		{Name: "X", Protocol: "opcua"},
		{Name: "Y", Protocol: types.ProtocolModbusTCP},
	}, time.Second, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	for _, name := range []string{"X", "Y"} {
		if _, err := m.Resolve(name); !types.IsKind(err, types.KindConfig) {
			t.Fatalf("%s: expected config error, got %v", name, err)
		}
	}
}

func TestListRoutesByBackend(t *testing.T) {
	bank, host, port := startBank(t)
	m := newTestManager(t, host, port)

	list := m.NewList()
	for _, name := range []string{"QF-PS", "SOFT", "QD-PS"} {
		ch, err := m.Resolve(name)
		if err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
		if err := list.Add(ch); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	ctx := context.Background()
	if err := list.Set(ctx, []float64{10, 20, 30}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if bank.count() != 1 {
		t.Fatalf("modbus writes = %d, want 1", bank.count())
	}
	if bank.get(0) != 10 || bank.get(1) != 30 {
		t.Fatalf("registers = %d, %d", bank.get(0), bank.get(1))
	}

	got, err := list.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, want := range []float64{10, 20, 30} {
		if got[i] != want {
			t.Fatalf("get[%d] = %v, want %v", i, got[i], want)
		}
	}
	if got := list.Units(); got[0] != "A" || len(got) != 3 {
		t.Fatalf("units = %v", got)
	}
}

func TestListChecksRangesBeforeWriting(t *testing.T) {
	bank, host, port := startBank(t)
	m := newTestManager(t, host, port)

	list := m.NewList()
	qf, _ := m.Resolve("QF-PS")
	soft, _ := m.Resolve("SOFT")
	if err := list.Add(soft, qf); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := list.Set(context.Background(), []float64{1, 500}); !types.IsKind(err, types.KindRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if bank.count() != 0 {
		t.Fatal("modbus write went out")
	}
	if unwrap(soft).(*device.Memory).Writes() != 0 {
		t.Fatal("memory channel was written")
	}
}

func TestPollerPublishesReadbacks(t *testing.T) {
	_, host, port := startBank(t)
	m := newTestManager(t, host, port)

	soft, _ := m.Resolve("SOFT")
	if err := soft.Set(context.Background(), 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := m.Resolve("QF-PS"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got := make(chan []Reading, 8)
	poller, err := m.StartPoller(50*time.Millisecond, func(r []Reading) {
		select {
		case got <- r:
		default:
		}
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case readings := <-got:
		if len(readings) != 2 || readings[0].Name != "QF-PS" || readings[1].Value.Value != 4 {
			t.Fatalf("unexpected readings %+v", readings)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no poll cycle published")
	}

	m.StopAll(context.Background())
	if poller.IsRunning() {
		t.Fatal("poller still running after StopAll")
	}
}
