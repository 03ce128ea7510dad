package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// fakeServer answers FC 0x03, 0x04 and 0x10 from two register banks.
type fakeServer struct {
	ln net.Listener

	mu       sync.Mutex
	holding  map[uint16]uint16
	input    map[uint16]uint16
	requests []uint8
	fail     uint8 // exception code returned for every request when set
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, holding: map[uint16]uint16{}, input: map[uint16]uint16{}}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) register(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holding[addr]
}

func (s *fakeServer) count(fc uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == fc {
			n++
		}
	}
	return n
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	for {
		header := make([]byte, headerLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		body := make([]byte, int(binary.BigEndian.Uint16(header[4:6]))-1)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		req, err := DecodeFrame(append(header, body...))
		if err != nil {
			return
		}
		if _, err := conn.Write(s.reply(req).Encode()); err != nil {
			return
		}
	}
}

func (s *fakeServer) reply(req *ModbusFrame) *ModbusFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req.FunctionCode)

	resp := &ModbusFrame{TransactionID: req.TransactionID, UnitID: req.UnitID, FunctionCode: req.FunctionCode}
	if s.fail != 0 {
		resp.FunctionCode |= exceptionBit
		resp.Data = []byte{s.fail}
		return resp
	}

	start := binary.BigEndian.Uint16(req.Data[0:2])
	qty := binary.BigEndian.Uint16(req.Data[2:4])
	switch req.FunctionCode {
	case FuncCodeReadHoldingRegisters, FuncCodeReadInputRegisters:
		bank := s.holding
		if req.FunctionCode == FuncCodeReadInputRegisters {
			bank = s.input
		}
		resp.Data = make([]byte, 1+2*int(qty))
		resp.Data[0] = byte(2 * qty)
		for i := uint16(0); i < qty; i++ {
			binary.BigEndian.PutUint16(resp.Data[1+2*i:], bank[start+i])
		}
	case FuncCodeWriteMultipleRegisters:
		for i := uint16(0); i < qty; i++ {
			s.holding[start+i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
		}
		resp.Data = req.Data[0:4]
	default:
		resp.FunctionCode |= exceptionBit
		resp.Data = []byte{0x01}
	}
	return resp
}

func u16(v uint16) *uint16 { return &v }

func TestFrameRoundTrip(t *testing.T) {
	req := WriteMultipleRegistersRequest(7, 100, []uint16{1, 2, 3})
	req.TransactionID = 42

	frame, err := DecodeFrame(req.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.TransactionID != 42 || frame.UnitID != 7 || frame.FunctionCode != FuncCodeWriteMultipleRegisters {
		t.Fatalf("unexpected header %+v", frame)
	}
	if frame.Length != uint16(2+len(req.Data)) {
		t.Fatalf("length = %d", frame.Length)
	}

	bad := req.Encode()
	if _, err := DecodeFrame(bad[:len(bad)-1]); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestChannelScaleAndSign(t *testing.T) {
	srv := newFakeServer(t)
	client := NewClient(srv.addr(), time.Second)
	defer client.Close()

	ch, err := NewChannel(client, ChannelConfig{
		Name: "QF1-PS", Unit: "A", Setpoint: 10, Readback: u16(20),
		DataType: types.DataTypeInt16, ScaleFactor: 0.5,
		Range: device.Range{Min: device.Float(-100), Max: device.Float(100)},
	})
	if err != nil {
		t.Fatalf("channel: %v", err)
	}

	ctx := context.Background()
	if err := ch.Set(ctx, -12.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := srv.register(10); int16(got) != -25 {
		t.Fatalf("register = %d, want -25", int16(got))
	}
	v, err := ch.Get(ctx)
	if err != nil || v != -12.5 {
		t.Fatalf("get = %v, %v", v, err)
	}

	srv.mu.Lock()
	srv.input[20] = 500
	srv.mu.Unlock()
	rb, err := ch.Readback(ctx)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if rb.Value != 250 || rb.Quality != device.QualityValid {
		t.Fatalf("readback = %+v", rb)
	}
	if ch.MeasureName() != "QF1-PS:RB" {
		t.Fatalf("measure name = %s", ch.MeasureName())
	}
}

func TestChannelRejectsBeforeIO(t *testing.T) {
	srv := newFakeServer(t)
	client := NewClient(srv.addr(), time.Second)
	defer client.Close()

	ranged, _ := NewChannel(client, ChannelConfig{Name: "A", Setpoint: 1, Range: device.Range{Min: device.Float(0), Max: device.Float(10)}})
	readOnly, _ := NewChannel(client, ChannelConfig{Name: "B", Setpoint: 2, ReadOnly: true})
	narrow, _ := NewChannel(client, ChannelConfig{Name: "C", Setpoint: 3})

	ctx := context.Background()
	if err := ranged.Set(ctx, 11); !types.IsKind(err, types.KindRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := readOnly.Set(ctx, 1); !types.IsKind(err, types.KindValue) {
		t.Fatalf("expected value error, got %v", err)
	}
	if err := narrow.Set(ctx, -1); !types.IsKind(err, types.KindRange) {
		t.Fatalf("expected range error for negative uint16, got %v", err)
	}
	if n := srv.count(FuncCodeWriteMultipleRegisters); n != 0 {
		t.Fatalf("%d writes reached the server", n)
	}
	if client.IsConnected() {
		t.Fatal("client connected without any request")
	}
}

func TestUnsupportedDataType(t *testing.T) {
	if _, err := NewChannel(nil, ChannelConfig{Name: "X", DataType: "float32"}); !types.IsKind(err, types.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestListBatchesReadsAndWrites(t *testing.T) {
	srv := newFakeServer(t)
	client := NewClient(srv.addr(), time.Second)
	defer client.Close()

	list := NewList()
	for i, name := range []string{"QF1-PS", "QD1-PS", "QF2-PS"} {
		ch, err := NewChannel(client, ChannelConfig{
			Name: name, Unit: "A", Setpoint: uint16(100 + i), Readback: u16(uint16(200 + 2*i)),
		})
		if err != nil {
			t.Fatalf("channel: %v", err)
		}
		if err := list.Add(ch); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	ctx := context.Background()
	if err := list.Set(ctx, []float64{1, 2, 3}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if n := srv.count(FuncCodeWriteMultipleRegisters); n != 1 {
		t.Fatalf("consecutive setpoints took %d writes, want 1", n)
	}

	got, err := list.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i, want := range []float64{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("get[%d] = %v, want %v", i, got[i], want)
		}
	}
	if n := srv.count(FuncCodeReadHoldingRegisters); n != 1 {
		t.Fatalf("get took %d reads, want 1", n)
	}

	srv.mu.Lock()
	srv.input[200], srv.input[202], srv.input[204] = 10, 20, 30
	srv.mu.Unlock()
	values, err := list.Readback(ctx)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	for i, want := range []float64{10, 20, 30} {
		if values[i].Value != want {
			t.Fatalf("readback[%d] = %v, want %v", i, values[i].Value, want)
		}
	}
	if n := srv.count(FuncCodeReadInputRegisters); n != 1 {
		t.Fatalf("readback took %d reads, want 1", n)
	}
}

func TestListChecksEveryValueFirst(t *testing.T) {
	srv := newFakeServer(t)
	client := NewClient(srv.addr(), time.Second)
	defer client.Close()

	list := NewList()
	a, _ := NewChannel(client, ChannelConfig{Name: "A", Setpoint: 1, Range: device.Range{Min: device.Float(0), Max: device.Float(10)}})
	b, _ := NewChannel(client, ChannelConfig{Name: "B", Setpoint: 2, Range: device.Range{Min: device.Float(0), Max: device.Float(10)}})
	if err := list.Add(a, b); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx := context.Background()
	if err := list.Set(ctx, []float64{5, 50}); !types.IsKind(err, types.KindRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := list.Set(ctx, []float64{5}); !types.IsKind(err, types.KindValue) {
		t.Fatalf("expected length error, got %v", err)
	}
	if n := srv.count(FuncCodeWriteMultipleRegisters); n != 0 {
		t.Fatalf("%d writes reached the server", n)
	}
}

func TestListRejectsForeignDevice(t *testing.T) {
	list := NewList()
	if err := list.Add(device.NewMemory("M", "M", "A", device.Range{})); !types.IsKind(err, types.KindBinding) {
		t.Fatalf("expected binding error, got %v", err)
	}
}

func TestExceptionResponse(t *testing.T) {
	srv := newFakeServer(t)
	srv.mu.Lock()
	srv.fail = 0x02
	srv.mu.Unlock()
	client := NewClient(srv.addr(), time.Second)
	defer client.Close()

	_, err := client.ReadHoldingRegisters(context.Background(), 1, 0, 1)
	var exc *ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("expected exception error, got %v", err)
	}
	if exc.Code != 0x02 || exc.FunctionCode != FuncCodeReadHoldingRegisters {
		t.Fatalf("unexpected exception %+v", exc)
	}
	if !client.IsConnected() {
		t.Fatal("exception response must not drop the connection")
	}
}

func TestReadRejectsOversizedRequest(t *testing.T) {
	client := NewClient("127.0.0.1:1", time.Second)
	if _, err := client.ReadHoldingRegisters(context.Background(), 1, 0, MaxRegisters+1); err == nil {
		t.Fatal("expected error")
	}
}
