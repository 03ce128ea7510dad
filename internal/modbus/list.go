package modbus

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// List batches Modbus channels: reads cover each server's registers with
// as few FC 0x03/0x04 requests as the register span allows, and writes go
// out as one FC 0x10 per run of consecutive holding registers.
type List struct {
	channels []*Channel
}

func NewList() *List {
	return &List{}
}

// Add accepts Modbus channels only.
func (l *List) Add(devices ...device.Access) error {
	for _, d := range devices {
		ch, ok := d.(*Channel)
		if !ok {
			return types.Errorf(types.KindBinding, "%s is not a modbus channel", d.Name())
		}
		l.channels = append(l.channels, ch)
	}
	return nil
}

func (l *List) Devices() []device.Access {
	out := make([]device.Access, len(l.channels))
	for i, ch := range l.channels {
		out[i] = ch
	}
	return out
}

func (l *List) Len() int { return len(l.channels) }

func (l *List) Units() []string {
	out := make([]string, len(l.channels))
	for i, ch := range l.channels {
		out[i] = ch.Unit()
	}
	return out
}

type server struct {
	client *Client
	unitID uint8
}

type slot struct {
	pos  int
	addr uint16
}

// byServer groups channel positions per client and unit, in first-seen
// order.
func (l *List) byServer(addr func(*Channel) uint16, keep func(*Channel) bool) ([]server, map[server][]slot) {
	var order []server
	groups := make(map[server][]slot)
	for i, ch := range l.channels {
		if !keep(ch) {
			continue
		}
		s := server{client: ch.client, unitID: ch.cfg.UnitID}
		if _, seen := groups[s]; !seen {
			order = append(order, s)
		}
		groups[s] = append(groups[s], slot{pos: i, addr: addr(ch)})
	}
	return order, groups
}

func (l *List) Get(ctx context.Context) ([]float64, error) {
	raw := make([]uint16, len(l.channels))
	setpoint := func(ch *Channel) uint16 { return ch.cfg.Setpoint }
	order, groups := l.byServer(setpoint, func(*Channel) bool { return true })
	for _, s := range order {
		if err := fetch(ctx, s, groups[s], s.client.ReadHoldingRegisters, raw); err != nil {
			return nil, err
		}
	}
	out := make([]float64, len(l.channels))
	for i, ch := range l.channels {
		out[i] = ch.decode(raw[i])
	}
	return out, nil
}

func (l *List) Readback(ctx context.Context) ([]device.Value, error) {
	raw := make([]uint16, len(l.channels))
	addr := func(ch *Channel) uint16 { a, _ := ch.readbackRegister(); return a }
	isInput := func(ch *Channel) bool { _, in := ch.readbackRegister(); return in }

	order, groups := l.byServer(addr, isInput)
	for _, s := range order {
		if err := fetch(ctx, s, groups[s], s.client.ReadInputRegisters, raw); err != nil {
			return nil, err
		}
	}
	order, groups = l.byServer(addr, func(ch *Channel) bool { return !isInput(ch) })
	for _, s := range order {
		if err := fetch(ctx, s, groups[s], s.client.ReadHoldingRegisters, raw); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	out := make([]device.Value, len(l.channels))
	for i, ch := range l.channels {
		out[i] = device.Value{Value: ch.decode(raw[i]), Quality: device.QualityValid, Timestamp: now}
	}
	return out, nil
}

type readFunc func(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error)

// fetch reads the registers of slots in spans of at most MaxRegisters,
// gaps included, and stores them at each slot's position in raw.
func fetch(ctx context.Context, s server, slots []slot, read readFunc, raw []uint16) error {
	sorted := append([]slot(nil), slots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].addr < sorted[j].addr })

	for start := 0; start < len(sorted); {
		base := sorted[start].addr
		end := start
		for end < len(sorted) && int(sorted[end].addr)-int(base) < MaxRegisters {
			end++
		}
		qty := sorted[end-1].addr - base + 1
		regs, err := read(ctx, s.unitID, base, qty)
		if err != nil {
			return fmt.Errorf("modbus read of %d registers at %d on %s: %w", qty, base, s.client.Address(), err)
		}
		for _, sl := range sorted[start:end] {
			raw[sl.pos] = regs[sl.addr-base]
		}
		start = end
	}
	return nil
}

// Set checks every value before the first request goes out.
func (l *List) Set(ctx context.Context, values []float64) error {
	if err := device.CheckLen(l.Devices(), values); err != nil {
		return err
	}
	regs := make([]uint16, len(values))
	for i, ch := range l.channels {
		r, err := ch.encode(values[i])
		if err != nil {
			return err
		}
		regs[i] = r
	}

	setpoint := func(ch *Channel) uint16 { return ch.cfg.Setpoint }
	order, groups := l.byServer(setpoint, func(*Channel) bool { return true })
	for _, s := range order {
		if err := store(ctx, s, groups[s], regs); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) SetAndWait(ctx context.Context, values []float64) error {
	return types.Errorf(types.KindNotImplemented, "modbus list: set and wait not implemented yet")
}

// store writes runs of consecutive registers. A register listed twice
// takes the later value.
func store(ctx context.Context, s server, slots []slot, regs []uint16) error {
	values := make(map[uint16]uint16, len(slots))
	var addrs []uint16
	for _, sl := range slots {
		if _, seen := values[sl.addr]; !seen {
			addrs = append(addrs, sl.addr)
		}
		values[sl.addr] = regs[sl.pos]
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for start := 0; start < len(addrs); {
		end := start + 1
		for end < len(addrs) && addrs[end] == addrs[end-1]+1 && end-start < MaxWriteRegisters {
			end++
		}
		run := make([]uint16, 0, end-start)
		for _, a := range addrs[start:end] {
			run = append(run, values[a])
		}
		if err := s.client.WriteMultipleRegisters(ctx, s.unitID, addrs[start], run); err != nil {
			return fmt.Errorf("modbus write of %d registers at %d on %s: %w", len(run), addrs[start], s.client.Address(), err)
		}
		start = end
	}
	return nil
}
