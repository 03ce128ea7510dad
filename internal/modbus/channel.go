package modbus

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/OpenBeamCore/internal/device"
	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// ChannelConfig places one scalar channel on a server: the setpoint in a
// holding register and, optionally, the measured value in an input
// register. Register values are multiplied by ScaleFactor.
type ChannelConfig struct {
	Name        string
	Unit        string
	Range       device.Range
	UnitID      uint8
	Setpoint    uint16
	Readback    *uint16
	DataType    types.DataType
	ScaleFactor float64
	ReadOnly    bool
}

// Channel implements device.Access over Modbus TCP.
type Channel struct {
	cfg    ChannelConfig
	client *Client
}

func NewChannel(client *Client, cfg ChannelConfig) (*Channel, error) {
	switch cfg.DataType {
	case types.DataTypeInt16, types.DataTypeUint16:
	case "":
		cfg.DataType = types.DataTypeUint16
	default:
		return nil, types.Errorf(types.KindConfig, "%s: unsupported data type %s", cfg.Name, cfg.DataType)
	}
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = 1.0
	}
	return &Channel{cfg: cfg, client: client}, nil
}

func (c *Channel) Name() string        { return c.cfg.Name }
func (c *Channel) Unit() string        { return c.cfg.Unit }
func (c *Channel) Range() device.Range { return c.cfg.Range }
func (c *Channel) Client() *Client     { return c.client }

func (c *Channel) MeasureName() string {
	if c.cfg.Readback == nil {
		return c.cfg.Name
	}
	return fmt.Sprintf("%s:RB", c.cfg.Name)
}

// readbackRegister is the input register, or the holding register when
// the channel has no separate measurement.
func (c *Channel) readbackRegister() (addr uint16, input bool) {
	if c.cfg.Readback != nil {
		return *c.cfg.Readback, true
	}
	return c.cfg.Setpoint, false
}

func (c *Channel) Get(ctx context.Context) (float64, error) {
	regs, err := c.client.ReadHoldingRegisters(ctx, c.cfg.UnitID, c.cfg.Setpoint, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to read setpoint of %s: %w", c.cfg.Name, err)
	}
	return c.decode(regs[0]), nil
}

func (c *Channel) Set(ctx context.Context, value float64) error {
	reg, err := c.encode(value)
	if err != nil {
		return err
	}
	if err := c.client.WriteMultipleRegisters(ctx, c.cfg.UnitID, c.cfg.Setpoint, []uint16{reg}); err != nil {
		return fmt.Errorf("failed to write setpoint of %s: %w", c.cfg.Name, err)
	}
	return nil
}

func (c *Channel) SetAndWait(ctx context.Context, value float64) error {
	return types.Errorf(types.KindNotImplemented, "%s: set and wait not implemented yet", c.cfg.Name)
}

func (c *Channel) Readback(ctx context.Context) (device.Value, error) {
	addr, input := c.readbackRegister()
	read := c.client.ReadHoldingRegisters
	if input {
		read = c.client.ReadInputRegisters
	}
	regs, err := read(ctx, c.cfg.UnitID, addr, 1)
	if err != nil {
		return device.Value{}, fmt.Errorf("failed to read %s: %w", c.MeasureName(), err)
	}
	return device.Value{Value: c.decode(regs[0]), Quality: device.QualityValid, Timestamp: time.Now()}, nil
}

func (c *Channel) decode(reg uint16) float64 {
	if c.cfg.DataType == types.DataTypeInt16 {
		return float64(int16(reg)) * c.cfg.ScaleFactor
	}
	return float64(reg) * c.cfg.ScaleFactor
}

// encode checks the channel range and the register's representable range
// before any I/O happens.
func (c *Channel) encode(value float64) (uint16, error) {
	if c.cfg.ReadOnly {
		return 0, types.Errorf(types.KindValue, "%s is read only", c.cfg.Name)
	}
	if err := c.cfg.Range.Check(c.cfg.Name, value); err != nil {
		return 0, err
	}

	raw := math.Round(value / c.cfg.ScaleFactor)
	lo, hi := 0.0, float64(math.MaxUint16)
	if c.cfg.DataType == types.DataTypeInt16 {
		lo, hi = math.MinInt16, math.MaxInt16
	}
	if math.IsNaN(raw) || raw < lo || raw > hi {
		return 0, types.Errorf(types.KindRange, "%s: value %g does not fit a %s register (scale %g)",
			c.cfg.Name, value, c.cfg.DataType, c.cfg.ScaleFactor)
	}
	if c.cfg.DataType == types.DataTypeInt16 {
		return uint16(int16(raw)), nil
	}
	return uint16(raw), nil
}
