// Package accel drives the NXP MMA8452Q triaxial accelerometer used for
// body movement and position detection. Most configuration registers can
// only be written while the part is in standby, so every setting change
// goes through a standby/active cycle.
package accel

import (
	"context"
	"fmt"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/bus"
	"github.com/5l1v3r1/homeicu/fifo"
)

// 0x1C when the SA0 pin is tied low, 0x1D when high.
const mma8452Address = 0x1C

const (
	regStatus     byte = 0x00
	regOutXMSB    byte = 0x01
	regSysMod     byte = 0x0B
	regWhoAmI     byte = 0x0D
	regXYZDataCfg byte = 0x0E
	regPLStatus   byte = 0x10
	regPLCfg      byte = 0x11
	regPLCount    byte = 0x12
	regPulseCfg   byte = 0x21
	regPulseSrc   byte = 0x22
	regPulseThsX  byte = 0x23
	regPulseThsY  byte = 0x24
	regPulseThsZ  byte = 0x25
	regPulseTmlt  byte = 0x26
	regPulseLtcy  byte = 0x27
	regPulseWind  byte = 0x28
	regCtrl1      byte = 0x2A
)

const (
	expectedWhoAmI byte = 0x2A

	statusDataReady byte = 0x08
	sysModStandby   byte = 0x00
	ctrl1Active     byte = 0x01

	// 12-bit two's complement samples, left-justified in 16 bits
	axisShift = 4
	axisMask  = 0xFFF
)

// Scale is the full-scale range in g.
type Scale int

const (
	Scale2G Scale = 2
	Scale4G Scale = 4
	Scale8G Scale = 8
)

// DataRate selects the output data rate (CTRL_REG1 DR bits).
type DataRate byte

const (
	Rate800Hz DataRate = iota
	Rate400Hz
	Rate200Hz
	Rate100Hz
	Rate50Hz
	Rate12Hz // 12.5 Hz
	Rate6Hz  // 6.25 Hz
	Rate1Hz  // 1.56 Hz
)

// Orientation is the portrait/landscape detection result.
type Orientation byte

const (
	PortraitUp Orientation = iota
	PortraitDown
	LandscapeRight
	LandscapeLeft
	// Flat means z-tilt lockout: the board lies in neither portrait nor
	// landscape.
	Flat Orientation = 0x40
)

func (o Orientation) String() string {
	switch o {
	case PortraitUp:
		return "up"
	case PortraitDown:
		return "down"
	case LandscapeRight:
		return "right"
	case LandscapeLeft:
		return "left"
	case Flat:
		return "flat"
	default:
		return "unknown"
	}
}

// MotionOptions configures the accelerometer at initialization.
type MotionOptions struct {
	Scale Scale
	Rate  DataRate
	// Tap thresholds per axis in 0.0625 g steps; the top bit (0x80)
	// disables tap detection on that axis.
	TapThresholdX byte
	TapThresholdY byte
	TapThresholdZ byte
	RingCapacity  int
}

// DefaultMotionOptions matches the firmware setup: full rate, 2 g range,
// tap detection on the z axis only at 0.5 g.
func DefaultMotionOptions() MotionOptions {
	return MotionOptions{
		Scale:         Scale2G,
		Rate:          Rate800Hz,
		TapThresholdX: 0x80,
		TapThresholdY: 0x80,
		TapThresholdZ: 0x08,
	}
}

const defaultRingCapacity = 32

// Reading is one decoded acceleration triple: raw signed 12-bit counts and
// the same values scaled to g units.
type Reading struct {
	X, Y, Z    int16
	CX, CY, CZ float32
}

// MMA8452 represents the accelerometer bound to a register transport.
type MMA8452 struct {
	regs  *bus.Registers
	scale Scale
	x     *fifo.Ring
	y     *fifo.Ring
	z     *fifo.Ring
	raw   [6]byte
}

func NewMMA8452(transport homeicu.I2CBus) *MMA8452 {
	return &MMA8452{
		regs:  bus.NewRegisters(transport, mma8452Address),
		scale: Scale2G,
		x:     fifo.NewRing(defaultRingCapacity),
		y:     fifo.NewRing(defaultRingCapacity),
		z:     fifo.NewRing(defaultRingCapacity),
	}
}

// Configure checks the identity register, then applies scale, data rate,
// orientation and tap detection with the part quiesced. It leaves the part
// active and sampling.
func (m *MMA8452) Configure(ctx context.Context, o MotionOptions) error {
	id, err := m.regs.Read(ctx, regWhoAmI)
	if err != nil {
		return fmt.Errorf("mma8452: WHO_AM_I read failed: %w", err)
	}
	if id != expectedWhoAmI {
		return fmt.Errorf("mma8452: WHO_AM_I %#x, expected %#x: %w", id, expectedWhoAmI, homeicu.ErrIdentityMismatch)
	}

	if err = m.Standby(ctx); err != nil {
		return err
	}
	if err = m.setScale(ctx, o.Scale); err != nil {
		return err
	}
	if err = m.setDataRate(ctx, o.Rate); err != nil {
		return err
	}
	if err = m.setupOrientation(ctx); err != nil {
		return err
	}
	if err = m.setupTap(ctx, o.TapThresholdX, o.TapThresholdY, o.TapThresholdZ); err != nil {
		return err
	}

	if o.RingCapacity > 0 {
		m.x = fifo.NewRing(o.RingCapacity)
		m.y = fifo.NewRing(o.RingCapacity)
		m.z = fifo.NewRing(o.RingCapacity)
	} else {
		m.x.Clear()
		m.y.Clear()
		m.z.Clear()
	}
	return m.Active(ctx)
}

// Available reports whether a new acceleration triple is ready.
func (m *MMA8452) Available(ctx context.Context) (bool, error) {
	status, err := m.regs.Read(ctx, regStatus)
	if err != nil {
		return false, fmt.Errorf("mma8452: status read failed: %w", err)
	}
	return status&statusDataReady != 0, nil
}

// Read bursts the six axis registers, decodes the signed 12-bit counts and
// appends one sample per axis to the motion rings.
func (m *MMA8452) Read(ctx context.Context) (Reading, error) {
	if err := m.regs.ReadBurst(ctx, regOutXMSB, m.raw[:], len(m.raw)); err != nil {
		return Reading{}, fmt.Errorf("mma8452: axis burst failed: %w", err)
	}
	r := Reading{
		X: decodeAxis(m.raw[0], m.raw[1]),
		Y: decodeAxis(m.raw[2], m.raw[3]),
		Z: decodeAxis(m.raw[4], m.raw[5]),
	}
	r.CX = m.toG(r.X)
	r.CY = m.toG(r.Y)
	r.CZ = m.toG(r.Z)
	m.x.Write(fifo.Sample{Channel: fifo.ChannelX, Value: uint32(uint16(r.X)) & axisMask})
	m.y.Write(fifo.Sample{Channel: fifo.ChannelY, Value: uint32(uint16(r.Y)) & axisMask})
	m.z.Write(fifo.Sample{Channel: fifo.ChannelZ, Value: uint32(uint16(r.Z)) & axisMask})
	return r, nil
}

// ReadTap returns the pulse source bits when a tap was detected since the
// last read, zero otherwise.
func (m *MMA8452) ReadTap(ctx context.Context) (byte, error) {
	src, err := m.regs.Read(ctx, regPulseSrc)
	if err != nil {
		return 0, fmt.Errorf("mma8452: tap status read failed: %w", err)
	}
	if src&0x80 == 0 {
		return 0, nil
	}
	return src & 0x7F, nil
}

// Orientation reads the portrait/landscape status.
func (m *MMA8452) Orientation(ctx context.Context) (Orientation, error) {
	status, err := m.regs.Read(ctx, regPLStatus)
	if err != nil {
		return Flat, fmt.Errorf("mma8452: orientation read failed: %w", err)
	}
	if status&0x40 != 0 {
		return Flat, nil
	}
	return Orientation((status & 0x06) >> 1), nil
}

// WhoAmI reads the identity register.
func (m *MMA8452) WhoAmI(ctx context.Context) (byte, error) {
	id, err := m.regs.Read(ctx, regWhoAmI)
	if err != nil {
		return 0, fmt.Errorf("mma8452: WHO_AM_I read failed: %w", err)
	}
	return id, nil
}

// Stream returns the ring for one motion axis.
func (m *MMA8452) Stream(ch fifo.Channel) *fifo.Ring {
	switch ch {
	case fifo.ChannelX:
		return m.x
	case fifo.ChannelY:
		return m.y
	case fifo.ChannelZ:
		return m.z
	default:
		return nil
	}
}

// Standby quiesces the part; most configuration registers can only be
// written in this state.
func (m *MMA8452) Standby(ctx context.Context) error {
	if err := m.regs.Update(ctx, regCtrl1, ^ctrl1Active, 0x00); err != nil {
		return fmt.Errorf("mma8452: standby failed: %w", err)
	}
	return nil
}

// Active resumes sampling.
func (m *MMA8452) Active(ctx context.Context) error {
	if err := m.regs.Update(ctx, regCtrl1, ^ctrl1Active, ctrl1Active); err != nil {
		return fmt.Errorf("mma8452: activation failed: %w", err)
	}
	return nil
}

func (m *MMA8452) isActive(ctx context.Context) (bool, error) {
	mode, err := m.regs.Read(ctx, regSysMod)
	if err != nil {
		return false, fmt.Errorf("mma8452: system mode read failed: %w", err)
	}
	// wake and sleep both count as active
	return mode&0x03 != sysModStandby, nil
}

func (m *MMA8452) quiesce(ctx context.Context) error {
	active, err := m.isActive(ctx)
	if err != nil {
		return err
	}
	if active {
		return m.Standby(ctx)
	}
	return nil
}

// SetScale changes the full-scale range, quiescing the part first.
func (m *MMA8452) SetScale(ctx context.Context, s Scale) error {
	if err := m.quiesce(ctx); err != nil {
		return err
	}
	if err := m.setScale(ctx, s); err != nil {
		return err
	}
	return m.Active(ctx)
}

func (m *MMA8452) setScale(ctx context.Context, s Scale) error {
	switch s {
	case Scale2G, Scale4G, Scale8G:
	default:
		s = Scale2G
	}
	// 00 = 2g, 01 = 4g, 10 = 8g (scale >> 2, datasheet page 22)
	if err := m.regs.Update(ctx, regXYZDataCfg, 0xFC, byte(s)>>2); err != nil {
		return fmt.Errorf("mma8452: scale setup failed: %w", err)
	}
	m.scale = s
	return nil
}

func (m *MMA8452) setDataRate(ctx context.Context, rate DataRate) error {
	if err := m.regs.Update(ctx, regCtrl1, 0xC7, byte(rate)<<3); err != nil {
		return fmt.Errorf("mma8452: data rate setup failed: %w", err)
	}
	return nil
}

func (m *MMA8452) setupOrientation(ctx context.Context) error {
	if err := m.regs.Update(ctx, regPLCfg, 0xFF, 0x40); err != nil {
		return fmt.Errorf("mma8452: orientation detection enable failed: %w", err)
	}
	// debounce counter, 100 ms at 800 Hz
	if err := m.regs.Write(ctx, regPLCount, 0x50); err != nil {
		return fmt.Errorf("mma8452: orientation debounce setup failed: %w", err)
	}
	return nil
}

func (m *MMA8452) setupTap(ctx context.Context, xThs, yThs, zThs byte) error {
	var enabled byte
	if xThs&0x80 == 0 {
		enabled |= 0x03
		if err := m.regs.Write(ctx, regPulseThsX, xThs); err != nil {
			return fmt.Errorf("mma8452: x tap threshold failed: %w", err)
		}
	}
	if yThs&0x80 == 0 {
		enabled |= 0x0C
		if err := m.regs.Write(ctx, regPulseThsY, yThs); err != nil {
			return fmt.Errorf("mma8452: y tap threshold failed: %w", err)
		}
	}
	if zThs&0x80 == 0 {
		enabled |= 0x30
		if err := m.regs.Write(ctx, regPulseThsZ, zThs); err != nil {
			return fmt.Errorf("mma8452: z tap threshold failed: %w", err)
		}
	}
	if err := m.regs.Write(ctx, regPulseCfg, enabled|0x40); err != nil {
		return fmt.Errorf("mma8452: tap detection enable failed: %w", err)
	}
	// time limit, latency and second-pulse window at 800 Hz ODR
	if err := m.regs.Write(ctx, regPulseTmlt, 0x30); err != nil {
		return fmt.Errorf("mma8452: tap time limit failed: %w", err)
	}
	if err := m.regs.Write(ctx, regPulseLtcy, 0xA0); err != nil {
		return fmt.Errorf("mma8452: tap latency failed: %w", err)
	}
	if err := m.regs.Write(ctx, regPulseWind, 0xFF); err != nil {
		return fmt.Errorf("mma8452: tap window failed: %w", err)
	}
	return nil
}

func (m *MMA8452) toG(counts int16) float32 {
	return float32(counts) / float32(1<<11) * float32(m.scale)
}

func decodeAxis(msb, lsb byte) int16 {
	return int16(uint16(msb)<<8|uint16(lsb)) >> axisShift
}
