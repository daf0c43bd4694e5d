// Package gpio drives the MCP23017 port expander that carries the wearable's
// push button and indicator lines. Port reads retry once through a bus
// release when the I2C engine reports busy.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/5l1v3r1/homeicu"
)

const DefaultMCP23017Address = 0x21

// Port selects one of the expander's two 8-bit I/O banks.
type Port int

const (
	PortA Port = iota
	PortB
)

// Register addresses with IOCON.BANK=0 (power-on default).
var (
	regIODIR = map[Port]byte{PortA: 0x00, PortB: 0x01}
	regGPPU  = map[Port]byte{PortA: 0x0C, PortB: 0x0D}
	regGPIO  = map[Port]byte{PortA: 0x12, PortB: 0x13}
)

type MCP23017 struct {
	mx         sync.Mutex
	transport  homeicu.I2CBus
	address    byte
	retryLimit int
}

func NewMCP23017(bus homeicu.I2CBus, address byte) *MCP23017 {
	return &MCP23017{retryLimit: 2, transport: bus, address: address}
}

// SetInputs configures the masked pins of a port as inputs (1 = input).
func (m *MCP23017) SetInputs(ctx context.Context, port Port, mask byte) error {
	if err := m.writeRegister(ctx, regIODIR[port], mask); err != nil {
		return fmt.Errorf("could not configure port %d inputs: %w", port, err)
	}
	return nil
}

// SetPullUps enables the internal pull-up resistors on the masked pins.
func (m *MCP23017) SetPullUps(ctx context.Context, port Port, mask byte) error {
	if err := m.writeRegister(ctx, regGPPU[port], mask); err != nil {
		return fmt.Errorf("could not configure port %d pull-ups: %w", port, err)
	}
	return nil
}

// ReadPort returns the current input levels of one port.
func (m *MCP23017) ReadPort(ctx context.Context, port Port) (byte, error) {
	v, err := m.readRegister(ctx, regGPIO[port])
	if err != nil {
		return 0, fmt.Errorf("could not read port %d: %w", port, err)
	}
	return v, nil
}

func (m *MCP23017) writeRegister(ctx context.Context, reg, value byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{reg, value})
		if err == nil {
			return nil
		}
		if !errors.Is(err, homeicu.ErrBusBusy) {
			return err
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("retry limit reached: %w", err)
}

func (m *MCP23017) readRegister(ctx context.Context, reg byte) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	var err error
	buf := []byte{0x00}
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{reg})
		if err == nil {
			err = m.transport.ReadFromAddr(ctx, m.address, buf)
		}
		if err == nil {
			return buf[0], nil
		}
		if !errors.Is(err, homeicu.ErrBusBusy) {
			return 0, err
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return 0, fmt.Errorf("retry limit reached: %w", err)
}

// Line is one input pin, usable as a button line source. Buttons wired to
// ground with a pull-up are active-low.
type Line struct {
	exp       *MCP23017
	port      Port
	mask      byte
	activeLow bool
}

// InputLine configures pin (0..7) of a port as a pulled-up input and
// returns its line.
func (m *MCP23017) InputLine(ctx context.Context, port Port, pin int, activeLow bool) (*Line, error) {
	mask := byte(1) << pin
	if err := m.SetInputs(ctx, port, mask); err != nil {
		return nil, err
	}
	if err := m.SetPullUps(ctx, port, mask); err != nil {
		return nil, err
	}
	return &Line{exp: m, port: port, mask: mask, activeLow: activeLow}, nil
}

// Read reports whether the line is in the asserted state.
func (l *Line) Read(ctx context.Context) (bool, error) {
	v, err := l.exp.ReadPort(ctx, l.port)
	if err != nil {
		return false, err
	}
	high := v&l.mask != 0
	if l.activeLow {
		return !high, nil
	}
	return high, nil
}

// Func adapts the line to a plain polling closure; read failures report
// the line as not asserted.
func (l *Line) Func() func() bool {
	return func() bool {
		asserted, err := l.Read(context.Background())
		return err == nil && asserted
	}
}
