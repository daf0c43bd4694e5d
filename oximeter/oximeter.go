// Package oximeter drives the pulse-oximetry front ends. Two physical parts
// are supported behind one contract: the MAX3010x I2C sensor with an on-chip
// sample FIFO, and the AFE4490 SPI analog front end that delivers one
// red/infrared pair per conversion. A null variant keeps the acquisition
// loop running on boards without an oximeter fitted.
package oximeter

import (
	"context"

	"github.com/5l1v3r1/homeicu/fifo"
)

// Decoded channel values are at most 18 bits wide; anything above is
// corrupted and masked off, never sign-extended.
const sampleMask = 0x3FFFF

const defaultRingCapacity = 64

// Options is the immutable operating configuration applied by Configure.
// Changing any field requires reconfiguring, which quiesces the device
// first.
type Options struct {
	// PowerLevel is the LED drive amplitude (0x00 = off, 0x1F ~ 6.4 mA,
	// 0xFF ~ 50 mA).
	PowerLevel byte
	// SampleAverage is the on-chip averaging factor (1, 2, 4, 8, 16, 32).
	SampleAverage int
	// LEDMode selects the active optical channels: 1 red, 2 red+IR,
	// 3 red+IR+green.
	LEDMode int
	// SampleRate in samples per second (50..3200).
	SampleRate int
	// PulseWidth in microseconds (69..411); longer widths raise ADC
	// resolution.
	PulseWidth int
	// ADCRange full scale (2048, 4096, 8192, 16384).
	ADCRange int
	// RingCapacity sizes the per-channel sample rings. Zero keeps the
	// default.
	RingCapacity int
}

// DefaultOptions mirrors the firmware power-on configuration.
func DefaultOptions() Options {
	return Options{
		PowerLevel:    0x1F,
		SampleAverage: 4,
		LEDMode:       2,
		SampleRate:    200,
		PulseWidth:    411,
		ADCRange:      16384,
	}
}

// Oximeter is the common contract the acquisition scheduler depends on.
// Implementations translate it onto part-specific register maps.
type Oximeter interface {
	// Configure verifies device identity and applies the operating
	// parameters. The device is quiesced before any register changes.
	Configure(ctx context.Context, o Options) error
	// Start resumes sampling after Stop (or after Configure).
	Start(ctx context.Context) error
	// Stop puts the part in low power mode; configuration is retained.
	Stop(ctx context.Context) error
	// DrainFIFO moves every pending hardware sample into the per-channel
	// rings and returns how many samples were decoded. A device with
	// nothing pending costs no bus burst.
	DrainFIFO(ctx context.Context) (int, error)
	// ReadTemperature returns the die temperature in degrees Celsius.
	// Implementations without a temperature sensor report ErrNoData.
	ReadTemperature(ctx context.Context) (float32, error)
	// PartID reads the device identity register.
	PartID(ctx context.Context) (byte, error)
	// Stream exposes the ring for one optical channel, nil when the
	// channel is not produced by this part.
	Stream(ch fifo.Channel) *fifo.Ring
}

// Null is the no-device variant: every operation succeeds and no samples
// are ever produced.
type Null struct {
	empty *fifo.Ring
}

func NewNull() *Null {
	return &Null{empty: fifo.NewRing(2)}
}

func (n *Null) Configure(context.Context, Options) error { return nil }

func (n *Null) Start(context.Context) error { return nil }

func (n *Null) Stop(context.Context) error { return nil }

func (n *Null) DrainFIFO(context.Context) (int, error) { return 0, nil }

func (n *Null) ReadTemperature(context.Context) (float32, error) { return 0, nil }

func (n *Null) PartID(context.Context) (byte, error) { return 0, nil }

func (n *Null) Stream(fifo.Channel) *fifo.Ring { return n.empty }
