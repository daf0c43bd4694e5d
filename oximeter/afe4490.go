package oximeter

import (
	"context"
	"fmt"

	"gobot.io/x/gobot/v2/drivers/spi"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/fifo"
)

// AFE4490 register map (TI datasheet, Table 2). Registers are 24 bits wide.
const (
	afeControl0     byte = 0x00
	afeLED2STC      byte = 0x01
	afeLED2ENDC     byte = 0x02
	afeLED2LEDSTC   byte = 0x03
	afeLED2LEDENDC  byte = 0x04
	afeALED2STC     byte = 0x05
	afeALED2ENDC    byte = 0x06
	afeLED1STC      byte = 0x07
	afeLED1ENDC     byte = 0x08
	afeLED1LEDSTC   byte = 0x09
	afeLED1LEDENDC  byte = 0x0A
	afeALED1STC     byte = 0x0B
	afeALED1ENDC    byte = 0x0C
	afeLED2CONVST   byte = 0x0D
	afeLED2CONVEND  byte = 0x0E
	afeALED2CONVST  byte = 0x0F
	afeALED2CONVEND byte = 0x10
	afeLED1CONVST   byte = 0x11
	afeLED1CONVEND  byte = 0x12
	afeALED1CONVST  byte = 0x13
	afeALED1CONVEND byte = 0x14
	afeADCRSTSTCT0  byte = 0x15
	afeADCRSTENDCT0 byte = 0x16
	afeADCRSTSTCT1  byte = 0x17
	afeADCRSTENDCT1 byte = 0x18
	afeADCRSTSTCT2  byte = 0x19
	afeADCRSTENDCT2 byte = 0x1A
	afeADCRSTSTCT3  byte = 0x1B
	afeADCRSTENDCT3 byte = 0x1C
	afePRPCOUNT     byte = 0x1D
	afeControl1     byte = 0x1E
	afeTIAGain      byte = 0x20
	afeTIAAmbGain   byte = 0x21
	afeLEDCntrl     byte = 0x22
	afeControl2     byte = 0x23
	afeLED2Val      byte = 0x2A
	afeALED2Val     byte = 0x2B
	afeLED1Val      byte = 0x2C
	afeALED1Val     byte = 0x2D
)

const (
	afeSPIReadEnable uint32 = 0x000001
	afeSWReset       uint32 = 0x000008
	afeTimerEnable   uint32 = 0x010707
	afeTimerDisable  uint32 = 0x010700

	// ADC results are 22-bit two's complement; the top four fractional
	// bits are dropped to land on the common 18-bit sample width.
	afeValueMask  = 0x3FFFFF
	afeValueShift = 4
)

// Pulse repetition timing for 500 SpO2 samples per second at a 4 MHz
// clock, as used by the reference analog front end layout.
var afeTiming = []struct {
	reg   byte
	value uint32
}{
	{afeLED2STC, 0x001770},
	{afeLED2ENDC, 0x001F3E},
	{afeLED2LEDSTC, 0x001770},
	{afeLED2LEDENDC, 0x001F3F},
	{afeALED2STC, 0x000000},
	{afeALED2ENDC, 0x0007CE},
	{afeLED1STC, 0x0007D0},
	{afeLED1ENDC, 0x000F9E},
	{afeLED1LEDSTC, 0x0007D0},
	{afeLED1LEDENDC, 0x000F9F},
	{afeALED1STC, 0x000FA0},
	{afeALED1ENDC, 0x00176E},
	{afeLED2CONVST, 0x000002},
	{afeLED2CONVEND, 0x0007CF},
	{afeALED2CONVST, 0x0007D2},
	{afeALED2CONVEND, 0x000F9F},
	{afeLED1CONVST, 0x000FA2},
	{afeLED1CONVEND, 0x00176F},
	{afeALED1CONVST, 0x001772},
	{afeALED1CONVEND, 0x001F3F},
	{afeADCRSTSTCT0, 0x000000},
	{afeADCRSTENDCT0, 0x000000},
	{afeADCRSTSTCT1, 0x0007D0},
	{afeADCRSTENDCT1, 0x0007D0},
	{afeADCRSTSTCT2, 0x000FA0},
	{afeADCRSTENDCT2, 0x000FA0},
	{afeADCRSTSTCT3, 0x001770},
	{afeADCRSTENDCT3, 0x001770},
	{afePRPCOUNT, 0x001F3F},
}

// AFE4490 drives the TI AFE4490 pulse-oximetry front end over SPI. Unlike
// the MAX3010x it has no on-chip sample FIFO: each data-ready event leaves
// one red/infrared conversion pair in result registers, which DrainFIFO
// picks up. Mode 1 SPI (CPOL=0, CPHA=1), up to 4 MHz.
type AFE4490 struct {
	*spi.Driver
	red *fifo.Ring
	ir  *fifo.Ring
}

// NewAFE4490 returns a driver bound to a Gobot SPI adaptor. bus and
// additional options follow the adaptor's numbering conventions.
func NewAFE4490(adaptor spi.Connector, busName string, opts ...func(spi.Config)) *AFE4490 {
	d := spi.NewDriver(adaptor, busName, opts...)
	d.SetMode(1)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(4_000_000)
	}
	return &AFE4490{
		Driver: d,
		red:    fifo.NewRing(defaultRingCapacity),
		ir:     fifo.NewRing(defaultRingCapacity),
	}
}

func (a *AFE4490) connection() (spiOps, error) {
	if a == nil || a.Driver == nil {
		return nil, fmt.Errorf("afe4490: spi driver not initialized")
	}
	ops, ok := a.Driver.Connection().(spiOps)
	if !ok {
		return nil, fmt.Errorf("afe4490: spi connection does not support required operations")
	}
	return ops, nil
}

type spiOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

func (a *AFE4490) writeRegister(reg byte, value uint32) error {
	ops, err := a.connection()
	if err != nil {
		return err
	}
	err = ops.WriteBytes([]byte{reg, byte(value >> 16), byte(value >> 8), byte(value)})
	if err != nil {
		return fmt.Errorf("afe4490: write register %#x failed: %w", reg, err)
	}
	return nil
}

func (a *AFE4490) readRegister(reg byte) (uint32, error) {
	ops, err := a.connection()
	if err != nil {
		return 0, err
	}
	var data [3]byte
	if err = ops.ReadCommandData([]byte{reg}, data[:]); err != nil {
		return 0, fmt.Errorf("afe4490: read register %#x failed: %w", reg, err)
	}
	return uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2]), nil
}

// Configure resets the front end and applies the conversion timing, gains
// and LED currents. The part has no identity register, so the LED control
// register is read back after configuration; a mismatch means no AFE4490
// is answering on the bus.
func (a *AFE4490) Configure(ctx context.Context, o Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.writeRegister(afeControl0, afeSWReset); err != nil {
		return err
	}
	for _, t := range afeTiming {
		if err := a.writeRegister(t.reg, t.value); err != nil {
			return err
		}
	}
	if err := a.writeRegister(afeControl1, afeTimerEnable); err != nil {
		return err
	}
	if err := a.writeRegister(afeTIAGain, 0x000000); err != nil {
		return err
	}
	if err := a.writeRegister(afeTIAAmbGain, 0x000001); err != nil {
		return err
	}
	current := uint32(o.PowerLevel)
	ledCntrl := 0x010000 | current<<8 | current
	if err := a.writeRegister(afeLEDCntrl, ledCntrl); err != nil {
		return err
	}
	if err := a.writeRegister(afeControl2, 0x020100); err != nil {
		return err
	}

	if err := a.writeRegister(afeControl0, afeSPIReadEnable); err != nil {
		return err
	}
	readback, err := a.readRegister(afeLEDCntrl)
	if err != nil {
		return err
	}
	if readback != ledCntrl {
		return fmt.Errorf("afe4490: LED control readback %#x, expected %#x: %w", readback, ledCntrl, homeicu.ErrIdentityMismatch)
	}

	if o.RingCapacity > 0 {
		a.red = fifo.NewRing(o.RingCapacity)
		a.ir = fifo.NewRing(o.RingCapacity)
	} else {
		a.red.Clear()
		a.ir.Clear()
	}
	return nil
}

// Start enables the conversion sequence timer.
func (a *AFE4490) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.writeRegister(afeControl0, 0x000000); err != nil {
		return err
	}
	if err := a.writeRegister(afeControl1, afeTimerEnable); err != nil {
		return err
	}
	return a.writeRegister(afeControl0, afeSPIReadEnable)
}

// Stop halts the conversion sequence timer; configuration is retained.
func (a *AFE4490) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.writeRegister(afeControl0, 0x000000); err != nil {
		return err
	}
	if err := a.writeRegister(afeControl1, afeTimerDisable); err != nil {
		return err
	}
	return a.writeRegister(afeControl0, afeSPIReadEnable)
}

// DrainFIFO reads the current red and infrared conversion results. The
// front end holds exactly one pair per data-ready pulse, so one sample is
// appended to each ring per call.
func (a *AFE4490) DrainFIFO(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	redRaw, err := a.readRegister(afeLED2Val)
	if err != nil {
		return 0, err
	}
	irRaw, err := a.readRegister(afeLED1Val)
	if err != nil {
		return 0, err
	}
	a.red.Write(fifo.Sample{Channel: fifo.ChannelRed, Value: decodeAFE(redRaw)})
	a.ir.Write(fifo.Sample{Channel: fifo.ChannelIR, Value: decodeAFE(irRaw)})
	return 1, nil
}

// ReadTemperature reports ErrNoData: the AFE4490 has no temperature
// sensor, the consumer keeps its last-known value.
func (a *AFE4490) ReadTemperature(ctx context.Context) (float32, error) {
	return 0, homeicu.ErrNoData
}

// PartID returns the low byte of the LED control register. The part has no
// dedicated identity register; Configure performs the real presence check.
func (a *AFE4490) PartID(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := a.readRegister(afeLEDCntrl)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// Stream returns the ring for an optical channel. The AFE4490 produces no
// green channel.
func (a *AFE4490) Stream(ch fifo.Channel) *fifo.Ring {
	switch ch {
	case fifo.ChannelRed:
		return a.red
	case fifo.ChannelIR:
		return a.ir
	default:
		return nil
	}
}

func decodeAFE(raw uint32) uint32 {
	return (raw & afeValueMask) >> afeValueShift & sampleMask
}
