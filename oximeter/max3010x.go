package oximeter

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/bus"
	"github.com/5l1v3r1/homeicu/fifo"
)

// MAX3010x default 7-bit I2C address.
const max3010xAddress = 0x57

// Register map (per datasheet)
const (
	regIntStatus1    byte = 0x00
	regIntStatus2    byte = 0x01
	regIntEnable1    byte = 0x02
	regIntEnable2    byte = 0x03
	regFIFOWritePtr  byte = 0x04
	regFIFOOverflow  byte = 0x05
	regFIFOReadPtr   byte = 0x06
	regFIFOData      byte = 0x07
	regFIFOConfig    byte = 0x08
	regModeConfig    byte = 0x09
	regSPO2Config    byte = 0x0A
	regLED1Amplitude byte = 0x0C
	regLED2Amplitude byte = 0x0D
	regLED3Amplitude byte = 0x0E
	regProxAmplitude byte = 0x10
	regMultiLED1     byte = 0x11
	regMultiLED2     byte = 0x12
	regDieTempInt    byte = 0x1F
	regDieTempFrac   byte = 0x20
	regDieTempConfig byte = 0x21
	regRevisionID    byte = 0xFE
	regPartID        byte = 0xFF
)

// Bit masks. Masks select the bits to preserve during a read-modify-write.
const (
	expectedPartID byte = 0x15

	intAlmostFullMask     byte = 0x7F
	intAlmostFullEnable   byte = 0x80
	intDataReadyMask      byte = 0xBF
	intDataReadyEnable    byte = 0x40
	intDieTempReadyMask   byte = 0xFD
	intDieTempReadyEnable byte = 0x02

	sampleAvgMask  byte = 0x1F
	rolloverMask   byte = 0xEF
	rolloverEnable byte = 0x10

	shutdownMask byte = 0x7F
	shutdownBit  byte = 0x80
	resetMask    byte = 0xBF
	resetBit     byte = 0x40
	modeMask     byte = 0xF8
	modeRedOnly  byte = 0x02
	modeRedIR    byte = 0x03
	modeMultiLED byte = 0x07

	adcRangeMask   byte = 0x9F
	sampleRateMask byte = 0xE3
	pulseWidthMask byte = 0xFC

	slot1Mask    byte = 0xF8
	slot2Mask    byte = 0x8F
	slotRedLED   byte = 0x01
	slotIRLED    byte = 0x02
	slotGreenLED byte = 0x03
)

// Hardware FIFO geometry: 32 sample slots, 3 bytes per active channel.
const (
	fifoPointerRange = 32
	bytesPerChannel  = 3
	maxBurstBytes    = fifoPointerRange * 3 * bytesPerChannel
)

type MAX3010xOpts struct {
	Clock        clock.Clock
	ResetTimeout time.Duration
	TempTimeout  time.Duration
	PollInterval time.Duration
}

type MAX3010xOpt func(*MAX3010xOpts)

func WithClock(clk clock.Clock) MAX3010xOpt {
	return func(o *MAX3010xOpts) {
		o.Clock = clk
	}
}

func WithResetTimeout(d time.Duration) MAX3010xOpt {
	return func(o *MAX3010xOpts) {
		o.ResetTimeout = d
	}
}

func WithTempTimeout(d time.Duration) MAX3010xOpt {
	return func(o *MAX3010xOpts) {
		o.TempTimeout = d
	}
}

func WithPollInterval(d time.Duration) MAX3010xOpt {
	return func(o *MAX3010xOpts) {
		o.PollInterval = d
	}
}

// MAX3010x represents the Maxim MAX30101/30102 pulse oximeter. The part
// buffers samples in a 32-slot on-chip FIFO; DrainFIFO moves everything
// pending into the per-channel rings in one pass.
type MAX3010x struct {
	regs   *bus.Registers
	config MAX3010xOpts

	activeLEDs int
	revisionID byte
	lastTemp   float32

	red   *fifo.Ring
	ir    *fifo.Ring
	green *fifo.Ring
	burst [maxBurstBytes]byte
}

func NewMAX3010x(transport homeicu.I2CBus, opts ...MAX3010xOpt) *MAX3010x {
	config := MAX3010xOpts{
		Clock:        clock.New(),
		ResetTimeout: 100 * time.Millisecond,
		TempTimeout:  100 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MAX3010x{
		regs:   bus.NewRegisters(transport, max3010xAddress),
		config: config,
		red:    fifo.NewRing(defaultRingCapacity),
		ir:     fifo.NewRing(defaultRingCapacity),
		green:  fifo.NewRing(defaultRingCapacity),
	}
}

// Configure verifies the part identity, resets the device and applies the
// operating parameters. The reset quiesces the part, so configuration
// registers are only ever written to an idle device.
func (s *MAX3010x) Configure(ctx context.Context, o Options) error {
	id, err := s.regs.Read(ctx, regPartID)
	if err != nil {
		return fmt.Errorf("max3010x: part ID read failed: %w", err)
	}
	if id != expectedPartID {
		return fmt.Errorf("max3010x: part ID %#x, expected %#x: %w", id, expectedPartID, homeicu.ErrIdentityMismatch)
	}
	s.revisionID, err = s.regs.Read(ctx, regRevisionID)
	if err != nil {
		return fmt.Errorf("max3010x: revision read failed: %w", err)
	}

	if err = s.SoftReset(ctx); err != nil {
		return err
	}

	if err = s.regs.Update(ctx, regFIFOConfig, sampleAvgMask, sampleAverageBits(o.SampleAverage)); err != nil {
		return fmt.Errorf("max3010x: sample averaging setup failed: %w", err)
	}
	if err = s.regs.Update(ctx, regFIFOConfig, rolloverMask, rolloverEnable); err != nil {
		return fmt.Errorf("max3010x: FIFO rollover setup failed: %w", err)
	}

	mode := modeRedOnly
	switch {
	case o.LEDMode >= 3:
		mode = modeMultiLED
	case o.LEDMode == 2:
		mode = modeRedIR
	}
	if err = s.regs.Update(ctx, regModeConfig, modeMask, mode); err != nil {
		return fmt.Errorf("max3010x: LED mode setup failed: %w", err)
	}
	s.activeLEDs = o.LEDMode
	if s.activeLEDs < 1 {
		s.activeLEDs = 1
	}
	if s.activeLEDs > 3 {
		s.activeLEDs = 3
	}

	if err = s.regs.Update(ctx, regSPO2Config, adcRangeMask, adcRangeBits(o.ADCRange)); err != nil {
		return fmt.Errorf("max3010x: ADC range setup failed: %w", err)
	}
	if err = s.regs.Update(ctx, regSPO2Config, sampleRateMask, sampleRateBits(o.SampleRate)); err != nil {
		return fmt.Errorf("max3010x: sample rate setup failed: %w", err)
	}
	if err = s.regs.Update(ctx, regSPO2Config, pulseWidthMask, pulseWidthBits(o.PulseWidth)); err != nil {
		return fmt.Errorf("max3010x: pulse width setup failed: %w", err)
	}

	for _, reg := range []byte{regLED1Amplitude, regLED2Amplitude, regLED3Amplitude, regProxAmplitude} {
		if err = s.regs.Write(ctx, reg, o.PowerLevel); err != nil {
			return fmt.Errorf("max3010x: pulse amplitude setup failed: %w", err)
		}
	}

	// one multi-LED slot per active channel
	if err = s.regs.Update(ctx, regMultiLED1, slot1Mask, slotRedLED); err != nil {
		return fmt.Errorf("max3010x: slot 1 setup failed: %w", err)
	}
	if s.activeLEDs > 1 {
		if err = s.regs.Update(ctx, regMultiLED1, slot2Mask, slotIRLED<<4); err != nil {
			return fmt.Errorf("max3010x: slot 2 setup failed: %w", err)
		}
	}
	if s.activeLEDs > 2 {
		if err = s.regs.Update(ctx, regMultiLED2, slot1Mask, slotGreenLED); err != nil {
			return fmt.Errorf("max3010x: slot 3 setup failed: %w", err)
		}
	}

	if err = s.EnableDataReady(ctx); err != nil {
		return err
	}
	if err = s.EnableDieTempReady(ctx); err != nil {
		return err
	}

	if o.RingCapacity > 0 {
		s.red = fifo.NewRing(o.RingCapacity)
		s.ir = fifo.NewRing(o.RingCapacity)
		s.green = fifo.NewRing(o.RingCapacity)
	} else {
		s.red.Clear()
		s.ir.Clear()
		s.green.Clear()
	}
	return s.ClearFIFO(ctx)
}

// SoftReset resets configuration, thresholds and data registers to their
// power-on values, then polls the reset bit until the part reports
// completion. The poll is bounded; a part that never clears the bit is
// proceeded with rather than treated as fatal.
func (s *MAX3010x) SoftReset(ctx context.Context) error {
	if err := s.regs.Update(ctx, regModeConfig, resetMask, resetBit); err != nil {
		return fmt.Errorf("max3010x: reset request failed: %w", err)
	}
	deadline := s.config.Clock.Now().Add(s.config.ResetTimeout)
	for s.config.Clock.Now().Before(deadline) {
		v, err := s.regs.Read(ctx, regModeConfig)
		if err != nil {
			return fmt.Errorf("max3010x: reset poll failed: %w", err)
		}
		if v&resetBit == 0 {
			return nil
		}
		s.config.Clock.Sleep(s.config.PollInterval)
	}
	return nil
}

// Start pulls the part out of low power mode.
func (s *MAX3010x) Start(ctx context.Context) error {
	if err := s.regs.Update(ctx, regModeConfig, shutdownMask, 0x00); err != nil {
		return fmt.Errorf("max3010x: wakeup failed: %w", err)
	}
	return nil
}

// Stop puts the part into low power mode. It keeps responding on the bus
// but takes no new readings; configuration is retained.
func (s *MAX3010x) Stop(ctx context.Context) error {
	if err := s.regs.Update(ctx, regModeConfig, shutdownMask, shutdownBit); err != nil {
		return fmt.Errorf("max3010x: shutdown failed: %w", err)
	}
	return nil
}

// DrainFIFO reads the hardware write and read pointers, bursts every
// pending sample record off the part and appends the decoded channel
// values to the rings. Equal pointers cost exactly the two pointer reads,
// no burst. Returns the number of samples decoded.
func (s *MAX3010x) DrainFIFO(ctx context.Context) (int, error) {
	if s.activeLEDs == 0 {
		return 0, fmt.Errorf("max3010x: not configured")
	}
	readPtr, err := s.regs.Read(ctx, regFIFOReadPtr)
	if err != nil {
		return 0, fmt.Errorf("max3010x: FIFO read pointer: %w", err)
	}
	writePtr, err := s.regs.Read(ctx, regFIFOWritePtr)
	if err != nil {
		return 0, fmt.Errorf("max3010x: FIFO write pointer: %w", err)
	}
	pending := int(writePtr-readPtr) & (fifoPointerRange - 1)
	if pending == 0 {
		return 0, nil
	}

	record := s.activeLEDs * bytesPerChannel
	buf := s.burst[:pending*record]
	if err = s.regs.ReadBurst(ctx, regFIFOData, buf, record); err != nil {
		return 0, fmt.Errorf("max3010x: FIFO burst failed: %w", err)
	}

	for off := 0; off < len(buf); off += record {
		for ch := 0; ch < s.activeLEDs; ch++ {
			b := buf[off+ch*bytesPerChannel:]
			v := (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) & sampleMask
			switch ch {
			case 0:
				s.red.Write(fifo.Sample{Channel: fifo.ChannelRed, Value: v})
			case 1:
				s.ir.Write(fifo.Sample{Channel: fifo.ChannelIR, Value: v})
			case 2:
				s.green.Write(fifo.Sample{Channel: fifo.ChannelGreen, Value: v})
			}
		}
	}
	return pending, nil
}

// ReadTemperature triggers a one-shot die temperature conversion and polls
// the ready interrupt for up to the configured timeout. On timeout the
// last-known value is returned instead of an error; the caller is never
// failed for a slow conversion.
func (s *MAX3010x) ReadTemperature(ctx context.Context) (float32, error) {
	if err := s.regs.Write(ctx, regDieTempConfig, 0x01); err != nil {
		return s.lastTemp, fmt.Errorf("max3010x: temperature conversion request failed: %w", err)
	}
	deadline := s.config.Clock.Now().Add(s.config.TempTimeout)
	for s.config.Clock.Now().Before(deadline) {
		status, err := s.regs.Read(ctx, regIntStatus2)
		if err != nil {
			return s.lastTemp, fmt.Errorf("max3010x: temperature poll failed: %w", err)
		}
		if status&intDieTempReadyEnable != 0 {
			whole, err := s.regs.Read(ctx, regDieTempInt)
			if err != nil {
				return s.lastTemp, fmt.Errorf("max3010x: temperature read failed: %w", err)
			}
			// reading the fraction clears the die-temp-ready interrupt
			frac, err := s.regs.Read(ctx, regDieTempFrac)
			if err != nil {
				return s.lastTemp, fmt.Errorf("max3010x: temperature read failed: %w", err)
			}
			s.lastTemp = float32(int8(whole)) + float32(frac)*0.0625
			return s.lastTemp, nil
		}
		s.config.Clock.Sleep(s.config.PollInterval)
	}
	return s.lastTemp, nil
}

// PartID reads the identity register.
func (s *MAX3010x) PartID(ctx context.Context) (byte, error) {
	id, err := s.regs.Read(ctx, regPartID)
	if err != nil {
		return 0, fmt.Errorf("max3010x: part ID read failed: %w", err)
	}
	return id, nil
}

// RevisionID returns the silicon revision captured during Configure.
func (s *MAX3010x) RevisionID() byte {
	return s.revisionID
}

// Stream returns the ring for an optical channel.
func (s *MAX3010x) Stream(ch fifo.Channel) *fifo.Ring {
	switch ch {
	case fifo.ChannelRed:
		return s.red
	case fifo.ChannelIR:
		return s.ir
	case fifo.ChannelGreen:
		return s.green
	default:
		return nil
	}
}

// ClearFIFO resets the hardware FIFO pointers to a known state.
func (s *MAX3010x) ClearFIFO(ctx context.Context) error {
	for _, reg := range []byte{regFIFOWritePtr, regFIFOOverflow, regFIFOReadPtr} {
		if err := s.regs.Write(ctx, reg, 0); err != nil {
			return fmt.Errorf("max3010x: FIFO clear failed: %w", err)
		}
	}
	return nil
}

func (s *MAX3010x) EnableDataReady(ctx context.Context) error {
	if err := s.regs.Update(ctx, regIntEnable1, intDataReadyMask, intDataReadyEnable); err != nil {
		return fmt.Errorf("max3010x: data-ready interrupt enable failed: %w", err)
	}
	return nil
}

func (s *MAX3010x) DisableDataReady(ctx context.Context) error {
	if err := s.regs.Update(ctx, regIntEnable1, intDataReadyMask, 0x00); err != nil {
		return fmt.Errorf("max3010x: data-ready interrupt disable failed: %w", err)
	}
	return nil
}

func (s *MAX3010x) EnableAlmostFull(ctx context.Context) error {
	if err := s.regs.Update(ctx, regIntEnable1, intAlmostFullMask, intAlmostFullEnable); err != nil {
		return fmt.Errorf("max3010x: almost-full interrupt enable failed: %w", err)
	}
	return nil
}

func (s *MAX3010x) DisableAlmostFull(ctx context.Context) error {
	if err := s.regs.Update(ctx, regIntEnable1, intAlmostFullMask, 0x00); err != nil {
		return fmt.Errorf("max3010x: almost-full interrupt disable failed: %w", err)
	}
	return nil
}

func (s *MAX3010x) EnableDieTempReady(ctx context.Context) error {
	if err := s.regs.Update(ctx, regIntEnable2, intDieTempReadyMask, intDieTempReadyEnable); err != nil {
		return fmt.Errorf("max3010x: die-temp interrupt enable failed: %w", err)
	}
	return nil
}

func (s *MAX3010x) DisableDieTempReady(ctx context.Context) error {
	if err := s.regs.Update(ctx, regIntEnable2, intDieTempReadyMask, 0x00); err != nil {
		return fmt.Errorf("max3010x: die-temp interrupt disable failed: %w", err)
	}
	return nil
}

func sampleAverageBits(n int) byte {
	switch n {
	case 1:
		return 0x00
	case 2:
		return 0x20
	case 4:
		return 0x40
	case 8:
		return 0x60
	case 16:
		return 0x80
	case 32:
		return 0xA0
	default:
		return 0x40
	}
}

func adcRangeBits(fullScale int) byte {
	switch {
	case fullScale < 4096:
		return 0x00
	case fullScale < 8192:
		return 0x20
	case fullScale < 16384:
		return 0x40
	case fullScale == 16384:
		return 0x60
	default:
		return 0x00
	}
}

func sampleRateBits(rate int) byte {
	switch {
	case rate < 100:
		return 0x00
	case rate < 200:
		return 0x04
	case rate < 400:
		return 0x08
	case rate < 800:
		return 0x0C
	case rate < 1000:
		return 0x10
	case rate < 1600:
		return 0x14
	case rate < 3200:
		return 0x18
	case rate == 3200:
		return 0x1C
	default:
		return 0x00
	}
}

func pulseWidthBits(us int) byte {
	switch {
	case us < 118:
		return 0x00
	case us < 215:
		return 0x01
	case us < 411:
		return 0x02
	case us == 411:
		return 0x03
	default:
		return 0x00
	}
}
