package oximeter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/fifo"
)

// fakeOximeter emulates the MAX3010x register file on an I2C bus: pointer
// write then read, FIFO data streaming, self-clearing reset bit and a
// die-temp conversion that completes instantly.
type fakeOximeter struct {
	regs         map[byte]byte
	fifoData     []byte
	fifoPos      int
	lastReg      byte
	transactions int
	maxTransfer  int
	tempStuck    bool // conversion never completes
}

func newFakeOximeter() *fakeOximeter {
	return &fakeOximeter{
		regs: map[byte]byte{
			regPartID:     expectedPartID,
			regRevisionID: 0x03,
		},
	}
}

func (f *fakeOximeter) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	f.transactions++
	f.lastReg = buffer[0]
	if len(buffer) < 2 {
		return nil
	}
	reg, v := buffer[0], buffer[1]
	if reg == regModeConfig {
		// reset completes immediately
		v &^= resetBit
	}
	if reg == regDieTempConfig && v&0x01 != 0 && !f.tempStuck {
		f.regs[regIntStatus2] |= intDieTempReadyEnable
	}
	f.regs[reg] = v
	return nil
}

func (f *fakeOximeter) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	f.transactions++
	if f.lastReg == regFIFOData {
		copy(buffer, f.fifoData[f.fifoPos:])
		f.fifoPos += len(buffer)
		return nil
	}
	buffer[0] = f.regs[f.lastReg]
	if f.lastReg == regDieTempFrac {
		f.regs[regIntStatus2] &^= intDieTempReadyEnable
	}
	return nil
}

func (f *fakeOximeter) Release(context.Context) error { return nil }

func (f *fakeOximeter) MaxTransfer() int { return f.maxTransfer }

func configured(t *testing.T, dev *fakeOximeter, opts ...MAX3010xOpt) *MAX3010x {
	t.Helper()
	s := NewMAX3010x(dev, opts...)
	require.NoError(t, s.Configure(context.Background(), DefaultOptions()))
	return s
}

func TestMAX3010x_ConfigureRejectsWrongPart(t *testing.T) {
	dev := newFakeOximeter()
	dev.regs[regPartID] = 0x11

	s := NewMAX3010x(dev)
	err := s.Configure(context.Background(), DefaultOptions())
	assert.ErrorIs(t, err, homeicu.ErrIdentityMismatch)
}

func TestMAX3010x_ConfigureCapturesRevision(t *testing.T) {
	dev := newFakeOximeter()
	dev.regs[regRevisionID] = 0x07

	s := configured(t, dev)
	assert.Equal(t, byte(0x07), s.RevisionID())

	id, err := s.PartID(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, expectedPartID, id)
}

func TestMAX3010x_DrainFIFO(t *testing.T) {
	dev := newFakeOximeter()
	dev.maxTransfer = 32

	s := configured(t, dev)

	// 8 pending two-channel samples: writePtr=10, readPtr=2 in a 32-slot FIFO
	dev.regs[regFIFOReadPtr] = 2
	dev.regs[regFIFOWritePtr] = 10
	for i := 0; i < 8; i++ {
		red := uint32(0x010000 + i)
		ir := uint32(0x020000 + i)
		if i == 0 {
			// corrupted high bits must be masked off, not sign-extended
			red = 0xFFFFFF
		}
		for _, v := range []uint32{red, ir} {
			dev.fifoData = append(dev.fifoData, byte(v>>16), byte(v>>8), byte(v))
		}
	}

	n, err := s.DrainFIFO(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 8, n)

	red := s.Stream(fifo.ChannelRed)
	ir := s.Stream(fifo.ChannelIR)
	require.Equal(t, 8, red.Available())
	require.Equal(t, 8, ir.Available())

	first, ok := red.PeekOldest()
	require.True(t, ok)
	assert.Equal(t, uint32(0x3FFFF), first.Value)

	red.AdvanceTail()
	for i := 1; i < 8; i++ {
		got, ok := red.PeekOldest()
		require.True(t, ok)
		assert.Equal(t, uint32(0x010000+i), got.Value)
		assert.Equal(t, fifo.ChannelRed, got.Channel)
		red.AdvanceTail()
	}
	newest, ok := ir.PeekNewest()
	require.True(t, ok)
	assert.Equal(t, uint32(0x020007), newest.Value)
}

func TestMAX3010x_DrainFIFOEmptyCostsNoBurst(t *testing.T) {
	dev := newFakeOximeter()
	s := configured(t, dev)

	dev.regs[regFIFOReadPtr] = 5
	dev.regs[regFIFOWritePtr] = 5

	before := dev.transactions
	n, err := s.DrainFIFO(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
	// two pointer reads, four transactions, nothing else
	assert.Equal(t, before+4, dev.transactions)
	assert.Zero(t, s.Stream(fifo.ChannelRed).Available())
}

func TestMAX3010x_DrainFIFOPointerWrap(t *testing.T) {
	dev := newFakeOximeter()
	s := configured(t, dev)

	// writePtr wrapped past the pointer range: 30 -> 2 means 4 pending
	dev.regs[regFIFOReadPtr] = 30
	dev.regs[regFIFOWritePtr] = 2
	dev.fifoData = make([]byte, 4*2*bytesPerChannel)

	n, err := s.DrainFIFO(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMAX3010x_ReadTemperature(t *testing.T) {
	dev := newFakeOximeter()
	s := configured(t, dev)

	dev.regs[regDieTempInt] = 26
	dev.regs[regDieTempFrac] = 8 // 8 * 0.0625 = 0.5

	temp, err := s.ReadTemperature(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 26.5, temp, 0.001)
	// reading the fraction cleared the ready interrupt
	assert.Zero(t, dev.regs[regIntStatus2]&intDieTempReadyEnable)
}

func TestMAX3010x_ReadTemperatureTimeoutReturnsLastKnown(t *testing.T) {
	dev := newFakeOximeter()
	s := configured(t, dev,
		WithTempTimeout(5*time.Millisecond),
		WithPollInterval(time.Millisecond))

	dev.regs[regDieTempInt] = 30
	temp, err := s.ReadTemperature(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 30.0, temp, 0.001)

	// conversion now never completes: caller gets the previous reading
	dev.tempStuck = true
	dev.regs[regDieTempInt] = 99
	temp, err = s.ReadTemperature(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 30.0, temp, 0.001)
}

func TestMAX3010x_StartStopToggleShutdownBit(t *testing.T) {
	dev := newFakeOximeter()
	s := configured(t, dev)

	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, shutdownBit, dev.regs[regModeConfig]&shutdownBit)

	assert.NoError(t, s.Start(context.Background()))
	assert.Zero(t, dev.regs[regModeConfig]&shutdownBit)
}

func TestMAX3010x_DrainBeforeConfigureFails(t *testing.T) {
	s := NewMAX3010x(newFakeOximeter())
	_, err := s.DrainFIFO(context.Background())
	assert.Error(t, err)
}

func TestNull_ProducesNothing(t *testing.T) {
	n := NewNull()
	ctx := context.Background()

	assert.NoError(t, n.Configure(ctx, DefaultOptions()))
	assert.NoError(t, n.Start(ctx))

	count, err := n.DrainFIFO(ctx)
	assert.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, n.Stream(fifo.ChannelRed).Available())
	assert.NoError(t, n.Stop(ctx))
}
