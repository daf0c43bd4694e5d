package accel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/fifo"
)

// fakeAccel emulates the MMA8452Q register file with auto-incrementing
// multi-byte reads and a system mode that follows the active bit.
type fakeAccel struct {
	regs    map[byte]byte
	lastReg byte
}

func newFakeAccel() *fakeAccel {
	return &fakeAccel{regs: map[byte]byte{regWhoAmI: expectedWhoAmI}}
}

func (f *fakeAccel) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	f.lastReg = buffer[0]
	if len(buffer) < 2 {
		return nil
	}
	reg, v := buffer[0], buffer[1]
	f.regs[reg] = v
	if reg == regCtrl1 {
		f.regs[regSysMod] = v & ctrl1Active
	}
	return nil
}

func (f *fakeAccel) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	for i := range buffer {
		buffer[i] = f.regs[f.lastReg+byte(i)]
	}
	return nil
}

func (f *fakeAccel) Release(context.Context) error { return nil }

func (f *fakeAccel) setAxes(x, y, z int16) {
	for i, v := range []int16{x, y, z} {
		raw := uint16(v) << axisShift
		f.regs[regOutXMSB+byte(2*i)] = byte(raw >> 8)
		f.regs[regOutXMSB+byte(2*i)+1] = byte(raw)
	}
}

func TestMMA8452_ConfigureRejectsWrongIdentity(t *testing.T) {
	dev := newFakeAccel()
	dev.regs[regWhoAmI] = 0x1A

	m := NewMMA8452(dev)
	err := m.Configure(context.Background(), DefaultMotionOptions())
	assert.ErrorIs(t, err, homeicu.ErrIdentityMismatch)
}

func TestMMA8452_ConfigureLeavesPartActive(t *testing.T) {
	dev := newFakeAccel()
	m := NewMMA8452(dev)

	require.NoError(t, m.Configure(context.Background(), DefaultMotionOptions()))
	assert.Equal(t, ctrl1Active, dev.regs[regCtrl1]&ctrl1Active)
	// z-only tap detection at 0.5 g, per default options
	assert.Equal(t, byte(0x30|0x40), dev.regs[regPulseCfg])
	assert.Equal(t, byte(0x08), dev.regs[regPulseThsZ])
	// orientation detection enabled
	assert.Equal(t, byte(0x40), dev.regs[regPLCfg]&0x40)
}

func TestMMA8452_ReadDecodesTwosComplement(t *testing.T) {
	dev := newFakeAccel()
	m := NewMMA8452(dev)
	require.NoError(t, m.Configure(context.Background(), DefaultMotionOptions()))

	dev.setAxes(1024, -1024, 100)

	r, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(1024), r.X)
	assert.Equal(t, int16(-1024), r.Y)
	assert.Equal(t, int16(100), r.Z)
	// 1024 counts at +/-2g full scale is exactly 1 g
	assert.InDelta(t, 1.0, r.CX, 0.001)
	assert.InDelta(t, -1.0, r.CY, 0.001)

	x, ok := m.Stream(fifo.ChannelX).PeekNewest()
	require.True(t, ok)
	assert.Equal(t, uint32(1024), x.Value)
	y, ok := m.Stream(fifo.ChannelY).PeekNewest()
	require.True(t, ok)
	// negative counts are stored masked to 12 bits
	assert.Equal(t, uint32(0xC00), y.Value)
}

func TestMMA8452_Available(t *testing.T) {
	dev := newFakeAccel()
	m := NewMMA8452(dev)

	ready, err := m.Available(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)

	dev.regs[regStatus] = statusDataReady
	ready, err = m.Available(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestMMA8452_ReadTap(t *testing.T) {
	dev := newFakeAccel()
	m := NewMMA8452(dev)

	tap, err := m.ReadTap(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tap)

	dev.regs[regPulseSrc] = 0x80 | 0x44
	tap, err = m.ReadTap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x44), tap)
}

func TestMMA8452_Orientation(t *testing.T) {
	dev := newFakeAccel()
	m := NewMMA8452(dev)
	ctx := context.Background()

	tests := []struct {
		status   byte
		expected Orientation
	}{
		{0x00, PortraitUp},
		{0x02, PortraitDown},
		{0x04, LandscapeRight},
		{0x06, LandscapeLeft},
		{0x40, Flat},
	}
	for _, test := range tests {
		dev.regs[regPLStatus] = test.status
		o, err := m.Orientation(ctx)
		require.NoError(t, err)
		assert.Equal(t, test.expected, o, "status %#x", test.status)
	}
}

func TestMMA8452_SetScaleQuiescesFirst(t *testing.T) {
	dev := newFakeAccel()
	m := NewMMA8452(dev)
	require.NoError(t, m.Configure(context.Background(), DefaultMotionOptions()))

	require.NoError(t, m.SetScale(context.Background(), Scale8G))
	// 10 = 8g in the low bits of XYZ_DATA_CFG
	assert.Equal(t, byte(0x02), dev.regs[regXYZDataCfg]&0x03)
	// part returned to active
	assert.Equal(t, ctrl1Active, dev.regs[regCtrl1]&ctrl1Active)
}
