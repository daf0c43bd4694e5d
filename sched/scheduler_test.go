package sched

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/5l1v3r1/homeicu"
	"github.com/5l1v3r1/homeicu/event"
	"github.com/5l1v3r1/homeicu/fifo"
	"github.com/5l1v3r1/homeicu/oximeter"
)

// fakeOxi scripts DrainFIFO results: each call pops the next sample count
// and appends that many samples to the red ring.
type fakeOxi struct {
	pending      []int
	drains       int
	temp         float32
	tempErr      error
	tempReads    int
	configureErr error
	nextValue    uint32
	red          *fifo.Ring
	ir           *fifo.Ring
}

func newFakeOxi() *fakeOxi {
	return &fakeOxi{
		temp: 36.5,
		red:  fifo.NewRing(64),
		ir:   fifo.NewRing(64),
	}
}

func (f *fakeOxi) Configure(context.Context, oximeter.Options) error { return f.configureErr }

func (f *fakeOxi) Start(context.Context) error { return nil }

func (f *fakeOxi) Stop(context.Context) error { return nil }

func (f *fakeOxi) DrainFIFO(context.Context) (int, error) {
	f.drains++
	if len(f.pending) == 0 {
		return 0, nil
	}
	n := f.pending[0]
	f.pending = f.pending[1:]
	for i := 0; i < n; i++ {
		f.nextValue++
		f.red.Write(fifo.Sample{Channel: fifo.ChannelRed, Value: f.nextValue})
		f.ir.Write(fifo.Sample{Channel: fifo.ChannelIR, Value: f.nextValue + 0x10000})
	}
	return n, nil
}

func (f *fakeOxi) ReadTemperature(context.Context) (float32, error) {
	f.tempReads++
	return f.temp, f.tempErr
}

func (f *fakeOxi) PartID(context.Context) (byte, error) { return 0x15, nil }

func (f *fakeOxi) Stream(ch fifo.Channel) *fifo.Ring {
	switch ch {
	case fifo.ChannelRed:
		return f.red
	case fifo.ChannelIR:
		return f.ir
	default:
		return nil
	}
}

type fakeBattery struct {
	value uint16
	reads int
}

func (f *fakeBattery) ReadRaw(context.Context) (uint16, error) {
	f.reads++
	return f.value, nil
}

func TestScheduler_DrainsEveryIteration(t *testing.T) {
	oxi := newFakeOxi()
	oxi.pending = []int{3, 0, 2}
	s := New(oxi)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Iterate(ctx))
	}
	assert.Equal(t, 3, oxi.drains)
	assert.Equal(t, uint64(5), s.Snapshot().TotalSamples)
}

func TestScheduler_SnapshotTracksNewestSamples(t *testing.T) {
	oxi := newFakeOxi()
	oxi.pending = []int{4}
	s := New(oxi)

	require.NoError(t, s.Iterate(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, uint32(4), snap.Red)
	assert.Equal(t, uint32(0x10004), snap.IR)
	assert.False(t, snap.Taken.IsZero())
}

func TestScheduler_BatteryIntervalGating(t *testing.T) {
	mock := clock.NewMock()
	oxi := newFakeOxi()
	src := &fakeBattery{value: 2020}
	s := New(oxi,
		WithClock(mock),
		WithBattery(src, nil),
		WithBatteryInterval(10*time.Second))
	ctx := context.Background()

	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	assert.Equal(t, 1, src.reads)

	// more iterations inside the interval do not sample again
	for i := 0; i < 5; i++ {
		s.Tick().Signal()
		require.NoError(t, s.Iterate(ctx))
	}
	assert.Equal(t, 1, src.reads)

	mock.Add(10 * time.Second)
	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	assert.Equal(t, 2, src.reads)

	// 2020 maps to 50% on the default LiPo table
	assert.InDelta(t, 50.0, s.Snapshot().BatteryPercent, 0.001)
}

func TestScheduler_TemperatureIntervalGating(t *testing.T) {
	mock := clock.NewMock()
	oxi := newFakeOxi()
	s := New(oxi,
		WithClock(mock),
		WithTemperatureInterval(5*time.Second))
	ctx := context.Background()

	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	require.Equal(t, 1, oxi.tempReads)
	assert.InDelta(t, 36.5, s.Snapshot().Temperature, 0.001)

	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	assert.Equal(t, 1, oxi.tempReads)

	mock.Add(5 * time.Second)
	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	assert.Equal(t, 2, oxi.tempReads)
}

func TestScheduler_TemperatureErrorKeepsLastValue(t *testing.T) {
	mock := clock.NewMock()
	oxi := newFakeOxi()
	s := New(oxi, WithClock(mock))
	ctx := context.Background()

	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	require.InDelta(t, 36.5, s.Snapshot().Temperature, 0.001)

	oxi.tempErr = homeicu.ErrNoData
	mock.Add(time.Minute)
	s.Tick().Signal()
	require.NoError(t, s.Iterate(ctx))
	assert.InDelta(t, 36.5, s.Snapshot().Temperature, 0.001)
}

func TestScheduler_NoTickSkipsGatedSamplers(t *testing.T) {
	oxi := newFakeOxi()
	src := &fakeBattery{}
	s := New(oxi, WithBattery(src, nil))

	require.NoError(t, s.Iterate(context.Background()))
	assert.Zero(t, src.reads)
	assert.Zero(t, oxi.tempReads)
}

func TestScheduler_InitCountsDeviceFailures(t *testing.T) {
	oxi := newFakeOxi()
	oxi.configureErr = homeicu.ErrIdentityMismatch
	s := New(oxi)

	// a missing device is counted, not fatal
	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, 1, s.StartupErrors())

	oxi.configureErr = nil
	require.NoError(t, s.Reinit(context.Background()))
	assert.Zero(t, s.StartupErrors())
}

func TestScheduler_ButtonPressReachesSnapshot(t *testing.T) {
	oxi := newFakeOxi()
	s := New(oxi, WithButtonLine(
		func() bool { return true },
		event.WithSettleDelay(10*time.Millisecond)))

	s.Button().Edge()
	time.Sleep(40 * time.Millisecond)

	require.NoError(t, s.Iterate(context.Background()))
	assert.Equal(t, 1, s.Snapshot().ButtonPresses)
}

func TestSafeDrain_ReturnsWhenDataAppears(t *testing.T) {
	oxi := newFakeOxi()
	oxi.pending = []int{0, 0, 2}
	s := New(oxi)

	n, err := s.SafeDrain(context.Background(), 100*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, oxi.drains)
}

func TestSafeDrain_TimeoutReturnsNoData(t *testing.T) {
	oxi := newFakeOxi()
	s := New(oxi)

	start := time.Now()
	_, err := s.SafeDrain(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, homeicu.ErrNoData)
	// bounded wait: several spaced retries, then the sentinel
	assert.GreaterOrEqual(t, oxi.drains, 2)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestScheduler_StreamRouting(t *testing.T) {
	oxi := newFakeOxi()
	s := New(oxi)

	assert.Same(t, oxi.red, s.Stream(fifo.ChannelRed))
	assert.Same(t, oxi.ir, s.Stream(fifo.ChannelIR))
	// no accelerometer registered
	assert.Nil(t, s.Stream(fifo.ChannelX))
}
