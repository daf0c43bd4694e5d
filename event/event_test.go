package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlags_SetAndTake(t *testing.T) {
	var f Flags
	assert.False(t, f.Take(SourceButton))

	f.Set(SourceButton)
	f.Set(SourceDataReady)
	assert.True(t, f.Take(SourceButton))
	// taking clears
	assert.False(t, f.Take(SourceButton))
	assert.True(t, f.Take(SourceDataReady))
}

func TestFlags_TakeAllClearsSnapshot(t *testing.T) {
	var f Flags
	f.Set(SourceTick)
	f.Set(SourceDataReady)

	p := f.TakeAll()
	assert.False(t, p.Button)
	assert.True(t, p.Tick)
	assert.True(t, p.DataReady)

	p = f.TakeAll()
	assert.Equal(t, Pending{}, p)
}

func TestFlags_ConcurrentSetters(t *testing.T) {
	var f Flags
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Set(SourceDataReady)
		}()
	}
	wg.Wait()
	assert.True(t, f.Take(SourceDataReady))
	assert.False(t, f.Take(SourceDataReady))
}

func TestTickSignal_Saturates(t *testing.T) {
	var tick TickSignal
	assert.False(t, tick.Poll())

	tick.Signal()
	tick.Signal()
	tick.Signal()
	// several ticks before the loop checks register as "at least one"
	assert.True(t, tick.Poll())
	assert.False(t, tick.Poll())
}

func TestButton_SteadyAssertionYieldsOnePress(t *testing.T) {
	var f Flags
	asserted := true
	b := NewButton(func() bool { return asserted }, &f, WithSettleDelay(20*time.Millisecond))

	b.Edge()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, b.Presses())
	assert.True(t, f.Take(SourceButton))
	assert.False(t, b.LastEdge().IsZero())
}

func TestButton_BounceBeforeSettleYieldsNoPress(t *testing.T) {
	var f Flags
	asserted := false // line reversed before the settle delay elapsed
	b := NewButton(func() bool { return asserted }, &f, WithSettleDelay(20*time.Millisecond))

	b.Edge()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, b.Presses())
	assert.False(t, f.Take(SourceButton))
}

func TestButton_EdgeBurstCollapses(t *testing.T) {
	var f Flags
	b := NewButton(func() bool { return true }, &f, WithSettleDelay(30*time.Millisecond))

	// chattering contact: many edges inside the settle window
	for i := 0; i < 10; i++ {
		b.Edge()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 1, b.Presses())
}
