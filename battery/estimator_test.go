package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_WindowAverage(t *testing.T) {
	e := NewEstimator(nil)
	assert.Zero(t, e.Average())

	e.Update(100)
	assert.Equal(t, uint16(100), e.Average())

	e.Update(200)
	assert.Equal(t, uint16(150), e.Average())

	// fill the window, then push one more: the first reading drops out
	for _, v := range []uint16{200, 200, 200, 200} {
		e.Update(v)
	}
	assert.Equal(t, uint16(200), e.Average())
}

func TestTable_LookupInterpolates(t *testing.T) {
	table := Table{
		{Raw: 1000, Percent: 0},
		{Raw: 2000, Percent: 50},
		{Raw: 3000, Percent: 100},
	}

	assert.InDelta(t, 25.0, table.Lookup(1500), 0.001)
	assert.InDelta(t, 50.0, table.Lookup(2000), 0.001)
	assert.InDelta(t, 75.0, table.Lookup(2500), 0.001)
}

func TestTable_LookupClampsOutOfRange(t *testing.T) {
	table := Table{
		{Raw: 1000, Percent: 5},
		{Raw: 2000, Percent: 95},
	}

	// below the lowest breakpoint: clamp, never extrapolate
	assert.InDelta(t, 5.0, table.Lookup(0), 0.001)
	assert.InDelta(t, 5.0, table.Lookup(999), 0.001)
	assert.InDelta(t, 95.0, table.Lookup(5000), 0.001)
}

func TestTable_LookupMonotonic(t *testing.T) {
	table := DefaultTable()
	prev := float32(-1)
	for raw := uint16(1700); raw < 2400; raw += 10 {
		p := table.Lookup(raw)
		assert.GreaterOrEqual(t, p, prev, "raw %d", raw)
		assert.GreaterOrEqual(t, p, float32(0))
		assert.LessOrEqual(t, p, float32(100))
		prev = p
	}
}

func TestEstimator_PercentUsesSmoothedValue(t *testing.T) {
	table := Table{
		{Raw: 1000, Percent: 0},
		{Raw: 3000, Percent: 100},
	}
	e := NewEstimator(table)
	e.Update(1000)
	e.Update(3000)
	// average 2000 -> midpoint of the table
	assert.InDelta(t, 50.0, e.Percent(), 0.001)
}
