// Package battery converts raw ADC readings of the battery voltage into a
// charge percentage. Readings are smoothed over a short shift-register
// window and mapped through a piecewise-linear calibration table.
package battery

// CalibrationPoint pairs a raw averaged ADC value with the charge
// percentage measured at that voltage.
type CalibrationPoint struct {
	Raw     uint16
	Percent float32
}

// Table is a battery discharge curve, ordered by ascending Raw value.
type Table []CalibrationPoint

// DefaultTable approximates a single-cell LiPo discharge curve sampled
// through the firmware's voltage divider.
func DefaultTable() Table {
	return Table{
		{Raw: 1800, Percent: 0},
		{Raw: 1900, Percent: 10},
		{Raw: 1960, Percent: 25},
		{Raw: 2020, Percent: 50},
		{Raw: 2100, Percent: 75},
		{Raw: 2200, Percent: 90},
		{Raw: 2300, Percent: 100},
	}
}

const windowSize = 5

// Estimator smooths raw battery readings over the last windowSize updates
// and maps the average through the calibration table. Until the window has
// filled, the average runs over the readings seen so far.
type Estimator struct {
	table  Table
	window [windowSize]uint16
	next   int
	count  int
}

func NewEstimator(table Table) *Estimator {
	if len(table) == 0 {
		table = DefaultTable()
	}
	return &Estimator{table: table}
}

// Update pushes a raw reading into the shift-register window, dropping the
// oldest one once the window is full.
func (e *Estimator) Update(raw uint16) {
	e.window[e.next] = raw
	e.next = (e.next + 1) % windowSize
	if e.count < windowSize {
		e.count++
	}
}

// Average returns the mean of the buffered readings, zero before the first
// update.
func (e *Estimator) Average() uint16 {
	if e.count == 0 {
		return 0
	}
	var sum int
	for i := 0; i < e.count; i++ {
		sum += int(e.window[i])
	}
	return uint16(sum / e.count)
}

// Percent maps the current average through the calibration table with
// linear interpolation between breakpoints. Readings below the lowest
// breakpoint clamp to the table minimum instead of extrapolating; readings
// above the highest clamp to the maximum.
func (e *Estimator) Percent() float32 {
	return e.table.Lookup(e.Average())
}

// Lookup maps one raw value through the table.
func (t Table) Lookup(raw uint16) float32 {
	if len(t) == 0 {
		return 0
	}
	if raw <= t[0].Raw {
		return t[0].Percent
	}
	last := t[len(t)-1]
	if raw >= last.Raw {
		return last.Percent
	}
	for i := 1; i < len(t); i++ {
		if raw > t[i].Raw {
			continue
		}
		lo, hi := t[i-1], t[i]
		span := float32(hi.Raw - lo.Raw)
		frac := float32(raw-lo.Raw) / span
		return lo.Percent + (hi.Percent-lo.Percent)*frac
	}
	return last.Percent
}
