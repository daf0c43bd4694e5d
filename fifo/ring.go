package fifo

// Channel identifies the origin of a sample: an optical channel of the
// oximeter front-end or an axis of the accelerometer.
type Channel uint8

const (
	ChannelRed Channel = iota
	ChannelIR
	ChannelGreen
	ChannelX
	ChannelY
	ChannelZ
)

func (c Channel) String() string {
	switch c {
	case ChannelRed:
		return "red"
	case ChannelIR:
		return "ir"
	case ChannelGreen:
		return "green"
	case ChannelX:
		return "x"
	case ChannelY:
		return "y"
	case ChannelZ:
		return "z"
	default:
		return "unknown"
	}
}

// Sample is a single decoded reading. Value is masked to the valid bit
// width of its source (at most 18 bits) and immutable once recorded.
type Sample struct {
	Channel Channel
	Value   uint32
}

// Ring is a fixed-capacity circular sample buffer decoupling burst-oriented
// device reads from steady consumption. Capacity is a power of two so index
// wrapping is a mask. Exactly one writer (the acquisition loop) advances the
// head and exactly one reader advances the tail.
//
// The buffer is deliberately lossy: writing into a full ring silently drops
// the oldest unread sample. Under sustained overrun the consumer sees the
// most recent window of samples, never corrupted ones.
type Ring struct {
	buf  []Sample
	mask uint32
	head uint32 // next write position
	tail uint32 // next read position
}

// NewRing creates a ring holding up to capacity-1 unread samples. Capacity
// is rounded up to the next power of two, minimum 2.
func NewRing(capacity int) *Ring {
	n := 2
	for n < capacity {
		n <<= 1
	}
	return &Ring{buf: make([]Sample, n), mask: uint32(n - 1)}
}

// Capacity returns the allocated slot count N. At most N-1 samples can be
// pending at once (head == tail means empty).
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Available returns how many samples are pending, always in [0, N).
func (r *Ring) Available() int {
	return int((r.head - r.tail) & r.mask)
}

// Write appends a sample, advancing the head. It always succeeds: when the
// ring is full the oldest unread sample is dropped by advancing the tail.
func (r *Ring) Write(s Sample) {
	r.buf[r.head&r.mask] = s
	r.head = (r.head + 1) & r.mask
	if r.head == r.tail {
		// overrun: drop oldest
		r.tail = (r.tail + 1) & r.mask
	}
}

// PeekNewest returns the most recently written sample without consuming it.
// It never blocks; ok is false when the ring is empty.
func (r *Ring) PeekNewest() (Sample, bool) {
	if r.Available() == 0 {
		return Sample{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// PeekOldest returns the next sample to be consumed without advancing the
// tail. ok is false when the ring is empty.
func (r *Ring) PeekOldest() (Sample, bool) {
	if r.Available() == 0 {
		return Sample{}, false
	}
	return r.buf[r.tail&r.mask], true
}

// AdvanceTail consumes the oldest sample. It is a no-op on an empty ring.
func (r *Ring) AdvanceTail() {
	if r.Available() == 0 {
		return
	}
	r.tail = (r.tail + 1) & r.mask
}

// Clear resets the ring to empty.
func (r *Ring) Clear() {
	r.head = 0
	r.tail = 0
}
