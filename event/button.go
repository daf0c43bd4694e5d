package event

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
)

const defaultSettleDelay = 100 * time.Millisecond

// LineFunc reports whether the button line is currently in the asserted
// state. It is called only from the settle-delay confirmation, never from
// interrupt context.
type LineFunc func() bool

// Button turns raw edge interrupts into confirmed presses. An edge is
// provisionally recorded; the press counts only if the line is still
// asserted after the settle delay. Bounce that reverses within the delay
// yields no press, and a burst of edges collapses into a single
// confirmation check.
type Button struct {
	mu        sync.Mutex
	clk       clock.Clock
	line      LineFunc
	flags     *Flags
	settle    time.Duration
	debounced func(func())
	lastEdge  time.Time
	presses   int
}

type ButtonOption func(*Button)

func WithSettleDelay(d time.Duration) ButtonOption {
	return func(b *Button) {
		b.settle = d
	}
}

func WithButtonClock(clk clock.Clock) ButtonOption {
	return func(b *Button) {
		b.clk = clk
	}
}

// NewButton wires a button line to the pending-flag set. line must be
// non-nil; a confirmed press sets SourceButton in flags.
func NewButton(line LineFunc, flags *Flags, opts ...ButtonOption) *Button {
	b := &Button{
		clk:    clock.New(),
		line:   line,
		flags:  flags,
		settle: defaultSettleDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.debounced = debounce.New(b.settle)
	return b
}

// Edge records a provisional edge and schedules the settle-delay
// confirmation. Constant-time apart from the timestamp read; safe to call
// from interrupt context.
func (b *Button) Edge() {
	b.mu.Lock()
	b.lastEdge = b.clk.Now()
	b.mu.Unlock()
	b.debounced(b.confirm)
}

// confirm runs once the line has been quiet for the settle delay.
func (b *Button) confirm() {
	if !b.line() {
		// bounced back before the settle delay: not a press
		return
	}
	b.mu.Lock()
	b.presses++
	b.mu.Unlock()
	b.flags.Set(SourceButton)
}

// Presses returns the number of confirmed presses so far.
func (b *Button) Presses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presses
}

// LastEdge returns the timestamp of the most recent raw edge, zero if none
// was seen yet.
func (b *Button) LastEdge() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastEdge
}
