package event

import "sync"

// TickSignal is the saturating synchronization primitive behind the periodic
// timer. Multiple ticks between two polls register as "at least one"; exact
// tick counting is not needed by the acquisition loop, so the signal
// saturates instead of counting.
type TickSignal struct {
	mu       sync.Mutex
	signaled bool
}

// Signal records a tick. Saturating: signaling an already-signaled tick is
// a no-op. Safe to call from interrupt context.
func (t *TickSignal) Signal() {
	t.mu.Lock()
	t.signaled = true
	t.mu.Unlock()
}

// Poll consumes the signal, reporting whether at least one tick occurred
// since the previous poll.
func (t *TickSignal) Poll() bool {
	t.mu.Lock()
	v := t.signaled
	t.signaled = false
	t.mu.Unlock()
	return v
}
