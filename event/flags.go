// Package event carries hardware events from interrupt context into the
// acquisition loop. Interrupt-side operations are constant-time flag writes
// under a short mutex; they never touch the bus, never log and never
// allocate. The loop side clears the same flags under the same mutex.
package event

import "sync"

// Source identifies a hardware event line.
type Source uint8

const (
	SourceButton Source = iota
	SourceTick
	SourceDataReady
	numSources
)

func (s Source) String() string {
	switch s {
	case SourceButton:
		return "button"
	case SourceTick:
		return "timer"
	case SourceDataReady:
		return "data-ready"
	default:
		return "unknown"
	}
}

// Pending is a snapshot of flags taken by the loop in one critical section.
type Pending struct {
	Button    bool
	Tick      bool
	DataReady bool
}

// Flags holds the per-source pending booleans shared between interrupt
// handlers and the acquisition loop. Handlers only Set, the loop only takes.
type Flags struct {
	mu      sync.Mutex
	pending [numSources]bool
}

// Set marks a source pending. Safe to call from interrupt context.
func (f *Flags) Set(src Source) {
	if src >= numSources {
		return
	}
	f.mu.Lock()
	f.pending[src] = true
	f.mu.Unlock()
}

// Take reads and clears a single source flag.
func (f *Flags) Take(src Source) bool {
	if src >= numSources {
		return false
	}
	f.mu.Lock()
	v := f.pending[src]
	f.pending[src] = false
	f.mu.Unlock()
	return v
}

// TakeAll reads and clears every flag in one critical section so the loop
// services a consistent snapshot per iteration.
func (f *Flags) TakeAll() Pending {
	f.mu.Lock()
	p := Pending{
		Button:    f.pending[SourceButton],
		Tick:      f.pending[SourceTick],
		DataReady: f.pending[SourceDataReady],
	}
	for i := range f.pending {
		f.pending[i] = false
	}
	f.mu.Unlock()
	return p
}
