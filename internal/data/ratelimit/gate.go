// Package ratelimit tracks whether the client is currently throttled
// by the backend and for how long.
//
// The gate is the only piece of shared mutable state in the data layer:
// every executor consults it before issuing a transport call, blocks
// are monotonic (a later resume time always wins), and a block lifts on
// its own once the resume time passes or when any call succeeds.
package ratelimit

import (
	"sync"
	"time"
)

// Gate tracks whether calls to the backend are currently blocked.
type Gate interface {
	// Blocked reports whether calls are blocked right now and, if so,
	// when the block lifts.
	Blocked() (bool, time.Time)

	// BlockUntil records a backend-imposed throttle. Monotonic: a call
	// with an earlier resumeAt never shortens an existing block.
	BlockUntil(resumeAt time.Time)

	// Clear lifts the block immediately, typically after a successful call.
	Clear()
}

// MemoryGate is a process-local Gate. The zero value is usable.
type MemoryGate struct {
	mu       sync.Mutex
	resumeAt time.Time
}

// NewMemoryGate creates an unblocked gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{}
}

func (g *MemoryGate) Blocked() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Now().Before(g.resumeAt) {
		return true, g.resumeAt
	}
	return false, time.Time{}
}

func (g *MemoryGate) BlockUntil(resumeAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if resumeAt.After(g.resumeAt) {
		g.resumeAt = resumeAt
	}
}

func (g *MemoryGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resumeAt = time.Time{}
}
