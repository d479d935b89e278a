package l2

import "sync"

// RangeAllocator is the default in-memory PortAllocator: a monotonic
// counter bounded by [base, base+count), wrapping once exhausted. A
// production deployment would persist allocations so a restart doesn't
// reassign a port a still-running escrowd process is bound to, but that
// persistence is out of scope (spec.md §1).
type RangeAllocator struct {
	base  int
	count int

	mu     sync.Mutex
	next   int
	byKey  map[string]int
}

// NewRangeAllocator constructs an allocator over [base, base+count).
func NewRangeAllocator(base, count int) *RangeAllocator {
	return &RangeAllocator{
		base:  base,
		count: count,
		byKey: make(map[string]int),
	}
}

// Get returns the port already allocated to key, if any.
func (a *RangeAllocator) Get(key string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	port, ok := a.byKey[key]
	return port, ok
}

// Allocate assigns the next port in the range to key (after count
// allocations the counter wraps, so a port may be handed out again to a
// different key), idempotently —
// calling it again for an already-allocated key returns the same port
// (R2's round-trip property: allocate then look up yields the same
// assignment).
func (a *RangeAllocator) Allocate(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if port, ok := a.byKey[key]; ok {
		return port
	}

	port := a.base + (a.next % a.count)
	a.next++
	a.byKey[key] = port
	return port
}

var _ PortAllocator = (*RangeAllocator)(nil)
