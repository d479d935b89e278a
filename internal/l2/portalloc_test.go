package l2

import "testing"

func TestRangeAllocatorIdempotent(t *testing.T) {
	a := NewRangeAllocator(9000, 10)

	p1 := a.Allocate("key-a")
	p2 := a.Allocate("key-a")
	if p1 != p2 {
		t.Errorf("Allocate() not idempotent: %d != %d", p1, p2)
	}

	got, ok := a.Get("key-a")
	if !ok || got != p1 {
		t.Errorf("Get() = (%d, %v), want (%d, true)", got, ok, p1)
	}
}

func TestRangeAllocatorDistinctKeysDistinctPorts(t *testing.T) {
	a := NewRangeAllocator(9000, 10)

	p1 := a.Allocate("key-a")
	p2 := a.Allocate("key-b")
	if p1 == p2 {
		t.Errorf("distinct keys got the same port %d", p1)
	}
}

func TestRangeAllocatorGetUnallocatedKey(t *testing.T) {
	a := NewRangeAllocator(9000, 10)
	if _, ok := a.Get("never-allocated"); ok {
		t.Error("Get() ok = true for unallocated key")
	}
}
