// SPDX-License-Identifier: MIT
/*
Package ringbuf provides a fixed-capacity ring buffer for real-time
signal history.

Design Principles:
- Capacity fixed at construction, never reallocated
- Zero allocations after construction
- Oldest-first overwrite when full (never blocks, never grows)

The buffer is not safe for concurrent use; callers own it exclusively
from a single goroutine.
*/
package ringbuf

// Ring is a fixed-capacity circular buffer. When full, Push overwrites
// the oldest entry.
type Ring[T any] struct {
	data  []T
	write int
	count int
}

// New creates a ring buffer with the given capacity. Panics if capacity
// is not positive: a zero-capacity history buffer is always a
// construction bug, not a runtime condition.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push appends a value, overwriting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.data[r.write] = v
	r.write = (r.write + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// At returns the value written n entries ago (0 = most recent).
// Returns the zero value if n is out of range.
func (r *Ring[T]) At(n int) T {
	var zero T
	if n < 0 || n >= r.count {
		return zero
	}
	idx := (r.write - 1 - n + len(r.data)) % len(r.data)
	if idx < 0 {
		idx += len(r.data)
	}
	return r.data[idx]
}

// Len returns the number of valid entries (≤ capacity).
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }

// Full reports whether the buffer has wrapped at least once.
func (r *Ring[T]) Full() bool { return r.count == len(r.data) }

// Reset clears all entries without releasing storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.write = 0
	r.count = 0
}

// Oldest returns the value that will be overwritten by the next Push
// once the buffer is full, i.e. the oldest retained entry.
func (r *Ring[T]) Oldest() T {
	if r.count == 0 {
		var zero T
		return zero
	}
	return r.At(r.count - 1)
}

// CopyOrdered copies entries oldest-first into dst and returns the
// number copied. dst should have length ≥ Len().
func (r *Ring[T]) CopyOrdered(dst []T) int {
	n := r.count
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.At(r.count - 1 - i)
	}
	return n
}
