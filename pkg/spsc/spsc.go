// SPDX-License-Identifier: MIT
/*
Package spsc implements a bounded lock-free single-producer/single-consumer
queue for handing audio frames from the capture callback to the control loop.

Design Principles:
- Zero allocations after construction
- Producer side never blocks (the audio callback must not stall)
- Drop-newest on overflow: a full queue discards the incoming value,
  keeping the producer off the consumer's side of the ring
- Exactly one producer goroutine and one consumer goroutine

The implementation uses a power-of-2 slot array with monotonically
increasing head/tail counters accessed via atomics.
*/
package spsc

import (
	"sync/atomic"

	"github.com/Jdubz/blinky-time-sub007/pkg/bitint"
)

// Queue is a bounded SPSC queue. The zero value is not usable; construct
// with New.
type Queue[T any] struct {
	slots []T
	mask  uint64
	head  atomic.Uint64 // next slot to read
	tail  atomic.Uint64 // next slot to write
	drops atomic.Uint64
}

// New creates a queue with capacity rounded up to the next power of 2.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	n := bitint.NextPowerOfTwo(capacity)
	return &Queue[T]{
		slots: make([]T, n),
		mask:  uint64(n - 1),
	}
}

// Push adds a value from the producer side. If the queue is full the
// incoming value is discarded so the producer never blocks. Only the
// consumer moves head; advancing it here would let this write race a
// Pop mid-copy of the same slot.
func (q *Queue[T]) Push(v T) {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint64(len(q.slots)) {
		q.drops.Add(1)
		return
	}
	q.slots[tail&q.mask] = v
	q.tail.Store(tail + 1)
}

// Pop removes the oldest value from the consumer side. Returns false if
// the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}
	v := q.slots[head&q.mask]
	q.head.Store(head + 1)
	return v, true
}

// Len returns an instantaneous estimate of queued entries.
func (q *Queue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return len(q.slots) }

// Drops returns the number of values discarded due to overflow.
func (q *Queue[T]) Drops() uint64 { return q.drops.Load() }
