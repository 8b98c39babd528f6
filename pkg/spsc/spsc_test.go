// SPDX-License-Identifier: MIT
package spsc

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	q := New[int](8)

	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	for i := 1; i <= 5; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue unexpectedly empty", i)
		}
		if v != i {
			t.Errorf("Pop %d: got %d, want %d", i, v, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue should return false")
	}
}

func TestOverflowDropsNewest(t *testing.T) {
	q := New[int](4)
	for i := 1; i <= 7; i++ {
		q.Push(i)
	}

	if q.Drops() != 3 {
		t.Errorf("drops: got %d, want 3", q.Drops())
	}
	// Queued entries survive untouched; the overflow pushes were dropped.
	for want := 1; want <= 4; want++ {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Errorf("pop after overflow: got %d ok=%v, want %d", v, ok, want)
		}
	}
}

func TestOverflowNeverTearsValues(t *testing.T) {
	// A two-element payload written as a unit must always be read as a
	// unit. A tiny queue keeps the producer saturated against head so
	// overflow and Pop overlap constantly.
	type pair struct{ a, b uint32 }
	const total = 100000
	q := New[pair](1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for popped := 0; popped+int(q.Drops()) < total; {
			v, ok := q.Pop()
			if !ok {
				continue
			}
			popped++
			if v.a != v.b {
				t.Errorf("torn value: a=%d b=%d", v.a, v.b)
				return
			}
		}
	}()

	for i := uint32(0); i < total; i++ {
		q.Push(pair{a: i, b: i})
	}
	wg.Wait()
}

func TestCapacityRounding(t *testing.T) {
	q := New[int](5)
	if q.Cap() != 8 {
		t.Errorf("cap: got %d, want 8 (next power of 2)", q.Cap())
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const total = 10000
	q := New[int](256)

	var wg sync.WaitGroup
	wg.Add(1)

	received := 0
	go func() {
		defer wg.Done()
		seen := 0
		last := -1
		for seen < total {
			v, ok := q.Pop()
			if !ok {
				// Producer may have finished with drops accounted.
				if q.Len() == 0 && int(q.Drops())+received >= total {
					break
				}
				continue
			}
			seen++
			received++
			if v <= last {
				t.Errorf("out of order: got %d after %d", v, last)
				return
			}
			last = v
		}
	}()

	for i := 0; i < total; i++ {
		q.Push(i)
	}
	wg.Wait()

	if received+int(q.Drops()) < total-q.Cap() {
		t.Errorf("received %d + drops %d does not account for %d pushes",
			received, q.Drops(), total)
	}
}

func BenchmarkPushPopHotPath(b *testing.B) {
	q := New[float64](1024)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		q.Push(0.5)
		q.Pop()
	}
}
