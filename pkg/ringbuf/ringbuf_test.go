// SPDX-License-Identifier: MIT
package ringbuf

import "testing"

func TestPushAndAt(t *testing.T) {
	r := New[float64](4)

	if r.Len() != 0 {
		t.Fatalf("new buffer should be empty, got len=%d", r.Len())
	}

	r.Push(1)
	r.Push(2)
	r.Push(3)

	if got := r.At(0); got != 3 {
		t.Errorf("At(0): got %v, want 3", got)
	}
	if got := r.At(2); got != 1 {
		t.Errorf("At(2): got %v, want 1", got)
	}
	if got := r.At(3); got != 0 {
		t.Errorf("At(3) out of range: got %v, want zero", got)
	}
}

func TestOverwriteOldestFirst(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if !r.Full() {
		t.Error("buffer should be full after capacity+ pushes")
	}
	if r.Len() != 3 {
		t.Errorf("len after overwrite: got %d, want 3", r.Len())
	}
	// Should retain 3, 4, 5 with 5 most recent.
	want := []int{5, 4, 3}
	for i, w := range want {
		if got := r.At(i); got != w {
			t.Errorf("At(%d): got %d, want %d", i, got, w)
		}
	}
	if got := r.Oldest(); got != 3 {
		t.Errorf("Oldest: got %d, want 3", got)
	}
}

func TestCopyOrdered(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}

	dst := make([]int, 4)
	n := r.CopyOrdered(dst)
	if n != 4 {
		t.Fatalf("CopyOrdered: got n=%d, want 4", n)
	}
	want := []int{3, 4, 5, 6}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("dst[%d]: got %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	r := New[float64](8)
	r.Push(0.5)
	r.Push(0.7)
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("len after reset: got %d, want 0", r.Len())
	}
	if got := r.At(0); got != 0 {
		t.Errorf("At(0) after reset: got %v, want 0", got)
	}
}

func BenchmarkPushHotPath(b *testing.B) {
	r := New[float64](256)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		r.Push(0.42)
	}
}
