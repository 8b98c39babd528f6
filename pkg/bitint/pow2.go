// SPDX-License-Identifier: MIT
/*
Package bitint provides power-of-2 helpers for sizing real-time buffers.

All operations are O(1), allocation-free, and safe in hot paths. They are
used to size FFT windows and lock-free queue slot arrays, both of which
need power-of-2 lengths for cheap index masking.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Exact powers
// of 2 are preserved; zero and negative inputs return 1.
//
// The size-1 adjustment is what preserves exact powers of 2: for 8,
// bits.Len64(7) = 3 and 1<<3 = 8, whereas bits.Len64(8) = 4 would
// incorrectly double the input.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return int(1 << bits.Len64(uint64(size-1)))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2
// have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
