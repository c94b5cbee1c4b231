// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to validate and
suggest transform sizes for the spectrum analyzer.

All functions are allocation free and constant time, so they are safe to
call from the audio callback.

	size := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(size)     // true
	bits := bitint.Log2(size)           // 10

NextPowerOfTwo subtracts one before taking the bit length. Without the
subtraction an exact power of two would be doubled:

	8 -> 7 (0111) -> Len 3 -> 1<<3 = 8
	8 -> 8 (1000) -> Len 4 -> 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
// Zero and negative sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// (n & (n-1)) clears the lowest set bit, which leaves zero only when
// exactly one bit was set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of a power of two, or -1 if n is not one.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
