package common

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two.
//
// Parameters:
//   - n: the value to check
//
// Returns:
//   - bool: true if n == 2^k for some k >= 0
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns floor(log2(n)) for n > 0 and 0 otherwise.
// For powers of two this is the exact exponent k where n == 2^k.
//
// Parameters:
//   - n: the value to take the logarithm of
//
// Returns:
//   - uint32: the base-2 logarithm of n
func Log2(n int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32(bits.Len(uint(n)) - 1)
}

// Pow2 returns 2^k as an int.
func Pow2(k uint32) int {
	return 1 << k
}
