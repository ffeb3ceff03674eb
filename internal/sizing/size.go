// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import (
	"math"
)

// ToInt converts a uint64 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > math.MaxInt64 {
		return 0, overflowErr
	}
	return int64(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Within reports whether the range [off, off+n) fits inside a buffer of
// length size. Overflowing ranges never fit.
func Within(off, n uint64, size int) bool {
	end, ok := AddUint64(off, n)
	if !ok {
		return false
	}
	return end <= uint64(size) //nolint:gosec // len is always non-negative
}

// Min returns the smaller of a and b. A zero value for b means "no limit".
func Min(a, b uint64) uint64 {
	if b == 0 || a < b {
		return a
	}
	return b
}
