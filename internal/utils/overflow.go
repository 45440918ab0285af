package utils

import (
	"fmt"
	"math"
)

// SafeMultiply multiplies two uint64 values, failing instead of wrapping.
func SafeMultiply(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return a * b, nil
}

// ElementCount returns the product of dims. A rank-0 shape has one element.
func ElementCount(dims []uint64) (uint64, error) {
	total := uint64(1)
	for i, d := range dims {
		var err error
		total, err = SafeMultiply(total, d)
		if err != nil {
			return 0, fmt.Errorf("dimension %d: %w", i, err)
		}
	}
	return total, nil
}

// ByteSize returns ElementCount(dims) * elemSize and checks that the
// result is addressable as a Go slice on this platform.
func ByteSize(dims []uint64, elemSize uint64) (int, error) {
	n, err := ElementCount(dims)
	if err != nil {
		return 0, err
	}
	n, err = SafeMultiply(n, elemSize)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt {
		return 0, fmt.Errorf("size %d exceeds addressable memory", n)
	}
	return int(n), nil
}
