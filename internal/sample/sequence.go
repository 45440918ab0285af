package sample

import (
	"fmt"

	"github.com/scigolib/h5voxel"
)

// FloorDiv returns floor(a / b). It differs from a / b when the operands
// have opposite signs and the division is inexact.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Sequence returns n values where element i is floor((start+i) / divisor).
func Sequence(n int, start, divisor int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = FloorDiv(start+int64(i), divisor)
	}
	return out
}

// Value returns element i of the plan's sequence.
func (p Plan) Value(i uint64) int64 {
	return FloorDiv(p.Start+int64(i), p.Divisor) //nolint:gosec // G115: i < element count
}

// typedValues converts the sequence to the slice type Write expects for
// dt. Validate guarantees every value fits.
func typedValues(dt h5voxel.Datatype, seq []int64) (any, error) {
	switch dt {
	case h5voxel.Int8:
		return convert[int8](seq), nil
	case h5voxel.Int16:
		return convert[int16](seq), nil
	case h5voxel.Int32:
		return convert[int32](seq), nil
	case h5voxel.Int64:
		return seq, nil
	case h5voxel.Uint8:
		return convert[uint8](seq), nil
	case h5voxel.Uint16:
		return convert[uint16](seq), nil
	case h5voxel.Uint32:
		return convert[uint32](seq), nil
	case h5voxel.Uint64:
		return convert[uint64](seq), nil
	case h5voxel.Float32:
		return convert[float32](seq), nil
	case h5voxel.Float64:
		return convert[float64](seq), nil
	default:
		return nil, fmt.Errorf("%w: datatype %s", h5voxel.ErrUnsupported, dt)
	}
}

func convert[T int8 | int16 | int32 | uint8 | uint16 | uint32 | uint64 | float32 | float64](seq []int64) []T {
	out := make([]T, len(seq))
	for i, v := range seq {
		out[i] = T(v)
	}
	return out
}
