package sample

import (
	"errors"
	"fmt"
	"slices"

	"github.com/scigolib/h5voxel"
)

// ErrVerify is returned when a generated file does not match its plan.
var ErrVerify = errors.New("sample verification failed")

// Verify re-opens plan.Path and checks that it holds the dataset the plan
// describes: same shape, same chunk shape, same datatype, and every
// element equal to its sequence value.
func Verify(plan Plan) error {
	f, err := h5voxel.Open(plan.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	defer f.Close()

	ds, err := f.Dataset(plan.Dataset)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	if !slices.Equal(ds.Shape(), plan.Shape) {
		return fmt.Errorf("%w: shape %v, want %v", ErrVerify, ds.Shape(), plan.Shape)
	}
	if !slices.Equal(ds.ChunkShape(), plan.Chunks) {
		return fmt.Errorf("%w: chunk shape %v, want %v", ErrVerify, ds.ChunkShape(), plan.Chunks)
	}
	if ds.Datatype() != plan.Datatype {
		return fmt.Errorf("%w: datatype %s, want %s", ErrVerify, ds.Datatype(), plan.Datatype)
	}

	switch plan.Datatype {
	case h5voxel.Float32, h5voxel.Float64:
		values, err := ds.ReadFloat64()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrVerify, err)
		}
		for i, v := range values {
			if want := float64(plan.Value(uint64(i))); v != want {
				return fmt.Errorf("%w: element %d is %g, want %g", ErrVerify, i, v, want)
			}
		}
	default:
		values, err := ds.ReadInt64()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrVerify, err)
		}
		for i, v := range values {
			if want := plan.Value(uint64(i)); v != want {
				return fmt.Errorf("%w: element %d is %d, want %d", ErrVerify, i, v, want)
			}
		}
	}
	return nil
}
