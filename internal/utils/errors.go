// Package utils provides helpers shared by the h5voxel format packages.
package utils

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a structure ends before all of its fields
// could be decoded.
var ErrTruncated = errors.New("truncated structure")

// H5Error represents a structured HDF5 error.
type H5Error struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *H5Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Is and errors.As.
func (e *H5Error) Unwrap() error {
	return e.Cause
}

// WrapError creates a contextual error. A nil cause yields nil.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &H5Error{
		Context: context,
		Cause:   cause,
	}
}
