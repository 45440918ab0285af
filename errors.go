package h5voxel

import (
	"errors"

	"github.com/scigolib/h5voxel/internal/core"
)

var (
	// ErrNotFound is returned when a dataset does not exist.
	ErrNotFound = errors.New("dataset not found")

	// ErrUnsupported is returned for HDF5 features outside the supported
	// subset.
	ErrUnsupported = core.ErrUnsupported

	// ErrDatatypeMismatch is returned when the Go slice passed to Write does
	// not match the dataset's declared datatype.
	ErrDatatypeMismatch = errors.New("data does not match dataset datatype")

	// ErrAlreadyWritten is returned by a second Write on the same dataset.
	ErrAlreadyWritten = errors.New("dataset already written")

	// ErrNotWritten is returned by FileWriter.Close when a created dataset
	// was never written.
	ErrNotWritten = errors.New("dataset was never written")

	// ErrClosed is returned when using a closed file.
	ErrClosed = errors.New("file is closed")

	// ErrOutOfBounds is returned for voxel indices outside the dataset.
	ErrOutOfBounds = errors.New("index out of bounds")
)
