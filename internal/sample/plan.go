// Package sample generates the voxel sample file: one chunked dataset
// filled with a floor-divided integer sequence.
package sample

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/scigolib/h5voxel"
	"github.com/scigolib/h5voxel/internal/utils"
)

// Default parameters of the sample file.
const (
	DefaultPath    = "test.hdf5"
	DefaultDataset = "data"
	DefaultStart   = 0
	DefaultDivisor = 16
)

// NoDeflate disables compression in Plan.Deflate.
const NoDeflate = -1

var (
	// ErrResourceCreation covers failures of the output resource itself:
	// the path cannot be created, or writing, flushing or closing fails.
	ErrResourceCreation = errors.New("output resource failure")

	// ErrAllocation covers the container rejecting the requested shape,
	// chunking or datatype.
	ErrAllocation = errors.New("container allocation failure")

	// ErrInvalidPlan is returned by Validate. It wraps ErrAllocation, since
	// an invalid plan is a shape or chunking the container cannot take.
	ErrInvalidPlan = fmt.Errorf("%w: invalid plan", ErrAllocation)
)

// Plan describes one sample file.
type Plan struct {
	Path     string
	Dataset  string
	Shape    []uint64
	Chunks   []uint64
	Datatype h5voxel.Datatype

	// Element i holds floor((Start+i) / Divisor).
	Start   int64
	Divisor int64

	Shuffle    bool
	Deflate    int // zlib level 0-9, or NoDeflate
	Fletcher32 bool

	// Voxel geometry stored as dataset attributes when set.
	Spacing []float64
	Origin  []float64

	// Chunk encoding concurrency. Zero means GOMAXPROCS.
	Workers int
}

// DefaultPlan returns the plan of the reference sample: test.hdf5 with a
// 16x16x16 native integer dataset "data" in 4x4x4 chunks holding i/16.
func DefaultPlan() Plan {
	return Plan{
		Path:     DefaultPath,
		Dataset:  DefaultDataset,
		Shape:    []uint64{16, 16, 16},
		Chunks:   []uint64{4, 4, 4},
		Datatype: h5voxel.NativeInt,
		Start:    DefaultStart,
		Divisor:  DefaultDivisor,
		Deflate:  NoDeflate,
	}
}

// Elements returns the number of dataset elements.
func (p Plan) Elements() (uint64, error) {
	return utils.ElementCount(p.Shape)
}

// ChunkCount returns the number of chunks the dataset is split into.
func (p Plan) ChunkCount() uint64 {
	n := uint64(1)
	for i, d := range p.Shape {
		n *= d / p.Chunks[i]
	}
	return n
}

// Validate checks that the plan describes a dataset the generator can
// write in full: chunks tile the shape exactly and every value of the
// sequence fits the datatype.
func (p Plan) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("%w: empty output path", ErrInvalidPlan)
	}
	if p.Dataset == "" {
		return fmt.Errorf("%w: empty dataset name", ErrInvalidPlan)
	}
	if len(p.Shape) == 0 {
		return fmt.Errorf("%w: dataset rank must be at least 1", ErrInvalidPlan)
	}
	if len(p.Chunks) != len(p.Shape) {
		return fmt.Errorf("%w: chunk rank %d does not match shape rank %d", ErrInvalidPlan, len(p.Chunks), len(p.Shape))
	}
	for i, d := range p.Shape {
		c := p.Chunks[i]
		if d == 0 || c == 0 {
			return fmt.Errorf("%w: zero extent in dimension %d", ErrInvalidPlan, i)
		}
		if d%c != 0 {
			return fmt.Errorf("%w: chunk extent %d does not divide shape extent %d in dimension %d",
				ErrInvalidPlan, c, d, i)
		}
	}
	if p.Divisor == 0 {
		return fmt.Errorf("%w: divisor must not be zero", ErrInvalidPlan)
	}
	if p.Deflate != NoDeflate && (p.Deflate < 0 || p.Deflate > 9) {
		return fmt.Errorf("%w: deflate level %d", ErrInvalidPlan, p.Deflate)
	}
	if p.Spacing != nil && len(p.Spacing) != len(p.Shape) {
		return fmt.Errorf("%w: spacing has %d values for rank %d", ErrInvalidPlan, len(p.Spacing), len(p.Shape))
	}
	if p.Origin != nil && len(p.Origin) != len(p.Shape) {
		return fmt.Errorf("%w: origin has %d values for rank %d", ErrInvalidPlan, len(p.Origin), len(p.Shape))
	}

	n, err := p.Elements()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if n > math.MaxInt {
		return fmt.Errorf("%w: %d elements do not fit in memory", ErrInvalidPlan, n)
	}
	last, ok := addInt64(p.Start, int64(n-1)) //nolint:gosec // G115: n <= MaxInt
	if !ok {
		return fmt.Errorf("%w: sequence overflows int64", ErrInvalidPlan)
	}

	lo, hi := FloorDiv(p.Start, p.Divisor), FloorDiv(last, p.Divisor)
	if lo > hi {
		lo, hi = hi, lo
	}
	minV, maxV, err := valueRange(p.Datatype)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if float64(lo) < minV || float64(hi) > maxV {
		return fmt.Errorf("%w: values [%d, %d] do not fit %s", ErrInvalidPlan, lo, hi, p.Datatype)
	}
	return nil
}

// datasetOptions maps the plan onto container options.
func (p Plan) datasetOptions() []h5voxel.DatasetOption {
	opts := []h5voxel.DatasetOption{h5voxel.WithChunkDims(slices.Clone(p.Chunks))}
	if p.Shuffle {
		opts = append(opts, h5voxel.WithShuffle())
	}
	if p.Deflate != NoDeflate {
		opts = append(opts, h5voxel.WithDeflate(p.Deflate))
	}
	if p.Fletcher32 {
		opts = append(opts, h5voxel.WithFletcher32())
	}
	if p.Spacing != nil {
		opts = append(opts, h5voxel.WithAttribute("spacing", slices.Clone(p.Spacing)))
	}
	if p.Origin != nil {
		opts = append(opts, h5voxel.WithAttribute("origin", slices.Clone(p.Origin)))
	}
	opts = append(opts,
		h5voxel.WithAttribute("sequence_start", p.Start),
		h5voxel.WithAttribute("sequence_divisor", p.Divisor),
	)
	return opts
}

func addInt64(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// valueRange returns the closed range of values dt can hold exactly.
func valueRange(dt h5voxel.Datatype) (float64, float64, error) {
	switch dt {
	case h5voxel.Int8:
		return math.MinInt8, math.MaxInt8, nil
	case h5voxel.Int16:
		return math.MinInt16, math.MaxInt16, nil
	case h5voxel.Int32:
		return math.MinInt32, math.MaxInt32, nil
	case h5voxel.Int64:
		return math.MinInt64, math.MaxInt64, nil
	case h5voxel.Uint8:
		return 0, math.MaxUint8, nil
	case h5voxel.Uint16:
		return 0, math.MaxUint16, nil
	case h5voxel.Uint32:
		return 0, math.MaxUint32, nil
	case h5voxel.Uint64:
		return 0, math.MaxUint64, nil
	case h5voxel.Float32:
		return -(1 << 24), 1 << 24, nil
	case h5voxel.Float64:
		return -(1 << 53), 1 << 53, nil
	default:
		return 0, 0, fmt.Errorf("%w: datatype %s", h5voxel.ErrUnsupported, dt)
	}
}
