package h5voxel

import (
	"fmt"
	"math"
	"slices"

	"github.com/scigolib/h5voxel/internal/utils"
)

// Window gives random access to single voxels of a dataset through a
// block-shaped buffer.
//
// The buffer holds the block containing the most recently requested
// voxel, blocks being aligned to multiples of the buffer shape. A request
// inside that block is served from memory; any other request replaces the
// buffer with the block it falls in. The buffer shape defaults to the
// chunk shape, or the whole dataset when it is not chunked.
//
// Values are returned as float64. Integers beyond 2^53 lose precision.
// Not safe for concurrent use.
type Window struct {
	ds     *Dataset
	dims   []uint64
	shape  []uint64 // buffer shape
	origin []uint64 // element offset of the buffered block
	values []float64
	loads  int
}

// WindowOption configures Dataset.Window.
type WindowOption func(*Window) error

// WithBufferShape sets the buffer shape. It must have the dataset's rank
// and no zero extents. Shapes other than the chunk shape are assembled
// from every chunk the block overlaps.
func WithBufferShape(shape []uint64) WindowOption {
	return func(w *Window) error {
		return w.SetBufferShape(shape)
	}
}

// Window returns a voxel window over the dataset.
func (d *Dataset) Window(opts ...WindowOption) (*Window, error) {
	if len(d.space.Dims) == 0 {
		return nil, fmt.Errorf("%w: window over scalar dataset %q", ErrUnsupported, d.name)
	}
	shape := d.space.Dims
	if d.grid != nil {
		shape = d.grid.ChunkDims()
	}
	w := &Window{
		ds:    d,
		dims:  slices.Clone(d.space.Dims),
		shape: slices.Clone(shape),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// SetBufferShape changes the buffer shape and drops the buffered block.
func (w *Window) SetBufferShape(shape []uint64) error {
	if len(shape) != len(w.dims) {
		return fmt.Errorf("%w: buffer shape %v for rank %d dataset", ErrOutOfBounds, shape, len(w.dims))
	}
	if slices.Contains(shape, 0) {
		return fmt.Errorf("%w: buffer shape %v has a zero extent", ErrOutOfBounds, shape)
	}
	if _, err := utils.ElementCount(shape); err != nil {
		return err
	}
	w.shape = slices.Clone(shape)
	w.values = nil
	w.origin = nil
	return nil
}

// Shape returns the buffer shape.
func (w *Window) Shape() []uint64 {
	return slices.Clone(w.shape)
}

// Loads returns how many times the buffer has been filled.
func (w *Window) Loads() int {
	return w.loads
}

// Value returns the voxel at the given indices, one per dimension.
func (w *Window) Value(indices ...uint64) (float64, error) {
	if len(indices) != len(w.dims) {
		return 0, fmt.Errorf("%w: %d indices for rank %d dataset", ErrOutOfBounds, len(indices), len(w.dims))
	}
	origin := make([]uint64, len(indices))
	for i, x := range indices {
		if x >= w.dims[i] {
			return 0, fmt.Errorf("%w: index %d is %d, dimension is %d", ErrOutOfBounds, i, x, w.dims[i])
		}
		origin[i] = x / w.shape[i] * w.shape[i]
	}

	if w.values == nil || !slices.Equal(origin, w.origin) {
		if err := w.load(origin); err != nil {
			return 0, err
		}
	}

	var idx uint64
	for i, x := range indices {
		idx = idx*w.shape[i] + (x - origin[i])
	}
	return w.values[idx], nil
}

func (w *Window) load(origin []uint64) error {
	var (
		values []float64
		err    error
	)
	if w.ds.grid != nil && slices.Equal(w.shape, w.ds.grid.ChunkDims()) {
		values, err = w.decode(w.ds.readChunk(w.ds.grid.ChunkOf(origin)))
	} else {
		values, err = w.loadBlock(origin)
	}
	if err != nil {
		return err
	}
	w.values = values
	w.origin = origin
	w.loads++
	return nil
}

func (w *Window) decode(raw []byte, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	return w.ds.ctype.DecodeFloat64s(raw)
}

// loadBlock assembles the block at origin from every chunk it overlaps.
// Buffer positions past the dataset edge stay zero.
func (w *Window) loadBlock(origin []uint64) ([]float64, error) {
	n, _ := utils.ElementCount(w.shape)
	values := make([]float64, n)
	end := make([]uint64, len(w.dims))
	for i := range end {
		end[i] = min(origin[i]+w.shape[i], w.dims[i])
	}

	if w.ds.grid == nil {
		src, err := w.decode(w.ds.ReadRaw())
		if err != nil {
			return nil, err
		}
		copyBlock(values, w.shape, origin, src, w.dims, make([]uint64, len(w.dims)), origin, end)
		return values, nil
	}

	g := w.ds.grid
	cd := g.ChunkDims()
	last := make([]uint64, len(end))
	for i := range last {
		last[i] = end[i] - 1
	}
	lo, hi := g.ChunkOf(origin), g.ChunkOf(last)
	for i := range hi {
		hi[i]++
	}
	err := forEachIndex(lo, hi, func(coord []uint64) error {
		src, err := w.decode(w.ds.readChunk(coord))
		if err != nil {
			return err
		}
		base := g.Offset(coord)
		from := make([]uint64, len(base))
		to := make([]uint64, len(base))
		for i := range base {
			from[i] = max(origin[i], base[i])
			to[i] = min(end[i], base[i]+cd[i])
		}
		copyBlock(values, w.shape, origin, src, cd, base, from, to)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// copyBlock copies the elements with dataset indices in [from, to) from a
// source array of shape srcShape placed at srcOrigin into a destination of
// shape dstShape placed at dstOrigin.
func copyBlock(dst []float64, dstShape, dstOrigin []uint64, src []float64, srcShape, srcOrigin, from, to []uint64) {
	_ = forEachIndex(from, to, func(idx []uint64) error {
		var d, s uint64
		for i, x := range idx {
			d = d*dstShape[i] + (x - dstOrigin[i])
			s = s*srcShape[i] + (x - srcOrigin[i])
		}
		dst[d] = src[s]
		return nil
	})
}

// forEachIndex calls fn for every index in the box [lo, hi), last
// dimension fastest. fn must not keep idx.
func forEachIndex(lo, hi []uint64, fn func(idx []uint64) error) error {
	for i := range lo {
		if lo[i] >= hi[i] {
			return nil
		}
	}
	idx := slices.Clone(lo)
	for {
		if err := fn(idx); err != nil {
			return err
		}
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < hi[i] {
				break
			}
			idx[i] = lo[i]
		}
		if i < 0 {
			return nil
		}
	}
}

// ValueAt returns the voxel at a row-major flat index, last dimension
// fastest, matching the order of Dataset.ReadRaw.
func (w *Window) ValueAt(flat uint64) (float64, error) {
	indices := make([]uint64, len(w.dims))
	rest := flat
	for i := len(w.dims) - 1; i >= 0; i-- {
		indices[i] = rest % w.dims[i]
		rest /= w.dims[i]
	}
	if rest != 0 {
		return 0, fmt.Errorf("%w: flat index %d", ErrOutOfBounds, flat)
	}
	return w.Value(indices...)
}

// RoundedValue returns the voxel at flat rounded to the nearest multiple
// of rounder, halves away from zero.
func (w *Window) RoundedValue(flat uint64, rounder float64) (float64, error) {
	if !(rounder > 0) || math.IsInf(rounder, 0) {
		return 0, fmt.Errorf("rounding increment must be positive and finite, got %v", rounder)
	}
	v, err := w.ValueAt(flat)
	if err != nil {
		return 0, err
	}
	return roundTo(v, rounder), nil
}

// ClampedValue is RoundedValue limited to [lower, upper].
func (w *Window) ClampedValue(flat uint64, lower, upper, rounder float64) (float64, error) {
	if lower > upper {
		return 0, fmt.Errorf("lower bound %v above upper bound %v", lower, upper)
	}
	v, err := w.RoundedValue(flat, rounder)
	if err != nil {
		return 0, err
	}
	return min(max(v, lower), upper), nil
}

func roundTo(v, step float64) float64 {
	if v < 0 {
		return -math.Floor((-v+step/2)/step) * step
	}
	return math.Floor((v+step/2)/step) * step
}
