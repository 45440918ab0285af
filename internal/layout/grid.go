// Package layout maps dense row-major arrays onto fixed-size chunks.
//
// HDF5 always stores chunks at their full nominal size: a chunk that hangs
// over the dataset boundary is padded with zeros, and readers discard the
// padding when scattering the chunk back.
package layout

import (
	"errors"
	"fmt"

	"github.com/scigolib/h5voxel/internal/utils"
)

// ErrShape reports inconsistent dataset or chunk dimensions.
var ErrShape = errors.New("invalid chunk grid shape")

// Grid describes how a dataset of Dims is tiled by chunks of ChunkDims.
type Grid struct {
	dims      []uint64
	chunkDims []uint64
	counts    []uint64 // chunks per dimension
	total     uint64
}

// NewGrid validates the shapes and precomputes the chunk counts.
func NewGrid(dims, chunkDims []uint64) (*Grid, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: dataset must have at least 1 dimension", ErrShape)
	}
	if len(dims) != len(chunkDims) {
		return nil, fmt.Errorf("%w: dataset has %d dims, chunk has %d", ErrShape, len(dims), len(chunkDims))
	}

	counts := make([]uint64, len(dims))
	total := uint64(1)
	for i := range dims {
		if dims[i] == 0 {
			return nil, fmt.Errorf("%w: dataset dimension %d is zero", ErrShape, i)
		}
		if chunkDims[i] == 0 {
			return nil, fmt.Errorf("%w: chunk dimension %d is zero", ErrShape, i)
		}
		counts[i] = (dims[i] + chunkDims[i] - 1) / chunkDims[i]

		var err error
		if total, err = utils.SafeMultiply(total, counts[i]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrShape, err)
		}
	}

	return &Grid{
		dims:      append([]uint64(nil), dims...),
		chunkDims: append([]uint64(nil), chunkDims...),
		counts:    counts,
		total:     total,
	}, nil
}

// Rank returns the number of dimensions.
func (g *Grid) Rank() int { return len(g.dims) }

// Dims returns a copy of the dataset dimensions.
func (g *Grid) Dims() []uint64 { return append([]uint64(nil), g.dims...) }

// ChunkDims returns a copy of the chunk dimensions.
func (g *Grid) ChunkDims() []uint64 { return append([]uint64(nil), g.chunkDims...) }

// Counts returns a copy of the number of chunks along each dimension.
func (g *Grid) Counts() []uint64 { return append([]uint64(nil), g.counts...) }

// Total returns the number of chunks in the grid.
func (g *Grid) Total() uint64 { return g.total }

// Aligned reports whether every chunk dimension divides the matching
// dataset dimension, i.e. the grid has no partial edge chunks.
func (g *Grid) Aligned() bool {
	for i := range g.dims {
		if g.dims[i]%g.chunkDims[i] != 0 {
			return false
		}
	}
	return true
}

// ChunkElements returns the number of elements in one full chunk.
func (g *Grid) ChunkElements() uint64 {
	n := uint64(1)
	for _, d := range g.chunkDims {
		n *= d
	}
	return n
}

// Coordinate converts a linear chunk index into scaled chunk coordinates,
// last dimension fastest.
func (g *Grid) Coordinate(index uint64) []uint64 {
	coord := make([]uint64, len(g.counts))
	for i := len(g.counts) - 1; i >= 0; i-- {
		coord[i] = index % g.counts[i]
		index /= g.counts[i]
	}
	return coord
}

// Index is the inverse of Coordinate.
func (g *Grid) Index(coord []uint64) uint64 {
	var idx uint64
	for i, c := range coord {
		idx = idx*g.counts[i] + c
	}
	return idx
}

// Offset returns the element offset of the chunk's origin.
func (g *Grid) Offset(coord []uint64) []uint64 {
	off := make([]uint64, len(coord))
	for i, c := range coord {
		off[i] = c * g.chunkDims[i]
	}
	return off
}

// ChunkOf returns the scaled coordinate of the chunk holding the element
// at the given dataset indices.
func (g *Grid) ChunkOf(indices []uint64) []uint64 {
	coord := make([]uint64, len(indices))
	for i, x := range indices {
		coord[i] = x / g.chunkDims[i]
	}
	return coord
}

// Extent returns the number of in-bounds elements along each dimension of
// the chunk at coord. Only edge chunks are smaller than ChunkDims.
func (g *Grid) Extent(coord []uint64) []uint64 {
	ext := make([]uint64, len(coord))
	for i, c := range coord {
		start := c * g.chunkDims[i]
		ext[i] = min(g.chunkDims[i], g.dims[i]-start)
	}
	return ext
}

// Extract copies the chunk at coord out of the row-major dataset buffer
// src into a new full-size chunk buffer. Out-of-bounds cells stay zero.
func (g *Grid) Extract(src []byte, coord []uint64, elemSize int) []byte {
	dst := make([]byte, int(g.ChunkElements())*elemSize)
	g.walk(coord, elemSize, func(dsOff, chOff, n int) {
		copy(dst[chOff:chOff+n], src[dsOff:dsOff+n])
	})
	return dst
}

// Scatter copies the in-bounds part of a full-size chunk buffer into the
// row-major dataset buffer dst.
func (g *Grid) Scatter(dst, chunk []byte, coord []uint64, elemSize int) {
	g.walk(coord, elemSize, func(dsOff, chOff, n int) {
		copy(dst[dsOff:dsOff+n], chunk[chOff:chOff+n])
	})
}

// walk visits every contiguous run of the chunk's in-bounds region. A run
// is one row along the last dimension; fn receives byte offsets into the
// dataset and chunk buffers and the run length in bytes.
func (g *Grid) walk(coord []uint64, elemSize int, fn func(dsOff, chOff, n int)) {
	rank := len(g.dims)
	ext := g.Extent(coord)
	origin := g.Offset(coord)

	dsStride := make([]uint64, rank)
	chStride := make([]uint64, rank)
	dsStride[rank-1], chStride[rank-1] = 1, 1
	for i := rank - 2; i >= 0; i-- {
		dsStride[i] = dsStride[i+1] * g.dims[i+1]
		chStride[i] = chStride[i+1] * g.chunkDims[i+1]
	}

	rowBytes := int(ext[rank-1]) * elemSize
	pos := make([]uint64, rank) // position within the chunk, last dim pinned to 0
	for {
		var dsOff, chOff uint64
		for i := 0; i < rank; i++ {
			dsOff += (origin[i] + pos[i]) * dsStride[i]
			chOff += pos[i] * chStride[i]
		}
		fn(int(dsOff)*elemSize, int(chOff)*elemSize, rowBytes)

		// Advance the odometer over all but the last dimension.
		d := rank - 2
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < ext[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}
