package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGrid_Validation(t *testing.T) {
	tests := []struct {
		name      string
		dims      []uint64
		chunkDims []uint64
	}{
		{"empty shape", nil, nil},
		{"rank mismatch", []uint64{16, 16}, []uint64{4}},
		{"zero dimension", []uint64{16, 0}, []uint64{4, 4}},
		{"zero chunk", []uint64{16, 16}, []uint64{4, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(tt.dims, tt.chunkDims)
			require.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestGrid_Counts(t *testing.T) {
	g, err := NewGrid([]uint64{16, 16, 16}, []uint64{4, 4, 4})
	require.NoError(t, err)

	require.Equal(t, 3, g.Rank())
	require.Equal(t, []uint64{4, 4, 4}, g.Counts())
	require.Equal(t, uint64(64), g.Total())
	require.Equal(t, uint64(64), g.ChunkElements())
	require.True(t, g.Aligned())

	edge, err := NewGrid([]uint64{25, 35}, []uint64{10, 10})
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4}, edge.Counts())
	require.False(t, edge.Aligned())
	require.Equal(t, []uint64{5, 5}, edge.Extent([]uint64{2, 3}))
	require.Equal(t, []uint64{10, 10}, edge.Extent([]uint64{0, 0}))
}

func TestGrid_CoordinateRoundTrip(t *testing.T) {
	g, err := NewGrid([]uint64{30, 40}, []uint64{10, 10})
	require.NoError(t, err)

	require.Equal(t, []uint64{0, 0}, g.Coordinate(0))
	require.Equal(t, []uint64{0, 3}, g.Coordinate(3))
	require.Equal(t, []uint64{1, 0}, g.Coordinate(4))
	require.Equal(t, []uint64{2, 3}, g.Coordinate(11))

	for i := uint64(0); i < g.Total(); i++ {
		require.Equal(t, i, g.Index(g.Coordinate(i)))
	}

	require.Equal(t, []uint64{1, 2}, g.ChunkOf([]uint64{15, 29}))
	require.Equal(t, []uint64{10, 20}, g.Offset([]uint64{1, 2}))
}

func TestGrid_ExtractScatter(t *testing.T) {
	g, err := NewGrid([]uint64{4, 6}, []uint64{2, 4})
	require.NoError(t, err)

	src := make([]byte, 24)
	for i := range src {
		src[i] = byte(i)
	}

	// Chunk [1,1] covers rows 2..3, columns 4..5 and is padded to 2x4.
	chunk := g.Extract(src, []uint64{1, 1}, 1)
	require.Equal(t, []byte{16, 17, 0, 0, 22, 23, 0, 0}, chunk)

	dst := make([]byte, len(src))
	for i := uint64(0); i < g.Total(); i++ {
		coord := g.Coordinate(i)
		g.Scatter(dst, g.Extract(src, coord, 1), coord, 1)
	}
	require.Equal(t, src, dst)
}

func TestGrid_ExtractMultiByte(t *testing.T) {
	g, err := NewGrid([]uint64{2, 2, 2}, []uint64{1, 2, 2})
	require.NoError(t, err)

	src := make([]byte, 8*2)
	for i := range src {
		src[i] = byte(i)
	}
	chunk := g.Extract(src, []uint64{1, 0, 0}, 2)
	require.Equal(t, src[8:], chunk)
}
