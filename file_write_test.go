package h5voxel

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/layout"
	"github.com/scigolib/h5voxel/internal/utils"
)

func floorSequence(n int, divisor int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i) / divisor
	}
	return out
}

func writeVoxels(t *testing.T, path string, opts ...DatasetOption) []int64 {
	t.Helper()
	fw, err := Create(path, CreateTruncate, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	opts = append([]DatasetOption{WithChunkDims([]uint64{4, 4, 4})}, opts...)
	ds, err := fw.CreateDataset("data", NativeInt, []uint64{16, 16, 16}, opts...)
	require.NoError(t, err)

	values := floorSequence(4096, 16)
	require.NoError(t, ds.Write(values))
	require.NoError(t, fw.Close())
	return values
}

func TestCreate_SampleVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.hdf5")
	values := writeVoxels(t, path)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, 2, f.SuperblockVersion())
	require.Equal(t, []string{"data"}, f.Datasets())

	ds, err := f.Dataset("data")
	require.NoError(t, err)
	require.Equal(t, []uint64{16, 16, 16}, ds.Shape())
	require.Equal(t, []uint64{4, 4, 4}, ds.ChunkShape())
	require.Equal(t, Int64, ds.Datatype())
	require.Equal(t, "chunked", ds.Layout())
	require.Empty(t, ds.Filters())

	got, err := ds.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, values, got)
	require.Equal(t, int64(1), got[17])
	require.Equal(t, int64(255), got[4095])
}

func TestCreate_SuperblockLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.hdf5")
	writeVoxels(t, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, core.Signature, string(raw[:8]))
	require.Equal(t, uint8(2), raw[8])
	require.Equal(t, uint64(len(raw)), binary.LittleEndian.Uint64(raw[28:]), "stored EOF is the file size")
	require.Equal(t, utils.Lookup3(raw[:44]), binary.LittleEndian.Uint32(raw[44:]))
}

func TestCreate_TruncateOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.hdf5")
	require.NoError(t, os.WriteFile(path, make([]byte, 1<<20), 0o644))

	writeVoxels(t, path)
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Less(t, len(first), 1<<20)

	writeVoxels(t, path)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCreate_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.hdf5")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Create(path, CreateExclusive)
	require.Error(t, err)

	_, err = Create(path, CreateMode(7))
	require.Error(t, err)
}

func TestCreate_FilteredDatasets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filtered.h5")
	fw, err := Create(path, CreateTruncate, WithWorkers(2))
	require.NoError(t, err)

	ints, err := fw.CreateDataset("ints", Int16, []uint64{10, 12},
		WithChunkDims([]uint64{4, 5}), WithShuffle(), WithDeflate(6), WithFletcher32())
	require.NoError(t, err)
	i16 := make([]int16, 120)
	for i := range i16 {
		i16[i] = int16(i*3 - 100)
	}
	require.NoError(t, ints.Write(i16))

	floats, err := fw.CreateDataset("/floats", Float64, []uint64{7},
		WithChunkDims([]uint64{3}), WithDeflate(9))
	require.NoError(t, err)
	f64 := []float64{0.5, -1, 2.25, 3, 1e10, -7.5, 42}
	require.NoError(t, floats.Write(f64))
	require.NoError(t, fw.Close())

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{"ints", "floats"}, f.Datasets())

	ds, err := f.Dataset("ints")
	require.NoError(t, err)
	require.Equal(t, []string{"shuffle", "deflate", "fletcher32"}, ds.Filters())
	got, err := ds.ReadInt64()
	require.NoError(t, err)
	for i, v := range i16 {
		require.Equal(t, int64(v), got[i])
	}

	ds, err = f.Dataset("/floats")
	require.NoError(t, err)
	require.Equal(t, Float64, ds.Datatype())
	gotF, err := ds.ReadFloat64()
	require.NoError(t, err)
	require.Equal(t, f64, gotF)
}

func TestCreate_EdgeChunksAndMultiLevelIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.h5")
	fw, err := Create(path, CreateTruncate)
	require.NoError(t, err)

	// 9x11x10 in 2x2x2 chunks: 5*6*5 = 150 chunks, partial along every
	// axis but the last, indexed by a two-level tree.
	dims := []uint64{9, 11, 10}
	ds, err := fw.CreateDataset("vol", Uint32, dims, WithChunkDims([]uint64{2, 2, 2}))
	require.NoError(t, err)
	values := make([]uint32, 9*11*10)
	for i := range values {
		values[i] = uint32(i * 7)
	}
	require.NoError(t, ds.Write(values))
	require.NoError(t, fw.Close())

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	rd, err := f.Dataset("vol")
	require.NoError(t, err)
	got, err := rd.ReadInt64()
	require.NoError(t, err)
	require.Len(t, got, len(values))
	for i, v := range values {
		require.Equal(t, int64(v), got[i], "element %d", i)
	}
}

func TestCreate_DefaultSingleChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.h5")
	fw, err := Create(path, CreateTruncate)
	require.NoError(t, err)
	ds, err := fw.CreateDataset("v", Uint8, []uint64{3, 3})
	require.NoError(t, err)
	require.NoError(t, ds.Write([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.NoError(t, fw.Close())

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	rd, err := f.Dataset("v")
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 3}, rd.ChunkShape())
	raw, err := rd.ReadRaw()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, raw)
}

func TestCreate_Attributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.h5")
	fw, err := Create(path, CreateTruncate)
	require.NoError(t, err)
	ds, err := fw.CreateDataset("data", Int64, []uint64{4},
		WithAttribute("spacing", []float64{1, 1, 2.5}),
		WithAttribute("units", "mm"),
		WithAttribute("divisor", 16),
		WithAttribute("shape", []uint64{4}),
	)
	require.NoError(t, err)
	require.NoError(t, ds.Write([]int64{1, 2, 3, 4}))
	require.NoError(t, fw.Close())

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()
	rd, err := f.Dataset("data")
	require.NoError(t, err)
	attrs, err := rd.Attributes()
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"spacing": []float64{1, 1, 2.5},
		"units":   "mm",
		"divisor": int64(16),
		"shape":   []int64{4},
	}, attrs)
}

func TestCreateDataset_Errors(t *testing.T) {
	fw, err := Create(filepath.Join(t.TempDir(), "err.h5"), CreateTruncate)
	require.NoError(t, err)
	defer fw.Close()

	_, err = fw.CreateDataset("", Int64, []uint64{4})
	require.Error(t, err)
	_, err = fw.CreateDataset("a/b", Int64, []uint64{4})
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = fw.CreateDataset("x", Int64, []uint64{4}, WithChunkDims([]uint64{2, 2}))
	require.ErrorIs(t, err, layout.ErrShape)
	_, err = fw.CreateDataset("x", Int64, []uint64{4, 0})
	require.ErrorIs(t, err, layout.ErrShape)
	_, err = fw.CreateDataset("x", Int64, []uint64{4}, WithDeflate(12))
	require.Error(t, err)
	_, err = fw.CreateDataset("x", Datatype(99), []uint64{4})
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = fw.CreateDataset("x", Int64, []uint64{4}, WithAttribute("bad", struct{}{}))
	require.ErrorIs(t, err, ErrUnsupported)

	ds, err := fw.CreateDataset("x", Int64, []uint64{4})
	require.NoError(t, err)
	_, err = fw.CreateDataset("/x", Int64, []uint64{4})
	require.Error(t, err, "duplicate name")

	require.ErrorIs(t, ds.Write([]int32{1, 2, 3, 4}), ErrDatatypeMismatch)
	require.ErrorIs(t, ds.Write([]int64{1, 2, 3}), ErrSizeMismatch)
	require.NoError(t, ds.Write([]int64{1, 2, 3, 4}))
	require.ErrorIs(t, ds.Write([]int64{1, 2, 3, 4}), ErrAlreadyWritten)
}

func TestClose_UnwrittenDataset(t *testing.T) {
	fw, err := Create(filepath.Join(t.TempDir(), "unwritten.h5"), CreateTruncate)
	require.NoError(t, err)
	_, err = fw.CreateDataset("data", Int64, []uint64{4})
	require.NoError(t, err)

	require.ErrorIs(t, fw.Close(), ErrNotWritten)
	require.NoError(t, fw.Close(), "second close is a no-op")

	_, err = fw.CreateDataset("more", Int64, []uint64{4})
	require.ErrorIs(t, err, ErrClosed)
}
