package h5voxel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openSampleWindow(t *testing.T, opts ...WindowOption) *Window {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hdf5")
	writeVoxels(t, path)

	f, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	ds, err := f.Dataset("data")
	require.NoError(t, err)
	w, err := ds.Window(opts...)
	require.NoError(t, err)
	return w
}

func TestWindow_ValueMatchesSequence(t *testing.T) {
	w := openSampleWindow(t)
	require.Equal(t, []uint64{4, 4, 4}, w.Shape())

	for flat := uint64(0); flat < 4096; flat += 37 {
		v, err := w.ValueAt(flat)
		require.NoError(t, err)
		require.Equal(t, float64(flat/16), v, "flat index %d", flat)
	}

	v, err := w.Value(15, 15, 15)
	require.NoError(t, err)
	require.Equal(t, 255.0, v)
}

func TestWindow_ReloadsOnlyOutsideBuffer(t *testing.T) {
	w := openSampleWindow(t)

	_, err := w.Value(0, 0, 0)
	require.NoError(t, err)
	_, err = w.Value(3, 2, 1)
	require.NoError(t, err)
	_, err = w.Value(1, 3, 3)
	require.NoError(t, err)
	require.Equal(t, 1, w.Loads(), "same chunk served from the buffer")

	_, err = w.Value(4, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, w.Loads())

	_, err = w.Value(0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 3, w.Loads(), "only the latest chunk is kept")
}

func TestWindow_BufferShape(t *testing.T) {
	w := openSampleWindow(t, WithBufferShape([]uint64{8, 8, 8}))
	require.Equal(t, []uint64{8, 8, 8}, w.Shape())

	v, err := w.Value(0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
	v, err = w.Value(7, 7, 7)
	require.NoError(t, err)
	require.Equal(t, float64((7*256+7*16+7)/16), v)
	require.Equal(t, 1, w.Loads(), "block spans eight chunks but loads once")

	v, err = w.Value(8, 0, 0)
	require.NoError(t, err)
	require.Equal(t, float64(8*256/16), v)
	require.Equal(t, 2, w.Loads())
}

func TestWindow_UnalignedBufferShape(t *testing.T) {
	// Blocks straddle chunk boundaries and overhang the dataset edge.
	for _, shape := range [][]uint64{{3, 5, 16}, {16, 16, 16}, {1, 1, 7}, {32, 2, 3}} {
		w := openSampleWindow(t, WithBufferShape(shape))
		for flat := range uint64(4096) {
			v, err := w.ValueAt(flat)
			require.NoError(t, err)
			require.Equal(t, float64(flat/16), v, "shape %v flat index %d", shape, flat)
		}
	}
}

func TestWindow_SetBufferShape(t *testing.T) {
	w := openSampleWindow(t)
	_, err := w.Value(0, 0, 0)
	require.NoError(t, err)

	require.ErrorIs(t, w.SetBufferShape([]uint64{4, 4}), ErrOutOfBounds)
	require.ErrorIs(t, w.SetBufferShape([]uint64{4, 0, 4}), ErrOutOfBounds)
	require.Equal(t, []uint64{4, 4, 4}, w.Shape(), "rejected shape leaves the window unchanged")

	require.NoError(t, w.SetBufferShape([]uint64{2, 2, 2}))
	v, err := w.Value(0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
	require.Equal(t, 2, w.Loads(), "changing the shape drops the buffer")
}

func TestWindow_OutOfBounds(t *testing.T) {
	w := openSampleWindow(t)

	_, err := w.Value(16, 0, 0)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = w.Value(1, 2)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = w.ValueAt(4096)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestWindow_RoundedAndClamped(t *testing.T) {
	w := openSampleWindow(t)

	// Element 4000 holds 250.
	v, err := w.RoundedValue(4000, 100)
	require.NoError(t, err)
	require.Equal(t, 300.0, v, "halves round away from zero")

	v, err = w.RoundedValue(4000, 40)
	require.NoError(t, err)
	require.Equal(t, 240.0, v)

	v, err = w.ClampedValue(4000, 0, 200, 100)
	require.NoError(t, err)
	require.Equal(t, 200.0, v)

	v, err = w.ClampedValue(17, 5, 10, 1)
	require.NoError(t, err)
	require.Equal(t, 5.0, v)

	_, err = w.RoundedValue(0, 0)
	require.Error(t, err)
	_, err = w.ClampedValue(0, 2, 1, 1)
	require.Error(t, err)
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		v, step, want float64
	}{
		{1.4, 1, 1},
		{1.5, 1, 2},
		{-1.4, 1, -1},
		{-1.5, 1, -2},
		{7, 5, 5},
		{7.5, 5, 10},
		{-0.2, 1, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, roundTo(tt.v, tt.step), "roundTo(%v, %v)", tt.v, tt.step)
	}
}
