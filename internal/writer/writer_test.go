package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocator_Sequential(t *testing.T) {
	a := NewAllocator(48)

	addr1, err := a.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, uint64(48), addr1)

	addr2, err := a.Allocate(24)
	require.NoError(t, err)
	require.Equal(t, uint64(148), addr2)

	require.Equal(t, uint64(172), a.EndOfFile())
	require.Equal(t, []AllocatedBlock{{48, 100}, {148, 24}}, a.Blocks())
	require.NoError(t, a.ValidateNoOverlaps())
}

func TestAllocator_ZeroSize(t *testing.T) {
	_, err := NewAllocator(0).Allocate(0)
	require.Error(t, err)
}

func TestAllocator_DetectsOverlap(t *testing.T) {
	a := NewAllocator(0)
	a.blocks = []AllocatedBlock{{Offset: 0, Size: 10}, {Offset: 5, Size: 10}}
	require.Error(t, a.ValidateNoOverlaps())
}

func TestFileWriter_AppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.h5")

	w, err := NewFileWriter(path, ModeTruncate, 8)
	require.NoError(t, err)

	addr, err := w.Append([]byte("chunk"))
	require.NoError(t, err)
	require.Equal(t, uint64(8), addr)

	buf := make([]byte, 5)
	_, err = w.ReadAt(buf, 8)
	require.NoError(t, err)
	require.Equal(t, "chunk", string(buf))

	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Allocate(1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFileWriter_Modes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.h5")
	require.NoError(t, os.WriteFile(path, []byte("previous contents"), 0o600))

	_, err := NewFileWriter(path, ModeExclusive, 0)
	require.Error(t, err)

	w, err := NewFileWriter(path, ModeTruncate, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())

	_, err = NewFileWriter(path, CreateMode(7), 0)
	require.Error(t, err)
}

func TestFileWriter_UnwritablePath(t *testing.T) {
	_, err := NewFileWriter(filepath.Join(t.TempDir(), "missing", "dir", "x.h5"), ModeTruncate, 0)
	require.Error(t, err)
}
