package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5voxel"
	"github.com/scigolib/h5voxel/internal/sample"
)

func TestRun_GeneratesAndVerifies(t *testing.T) {
	out := filepath.Join(t.TempDir(), "test.hdf5")
	code := run([]string{"-out", out, "-verify", "-log-level", "error", "-publish", "mem://"})
	require.Equal(t, 0, code)

	f, err := h5voxel.Open(out)
	require.NoError(t, err)
	defer f.Close()
	ds, err := f.Dataset("data")
	require.NoError(t, err)
	assert.Equal(t, []uint64{16, 16, 16}, ds.Shape())
	assert.Equal(t, []uint64{4, 4, 4}, ds.ChunkShape())
}

func TestRun_Failures(t *testing.T) {
	assert.Equal(t, 0, run([]string{"-h"}))
	assert.Equal(t, 2, run([]string{"-shape", "nope"}))

	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "test.hdf5")
	assert.Equal(t, 1, run([]string{"-out", missing, "-log-level", "fatal"}))
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "resource", failureKind(fmt.Errorf("%w: disk full", sample.ErrResourceCreation)))
	assert.Equal(t, "allocation", failureKind(sample.ErrInvalidPlan))
	assert.Equal(t, "canceled", failureKind(context.Canceled))
	assert.Equal(t, "unknown", failureKind(assert.AnError))
}

func TestFailureKind_CanceledGeneration(t *testing.T) {
	plan := sample.DefaultPlan()
	plan.Path = filepath.Join(t.TempDir(), "test.hdf5")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sample.Generate(ctx, plan, nil)
	require.Error(t, err)
	assert.Equal(t, "canceled", failureKind(err))

	wrapped := fmt.Errorf("%w: %w", sample.ErrAllocation, context.DeadlineExceeded)
	assert.Equal(t, "canceled", failureKind(wrapped))
}
