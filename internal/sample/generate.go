package sample

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/scigolib/h5voxel"
)

// Result describes a generated file.
type Result struct {
	Path     string
	Dataset  string
	Elements uint64
	Chunks   uint64
	FileSize int64
	Elapsed  time.Duration
}

// Generate writes the sample file described by plan, overwriting any
// existing file at plan.Path.
//
// Every failure wraps either ErrResourceCreation or ErrAllocation, except
// cancellation, which returns the context's error. When Generate fails the
// file at plan.Path must not be relied upon.
func Generate(ctx context.Context, plan Plan, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Sugar().With("path", plan.Path, "dataset", plan.Dataset)
	start := time.Now()

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	n, _ := plan.Elements()

	fw, err := h5voxel.Create(plan.Path, h5voxel.CreateTruncate,
		h5voxel.WithLogger(logger), h5voxel.WithWorkers(plan.Workers))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	if err := populate(ctx, fw, plan, int(n)); err != nil { //nolint:gosec // G115: Validate bounds n by MaxInt
		if closeErr := fw.Close(); closeErr != nil {
			log.Debugw("close after failure", "error", closeErr)
		}
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	info, err := os.Stat(plan.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	res := &Result{
		Path:     plan.Path,
		Dataset:  plan.Dataset,
		Elements: n,
		Chunks:   plan.ChunkCount(),
		FileSize: info.Size(),
		Elapsed:  time.Since(start),
	}
	log.Infow("sample generated",
		"shape", plan.Shape,
		"chunks", plan.Chunks,
		"dtype", plan.Datatype.String(),
		"bytes", res.FileSize,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// populate declares the dataset and assigns its contents in one write.
func populate(ctx context.Context, fw *h5voxel.FileWriter, plan Plan, n int) error {
	ds, err := fw.CreateDataset(plan.Dataset, plan.Datatype, plan.Shape, plan.datasetOptions()...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	values, err := typedValues(plan.Datatype, Sequence(n, plan.Start, plan.Divisor))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAllocation, err)
	}
	if err := ds.WriteContext(ctx, values); err != nil {
		return classify(err)
	}
	return nil
}

// classify attributes a write failure to the file system or the container.
// Cancellation is neither and is returned as is.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}
	return fmt.Errorf("%w: %w", ErrAllocation, err)
}
