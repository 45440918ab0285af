package h5voxel

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/writer"
)

// CreateMode specifies how to create a new HDF5 file.
type CreateMode int

const (
	// CreateTruncate creates a new file, overwriting if it exists.
	// This is the default mode, equivalent to os.Create() behavior.
	CreateTruncate CreateMode = iota

	// CreateExclusive creates a new file, failing if it already exists.
	CreateExclusive
)

// FileOption configures a FileWriter.
type FileOption func(*fileConfig)

type fileConfig struct {
	logger  *zap.Logger
	workers int
}

// WithLogger routes progress and diagnostics to logger. The default
// discards everything.
func WithLogger(logger *zap.Logger) FileOption {
	return func(cfg *fileConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithWorkers bounds the number of goroutines that run the filter pipeline
// over chunks. Zero or less means GOMAXPROCS.
func WithWorkers(n int) FileOption {
	return func(cfg *fileConfig) {
		cfg.workers = n
	}
}

// FileWriter is an HDF5 file open for writing.
//
// Datasets are created with CreateDataset and each must be written exactly
// once before Close. The superblock and root group are emitted by Close,
// so a file whose Close was not reached is not a valid HDF5 file.
//
// Not safe for concurrent use.
type FileWriter struct {
	path     string
	w        *writer.FileWriter
	log      *zap.SugaredLogger
	workers  int
	datasets []*DatasetWriter
	closed   bool
}

// Create creates a new HDF5 file for writing.
//
// Parameters:
//   - filename: Path to the file to create
//   - mode: Creation mode (truncate or exclusive)
//   - opts: WithLogger, WithWorkers
//
// Example:
//
//	fw, err := h5voxel.Create("data.h5", h5voxel.CreateTruncate)
//	if err != nil {
//	    return err
//	}
//	defer fw.Close()
func Create(filename string, mode CreateMode, opts ...FileOption) (*FileWriter, error) {
	cfg := &fileConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	var writerMode writer.CreateMode
	switch mode {
	case CreateTruncate:
		writerMode = writer.ModeTruncate
	case CreateExclusive:
		writerMode = writer.ModeExclusive
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}

	// The superblock is written last, into the space reserved here.
	fw, err := writer.NewFileWriter(filename, writerMode, core.SuperblockV2Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	log := cfg.logger.Sugar().With("file", filename)
	log.Debugw("file created", "mode", mode)
	return &FileWriter{
		path:    filename,
		w:       fw,
		log:     log,
		workers: cfg.workers,
	}, nil
}

// Path returns the file name passed to Create.
func (fw *FileWriter) Path() string {
	return fw.path
}

func validateDatasetName(name string) (string, error) {
	trimmed := strings.TrimPrefix(name, "/")
	if trimmed == "" {
		return "", fmt.Errorf("dataset name cannot be empty")
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("%w: nested path %q, datasets live in the root group", ErrUnsupported, name)
	}
	if trimmed == "." || trimmed == ".." {
		return "", fmt.Errorf("invalid dataset name %q", name)
	}
	return trimmed, nil
}

// Close writes the root group and the superblock, then syncs and closes the
// file. Every dataset created on fw must have been written. The file is
// closed even when Close returns an error; calling Close again is a no-op.
func (fw *FileWriter) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true

	err := fw.finish()
	if closeErr := fw.w.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close file: %w", closeErr))
	}
	if err != nil {
		fw.log.Warnw("file closed with error", "error", err)
		return err
	}
	fw.log.Debugw("file closed", "datasets", len(fw.datasets))
	return nil
}

func (fw *FileWriter) finish() error {
	for _, ds := range fw.datasets {
		if !ds.written {
			return fmt.Errorf("%w: %q", ErrNotWritten, ds.name)
		}
	}

	rootAddr, err := fw.writeRootGroup()
	if err != nil {
		return err
	}
	if err := fw.w.Allocator().ValidateNoOverlaps(); err != nil {
		return fmt.Errorf("inconsistent file layout: %w", err)
	}

	sb := &core.Superblock{
		Version:        core.Version2,
		OffsetSize:     8,
		LengthSize:     8,
		BaseAddress:    0,
		SuperExtension: core.UndefinedAddress,
		RootGroup:      rootAddr,
	}
	if err := sb.WriteTo(fw.w, fw.w.EndOfFile()); err != nil {
		return err
	}
	if err := fw.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush file: %w", err)
	}
	return nil
}

// writeRootGroup emits the root group header: a compact link info
// message, a group info message and one hard link per dataset.
func (fw *FileWriter) writeRootGroup() (uint64, error) {
	ohw := &core.ObjectHeaderWriter{}
	ohw.Add(core.MsgLinkInfo, core.EncodeCompactLinkInfo())
	ohw.Add(core.MsgGroupInfo, core.EncodeGroupInfo())
	for _, ds := range fw.datasets {
		link, err := (&core.Link{Name: ds.name, Address: ds.header}).Encode()
		if err != nil {
			return 0, fmt.Errorf("link %q: %w", ds.name, err)
		}
		ohw.Add(core.MsgLink, link)
	}

	addr, err := fw.w.Allocate(ohw.Size())
	if err != nil {
		return 0, fmt.Errorf("failed to allocate root group: %w", err)
	}
	if _, err := ohw.WriteTo(fw.w, addr); err != nil {
		return 0, fmt.Errorf("failed to write root group: %w", err)
	}
	return addr, nil
}
