package h5voxel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/filter"
	"github.com/scigolib/h5voxel/internal/layout"
	"github.com/scigolib/h5voxel/internal/structures"
	"github.com/scigolib/h5voxel/internal/utils"
)

// ErrSizeMismatch is returned when the data passed to Write does not hold
// exactly one value per dataset element.
var ErrSizeMismatch = errors.New("data length does not match dataset size")

// maxChunkBytes is the largest chunk HDF5 can index: chunk sizes are
// stored as 32-bit values.
const maxChunkBytes = math.MaxUint32

// DatasetOption configures CreateDataset.
type DatasetOption func(*datasetConfig)

type datasetConfig struct {
	chunkDims  []uint64
	shuffle    bool
	deflate    bool
	level      int
	fletcher32 bool
	attrs      []attrSpec
}

type attrSpec struct {
	name  string
	value any
}

// WithChunkDims sets the chunk shape. It must have the dataset's rank.
// Without it the whole dataset is stored as a single chunk.
//
// Example:
//
//	// 16x16x16 voxels in 4x4x4 chunks
//	ds, _ := fw.CreateDataset("data", h5voxel.Int64, []uint64{16, 16, 16},
//	    h5voxel.WithChunkDims([]uint64{4, 4, 4}))
func WithChunkDims(dims []uint64) DatasetOption {
	return func(cfg *datasetConfig) {
		cfg.chunkDims = slices.Clone(dims)
	}
}

// WithShuffle enables the byte shuffle filter, which groups the bytes of
// each element by significance before compression.
func WithShuffle() DatasetOption {
	return func(cfg *datasetConfig) {
		cfg.shuffle = true
	}
}

// WithDeflate enables zlib compression at level 0-9.
func WithDeflate(level int) DatasetOption {
	return func(cfg *datasetConfig) {
		cfg.deflate = true
		cfg.level = level
	}
}

// WithFletcher32 appends a Fletcher-32 checksum to every stored chunk.
func WithFletcher32() DatasetOption {
	return func(cfg *datasetConfig) {
		cfg.fletcher32 = true
	}
}

// WithAttribute attaches a named value to the dataset. See Dataset.Attributes
// for how values read back.
func WithAttribute(name string, value any) DatasetOption {
	return func(cfg *datasetConfig) {
		cfg.attrs = append(cfg.attrs, attrSpec{name: name, value: value})
	}
}

// DatasetWriter writes the data of one chunked dataset.
type DatasetWriter struct {
	fw       *FileWriter
	name     string
	dtype    Datatype
	coreType *core.Datatype
	grid     *layout.Grid
	pipeline *filter.Pipeline
	attrs    []*core.Attribute
	header   uint64
	written  bool
}

// CreateDataset declares a chunked dataset in the root group.
//
// Parameters:
//   - name: Dataset name, optionally with a leading "/"
//   - dtype: Element type (Int64, Float32, ...)
//   - dims: Dataset shape
//   - opts: WithChunkDims, WithShuffle, WithDeflate, WithFletcher32, WithAttribute
//
// Nothing is written until DatasetWriter.Write.
func (fw *FileWriter) CreateDataset(name string, dtype Datatype, dims []uint64, opts ...DatasetOption) (*DatasetWriter, error) {
	if fw.closed {
		return nil, ErrClosed
	}
	name, err := validateDatasetName(name)
	if err != nil {
		return nil, err
	}
	for _, ds := range fw.datasets {
		if ds.name == name {
			return nil, fmt.Errorf("dataset %q already exists", name)
		}
	}
	coreType, err := dtype.core()
	if err != nil {
		return nil, err
	}
	if len(dims) > core.MaxRank {
		return nil, fmt.Errorf("%w: rank %d exceeds %d", layout.ErrShape, len(dims), core.MaxRank)
	}

	cfg := &datasetConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	chunkDims := cfg.chunkDims
	if chunkDims == nil {
		chunkDims = dims
	}
	grid, err := layout.NewGrid(dims, chunkDims)
	if err != nil {
		return nil, err
	}
	for _, d := range chunkDims {
		if d > math.MaxUint32 {
			return nil, fmt.Errorf("%w: chunk dimension %d exceeds 32 bits", layout.ErrShape, d)
		}
	}
	if grid.ChunkElements()*uint64(dtype.Size()) > maxChunkBytes { //nolint:gosec // G115: size is 1..8
		return nil, fmt.Errorf("%w: chunk of %d elements exceeds 4 GiB", layout.ErrShape, grid.ChunkElements())
	}

	pipeline, err := buildPipeline(cfg, dtype.Size())
	if err != nil {
		return nil, err
	}

	attrs := make([]*core.Attribute, 0, len(cfg.attrs))
	for _, a := range cfg.attrs {
		attr, err := newAttribute(a.name, a.value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}

	dw := &DatasetWriter{
		fw:       fw,
		name:     name,
		dtype:    dtype,
		coreType: coreType,
		grid:     grid,
		pipeline: pipeline,
		attrs:    attrs,
	}
	fw.datasets = append(fw.datasets, dw)
	fw.log.Debugw("dataset created",
		"dataset", name,
		"dtype", dtype.String(),
		"shape", dims,
		"chunks", chunkDims,
		"filters", pipeline.Names(),
	)
	return dw, nil
}

// buildPipeline orders the filters shuffle, deflate, fletcher32: shuffle
// must see raw elements and the checksum must cover the stored bytes.
func buildPipeline(cfg *datasetConfig, elemSize int) (*filter.Pipeline, error) {
	p := filter.NewPipeline()
	if cfg.shuffle {
		p.Add(filter.NewShuffle(elemSize), 0)
	}
	if cfg.deflate {
		d, err := filter.NewDeflate(cfg.level)
		if err != nil {
			return nil, err
		}
		p.Add(d, filter.FlagOptional)
	}
	if cfg.fletcher32 {
		p.Add(filter.NewFletcher32(), 0)
	}
	return p, nil
}

// Name returns the dataset name.
func (dw *DatasetWriter) Name() string {
	return dw.name
}

// Write stores the whole dataset. data must be a slice of the Go type
// matching the dataset datatype ([]int64 for Int64, ...) holding the
// elements in row-major order, last dimension fastest.
//
// Example:
//
//	ds, _ := fw.CreateDataset("matrix", h5voxel.Float64, []uint64{3, 4},
//	    h5voxel.WithChunkDims([]uint64{3, 2}))
//	ds.Write([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
func (dw *DatasetWriter) Write(data any) error {
	return dw.WriteContext(context.Background(), data)
}

// WriteContext is Write with cancellation of the chunk encoding stage.
func (dw *DatasetWriter) WriteContext(ctx context.Context, data any) error {
	if dw.fw.closed {
		return ErrClosed
	}
	if dw.written {
		return fmt.Errorf("%w: %q", ErrAlreadyWritten, dw.name)
	}
	start := time.Now()

	buf, n, err := encodeElements(dw.dtype, data)
	if err != nil {
		return err
	}
	total, err := utils.ElementCount(dw.grid.Dims())
	if err != nil {
		return err
	}
	if uint64(n) != total { //nolint:gosec // G115: slice length
		return fmt.Errorf("%w: got %d values, dataset %q holds %d", ErrSizeMismatch, n, dw.name, total)
	}

	elemSize := dw.dtype.Size()
	chunks := make([][]byte, dw.grid.Total())
	for i := range chunks {
		chunks[i] = dw.grid.Extract(buf, dw.grid.Coordinate(uint64(i)), elemSize) //nolint:gosec // G115: index
	}

	encoded, err := dw.pipeline.EncodeAll(ctx, chunks, dw.fw.workers)
	if err != nil {
		return fmt.Errorf("failed to filter chunks of %q: %w", dw.name, err)
	}

	bt := structures.NewChunkBTreeWriter(dw.grid.ChunkDims(), core.DefaultChunkBTreeK)
	var stored uint64
	for i, enc := range encoded {
		if uint64(len(enc.Data)) > maxChunkBytes {
			return fmt.Errorf("chunk %d of %q is %d bytes after filtering", i, dw.name, len(enc.Data))
		}
		addr, err := dw.fw.w.Append(enc.Data)
		if err != nil {
			return fmt.Errorf("failed to write chunk %d of %q: %w", i, dw.name, err)
		}
		err = bt.AddChunk(structures.ChunkRecord{
			Offsets:    dw.grid.Offset(dw.grid.Coordinate(uint64(i))), //nolint:gosec // G115: index
			Size:       uint32(len(enc.Data)),
			FilterMask: enc.Mask,
			Address:    addr,
		})
		if err != nil {
			return err
		}
		stored += uint64(len(enc.Data))
	}

	btreeAddr, err := bt.WriteToFile(dw.fw.w, dw.fw.w)
	if err != nil {
		return fmt.Errorf("failed to write chunk index of %q: %w", dw.name, err)
	}

	if err := dw.writeHeader(btreeAddr); err != nil {
		return err
	}
	dw.written = true

	dw.fw.log.Infow("dataset written",
		"dataset", dw.name,
		"elements", total,
		"chunks", len(encoded),
		"raw_bytes", len(buf),
		"stored_bytes", stored,
		"elapsed", time.Since(start),
	)
	return nil
}

// writeHeader emits the dataset object header: dataspace, datatype, fill
// value, layout, optional filter pipeline and attributes.
func (dw *DatasetWriter) writeHeader(btreeAddr uint64) error {
	dataspace, err := core.NewSimpleDataspace(dw.grid.Dims()).Encode()
	if err != nil {
		return err
	}
	datatype, err := dw.coreType.Encode()
	if err != nil {
		return err
	}
	dataLayout, err := (&core.DataLayout{
		Class:       core.LayoutChunked,
		Address:     btreeAddr,
		ChunkDims:   dw.grid.ChunkDims(),
		ElementSize: uint32(dw.dtype.Size()), //nolint:gosec // G115: size is 1..8
	}).Encode()
	if err != nil {
		return err
	}

	const constant = 0x01
	ohw := &core.ObjectHeaderWriter{}
	ohw.Add(core.MsgDataspace, dataspace)
	ohw.Messages = append(ohw.Messages,
		core.MessageWriter{Type: core.MsgDatatype, Flags: constant, Data: datatype},
		core.MessageWriter{Type: core.MsgFillValue, Flags: constant, Data: core.NewChunkedFillValue().Encode()},
	)
	ohw.Add(core.MsgDataLayout, dataLayout)
	if !dw.pipeline.Empty() {
		msg, err := dw.pipeline.EncodeMessage()
		if err != nil {
			return err
		}
		ohw.Add(core.MsgFilterPipeline, msg)
	}
	for _, a := range dw.attrs {
		msg, err := a.Encode()
		if err != nil {
			return fmt.Errorf("attribute %q of %q: %w", a.Name, dw.name, err)
		}
		ohw.Add(core.MsgAttribute, msg)
	}

	addr, err := dw.fw.w.Allocate(ohw.Size())
	if err != nil {
		return fmt.Errorf("failed to allocate header of %q: %w", dw.name, err)
	}
	if _, err := ohw.WriteTo(dw.fw.w, addr); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", dw.name, err)
	}
	dw.header = addr
	return nil
}
