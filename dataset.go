package h5voxel

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/scigolib/h5voxel/internal/core"
	"github.com/scigolib/h5voxel/internal/filter"
	"github.com/scigolib/h5voxel/internal/layout"
	"github.com/scigolib/h5voxel/internal/structures"
	"github.com/scigolib/h5voxel/internal/utils"
)

// Dataset is a dataset opened for reading.
type Dataset struct {
	file     *File
	name     string
	header   *core.ObjectHeader
	space    *core.Dataspace
	ctype    *core.Datatype
	dtype    Datatype
	layout   *core.DataLayout
	pipeline *filter.Pipeline
	fill     []byte // one element, nil for zeros
	grid     *layout.Grid

	// Chunk index, loaded on first use. Keyed by linear chunk index.
	chunks map[uint64]structures.ChunkRecord
}

func newDataset(f *File, name string, h *core.ObjectHeader) (*Dataset, error) {
	ds := &Dataset{file: f, name: name, header: h}
	wrap := func(what string, err error) error {
		return fmt.Errorf("dataset %q %s: %w", name, what, err)
	}

	for _, t := range []core.MessageType{core.MsgDataspace, core.MsgDatatype, core.MsgDataLayout} {
		if h.Find(t) == nil {
			return nil, wrap("header", fmt.Errorf("missing message type %d", t))
		}
	}

	var err error
	if ds.space, err = core.DecodeDataspace(h.Find(core.MsgDataspace).Data, int(f.sb.LengthSize)); err != nil {
		return nil, wrap("dataspace", err)
	}
	if ds.ctype, err = core.DecodeDatatype(h.Find(core.MsgDatatype).Data); err != nil {
		return nil, wrap("datatype", err)
	}
	if ds.dtype, err = datatypeFromCore(ds.ctype); err != nil {
		return nil, wrap("datatype", err)
	}
	if ds.layout, err = core.DecodeDataLayout(h.Find(core.MsgDataLayout).Data, f.sb); err != nil {
		return nil, wrap("layout", err)
	}

	ds.pipeline = filter.NewPipeline()
	if msg := h.Find(core.MsgFilterPipeline); msg != nil {
		specs, err := filter.DecodeMessage(msg.Data)
		if err != nil {
			return nil, wrap("filter pipeline", err)
		}
		if ds.pipeline, err = filter.FromSpecs(specs, int(ds.ctype.Size)); err != nil {
			return nil, wrap("filter pipeline", err)
		}
	}

	if msg := h.Find(core.MsgFillValue); msg != nil {
		fv, err := core.DecodeFillValue(msg.Data)
		if err != nil {
			return nil, wrap("fill value", err)
		}
		if fv.Defined && len(fv.Value) == int(ds.ctype.Size) {
			ds.fill = fv.Value
		}
	}

	if ds.layout.Class == core.LayoutChunked {
		if len(ds.layout.ChunkDims) != len(ds.space.Dims) {
			return nil, wrap("layout", fmt.Errorf("chunk rank %d does not match dataset rank %d",
				len(ds.layout.ChunkDims), len(ds.space.Dims)))
		}
		if ds.grid, err = layout.NewGrid(ds.space.Dims, ds.layout.ChunkDims); err != nil {
			return nil, wrap("layout", err)
		}
	}
	return ds, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// Shape returns the dataset dimensions. A scalar dataset has an empty
// shape.
func (d *Dataset) Shape() []uint64 {
	return slices.Clone(d.space.Dims)
}

// ChunkShape returns the chunk dimensions, or nil when the dataset is not
// chunked.
func (d *Dataset) ChunkShape() []uint64 {
	if d.grid == nil {
		return nil
	}
	return d.grid.ChunkDims()
}

// Layout names the storage layout: "chunked", "contiguous" or "compact".
func (d *Dataset) Layout() string {
	return d.layout.Class.String()
}

// Datatype returns the element type.
func (d *Dataset) Datatype() Datatype {
	return d.dtype
}

// Filters returns the filter names in pipeline order.
func (d *Dataset) Filters() []string {
	return d.pipeline.Names()
}

// NumElements returns the number of elements in the dataset.
func (d *Dataset) NumElements() (uint64, error) {
	return d.space.ElementCount()
}

// Attributes decodes every attribute of the dataset. Strings read back as
// string, integer scalars as int64, floating-point scalars as float64 and
// one-dimensional attributes as slices of those types.
func (d *Dataset) Attributes() (map[string]any, error) {
	out := make(map[string]any)
	for _, msg := range d.header.All(core.MsgAttribute) {
		attr, err := core.DecodeAttribute(msg.Data, d.file.sb)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", d.name, err)
		}
		v, err := attr.Value()
		if err != nil {
			return nil, fmt.Errorf("dataset %q attribute %q: %w", d.name, attr.Name, err)
		}
		out[attr.Name] = v
	}
	return out, nil
}

// ReadRaw returns the whole dataset as row-major element bytes in the
// file's byte order.
func (d *Dataset) ReadRaw() ([]byte, error) {
	if d.file.osFile == nil {
		return nil, ErrClosed
	}
	count, err := d.space.ElementCount()
	if err != nil {
		return nil, err
	}
	size, err := utils.SafeMultiply(count, uint64(d.ctype.Size))
	if err != nil {
		return nil, err
	}
	dst := d.filled(int(size)) //nolint:gosec // G115: bounded by SafeMultiply and the file size

	switch d.layout.Class {
	case core.LayoutCompact:
		copy(dst, d.layout.CompactData)
	case core.LayoutContiguous:
		if utils.IsUndefined(d.layout.Address, int(d.file.sb.OffsetSize)) {
			return dst, nil
		}
		raw, err := core.ReadBlock(d.file.r, d.layout.Address, min(d.layout.Size, size))
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", d.name, err)
		}
		copy(dst, raw)
	case core.LayoutChunked:
		if err := d.loadChunkIndex(); err != nil {
			return nil, err
		}
		for idx, rec := range d.chunks {
			chunk, err := d.decodeChunk(rec)
			if err != nil {
				return nil, err
			}
			d.grid.Scatter(dst, chunk, d.grid.Coordinate(idx), int(d.ctype.Size))
		}
	}
	return dst, nil
}

// ReadInt64 reads an integer dataset converted to int64.
func (d *Dataset) ReadInt64() ([]int64, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return nil, err
	}
	return d.ctype.DecodeInt64s(raw)
}

// ReadFloat64 reads a numeric dataset converted to float64.
func (d *Dataset) ReadFloat64() ([]float64, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return nil, err
	}
	return d.ctype.DecodeFloat64s(raw)
}

// filled returns a buffer of n bytes holding the fill value.
func (d *Dataset) filled(n int) []byte {
	if d.fill == nil {
		return make([]byte, n)
	}
	buf := bytes.Repeat(d.fill, n/len(d.fill))
	return append(buf, make([]byte, n-len(buf))...)
}

func (d *Dataset) loadChunkIndex() error {
	if d.chunks != nil {
		return nil
	}
	d.chunks = make(map[uint64]structures.ChunkRecord)
	if utils.IsUndefined(d.layout.Address, int(d.file.sb.OffsetSize)) {
		return nil
	}

	records, err := structures.ReadChunkBTree(d.file.r, d.layout.Address, d.grid.Rank(), d.file.sb)
	if err != nil {
		d.chunks = nil
		return fmt.Errorf("dataset %q chunk index: %w", d.name, err)
	}
	dims, chunkDims := d.grid.Dims(), d.grid.ChunkDims()
	for _, rec := range records {
		for i, off := range rec.Offsets {
			if off >= dims[i] || off%chunkDims[i] != 0 {
				d.chunks = nil
				return fmt.Errorf("dataset %q: chunk offset %v outside grid", d.name, rec.Offsets)
			}
		}
		d.chunks[d.grid.Index(d.grid.ChunkOf(rec.Offsets))] = rec
	}
	return nil
}

// decodeChunk reads one stored chunk and reverses the filter pipeline.
func (d *Dataset) decodeChunk(rec structures.ChunkRecord) ([]byte, error) {
	stored, err := core.ReadBlock(d.file.r, rec.Address, uint64(rec.Size))
	if err != nil {
		return nil, fmt.Errorf("dataset %q chunk %v: %w", d.name, rec.Offsets, err)
	}
	data, err := d.pipeline.Remove(stored, rec.FilterMask)
	if err != nil {
		return nil, fmt.Errorf("dataset %q chunk %v: %w", d.name, rec.Offsets, err)
	}
	want := int(d.grid.ChunkElements()) * int(d.ctype.Size) //nolint:gosec // G115: chunk size fits 32 bits
	if len(data) != want {
		return nil, fmt.Errorf("dataset %q chunk %v: decoded %d bytes, want %d", d.name, rec.Offsets, len(data), want)
	}
	return data, nil
}

// readChunk returns the full-size decoded chunk at a scaled coordinate,
// or a fill chunk when the chunk was never written.
func (d *Dataset) readChunk(coord []uint64) ([]byte, error) {
	if err := d.loadChunkIndex(); err != nil {
		return nil, err
	}
	rec, ok := d.chunks[d.grid.Index(coord)]
	if !ok {
		return d.filled(int(d.grid.ChunkElements()) * int(d.ctype.Size)), nil //nolint:gosec // G115: chunk size fits 32 bits
	}
	return d.decodeChunk(rec)
}
