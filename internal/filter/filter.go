// Package filter implements the HDF5 chunk filter pipeline.
//
// Filters run in declaration order when a chunk is written and in reverse
// order when it is read back. Each stored chunk carries a filter mask whose
// bit i is set when filter i was skipped for that chunk.
package filter

import (
	"errors"
	"fmt"
)

// ID is an HDF5 filter identifier.
type ID uint16

// Standard filter identifiers.
const (
	IDDeflate    ID = 1
	IDShuffle    ID = 2
	IDFletcher32 ID = 3
)

// FlagOptional marks a filter that may be skipped for a chunk when it fails.
const FlagOptional uint16 = 0x0001

var (
	// ErrUnsupported is returned for filters this package cannot run.
	ErrUnsupported = errors.New("unsupported filter")

	// ErrChecksum is returned when a fletcher32 checksum does not match.
	ErrChecksum = errors.New("checksum mismatch")
)

// Filter transforms chunk bytes.
type Filter interface {
	// ID returns the HDF5 filter identifier.
	ID() ID

	// Name returns the filter name used in logs and dumps.
	Name() string

	// Apply runs the filter on the write path.
	Apply(data []byte) ([]byte, error)

	// Remove reverses Apply on the read path.
	Remove(data []byte) ([]byte, error)

	// ClientData returns the cd_values stored in the pipeline message.
	ClientData() []uint32
}

// Spec is one decoded entry of a filter pipeline message.
type Spec struct {
	ID         ID
	Name       string
	Flags      uint16
	ClientData []uint32
}

// Optional reports whether the filter may be skipped per chunk.
func (s Spec) Optional() bool {
	return s.Flags&FlagOptional != 0
}

// New builds the filter described by spec. elemSize is the dataset element
// size, used by shuffle when the stored cd_values omit it.
func New(spec Spec, elemSize int) (Filter, error) {
	switch spec.ID {
	case IDDeflate:
		level := 6
		if len(spec.ClientData) > 0 {
			level = int(spec.ClientData[0])
		}
		return NewDeflate(level)
	case IDShuffle:
		size := elemSize
		if len(spec.ClientData) > 0 {
			size = int(spec.ClientData[0])
		}
		return NewShuffle(size), nil
	case IDFletcher32:
		return NewFletcher32(), nil
	default:
		return nil, fmt.Errorf("%w: id %d (%q)", ErrUnsupported, spec.ID, spec.Name)
	}
}

type stage struct {
	filter Filter
	flags  uint16
}

// Pipeline is an ordered chain of filters.
type Pipeline struct {
	stages []stage
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// FromSpecs builds a pipeline from decoded pipeline message entries.
func FromSpecs(specs []Spec, elemSize int) (*Pipeline, error) {
	p := NewPipeline()
	for _, s := range specs {
		f, err := New(s, elemSize)
		if err != nil {
			return nil, err
		}
		p.Add(f, s.Flags)
	}
	return p, nil
}

// Add appends a filter with the given pipeline flags.
func (p *Pipeline) Add(f Filter, flags uint16) {
	p.stages = append(p.stages, stage{filter: f, flags: flags})
}

// Len returns the number of filters.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.stages)
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool {
	return p.Len() == 0
}

// Specs describes the pipeline as pipeline message entries.
func (p *Pipeline) Specs() []Spec {
	specs := make([]Spec, 0, p.Len())
	for _, s := range p.stages {
		specs = append(specs, Spec{
			ID:         s.filter.ID(),
			Name:       s.filter.Name(),
			Flags:      s.flags,
			ClientData: s.filter.ClientData(),
		})
	}
	return specs
}

// Names returns the filter names in pipeline order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, p.Len())
	for _, s := range p.stages {
		names = append(names, s.filter.Name())
	}
	return names
}

// Apply runs the chunk through every filter. An optional filter that fails
// is skipped and its bit is set in the returned mask.
func (p *Pipeline) Apply(data []byte) ([]byte, uint32, error) {
	var mask uint32
	out := data
	for i, s := range p.stages {
		next, err := s.filter.Apply(out)
		if err != nil {
			if s.flags&FlagOptional != 0 {
				mask |= 1 << uint(i) //nolint:gosec // G115: pipelines hold at most 32 filters
				continue
			}
			return nil, 0, fmt.Errorf("filter %s: %w", s.filter.Name(), err)
		}
		out = next
	}
	return out, mask, nil
}

// Remove reverses the pipeline, skipping filters whose mask bit is set.
func (p *Pipeline) Remove(data []byte, mask uint32) ([]byte, error) {
	out := data
	for i := len(p.stages) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 { //nolint:gosec // G115: i < 32
			continue
		}
		s := p.stages[i]
		next, err := s.filter.Remove(out)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", s.filter.Name(), err)
		}
		out = next
	}
	return out, nil
}
