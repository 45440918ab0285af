package filter

// Shuffle is HDF5 filter 2. It regroups the bytes of fixed-size elements so
// that byte 0 of every element comes first, then byte 1, and so on, which
// makes slowly varying integers compress far better.
type Shuffle struct {
	size int
}

// NewShuffle returns a shuffle filter for elements of size bytes.
func NewShuffle(size int) *Shuffle {
	return &Shuffle{size: size}
}

// ID implements Filter.
func (f *Shuffle) ID() ID { return IDShuffle }

// Name implements Filter.
func (f *Shuffle) Name() string { return "shuffle" }

// ClientData implements Filter.
func (f *Shuffle) ClientData() []uint32 {
	return []uint32{uint32(f.size)} //nolint:gosec // G115: element sizes are small
}

// Apply shuffles data. Trailing bytes that do not form a whole element are
// copied unchanged, as libhdf5 does.
func (f *Shuffle) Apply(data []byte) ([]byte, error) {
	if f.size <= 1 || len(data) < f.size {
		return data, nil
	}
	n := len(data) / f.size
	out := make([]byte, len(data))
	for b := 0; b < f.size; b++ {
		for e := 0; e < n; e++ {
			out[b*n+e] = data[e*f.size+b]
		}
	}
	copy(out[n*f.size:], data[n*f.size:])
	return out, nil
}

// Remove reverses Apply.
func (f *Shuffle) Remove(data []byte) ([]byte, error) {
	if f.size <= 1 || len(data) < f.size {
		return data, nil
	}
	n := len(data) / f.size
	out := make([]byte, len(data))
	for b := 0; b < f.size; b++ {
		for e := 0; e < n; e++ {
			out[e*f.size+b] = data[b*n+e]
		}
	}
	copy(out[n*f.size:], data[n*f.size:])
	return out, nil
}
