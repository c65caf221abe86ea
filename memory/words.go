package memory

import (
	"encoding/binary"

	"github.com/wippyai/vmbridge/errors"
)

// Words is a little-endian u32 view indexed in 4-byte units, so word i covers
// bytes [4i, 4i+4).
type Words struct {
	b []byte
}

// Len returns the number of whole words in the view.
func (w Words) Len() uint32 {
	return uint32(len(w.b) / 4)
}

// At returns word i.
func (w Words) At(i uint32) (uint32, error) {
	if uint64(i) >= uint64(w.Len()) {
		return 0, errors.OutOfBounds(uint64(i)*4, 4, len(w.b))
	}
	return binary.LittleEndian.Uint32(w.b[i*4:]), nil
}

// Set writes word i.
func (w Words) Set(i, v uint32) error {
	if uint64(i) >= uint64(w.Len()) {
		return errors.OutOfBounds(uint64(i)*4, 4, len(w.b))
	}
	binary.LittleEndian.PutUint32(w.b[i*4:], v)
	return nil
}

// Copy returns n words starting at word i as a host-owned slice.
func (w Words) Copy(i, n uint32) ([]uint32, error) {
	if uint64(i)+uint64(n) > uint64(w.Len()) {
		return nil, errors.OutOfBounds(uint64(i)*4, uint64(n)*4, len(w.b))
	}
	out := make([]uint32, n)
	for k := range out {
		out[k] = binary.LittleEndian.Uint32(w.b[(i+uint32(k))*4:])
	}
	return out, nil
}
