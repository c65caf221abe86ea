package memory

import (
	"encoding/binary"

	vmbridge "github.com/wippyai/vmbridge"
	"github.com/wippyai/vmbridge/errors"
)

var (
	_ vmbridge.Memory      = (*Accessor)(nil)
	_ vmbridge.MemorySizer = (*Accessor)(nil)
)

// Source exposes the guest's current linear memory buffer. The returned slice
// aliases guest memory and is replaced when the guest grows memory.
type Source interface {
	Buffer() []byte
}

// Accessor caches one view per element width over a Source and rebuilds them
// when the underlying buffer changes identity.
// Not safe for concurrent use.
type Accessor struct {
	src        Source
	bytes      []byte
	words      Words
	wordsOK    bool
	generation uint64
}

// NewAccessor creates an accessor over src.
func NewAccessor(src Source) *Accessor {
	return &Accessor{src: src}
}

// Bytes returns the byte view of the current buffer.
// The slice must not be held across a call that may grow guest memory.
func (a *Accessor) Bytes() []byte {
	a.refresh()
	return a.bytes
}

// Words returns the little-endian 32-bit view of the current buffer.
func (a *Accessor) Words() Words {
	a.refresh()
	if !a.wordsOK {
		a.words = Words{b: a.bytes}
		a.wordsOK = true
	}
	return a.words
}

// Generation increments each time the views are rebuilt.
func (a *Accessor) Generation() uint64 {
	a.refresh()
	return a.generation
}

// Size returns the current buffer length in bytes.
func (a *Accessor) Size() uint32 {
	return uint32(len(a.Bytes()))
}

func (a *Accessor) refresh() {
	cur := a.src.Buffer()
	if sameBuffer(a.bytes, cur) {
		return
	}
	a.bytes = cur
	a.words = Words{}
	a.wordsOK = false
	a.generation++
}

// sameBuffer compares backing array start and length.
func sameBuffer(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// Slice returns a view of n bytes at ptr that aliases guest memory.
func (a *Accessor) Slice(ptr, n uint32) ([]byte, error) {
	buf := a.Bytes()
	if err := checkRange(ptr, n, len(buf)); err != nil {
		return nil, err
	}
	return buf[ptr : ptr+n : ptr+n], nil
}

// Read copies n bytes at ptr into a new host-owned slice.
func (a *Accessor) Read(ptr, n uint32) ([]byte, error) {
	view, err := a.Slice(ptr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, view)
	return out, nil
}

// Write copies data into guest memory at ptr.
func (a *Accessor) Write(ptr uint32, data []byte) error {
	view, err := a.Slice(ptr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(view, data)
	return nil
}

// ReadU8 reads one byte.
func (a *Accessor) ReadU8(ptr uint32) (uint8, error) {
	view, err := a.Slice(ptr, 1)
	if err != nil {
		return 0, err
	}
	return view[0], nil
}

// WriteU8 writes one byte.
func (a *Accessor) WriteU8(ptr uint32, v uint8) error {
	view, err := a.Slice(ptr, 1)
	if err != nil {
		return err
	}
	view[0] = v
	return nil
}

// ReadU32 reads a little-endian u32 at a byte offset.
func (a *Accessor) ReadU32(ptr uint32) (uint32, error) {
	view, err := a.Slice(ptr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(view), nil
}

// WriteU32 writes a little-endian u32 at a byte offset.
func (a *Accessor) WriteU32(ptr uint32, v uint32) error {
	view, err := a.Slice(ptr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(view, v)
	return nil
}

func checkRange(ptr, n uint32, size int) error {
	if uint64(ptr)+uint64(n) > uint64(size) {
		return errors.OutOfBounds(uint64(ptr), uint64(n), size)
	}
	return nil
}
