package transcoder

import (
	"context"
	"fmt"

	"github.com/wippyai/vmbridge/memory"
)

// guestMemory is a growable buffer that reallocates on every growth.
type guestMemory struct {
	buf []byte
}

func (g *guestMemory) Buffer() []byte { return g.buf }

func (g *guestMemory) grow(n int) {
	next := make([]byte, len(g.buf)+n)
	copy(next, g.buf)
	g.buf = next
}

// bumpAllocator hands out 4-byte aligned buffers and grows memory on demand.
type bumpAllocator struct {
	mem    *guestMemory
	next   uint32
	limit  int // remaining successful allocations; negative is unlimited
	zero   bool
	fail   error
	allocs int
	frees  []Allocation
}

func newBump(size int) (*bumpAllocator, *memory.Accessor) {
	gm := &guestMemory{buf: make([]byte, size)}
	return &bumpAllocator{mem: gm, next: 8, limit: -1}, memory.NewAccessor(gm)
}

func (b *bumpAllocator) Alloc(_ context.Context, size uint32) (uint32, error) {
	if b.fail != nil {
		return 0, b.fail
	}
	if b.zero || b.limit == 0 {
		return 0, nil
	}
	if b.limit > 0 {
		b.limit--
	}
	ptr := (b.next + 3) &^ 3
	end := int(ptr + size)
	if end > len(b.mem.buf) {
		b.mem.grow(end - len(b.mem.buf) + 64)
	}
	b.next = ptr + size
	b.allocs++
	return ptr, nil
}

func (b *bumpAllocator) Free(_ context.Context, ptr, size uint32) error {
	if ptr == 0 {
		return fmt.Errorf("free of null pointer")
	}
	b.frees = append(b.frees, Allocation{Ptr: ptr, Size: size})
	return nil
}
