package transcoder

import (
	"context"
	"sync"

	vmbridge "github.com/wippyai/vmbridge"
)

type Memory = vmbridge.Memory
type Allocator = vmbridge.Allocator

// Allocation is one guest buffer obtained through the allocator.
type Allocation struct {
	Ptr  uint32
	Size uint32
}

// AllocationList records the guest buffers a dispatch owns so they can be
// released on every exit path.
type AllocationList struct {
	allocations []Allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 4)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 64

// Release returns the list to the pool. The list is invalid afterwards.
func (al *AllocationList) Release() {
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

// FreeAndRelease frees every recorded buffer and returns the list to the pool.
func (al *AllocationList) FreeAndRelease(ctx context.Context, allocator Allocator) error {
	err := al.Free(ctx, allocator)
	al.Release()
	return err
}

func (al *AllocationList) Add(ptr, size uint32) {
	al.allocations = append(al.allocations, Allocation{Ptr: ptr, Size: size})
}

// Free releases every recorded buffer once and empties the list. All buffers
// are attempted; the first failure is returned.
func (al *AllocationList) Free(ctx context.Context, allocator Allocator) error {
	if allocator == nil {
		return nil
	}
	var first error
	for _, a := range al.allocations {
		if a.Ptr == 0 {
			continue
		}
		if err := allocator.Free(ctx, a.Ptr, a.Size); err != nil && first == nil {
			first = err
		}
	}
	al.Reset()
	return first
}

func (al *AllocationList) Reset() {
	clear(al.allocations)
	al.allocations = al.allocations[:0]
}

func (al *AllocationList) Count() int {
	return len(al.allocations)
}

// Allocations returns the recorded buffers.
func (al *AllocationList) Allocations() []Allocation {
	return al.allocations
}
