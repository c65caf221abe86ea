package resource

import "github.com/wippyai/vmbridge/errors"

type slotState uint8

const (
	slotFree slotState = iota
	slotLive
)

// slot is one persistent-tier entry. A free slot stores the index of the
// next free slot; a live slot stores its value and refcount. The state tag
// keeps the two apart, so a stored value can never be mistaken for a link.
type slot struct {
	value Value
	refs  uint32
	next  uint32
	state slotState
}

// slab is a growable array of slots with an embedded LIFO free list.
// head == len(slots) means the free list is empty.
type slab struct {
	slots []slot
	head  uint32
	live  int
}

func (s *slab) alloc(v Value) uint32 {
	n := uint32(len(s.slots))
	if s.head == n {
		s.slots = append(s.slots, slot{next: n + 1})
	}
	idx := s.head
	sl := &s.slots[idx]
	s.head = sl.next
	*sl = slot{value: v, refs: 1, state: slotLive}
	s.live++
	return idx
}

func (s *slab) lookup(idx uint32) (*slot, error) {
	if int(idx) >= len(s.slots) {
		return nil, errors.InvalidHandle(uint32(HeapHandle(idx)), "heap index out of range")
	}
	sl := &s.slots[idx]
	if sl.state != slotLive {
		return nil, errors.InvalidHandle(uint32(HeapHandle(idx)), "heap slot is free")
	}
	return sl, nil
}

// release decrements the refcount and frees the slot at zero.
// It returns the released value and whether the slot was freed.
func (s *slab) release(idx uint32) (Value, uint32, bool, error) {
	sl, err := s.lookup(idx)
	if err != nil {
		return Value{}, 0, false, err
	}
	sl.refs--
	if sl.refs > 0 {
		return sl.value, sl.refs, false, nil
	}
	v := sl.value
	*sl = slot{next: s.head, state: slotFree}
	s.head = idx
	s.live--
	return v, 0, true, nil
}

func (s *slab) reset() {
	s.slots = nil
	s.head = 0
	s.live = 0
}
