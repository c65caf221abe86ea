package resource

import (
	"reflect"

	"github.com/wippyai/vmbridge/errors"
)

// Frame marks the stack depth at the start of a dispatch.
type Frame uint32

// Table maps handles to host values across two tiers: a per-call stack
// frame for transient values and a reference-counted slab for values the
// guest retains. A Table is owned by one instance and is not safe for
// concurrent use.
type Table struct {
	heap      slab
	stack     []Value
	observers []subscription
	nextSub   uint64
}

type subscription struct {
	obs Observer
	id  uint64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add stores v in the tier selected by life and returns its handle.
// Persistent values start with a refcount of one.
func (t *Table) Add(v Value, life Lifetime) Handle {
	var h Handle
	if life == Transient {
		h = StackHandle(uint32(len(t.stack)))
		t.stack = append(t.stack, v)
	} else {
		h = HeapHandle(t.heap.alloc(v))
	}
	t.notify(Event{Type: EventCreated, Handle: h, Value: v, Refs: t.refs(h)})
	return h
}

// Get resolves a handle without changing its refcount.
func (t *Table) Get(h Handle) (Value, error) {
	if h.IsStack() {
		idx := h.Index()
		if int(idx) >= len(t.stack) {
			return Value{}, errors.InvalidHandle(uint32(h), "stack index outside current frame")
		}
		return t.stack[idx], nil
	}
	sl, err := t.heap.lookup(h.Index())
	if err != nil {
		return Value{}, err
	}
	return sl.value, nil
}

// CloneRef returns a handle the caller owns. Stack values are promoted to a
// new heap slot; heap handles have their refcount bumped and are returned
// unchanged.
func (t *Table) CloneRef(h Handle) (Handle, error) {
	if h.IsStack() {
		v, err := t.Get(h)
		if err != nil {
			return 0, err
		}
		nh := HeapHandle(t.heap.alloc(v))
		t.notify(Event{Type: EventPromoted, Handle: nh, From: h, Value: v, Refs: 1})
		return nh, nil
	}
	sl, err := t.heap.lookup(h.Index())
	if err != nil {
		return 0, err
	}
	sl.refs++
	t.notify(Event{Type: EventCloned, Handle: h, Value: sl.value, Refs: sl.refs})
	return h, nil
}

// DropRef releases one reference. Dropping a stack handle is a no-op;
// stack values are discarded when their frame is popped.
func (t *Table) DropRef(h Handle) error {
	if h.IsStack() {
		return nil
	}
	v, refs, freed, err := t.heap.release(h.Index())
	if err != nil {
		return err
	}
	t.notify(Event{Type: EventDropped, Handle: h, Value: v, Refs: refs})
	if freed {
		t.notify(Event{Type: EventFreed, Handle: h, Value: v})
	}
	return nil
}

// Take resolves h and releases the reference the caller held.
// Stack handles are resolved only.
func (t *Table) Take(h Handle) (Value, error) {
	v, err := t.Get(h)
	if err != nil {
		return Value{}, err
	}
	if err := t.DropRef(h); err != nil {
		return Value{}, err
	}
	return v, nil
}

// PushFrame opens a stack frame and returns its mark.
func (t *Table) PushFrame() Frame {
	return Frame(len(t.stack))
}

// PopFrame discards every stack value added since f in one step.
func (t *Table) PopFrame(f Frame) {
	if int(f) >= len(t.stack) {
		return
	}
	clear(t.stack[f:])
	t.stack = t.stack[:f]
}

// StackLen returns the number of values in the stack tier.
func (t *Table) StackLen() int {
	return len(t.stack)
}

// Live returns the number of live heap slots.
func (t *Table) Live() int {
	return t.heap.live
}

// FreeHead returns the index the next heap allocation will use.
func (t *Table) FreeHead() uint32 {
	return t.heap.head
}

// Refcount returns the refcount of a heap handle.
func (t *Table) Refcount(h Handle) (uint32, error) {
	if h.IsStack() {
		if _, err := t.Get(h); err != nil {
			return 0, err
		}
		return 0, nil
	}
	sl, err := t.heap.lookup(h.Index())
	if err != nil {
		return 0, err
	}
	return sl.refs, nil
}

// Reset drops every value in both tiers without notifying observers.
func (t *Table) Reset() {
	clear(t.stack)
	t.stack = t.stack[:0]
	t.heap.reset()
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it. Calling the returned function more than once is a no-op.
func (t *Table) Subscribe(o Observer) (cancel func()) {
	t.nextSub++
	id := t.nextSub
	t.observers = append(t.observers, subscription{obs: o, id: id})
	return func() { t.remove(func(s subscription) bool { return s.id == id }) }
}

// Unsubscribe removes the first subscription of o. Observers whose dynamic
// type is not comparable, such as ObserverFunc, are never matched; remove
// them with the function Subscribe returned.
func (t *Table) Unsubscribe(o Observer) {
	typ := reflect.TypeOf(o)
	if typ == nil || !typ.Comparable() {
		return
	}
	t.remove(func(s subscription) bool {
		return reflect.TypeOf(s.obs) == typ && s.obs == o
	})
}

func (t *Table) remove(match func(subscription) bool) {
	for i, s := range t.observers {
		if match(s) {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) refs(h Handle) uint32 {
	if h.IsStack() {
		return 0
	}
	return t.heap.slots[h.Index()].refs
}

func (t *Table) notify(e Event) {
	for _, s := range t.observers {
		s.obs.OnHandleEvent(e)
	}
}
