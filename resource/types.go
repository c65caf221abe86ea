package resource

import "strconv"

// Handle is an opaque reference to a host value, as seen by the guest.
//
// The low bit is the tier tag and is part of the handle's contract:
//
//	tag 1: stack handle, index h>>1 into the current call frame
//	tag 0: heap handle, index h>>1 into the reference-counted slab
//
// Stack and heap index spaces never alias. A stack handle is only valid until
// the dispatch that created it returns.
type Handle uint32

const tagStack Handle = 1

// StackHandle returns the stack-tier handle for frame index i.
func StackHandle(i uint32) Handle {
	return Handle(i)<<1 | tagStack
}

// HeapHandle returns the heap-tier handle for slab index i.
func HeapHandle(i uint32) Handle {
	return Handle(i) << 1
}

// IsStack reports whether h addresses the per-call stack frame.
func (h Handle) IsStack() bool {
	return h&tagStack == tagStack
}

// Index returns the tier-local index.
func (h Handle) Index() uint32 {
	return uint32(h >> 1)
}

func (h Handle) String() string {
	if h.IsStack() {
		return "stack#" + strconv.FormatUint(uint64(h.Index()), 10)
	}
	return "heap#" + strconv.FormatUint(uint64(h.Index()), 10)
}

// Lifetime selects the tier a new value is stored in.
type Lifetime uint8

const (
	// Transient values live in the current call frame and are discarded in
	// bulk when the dispatch returns.
	Transient Lifetime = iota
	// Persistent values live in the slab until their refcount reaches zero.
	Persistent
)

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventCloned
	EventPromoted
	EventDropped
	EventFreed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventCloned:
		return "cloned"
	case EventPromoted:
		return "promoted"
	case EventDropped:
		return "dropped"
	case EventFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// Event describes a handle lifecycle change.
// For EventPromoted, From is the stack handle and Handle the new heap handle.
type Event struct {
	Value  Value
	Handle Handle
	From   Handle
	Refs   uint32
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }
