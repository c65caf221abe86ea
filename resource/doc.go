// Package resource provides the handle table that lets a guest module refer
// to host values.
//
// Handles are 32-bit integers whose low bit selects a tier:
//
//	h&1 == 1  stack handle, index h>>1 into the current call frame
//	h&1 == 0  heap handle, index h>>1 into the reference-counted slab
//
// # Tiers
//
// Transient values (dispatch arguments that are not text) go on the stack.
// The dispatcher marks the frame before a call and pops it afterwards, so
// stack values never outlive the call that created them:
//
//	mark := table.PushFrame()
//	defer table.PopFrame(mark)
//	h := table.Add(resource.Number(1), resource.Transient)
//
// Persistent values live in a slab with an embedded LIFO free list. They
// start with a refcount of one and are freed when DropRef brings the count
// to zero:
//
//	h := table.StringNew("hello")   // refs=1
//	table.CloneRef(h)               // refs=2
//	table.DropRef(h)                // refs=1
//	table.DropRef(h)                // slot freed, reused by the next Add
//
// CloneRef on a stack handle promotes the value into a new heap slot and
// returns that heap handle. DropRef on a stack handle does nothing.
//
// # Observers
//
// Observers receive created, cloned, promoted, dropped and freed events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %s refs=%d", e.Type, e.Handle, e.Refs)
//	}))
//
// # Concurrency
//
// A Table belongs to one instance and is not safe for concurrent use.
// Instances serialize dispatch, which also serializes table access.
package resource
