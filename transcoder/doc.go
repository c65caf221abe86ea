// Package transcoder converts values between host representations and guest
// linear memory.
//
// # Text
//
// StringCodec encodes host strings as UTF-8 into buffers obtained from the
// guest allocator and decodes (ptr, len) regions back into host strings:
//
//	codec := transcoder.NewStringCodec(mem, alloc, "__wbindgen_malloc")
//	list := transcoder.NewAllocationList()
//	defer list.FreeAndRelease(ctx, alloc)
//
//	r, err := codec.Encode(ctx, "hello", list)
//	s, err := codec.Decode(r)
//
// Only valid UTF-8 crosses in either direction. Decoding always copies, so
// the returned string stays valid after the guest frees or reuses the buffer.
//
// # Handle Arrays
//
// DecodeHandles reads a 4-byte aligned array of little-endian u32 handles,
// the layout a guest uses to return a list of host values.
//
// # Ownership
//
// Every buffer the host allocates for a call is recorded in an
// AllocationList and freed exactly once when the call ends, whether it
// succeeded or failed.
package transcoder
