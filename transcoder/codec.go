package transcoder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
	"unsafe"

	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/resource"
)

// MaxStringSize bounds text lengths reported by the guest.
const MaxStringSize = 1 << 30

// Region is a (ptr, len) pair in guest memory. For text, Len counts bytes.
type Region struct {
	Ptr uint32
	Len uint32
}

// StringCodec moves UTF-8 text across the boundary. Encoding allocates the
// destination through the guest allocator; decoding copies out of guest
// memory so results never alias it.
type StringCodec struct {
	mem   Memory
	alloc Allocator
	// export names the guest allocator in errors.
	export string
}

func NewStringCodec(mem Memory, alloc Allocator, allocExport string) *StringCodec {
	return &StringCodec{mem: mem, alloc: alloc, export: allocExport}
}

// Encode copies s into a freshly allocated guest buffer. On success the
// buffer is recorded in list when list is non-nil; the caller owns it.
//
// Invalid UTF-8 fails with a marshalling error before anything is allocated.
// A failing allocator, or a zero pointer for a non-empty request, fails with
// a resource exhausted error.
func (c *StringCodec) Encode(ctx context.Context, s string, list *AllocationList) (Region, error) {
	if !utf8.ValidString(s) {
		return Region{}, errors.InvalidUTF8(errors.PhaseEncode, []byte(s))
	}
	if uint64(len(s)) > math.MaxUint32 {
		return Region{}, errors.ResourceExhausted(c.export, math.MaxUint32, nil)
	}
	n := uint32(len(s))

	ptr, err := c.alloc.Alloc(ctx, n)
	if err != nil {
		if errors.IsKind(err, errors.KindResourceExhausted) {
			return Region{}, err
		}
		return Region{}, errors.ResourceExhausted(c.export, n, err)
	}
	if ptr == 0 && n > 0 {
		return Region{}, errors.ResourceExhausted(c.export, n, nil)
	}
	if list != nil {
		list.Add(ptr, n)
	}

	// malloc may have grown memory; the write goes through a fresh view.
	if n > 0 {
		if err := c.mem.Write(ptr, unsafe.Slice(unsafe.StringData(s), n)); err != nil {
			return Region{Ptr: ptr, Len: n}, err
		}
	}
	return Region{Ptr: ptr, Len: n}, nil
}

// EncodeValue encodes a host value that must be text.
func (c *StringCodec) EncodeValue(ctx context.Context, v resource.Value, list *AllocationList) (Region, error) {
	s, ok := v.AsString()
	if !ok {
		return Region{}, errors.Marshalling(errors.PhaseEncode, v.Kind().String(),
			"only strings can be passed as text")
	}
	return c.Encode(ctx, s, list)
}

// Decode copies r out of guest memory and validates it as UTF-8.
func (c *StringCodec) Decode(r Region) (string, error) {
	if r.Len == 0 {
		return "", nil
	}
	if r.Len > MaxStringSize {
		return "", errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("string length %d exceeds limit %d", r.Len, MaxStringSize))
	}
	b, err := c.mem.Read(r.Ptr, r.Len)
	if err != nil {
		return "", err
	}
	if err := errors.ValidText(errors.PhaseDecode, b); err != nil {
		return "", err
	}
	// b is a private copy.
	return unsafe.String(&b[0], len(b)), nil
}

// DecodeLossy copies r like Decode but replaces invalid UTF-8 with U+FFFD
// instead of failing. Bounds and size limits still apply.
func (c *StringCodec) DecodeLossy(r Region) (string, error) {
	if r.Len == 0 {
		return "", nil
	}
	if r.Len > MaxStringSize {
		return "", errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("string length %d exceeds limit %d", r.Len, MaxStringSize))
	}
	b, err := c.mem.Read(r.Ptr, r.Len)
	if err != nil {
		return "", err
	}
	if utf8.Valid(b) {
		return unsafe.String(&b[0], len(b)), nil
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// DecodeAt decodes the text at (ptr, n) in guest memory.
func (c *StringCodec) DecodeAt(ptr, n uint32) (string, error) {
	return c.Decode(Region{Ptr: ptr, Len: n})
}
