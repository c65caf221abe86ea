package transcoder

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/memory"
	"github.com/wippyai/vmbridge/resource"
)

// MaxHandleCount bounds handle arrays reported by the guest.
const MaxHandleCount = 1 << 24

type wordViewer interface {
	Words() memory.Words
}

// DecodeHandles reads r.Len little-endian u32 handles starting at r.Ptr.
// The array must be 4-byte aligned.
func DecodeHandles(mem Memory, r Region) ([]resource.Handle, error) {
	if r.Len == 0 {
		return []resource.Handle{}, nil
	}
	if r.Ptr%4 != 0 {
		return nil, errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("handle array at %#x is not 4-byte aligned", r.Ptr))
	}
	if r.Len > MaxHandleCount {
		return nil, errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("handle count %d exceeds limit %d", r.Len, MaxHandleCount))
	}

	out := make([]resource.Handle, r.Len)
	if wv, ok := mem.(wordViewer); ok {
		words, err := wv.Words().Copy(r.Ptr/4, r.Len)
		if err != nil {
			return nil, err
		}
		for i, w := range words {
			out[i] = resource.Handle(w)
		}
		return out, nil
	}

	b, err := mem.Read(r.Ptr, r.Len*4)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = resource.Handle(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
