package transcoder

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/resource"
)

// byteMemory implements Memory without a word view.
type byteMemory struct {
	b []byte
}

func (m *byteMemory) Read(off, n uint32) ([]byte, error) {
	if uint64(off)+uint64(n) > uint64(len(m.b)) {
		return nil, errors.OutOfBounds(uint64(off), uint64(n), len(m.b))
	}
	return append([]byte(nil), m.b[off:off+n]...), nil
}
func (m *byteMemory) Write(off uint32, d []byte) error { copy(m.b[off:], d); return nil }
func (m *byteMemory) ReadU8(off uint32) (uint8, error)  { return m.b[off], nil }
func (m *byteMemory) ReadU32(off uint32) (uint32, error) {
	return binary.LittleEndian.Uint32(m.b[off:]), nil
}
func (m *byteMemory) WriteU8(off uint32, v uint8) error { m.b[off] = v; return nil }
func (m *byteMemory) WriteU32(off uint32, v uint32) error {
	binary.LittleEndian.PutUint32(m.b[off:], v)
	return nil
}

func TestDecodeHandles(t *testing.T) {
	_, acc := newBump(64)
	raw := &byteMemory{b: make([]byte, 64)}

	for _, mem := range []Memory{acc, raw} {
		for i, h := range []uint32{2, 7, 0x10} {
			require.NoError(t, mem.WriteU32(16+uint32(i)*4, h))
		}

		got, err := DecodeHandles(mem, Region{Ptr: 16, Len: 3})
		require.NoError(t, err)
		assert.Equal(t, []resource.Handle{2, 7, 0x10}, got)

		// Results are copies.
		require.NoError(t, mem.WriteU32(16, 99))
		assert.Equal(t, resource.Handle(2), got[0])
	}
}

func TestDecodeHandles_Errors(t *testing.T) {
	_, mem := newBump(64)

	got, err := DecodeHandles(mem, Region{Ptr: 3, Len: 0})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DecodeHandles(mem, Region{Ptr: 6, Len: 1})
	assert.True(t, errors.IsKind(err, errors.KindInvalidData))

	_, err = DecodeHandles(mem, Region{Ptr: 60, Len: 2})
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))

	_, err = DecodeHandles(mem, Region{Ptr: 0, Len: MaxHandleCount + 1})
	assert.True(t, errors.IsKind(err, errors.KindInvalidData))
}
