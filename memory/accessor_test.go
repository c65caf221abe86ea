package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/vmbridge/errors"
)

// growable simulates guest memory whose backing array moves on growth.
type growable struct {
	buf   []byte
	reads int
}

func (g *growable) Buffer() []byte {
	g.reads++
	return g.buf
}

func (g *growable) grow(pages int) {
	next := make([]byte, len(g.buf)+pages*65536)
	copy(next, g.buf)
	g.buf = next
}

func newGrowable(pages int) *growable {
	return &growable{buf: make([]byte, pages*65536)}
}

func TestAccessor_ViewFreshnessAfterGrowth(t *testing.T) {
	src := newGrowable(1)
	acc := NewAccessor(src)

	before := acc.Bytes()
	gen := acc.Generation()
	require.Len(t, before, 65536)

	src.grow(1)
	// Write through the new buffer only; a stale view would not see it.
	src.buf[70000] = 0xAB

	after := acc.Bytes()
	require.Len(t, after, 2*65536)
	assert.Equal(t, byte(0xAB), after[70000])
	assert.Greater(t, acc.Generation(), gen)

	v, err := acc.ReadU8(70000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), v)
}

func TestAccessor_ViewRebuiltWhenBufferMovesWithoutResize(t *testing.T) {
	src := newGrowable(1)
	acc := NewAccessor(src)
	_ = acc.Bytes()

	moved := make([]byte, len(src.buf))
	moved[8] = 7
	src.buf = moved

	v, err := acc.ReadU8(8)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), v)
}

func TestAccessor_CachedViewReusedWhileStable(t *testing.T) {
	src := newGrowable(1)
	acc := NewAccessor(src)

	w1 := acc.Words()
	gen := acc.Generation()
	w2 := acc.Words()

	assert.Equal(t, gen, acc.Generation())
	assert.Equal(t, w1.Len(), w2.Len())
}

func TestAccessor_WordsRebuiltAfterGrowth(t *testing.T) {
	src := newGrowable(1)
	acc := NewAccessor(src)
	assert.Equal(t, uint32(16384), acc.Words().Len())

	src.grow(2)
	require.NoError(t, acc.WriteU32(3*65536-4, 0xDEADBEEF))

	w := acc.Words()
	assert.Equal(t, uint32(3*16384), w.Len())
	v, err := w.At(3*16384 - 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestAccessor_ReadWrite(t *testing.T) {
	acc := NewAccessor(newGrowable(1))

	require.NoError(t, acc.Write(100, []byte("hello")))
	got, err := acc.Read(100, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	// Read returns a copy.
	got[0] = 'j'
	again, err := acc.Read(100, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again)

	require.NoError(t, acc.WriteU32(200, 0x01020304))
	b, err := acc.Read(200, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 3, 2, 1}, b, "little endian")

	v, err := acc.ReadU32(200)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v)
}

func TestAccessor_OutOfBounds(t *testing.T) {
	acc := NewAccessor(newGrowable(1))

	tests := []struct {
		name string
		fn   func() error
	}{
		{"read past end", func() error { _, err := acc.Read(65530, 10); return err }},
		{"read u32 straddling end", func() error { _, err := acc.ReadU32(65534); return err }},
		{"write past end", func() error { return acc.Write(65535, []byte{1, 2}) }},
		{"u8 at size", func() error { _, err := acc.ReadU8(65536); return err }},
		{"overflowing length", func() error { _, err := acc.Slice(10, 0xFFFFFFFF); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindOutOfBounds), "got %v", err)
		})
	}
}

func TestAccessor_ZeroLengthAtEnd(t *testing.T) {
	acc := NewAccessor(newGrowable(1))

	b, err := acc.Read(65536, 0)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestWords(t *testing.T) {
	acc := NewAccessor(&growable{buf: make([]byte, 16)})
	w := acc.Words()

	require.NoError(t, w.Set(0, 10))
	require.NoError(t, w.Set(3, 40))
	got, err := w.Copy(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 0, 0, 40}, got)

	_, err = w.At(4)
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))
	_, err = w.Copy(2, 3)
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))
}
