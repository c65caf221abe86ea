package resource

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/vmbridge/errors"
)

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined(), "undefined"},
		{Value{}, "undefined"},
		{Null(), "null"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{String(""), ""},
		{String("text"), "text"},
		{NewSymbol("id"), "Symbol(id)"},
		{Number(3.5), "3.5"},
		{Number(42), "42"},
		{Number(-0.0), "0"},
		{Number(0.1), "0.1"},
		{Number(1e21), "1e+21"},
		{Number(123456789012345680000), "123456789012345680000"},
		{Number(1.5e-7), "1.5e-7"},
		{Number(0.000001), "0.000001"},
		{Number(math.NaN()), "NaN"},
		{Number(math.Inf(1)), "Infinity"},
		{Number(math.Inf(-1)), "-Infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Null().Equal(Null()))
	assert.True(t, Undefined().Equal(Value{}))
	assert.False(t, Null().Equal(Undefined()))
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("1").Equal(Number(1)))
	assert.False(t, Number(math.NaN()).Equal(Number(math.NaN())))
	assert.False(t, Bool(true).Equal(Bool(false)))
}

func TestValueOf(t *testing.T) {
	sym := &Symbol{desc: "s", described: true}

	tests := []struct {
		in   any
		kind Kind
		text string
	}{
		{nil, KindNull, "null"},
		{"abc", KindString, "abc"},
		{true, KindBool, "true"},
		{7, KindNumber, "7"},
		{int64(-2), KindNumber, "-2"},
		{uint8(9), KindNumber, "9"},
		{float32(0.5), KindNumber, "0.5"},
		{2.25, KindNumber, "2.25"},
		{Null(), KindNull, "null"},
		{sym, KindSymbol, "Symbol(s)"},
	}

	for _, tt := range tests {
		v, err := ValueOf(tt.in)
		require.NoError(t, err, "%T", tt.in)
		assert.Equal(t, tt.kind, v.Kind(), "%T", tt.in)
		assert.Equal(t, tt.text, v.String(), "%T", tt.in)
	}
}

func TestValueOf_Unsupported(t *testing.T) {
	_, err := ValueOf([]int{1})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMarshalling))

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "[]int", e.GoType)
}
