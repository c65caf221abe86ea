package resource

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/vmbridge/errors"
)

// Kind enumerates the host value variants a handle can refer to.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindSymbol
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	default:
		return "unknown"
	}
}

// Symbol is a unique host value with an optional description.
// Two symbols are equal only if they are the same pointer.
type Symbol struct {
	desc      string
	described bool
}

// Description returns the symbol description and whether one was given.
func (s *Symbol) Description() (string, bool) {
	return s.desc, s.described
}

func (s *Symbol) String() string {
	return "Symbol(" + s.desc + ")"
}

// Value is a host value referenced by a handle. The zero Value is undefined.
type Value struct {
	sym  *Symbol
	str  string
	num  float64
	kind Kind
	b    bool
}

func Undefined() Value { return Value{} }

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func String(s string) Value { return Value{kind: KindString, str: s} }

// NewSymbol returns a fresh described symbol.
func NewSymbol(desc string) Value {
	return Value{kind: KindSymbol, sym: &Symbol{desc: desc, described: true}}
}

// NewAnonymousSymbol returns a fresh symbol without a description.
func NewAnonymousSymbol() Value {
	return Value{kind: KindSymbol, sym: &Symbol{}}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) IsSymbol() bool { return v.kind == KindSymbol }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsString returns the text payload.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsSymbol returns the symbol payload.
func (v Value) AsSymbol() (*Symbol, bool) {
	return v.sym, v.kind == KindSymbol
}

// Equal reports whether v and o hold the same value. Symbols compare by
// identity and NaN never equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindSymbol:
		return v.sym == o.sym
	default:
		return true
	}
}

// String renders the value the way a result slot is displayed:
// "undefined", "null", "true"/"false", shortest round-trip numbers,
// raw text, and "Symbol(desc)".
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.num)
	case KindString:
		return v.str
	case KindSymbol:
		return v.sym.String()
	default:
		return "undefined"
	}
}

// FormatNumber renders f using the shortest representation that round-trips,
// switching to exponent form outside [1e-6, 1e21).
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs < 1e21 && abs >= 1e-6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + exp[:1] + digits
}

// ValueOf converts a Go value into a host Value.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case *Symbol:
		if v == nil {
			return Null(), nil
		}
		return Value{kind: KindSymbol, sym: v}, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int8:
		return Number(float64(v)), nil
	case int16:
		return Number(float64(v)), nil
	case int32:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case uint:
		return Number(float64(v)), nil
	case uint8:
		return Number(float64(v)), nil
	case uint16:
		return Number(float64(v)), nil
	case uint32:
		return Number(float64(v)), nil
	case uint64:
		return Number(float64(v)), nil
	default:
		return Value{}, errors.Marshalling(errors.PhaseEncode, fmt.Sprintf("%T", x),
			"no host value representation")
	}
}
