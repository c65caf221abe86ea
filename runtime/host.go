package runtime

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/resource"
	"github.com/wippyai/vmbridge/transcoder"
)

// Import names the stack VM links against.
const (
	ImportConsoleLog   = "__wbg_s_console_log"
	ImportConsoleWarn  = "__wbg_s_console_warn"
	ImportCloneRef     = "__wbindgen_object_clone_ref"
	ImportDropRef      = "__wbindgen_object_drop_ref"
	ImportStringNew    = "__wbindgen_string_new"
	ImportStringGet    = "__wbindgen_string_get"
	ImportNumberNew    = "__wbindgen_number_new"
	ImportNumberGet    = "__wbindgen_number_get"
	ImportBooleanNew   = "__wbindgen_boolean_new"
	ImportBooleanGet   = "__wbindgen_boolean_get"
	ImportNullNew      = "__wbindgen_null_new"
	ImportUndefinedNew = "__wbindgen_undefined_new"
	ImportSymbolNew    = "__wbindgen_symbol_new"
	ImportIsNull       = "__wbindgen_is_null"
	ImportIsUndefined  = "__wbindgen_is_undefined"
	ImportIsSymbol     = "__wbindgen_is_symbol"
	ImportThrow        = "__wbindgen_throw"
)

var (
	i32x1 = []engine.ValueType{engine.I32}
	i32x2 = []engine.ValueType{engine.I32, engine.I32}
	f64x1 = []engine.ValueType{engine.F64}
)

// hostFuncs returns the import set bound to i. Every import that fails
// records its error on the instance before trapping, so the dispatcher
// reports the original cause rather than the backend's trap.
func (i *Instance) hostFuncs() []engine.HostFunc {
	funcs := []engine.HostFunc{
		{Name: ImportConsoleLog, Params: i32x2, Fn: i.consoleLog},
		{Name: ImportConsoleWarn, Params: i32x2, Fn: i.consoleWarn},
		{Name: ImportCloneRef, Params: i32x1, Results: i32x1, Fn: i.cloneRef},
		{Name: ImportDropRef, Params: i32x1, Fn: i.dropRef},
		{Name: ImportStringNew, Params: i32x2, Results: i32x1, Fn: i.stringNew},
		{Name: ImportStringGet, Params: i32x2, Results: i32x1, Fn: i.stringGet},
		{Name: ImportNumberNew, Params: f64x1, Results: i32x1, Fn: i.numberNew},
		{Name: ImportNumberGet, Params: i32x2, Results: f64x1, Fn: i.numberGet},
		{Name: ImportBooleanNew, Params: i32x1, Results: i32x1, Fn: i.booleanNew},
		{Name: ImportBooleanGet, Params: i32x1, Results: i32x1, Fn: i.booleanGet},
		{Name: ImportNullNew, Results: i32x1, Fn: i.nullNew},
		{Name: ImportUndefinedNew, Results: i32x1, Fn: i.undefinedNew},
		{Name: ImportSymbolNew, Params: i32x2, Results: i32x1, Fn: i.symbolNew},
		{Name: ImportIsNull, Params: i32x1, Results: i32x1, Fn: i.predicate(i.table.IsNull)},
		{Name: ImportIsUndefined, Params: i32x1, Results: i32x1, Fn: i.predicate(i.table.IsUndefined)},
		{Name: ImportIsSymbol, Params: i32x1, Results: i32x1, Fn: i.predicate(i.table.IsSymbol)},
		{Name: ImportThrow, Params: i32x2, Fn: i.throw},
	}
	for k := range funcs {
		funcs[k].Fn = i.guard(funcs[k].Fn)
	}
	return funcs
}

func (i *Instance) guard(fn func(context.Context, []uint64) error) func(context.Context, []uint64) error {
	return func(ctx context.Context, stack []uint64) error {
		if i.mem == nil {
			err := errors.NotInitialized(errors.PhaseHost, "instance memory")
			i.fail(err)
			return err
		}
		if err := fn(ctx, stack); err != nil {
			i.fail(err)
			return err
		}
		return nil
	}
}

func (i *Instance) text(stack []uint64) (string, error) {
	return i.codec.DecodeAt(uint32(stack[0]), uint32(stack[1]))
}

func handleArg(stack []uint64, k int) resource.Handle {
	return resource.Handle(uint32(stack[k]))
}

// logText decodes a console message. Invalid UTF-8 is replaced rather than
// failing the guest call.
func (i *Instance) logText(stack []uint64) (string, error) {
	return i.codec.DecodeLossy(transcoder.Region{Ptr: uint32(stack[0]), Len: uint32(stack[1])})
}

func (i *Instance) consoleLog(_ context.Context, stack []uint64) error {
	msg, err := i.logText(stack)
	if err != nil {
		return err
	}
	i.log.Info(msg, zap.String("source", "guest"))
	return nil
}

func (i *Instance) consoleWarn(_ context.Context, stack []uint64) error {
	msg, err := i.logText(stack)
	if err != nil {
		return err
	}
	i.log.Warn(msg, zap.String("source", "guest"))
	return nil
}

func (i *Instance) cloneRef(_ context.Context, stack []uint64) error {
	h, err := i.table.CloneRef(handleArg(stack, 0))
	if err != nil {
		return err
	}
	stack[0] = uint64(h)
	return nil
}

func (i *Instance) dropRef(_ context.Context, stack []uint64) error {
	return i.table.DropRef(handleArg(stack, 0))
}

func (i *Instance) stringNew(_ context.Context, stack []uint64) error {
	s, err := i.text(stack)
	if err != nil {
		return err
	}
	stack[0] = uint64(i.table.StringNew(s))
	return nil
}

// stringGet copies a host string into a fresh guest buffer the guest owns.
// It returns 0 without allocating when the value is not a string.
func (i *Instance) stringGet(ctx context.Context, stack []uint64) error {
	h, lenPtr := handleArg(stack, 0), uint32(stack[1])
	s, ok, err := i.table.StringGet(h)
	if err != nil {
		return err
	}
	if !ok {
		stack[0] = 0
		return nil
	}
	r, err := i.codec.Encode(ctx, s, nil)
	if err != nil {
		return err
	}
	if err := i.mem.WriteU32(lenPtr, r.Len); err != nil {
		// The guest never learns about the buffer, so it is released here.
		if ferr := i.alloc.Free(ctx, r.Ptr, r.Len); ferr != nil {
			i.log.Warn("free string_get buffer", zap.Error(ferr))
		}
		return err
	}
	stack[0] = uint64(r.Ptr)
	return nil
}

func (i *Instance) numberNew(_ context.Context, stack []uint64) error {
	stack[0] = uint64(i.table.NumberNew(math.Float64frombits(stack[0])))
	return nil
}

// numberGet returns the number, or writes 1 to the invalid flag byte and
// returns 0 when the value is not a number.
func (i *Instance) numberGet(_ context.Context, stack []uint64) error {
	h, invalidPtr := handleArg(stack, 0), uint32(stack[1])
	f, ok, err := i.table.NumberGet(h)
	if err != nil {
		return err
	}
	if !ok {
		if err := i.mem.WriteU8(invalidPtr, 1); err != nil {
			return err
		}
		f = 0
	}
	stack[0] = math.Float64bits(f)
	return nil
}

func (i *Instance) booleanNew(_ context.Context, stack []uint64) error {
	stack[0] = uint64(i.table.BooleanNew(uint32(stack[0])))
	return nil
}

func (i *Instance) booleanGet(_ context.Context, stack []uint64) error {
	v, err := i.table.BooleanGet(handleArg(stack, 0))
	if err != nil {
		return err
	}
	stack[0] = uint64(v)
	return nil
}

func (i *Instance) nullNew(_ context.Context, stack []uint64) error {
	stack[0] = uint64(i.table.NullNew())
	return nil
}

func (i *Instance) undefinedNew(_ context.Context, stack []uint64) error {
	stack[0] = uint64(i.table.UndefinedNew())
	return nil
}

// symbolNew creates a symbol; a null pointer means no description.
func (i *Instance) symbolNew(_ context.Context, stack []uint64) error {
	if uint32(stack[0]) == 0 {
		stack[0] = uint64(i.table.SymbolNew("", false))
		return nil
	}
	desc, err := i.text(stack)
	if err != nil {
		return err
	}
	stack[0] = uint64(i.table.SymbolNew(desc, true))
	return nil
}

func (i *Instance) predicate(is func(resource.Handle) (bool, error)) func(context.Context, []uint64) error {
	return func(_ context.Context, stack []uint64) error {
		ok, err := is(handleArg(stack, 0))
		if err != nil {
			return err
		}
		stack[0] = 0
		if ok {
			stack[0] = 1
		}
		return nil
	}
}

// throw aborts the current guest call with the guest's message.
func (i *Instance) throw(_ context.Context, stack []uint64) error {
	msg, err := i.text(stack)
	if err != nil {
		return err
	}
	return errors.Boundary(msg)
}
