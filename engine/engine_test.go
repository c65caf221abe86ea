package engine_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/engine/enginetest"
	"github.com/wippyai/vmbridge/errors"
)

// (module (memory (export "memory") 1))
var memoryOnlyWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min=1
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
}

// recorder provides the guest imports with a trivial handle counter.
type recorder struct {
	next    uint64
	logged  []string
	thrown  []string
	dropped []uint64
	inst    engine.Instance
}

func (r *recorder) text(stack []uint64) string {
	buf := r.inst.Memory().Buffer()
	ptr, n := uint32(stack[0]), uint32(stack[1])
	return string(buf[ptr : ptr+n])
}

func (r *recorder) handle(stack []uint64) {
	r.next += 2
	stack[0] = r.next
}

func (r *recorder) funcs() []engine.HostFunc {
	i32, f64 := engine.I32, engine.F64
	return []engine.HostFunc{
		{Name: "__wbg_s_console_log", Params: []engine.ValueType{i32, i32}, Fn: func(_ context.Context, s []uint64) error {
			r.logged = append(r.logged, r.text(s))
			return nil
		}},
		{Name: "__wbindgen_string_new", Params: []engine.ValueType{i32, i32}, Results: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			r.handle(s)
			return nil
		}},
		{Name: "__wbindgen_number_new", Params: []engine.ValueType{f64}, Results: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			if math.Float64frombits(s[0]) != 3.5 {
				return fmt.Errorf("unexpected number %v", math.Float64frombits(s[0]))
			}
			r.handle(s)
			return nil
		}},
		{Name: "__wbindgen_boolean_new", Params: []engine.ValueType{i32}, Results: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			r.handle(s)
			return nil
		}},
		{Name: "__wbindgen_null_new", Results: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			r.handle(s)
			return nil
		}},
		{Name: "__wbindgen_undefined_new", Results: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			r.handle(s)
			return nil
		}},
		{Name: "__wbindgen_object_clone_ref", Params: []engine.ValueType{i32}, Results: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			r.handle(s)
			return nil
		}},
		{Name: "__wbindgen_object_drop_ref", Params: []engine.ValueType{i32}, Fn: func(_ context.Context, s []uint64) error {
			r.dropped = append(r.dropped, s[0])
			return nil
		}},
		{Name: "__wbindgen_throw", Params: []engine.ValueType{i32, i32}, Fn: func(_ context.Context, s []uint64) error {
			msg := r.text(s)
			r.thrown = append(r.thrown, msg)
			return fmt.Errorf("guest threw: %s", msg)
		}},
	}
}

func backends(t *testing.T) []engine.Engine {
	ctx := context.Background()
	var out []engine.Engine
	for _, name := range []string{engine.Wazero, engine.Wasmtime} {
		e, err := engine.New(ctx, name, engine.Config{})
		if err != nil {
			t.Logf("backend %s unavailable: %v", name, err)
			continue
		}
		t.Cleanup(func() { _ = e.Close(ctx) })
		out = append(out, e)
	}
	return out
}

func instantiate(t *testing.T, e engine.Engine, wasm []byte) (engine.Instance, *recorder) {
	t.Helper()
	ctx := context.Background()
	compiled, err := e.Compile(ctx, wasm)
	require.NoError(t, err)

	rec := &recorder{}
	inst, err := compiled.Instantiate(ctx, engine.InstanceConfig{
		ImportModule: enginetest.ImportModule,
		MemoryExport: "memory",
		Funcs:        rec.funcs(),
	})
	require.NoError(t, err)
	rec.inst = inst
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst, rec
}

func put(t *testing.T, inst engine.Instance, s string) (uint64, uint64) {
	t.Helper()
	res, err := inst.Call(context.Background(), "__wbindgen_malloc", uint64(len(s)))
	require.NoError(t, err)
	ptr := uint32(res[0])
	copy(inst.Memory().Buffer()[ptr:], s)
	return uint64(ptr), uint64(len(s))
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := engine.New(context.Background(), "v8", engine.Config{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnsupported))
}

func TestWazero_MemoryOnlyModule(t *testing.T) {
	ctx := context.Background()
	e, err := engine.NewWazeroEngine(ctx, engine.Config{MemoryLimitPages: 4})
	require.NoError(t, err)
	defer e.Close(ctx)

	compiled, err := e.Compile(ctx, memoryOnlyWasm)
	require.NoError(t, err)

	inst, err := compiled.Instantiate(ctx, engine.InstanceConfig{MemoryExport: "memory"})
	require.NoError(t, err)
	defer inst.Close(ctx)

	assert.Len(t, inst.Memory().Buffer(), 65536)
	assert.False(t, inst.HasExport("run"))

	_, err = inst.Call(ctx, "run")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	// Instances of one module are independent.
	other, err := compiled.Instantiate(ctx, engine.InstanceConfig{MemoryExport: "memory"})
	require.NoError(t, err)
	defer other.Close(ctx)
	inst.Memory().Buffer()[10] = 7
	assert.Equal(t, byte(0), other.Memory().Buffer()[10])
}

func TestWazero_CompileErrors(t *testing.T) {
	ctx := context.Background()
	e, err := engine.NewWazeroEngine(ctx, engine.Config{})
	require.NoError(t, err)

	_, err = e.Compile(ctx, []byte("not wasm"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidData))

	compiled, err := e.Compile(ctx, memoryOnlyWasm)
	require.NoError(t, err)
	_, err = compiled.Instantiate(ctx, engine.InstanceConfig{MemoryExport: "mem"})
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	require.NoError(t, e.Close(ctx))
	require.NoError(t, e.Close(ctx))
	_, err = e.Compile(ctx, memoryOnlyWasm)
	assert.True(t, errors.IsKind(err, errors.KindClosed))
}

func TestBackends_GuestProtocol(t *testing.T) {
	wasm := enginetest.GuestWasm(t)
	ctx := context.Background()

	for _, e := range backends(t) {
		t.Run(e.Name(), func(t *testing.T) {
			inst, rec := instantiate(t, e, wasm)
			assert.True(t, inst.HasExport("run"))
			assert.False(t, inst.HasExport("nope"))

			pp, pl := put(t, inst, "hello")
			ip, il := put(t, inst, "world")
			res, err := inst.Call(ctx, "run", pp, pl, ip, il)
			require.NoError(t, err)
			require.Len(t, res, 1)

			ptr, err := inst.Call(ctx, "__wbindgen_boxed_str_ptr", res[0])
			require.NoError(t, err)
			n, err := inst.Call(ctx, "__wbindgen_boxed_str_len", res[0])
			require.NoError(t, err)
			assert.Equal(t, uint64(2), n[0])
			assert.Zero(t, ptr[0]%4)
			assert.Equal(t, []string{"hello"}, rec.logged)
			assert.Len(t, rec.dropped, 1)

			_, err = inst.Call(ctx, "__wbindgen_boxed_str_free", res[0])
			require.NoError(t, err)
			for _, r := range [][2]uint64{{pp, pl}, {ip, il}} {
				_, err = inst.Call(ctx, "__wbindgen_free", r[0], r[1])
				require.NoError(t, err)
			}
			live, err := inst.Call(ctx, "live_allocs")
			require.NoError(t, err)
			assert.Equal(t, uint64(0), live[0])
		})
	}
}

func TestBackends_NumbersCrossAsF64(t *testing.T) {
	wasm := enginetest.GuestWasm(t)
	ctx := context.Background()

	for _, e := range backends(t) {
		t.Run(e.Name(), func(t *testing.T) {
			inst, rec := instantiate(t, e, wasm)
			pp, pl := put(t, inst, "#")
			res, err := inst.Call(ctx, "run", pp, pl, 0, 0)
			require.NoError(t, err)

			n, err := inst.Call(ctx, "__wbindgen_boxed_str_len", res[0])
			require.NoError(t, err)
			assert.Equal(t, uint64(4), n[0])
			assert.Equal(t, uint64(8), rec.next, "four handles were created")
		})
	}
}

func TestBackends_HostErrorTraps(t *testing.T) {
	wasm := enginetest.GuestWasm(t)
	ctx := context.Background()

	for _, e := range backends(t) {
		t.Run(e.Name(), func(t *testing.T) {
			inst, rec := instantiate(t, e, wasm)
			pp, pl := put(t, inst, "!boom")
			_, err := inst.Call(ctx, "run", pp, pl, 0, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "boom")
			assert.Equal(t, []string{"boom"}, rec.thrown)

			// The instance stays usable after a trap.
			_, err = inst.Call(ctx, "live_allocs")
			require.NoError(t, err)
		})
	}
}

func TestBackends_MemoryGrowth(t *testing.T) {
	wasm := enginetest.GuestWasm(t)
	ctx := context.Background()

	for _, e := range backends(t) {
		t.Run(e.Name(), func(t *testing.T) {
			inst, _ := instantiate(t, e, wasm)
			before := len(inst.Memory().Buffer())

			pp, pl := put(t, inst, "grow")
			_, err := inst.Call(ctx, "run", pp, pl, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, before+2*65536, len(inst.Memory().Buffer()))
		})
	}
}

func TestBackends_AllocLimit(t *testing.T) {
	wasm := enginetest.GuestWasm(t)
	ctx := context.Background()

	for _, e := range backends(t) {
		t.Run(e.Name(), func(t *testing.T) {
			inst, _ := instantiate(t, e, wasm)
			_, err := inst.Call(ctx, "set_alloc_limit", 0)
			require.NoError(t, err)

			res, err := inst.Call(ctx, "__wbindgen_malloc", 16)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), res[0])

			_, err = inst.Call(ctx, "set_alloc_limit", uint64(math.MaxUint32))
			require.NoError(t, err)
			res, err = inst.Call(ctx, "__wbindgen_malloc", 16)
			require.NoError(t, err)
			assert.NotZero(t, res[0])
		})
	}
}
