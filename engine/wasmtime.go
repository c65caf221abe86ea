//go:build cgo

package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/bytecodealliance/wasmtime-go"
	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/memory"
)

// WasmtimeEngine implements Engine using wasmtime through cgo. Each instance
// owns a Store; modules are shared across stores of the same engine.
type WasmtimeEngine struct {
	engine *wasmtime.Engine
	cfg    Config
	mu     sync.Mutex
	closed bool
}

// NewWasmtimeEngine creates a wasmtime-backed engine.
func NewWasmtimeEngine(cfg Config) (*WasmtimeEngine, error) {
	if cfg.MemoryLimitPages > 0 || cfg.CloseOnContextDone {
		Logger().Debug("wasmtime ignores memory limit and context cancellation settings",
			zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
			zap.Bool("close_on_context_done", cfg.CloseOnContextDone))
	}
	return &WasmtimeEngine{engine: wasmtime.NewEngine(), cfg: cfg}, nil
}

func (e *WasmtimeEngine) Name() string { return Wasmtime }

func (e *WasmtimeEngine) Compile(_ context.Context, wasm []byte) (Compiled, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Closed("engine")
	}
	module, err := wasmtime.NewModule(e.engine, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	Logger().Debug("module compiled", zap.String("engine", Wasmtime), zap.Int("size", len(wasm)))
	return &wasmtimeCompiled{engine: e, module: module}, nil
}

func (e *WasmtimeEngine) Close(context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

type wasmtimeCompiled struct {
	engine *WasmtimeEngine
	module *wasmtime.Module
}

func (c *wasmtimeCompiled) Instantiate(ctx context.Context, cfg InstanceConfig) (Instance, error) {
	store := wasmtime.NewStore(c.engine.engine)
	linker := wasmtime.NewLinker(c.engine.engine)
	inst := &wasmtimeInstance{store: store, cur: store}

	for _, hf := range cfg.Funcs {
		ty := wasmtime.NewFuncType(wasmtimeTypes(hf.Params), wasmtimeTypes(hf.Results))
		if err := linker.FuncNew(cfg.ImportModule, hf.Name, ty, inst.hostFunc(hf)); err != nil {
			return nil, errors.Instantiation(fmt.Errorf("define %s.%s: %w", cfg.ImportModule, hf.Name, err))
		}
	}

	instance, err := linker.Instantiate(store, c.module)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	inst.instance = instance

	memName := cfg.MemoryExport
	if memName == "" {
		memName = "memory"
	}
	ext := instance.GetExport(store, memName)
	if ext == nil || ext.Memory() == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "memory export", memName)
	}
	inst.mem = ext.Memory()

	if inst.HasExport(initExport) {
		if _, err := inst.Call(ctx, initExport); err != nil {
			return nil, errors.Instantiation(fmt.Errorf("%s: %w", initExport, err))
		}
	}
	return inst, nil
}

func (c *wasmtimeCompiled) Close(context.Context) error {
	return nil
}

type wasmtimeInstance struct {
	store    *wasmtime.Store
	instance *wasmtime.Instance
	mem      *wasmtime.Memory
	// cur is the Storelike memory is read through. Inside a host callback
	// it is the Caller, as the Store may not be used re-entrantly.
	cur wasmtime.Storelike
	ctx context.Context
}

func (i *wasmtimeInstance) hostFunc(hf HostFunc) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	size := stackSize(hf)
	return func(caller *wasmtime.Caller, params []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		prev := i.cur
		i.cur = caller
		defer func() { i.cur = prev }()

		stack := make([]uint64, size)
		for k, p := range params {
			stack[k] = fromVal(p)
		}

		ctx := i.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := hf.Fn(ctx, stack); err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}

		results := make([]wasmtime.Val, len(hf.Results))
		for k, t := range hf.Results {
			results[k] = toVal(t, stack[k])
		}
		return results, nil
	}
}

type wasmtimeMemory struct {
	inst *wasmtimeInstance
}

func (m wasmtimeMemory) Buffer() []byte {
	if m.inst.mem == nil {
		return nil
	}
	return m.inst.mem.UnsafeData(m.inst.cur)
}

func (i *wasmtimeInstance) Memory() memory.Source {
	return wasmtimeMemory{inst: i}
}

func (i *wasmtimeInstance) HasExport(name string) bool {
	if i.instance == nil {
		return false
	}
	return i.instance.GetFunc(i.cur, name) != nil
}

func (i *wasmtimeInstance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if i.instance == nil {
		return nil, errors.Closed("instance")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := i.instance.GetFunc(i.cur, name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}

	ty := fn.Type(i.cur)
	params := ty.Params()
	if len(params) != len(args) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s expects %d arguments, got %d", name, len(params), len(args)))
	}
	in := make([]interface{}, len(args))
	for k, p := range params {
		in[k] = toCallArg(p.Kind(), args[k])
	}

	prevCtx := i.ctx
	i.ctx = ctx
	defer func() { i.ctx = prevCtx }()

	out, err := fn.Call(i.cur, in...)
	if err != nil {
		return nil, err
	}
	return fromResult(out), nil
}

func (i *wasmtimeInstance) Close(context.Context) error {
	i.instance = nil
	i.mem = nil
	i.store = nil
	i.cur = nil
	return nil
}

func wasmtimeTypes(types []ValueType) []*wasmtime.ValType {
	out := make([]*wasmtime.ValType, len(types))
	for k, t := range types {
		switch t {
		case I64:
			out[k] = wasmtime.NewValType(wasmtime.KindI64)
		case F32:
			out[k] = wasmtime.NewValType(wasmtime.KindF32)
		case F64:
			out[k] = wasmtime.NewValType(wasmtime.KindF64)
		default:
			out[k] = wasmtime.NewValType(wasmtime.KindI32)
		}
	}
	return out
}

func fromVal(v wasmtime.Val) uint64 {
	switch v.Kind() {
	case wasmtime.KindI32:
		return uint64(uint32(v.I32()))
	case wasmtime.KindI64:
		return uint64(v.I64())
	case wasmtime.KindF32:
		return uint64(math.Float32bits(v.F32()))
	case wasmtime.KindF64:
		return math.Float64bits(v.F64())
	default:
		return 0
	}
}

func toVal(t ValueType, raw uint64) wasmtime.Val {
	switch t {
	case I64:
		return wasmtime.ValI64(int64(raw))
	case F32:
		return wasmtime.ValF32(math.Float32frombits(uint32(raw)))
	case F64:
		return wasmtime.ValF64(math.Float64frombits(raw))
	default:
		return wasmtime.ValI32(int32(uint32(raw)))
	}
}

func toCallArg(kind wasmtime.ValKind, raw uint64) interface{} {
	switch kind {
	case wasmtime.KindI64:
		return int64(raw)
	case wasmtime.KindF32:
		return math.Float32frombits(uint32(raw))
	case wasmtime.KindF64:
		return math.Float64frombits(raw)
	default:
		return int32(uint32(raw))
	}
}

func fromResult(out interface{}) []uint64 {
	switch v := out.(type) {
	case nil:
		return nil
	case int32:
		return []uint64{uint64(uint32(v))}
	case int64:
		return []uint64{uint64(v)}
	case float32:
		return []uint64{uint64(math.Float32bits(v))}
	case float64:
		return []uint64{math.Float64bits(v)}
	case []wasmtime.Val:
		res := make([]uint64, len(v))
		for k, val := range v {
			res[k] = fromVal(val)
		}
		return res
	default:
		return nil
	}
}

func newWasmtime(cfg Config) (Engine, error) {
	e, err := NewWasmtimeEngine(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}
