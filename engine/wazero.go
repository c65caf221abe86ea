package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/memory"
)

// initExport is run once after instantiation when the guest exports it.
const initExport = "_initialize"

// WazeroEngine implements Engine using the wazero runtime. Host imports
// close over per-instance state, so every instance gets its own
// wazero.Runtime; a shared compilation cache keeps that cheap.
type WazeroEngine struct {
	cache   wazero.CompilationCache
	runtime wazero.Runtime // validates and warms the cache
	cfg     Config
	mu      sync.Mutex
	closed  bool
}

// NewWazeroEngine creates a wazero-backed engine.
func NewWazeroEngine(ctx context.Context, cfg Config) (*WazeroEngine, error) {
	cache := wazero.NewCompilationCache()
	e := &WazeroEngine{cache: cache, cfg: cfg}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())
	return e, nil
}

func (e *WazeroEngine) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig().WithCompilationCache(e.cache)
	if e.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	if e.cfg.CloseOnContextDone {
		rc = rc.WithCloseOnContextDone(true)
	}
	return rc
}

func (e *WazeroEngine) Name() string { return Wazero }

// Compile validates wasm and populates the compilation cache.
func (e *WazeroEngine) Compile(ctx context.Context, wasm []byte) (Compiled, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Closed("engine")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	Logger().Debug("module compiled",
		zap.String("engine", Wazero),
		zap.Int("size", len(wasm)),
		zap.Int("imports", len(compiled.ImportedFunctions())))

	return &wazeroCompiled{engine: e, wasm: wasm, validated: compiled}, nil
}

// Close releases the compilation cache. Instances already created keep
// running until they are closed.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.runtime.Close(ctx)
	if cerr := e.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

type wazeroCompiled struct {
	engine    *WazeroEngine
	validated wazero.CompiledModule
	wasm      []byte
}

func (c *wazeroCompiled) Instantiate(ctx context.Context, cfg InstanceConfig) (Instance, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, c.engine.runtimeConfig())

	inst, err := c.instantiate(ctx, rt, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func (c *wazeroCompiled) instantiate(ctx context.Context, rt wazero.Runtime, cfg InstanceConfig) (*wazeroInstance, error) {
	if len(cfg.Funcs) > 0 {
		builder := rt.NewHostModuleBuilder(cfg.ImportModule)
		for _, hf := range cfg.Funcs {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(wazeroHostFunc(hf), wazeroTypes(hf.Params), wazeroTypes(hf.Results)).
				WithName(hf.Name).
				Export(hf.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return nil, errors.Instantiation(fmt.Errorf("host module %q: %w", cfg.ImportModule, err))
		}
	}

	compiled, err := rt.CompileModule(ctx, c.wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	// Anonymous name allows many instances of the same module.
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &wazeroInstance{runtime: rt, module: mod, funcs: make(map[string]api.Function)}
	if cfg.MemoryExport != "" {
		inst.mem = mod.ExportedMemory(cfg.MemoryExport)
	} else {
		inst.mem = mod.Memory()
	}
	if inst.mem == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "memory export", cfg.MemoryExport)
	}

	if init := mod.ExportedFunction(initExport); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return nil, errors.Instantiation(fmt.Errorf("%s: %w", initExport, err))
		}
	}
	return inst, nil
}

func (c *wazeroCompiled) Close(ctx context.Context) error {
	return c.validated.Close(ctx)
}

// wazeroHostFunc adapts a HostFunc. wazero turns the panic into an error
// returned from the guest call that reached the import.
func wazeroHostFunc(hf HostFunc) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if err := hf.Fn(ctx, stack); err != nil {
			panic(err)
		}
	}
}

func wazeroTypes(types []ValueType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case I64:
			out[i] = api.ValueTypeI64
		case F32:
			out[i] = api.ValueTypeF32
		case F64:
			out[i] = api.ValueTypeF64
		default:
			out[i] = api.ValueTypeI32
		}
	}
	return out
}

type wazeroInstance struct {
	runtime wazero.Runtime
	module  api.Module
	mem     api.Memory
	funcs   map[string]api.Function
}

// wazeroMemory exposes the whole linear memory as one view. The view is
// replaced by the runtime when memory grows.
type wazeroMemory struct {
	mem api.Memory
}

func (m wazeroMemory) Buffer() []byte {
	buf, ok := m.mem.Read(0, m.mem.Size())
	if !ok {
		return nil
	}
	return buf
}

func (i *wazeroInstance) Memory() memory.Source {
	return wazeroMemory{mem: i.mem}
}

func (i *wazeroInstance) function(name string) api.Function {
	if fn, ok := i.funcs[name]; ok {
		return fn
	}
	fn := i.module.ExportedFunction(name)
	if fn != nil {
		i.funcs[name] = fn
	}
	return fn
}

func (i *wazeroInstance) HasExport(name string) bool {
	if i.module == nil {
		return false
	}
	return i.function(name) != nil
}

func (i *wazeroInstance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if i.module == nil {
		return nil, errors.Closed("instance")
	}
	fn := i.function(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	return fn.Call(ctx, args...)
}

func (i *wazeroInstance) Close(ctx context.Context) error {
	if i.runtime == nil {
		return nil
	}
	err := i.runtime.Close(ctx)
	i.runtime = nil
	i.module = nil
	i.mem = nil
	i.funcs = nil
	return err
}
