package engine

import (
	"context"
	"fmt"

	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/memory"
)

// Backend names accepted by New.
const (
	Wazero   = "wazero"
	Wasmtime = "wasmtime"
)

// ValueType is a core wasm value type in a host function signature.
type ValueType byte

const (
	I32 ValueType = iota
	I64
	F32
	F64
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valtype(%d)", byte(t))
	}
}

// HostFunc is a host import. Fn receives the parameters in stack and writes
// the results back into stack starting at index 0. The stack holds at least
// max(len(Params), len(Results)) slots. i32 values occupy the low 32 bits,
// floats are stored as IEEE-754 bits.
//
// Returning an error traps the guest call that invoked the import.
type HostFunc struct {
	Fn      func(ctx context.Context, stack []uint64) error
	Name    string
	Params  []ValueType
	Results []ValueType
}

// InstanceConfig configures one instantiation.
type InstanceConfig struct {
	// ImportModule is the module name the host functions are provided under.
	ImportModule string
	// MemoryExport names the exported linear memory.
	MemoryExport string
	Funcs        []HostFunc
}

// Config holds engine-wide settings.
type Config struct {
	// MemoryLimitPages caps each instance's memory in 64KiB pages.
	// 0 means the backend default.
	MemoryLimitPages uint32

	// CloseOnContextDone aborts running guest code when the call context is
	// cancelled. Only honored by backends that support it.
	CloseOnContextDone bool
}

// Engine compiles guest modules.
type Engine interface {
	Name() string
	Compile(ctx context.Context, wasm []byte) (Compiled, error)
	Close(ctx context.Context) error
}

// Compiled is a validated module that can be instantiated many times.
type Compiled interface {
	Instantiate(ctx context.Context, cfg InstanceConfig) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is one instantiated guest. Instances are not safe for concurrent
// use; host functions run on the goroutine that issued the guest call.
type Instance interface {
	// Memory returns the source of the current linear memory buffer.
	Memory() memory.Source
	// Call invokes an exported function with raw core values.
	Call(ctx context.Context, name string, args ...uint64) ([]uint64, error)
	HasExport(name string) bool
	Close(ctx context.Context) error
}

// New creates the backend named by name.
func New(ctx context.Context, name string, cfg Config) (Engine, error) {
	switch name {
	case "", Wazero:
		e, err := NewWazeroEngine(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case Wasmtime:
		return newWasmtime(cfg)
	default:
		return nil, errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Detail("unknown engine %q", name).
			Build()
	}
}

func stackSize(hf HostFunc) int {
	return max(len(hf.Params), len(hf.Results))
}
