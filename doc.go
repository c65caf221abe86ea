// Package vmbridge connects a Go host to the stack-VM WebAssembly module.
//
// The module and the host share nothing but linear memory: no pointers, no
// garbage collector, no common type system. This library copies text across
// that boundary, hands host values to the module by opaque handle, tracks how
// long the module holds on to them, and wraps the whole protocol in a single
// call:
//
//	out, err := inst.Execute(ctx, program, input)
//
// # Architecture Overview
//
//	vmbridge/            Root package with core Memory and Allocator interfaces
//	├── runtime/         Runtime, Module, Instance (dispatcher), host imports
//	├── engine/          Guest module contract with wazero and wasmtime backends
//	├── memory/          Bounds-checked views over guest linear memory
//	├── transcoder/      String and handle-array codec, allocation tracking
//	├── resource/        Two-tier reference-counted handle table
//	├── errors/          Structured error types
//	└── cmd/run/         Command line runner with an interactive mode
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Execute(ctx, `1 2 + println`, "")
//
// # Handles
//
// Host values (numbers, booleans, strings, null, undefined, symbols) reach the
// module as 32-bit handles. The low bit selects the tier: odd handles index a
// per-call stack frame that is discarded when the call returns, even handles
// index a reference-counted slab that survives across calls until the module
// drops its last reference.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT: its handle
// table, stack frame and cached memory views are unsynchronized. Use one
// Instance per goroutine, or runtime.Pool.
//
// # Memory Model
//
// Guest linear memory can only grow. Growth may move the backing buffer, so
// views are re-validated on every access and never cached across calls.
package vmbridge
