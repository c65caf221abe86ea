// Package engine runs guest modules on a WebAssembly backend.
//
// Two backends implement the same small contract:
//
//	wazero    pure Go, the default
//	wasmtime  cgo, selected with engine.New(ctx, engine.Wasmtime, cfg)
//
// # Contract
//
//	Engine    compiles wasm bytes into a Compiled module
//	Compiled  instantiates the module with a set of host imports
//	Instance  exposes linear memory and calls exports with raw core values
//
// Host imports are HostFunc values. Parameters arrive in a []uint64 stack and
// results are written back into it, the same convention wazero uses for
// api.GoModuleFunc. An error returned from a HostFunc traps the guest call
// that reached it.
//
// # Memory
//
// Instance.Memory returns a memory.Source. The buffer it hands out is only
// valid until the guest next runs, since growth may move it; wrap the source
// in a memory.Accessor rather than holding the slice.
//
// # Instances
//
// Each wazero instance gets its own runtime so host imports can close over
// per-instance state; a shared compilation cache makes that cheap. Each
// wasmtime instance gets its own Store. If the guest exports _initialize it
// runs once after instantiation.
//
// # Thread Safety
//
// Engines and Compiled modules are safe for concurrent use. Instances are
// not; host imports run on the goroutine that issued the call.
package engine
