// Package runtime hosts a wasm-bindgen built stack VM and dispatches
// programs to it.
//
// # Quick Start
//
//	ctx := context.Background()
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
//	out, err := inst.Execute(ctx, program, input)
//
// # Dispatch
//
// Execute encodes program and input into guest memory, calls the run export
// and resolves the boxed handle array it returns. Each handle is rendered to
// text and released. Inputs are freed whether the call succeeds or not.
//
// The guest reports failure through the throw import. That surfaces as an
// error of kind errors.KindBoundary carrying the guest's message; use
// errors.BoundaryMessage to read it.
//
// # Host Values
//
// Values the guest creates through imports live in the instance's
// resource.Table. Arguments passed to Call that are not strings are borrowed
// for the duration of the call as stack handles. LiveHandles reports how many
// heap values the guest still retains.
//
// # Concurrency
//
// An Instance serves one call at a time and rejects re-entrant calls. Pool
// hands instances to concurrent callers.
//
// # Configuration
//
// Config selects the backend and names the imports and exports the guest
// uses. ParseConfig and LoadConfig read it from YAML.
package runtime
