package runtime

import (
	"context"

	"github.com/wippyai/vmbridge/engine"
)

// LoadWAT assembles a module from WebAssembly text and compiles it.
// Assembling requires a cgo build.
func (r *Runtime) LoadWAT(ctx context.Context, watText string) (*Module, error) {
	wasm, err := engine.CompileWAT(watText)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, wasm)
}
