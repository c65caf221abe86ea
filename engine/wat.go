//go:build cgo

package engine

import (
	"github.com/bytecodealliance/wasmtime-go"

	"github.com/wippyai/vmbridge/errors"
)

// CompileWAT assembles WebAssembly text into a binary module.
func CompileWAT(src string) ([]byte, error) {
	wasm, err := wasmtime.Wat2Wasm(src)
	if err != nil {
		return nil, errors.Load("assemble WAT", err)
	}
	return wasm, nil
}
