//go:build !cgo

package engine

import "github.com/wippyai/vmbridge/errors"

// CompileWAT needs the wasmtime assembler, which requires cgo.
func CompileWAT(string) ([]byte, error) {
	return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
		Detail("assembling WAT requires cgo").
		Build()
}
