//go:build !cgo

package engine

import "github.com/wippyai/vmbridge/errors"

// WasmtimeEngine is unavailable without cgo.
type WasmtimeEngine struct{}

// NewWasmtimeEngine reports that the wasmtime backend needs cgo.
func NewWasmtimeEngine(Config) (*WasmtimeEngine, error) {
	return nil, errWasmtimeUnavailable()
}

func newWasmtime(Config) (Engine, error) {
	return nil, errWasmtimeUnavailable()
}

func errWasmtimeUnavailable() error {
	return errors.New(errors.PhaseConfig, errors.KindUnsupported).
		Detail("wasmtime engine requires cgo").
		Build()
}
