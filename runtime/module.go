package runtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/memory"
	"github.com/wippyai/vmbridge/resource"
	"github.com/wippyai/vmbridge/transcoder"
)

// Module is a compiled guest that can be instantiated many times.
type Module struct {
	runtime  *Runtime
	compiled engine.Compiled
}

// Instantiate creates an instance with its own memory and handle table.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	cfg := m.runtime.cfg
	id := uuid.NewString()

	i := &Instance{
		id:    id,
		cfg:   cfg,
		log:   m.runtime.logger.With(zap.String("instance", id)),
		table: resource.NewTable(),
	}
	if cfg.TraceHandles {
		i.table.Subscribe(resource.ObserverFunc(i.traceHandle))
	}

	inst, err := m.compiled.Instantiate(ctx, engine.InstanceConfig{
		ImportModule: cfg.ImportModule,
		MemoryExport: cfg.Exports.Memory,
		Funcs:        i.hostFuncs(),
	})
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	i.inst = inst

	for _, name := range []string{
		cfg.Exports.Malloc, cfg.Exports.Free, cfg.Exports.Run,
		cfg.Exports.BoxedPtr, cfg.Exports.BoxedLen, cfg.Exports.BoxedFree,
	} {
		if !inst.HasExport(name) {
			_ = inst.Close(ctx)
			return nil, errors.NotFound(errors.PhaseLoad, "export", name)
		}
	}

	i.mem = memory.NewAccessor(inst.Memory())
	i.alloc = &guestAllocator{inst: i, malloc: cfg.Exports.Malloc, free: cfg.Exports.Free}
	i.codec = transcoder.NewStringCodec(i.mem, i.alloc, cfg.Exports.Malloc)

	i.log.Debug("instance created", zap.Uint32("memory_bytes", i.mem.Size()))
	return i, nil
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
