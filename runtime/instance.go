package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/memory"
	"github.com/wippyai/vmbridge/resource"
	"github.com/wippyai/vmbridge/transcoder"
)

// Instance is one guest instance with its own memory, handle table and
// allocator. An Instance must not be used from more than one goroutine at a
// time; use a Pool for concurrent callers.
type Instance struct {
	inst  engine.Instance
	mem   *memory.Accessor
	table *resource.Table
	codec *transcoder.StringCodec
	alloc *guestAllocator
	log   *zap.Logger
	// pending is the first error raised by a host import during the current
	// guest call. It takes precedence over the trap that follows it.
	pending error
	id      string
	cfg     Config
	busy    atomic.Bool
	closed  bool
}

// ID returns the instance's correlation id.
func (i *Instance) ID() string {
	return i.id
}

// LiveHandles returns the number of host values the guest still retains.
func (i *Instance) LiveHandles() int {
	return i.table.Live()
}

// Execute runs program against input and returns the rendered results in
// order. Either every result is returned or an error is; never both.
func (i *Instance) Execute(ctx context.Context, program, input string) ([]string, error) {
	return i.Call(ctx, i.cfg.Exports.Run, program, input)
}

// Call invokes export with the dispatch convention: string arguments are
// passed as (ptr, len) pairs in guest memory, other values as borrowed stack
// handles, and the result is a boxed array of handles rendered as text.
func (i *Instance) Call(ctx context.Context, export string, args ...any) (out []string, err error) {
	// closed is only read or written while busy is held.
	if !i.busy.CompareAndSwap(false, true) {
		return nil, errBusy(export)
	}
	defer i.busy.Store(false)
	if i.closed {
		return nil, errors.Closed("instance")
	}

	start := time.Now()
	mark := i.table.PushFrame()
	defer i.table.PopFrame(mark)

	// Inputs are freed on every path, after any result has been decoded.
	list := transcoder.NewAllocationList()
	defer func() {
		ferr := list.FreeAndRelease(context.WithoutCancel(ctx), i.alloc)
		if ferr != nil && err == nil {
			out, err = nil, ferr
		}
		i.logDispatch(export, start, len(out), err)
	}()

	raw := make([]uint64, 0, 2*len(args))
	for _, arg := range args {
		v, err := resource.ValueOf(arg)
		if err != nil {
			return nil, err
		}
		if s, ok := v.AsString(); ok {
			r, err := i.codec.Encode(ctx, s, list)
			if err != nil {
				return nil, err
			}
			raw = append(raw, uint64(r.Ptr), uint64(r.Len))
			continue
		}
		raw = append(raw, uint64(i.table.Add(v, resource.Transient)))
	}

	ret, err := i.call1(ctx, export, raw...)
	if err != nil {
		return nil, err
	}
	return i.decodeResult(ctx, ret)
}

// decodeResult resolves the boxed handle array at ret, takes ownership of
// every handle in it and frees the box.
func (i *Instance) decodeResult(ctx context.Context, ret uint32) (out []string, err error) {
	defer func() {
		if _, ferr := i.callGuest(context.WithoutCancel(ctx), i.cfg.Exports.BoxedFree, uint64(ret)); ferr != nil && err == nil {
			out, err = nil, ferr
		}
	}()

	ptr, err := i.call1(ctx, i.cfg.Exports.BoxedPtr, uint64(ret))
	if err != nil {
		return nil, err
	}
	n, err := i.call1(ctx, i.cfg.Exports.BoxedLen, uint64(ret))
	if err != nil {
		return nil, err
	}

	handles, err := transcoder.DecodeHandles(i.mem, transcoder.Region{Ptr: ptr, Len: n})
	if err != nil {
		return nil, err
	}

	// Every handle is released even if an earlier one is bad.
	out = make([]string, 0, len(handles))
	var first error
	for _, h := range handles {
		v, err := i.table.Take(h)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		out = append(out, v.String())
	}
	if first != nil {
		return nil, first
	}
	return out, nil
}

// callGuest calls an export, preferring an error recorded by a host import
// over the trap it caused.
func (i *Instance) callGuest(ctx context.Context, export string, args ...uint64) ([]uint64, error) {
	// A nested call made from a host import keeps the outer call's error.
	outer := i.pending
	i.pending = nil
	res, err := i.inst.Call(ctx, export, args...)
	pending := i.pending
	i.pending = outer
	if pending != nil {
		return nil, pending
	}
	if err != nil {
		return nil, errors.Trap(export, err)
	}
	return res, nil
}

func (i *Instance) call1(ctx context.Context, export string, args ...uint64) (uint32, error) {
	res, err := i.callGuest(ctx, export, args...)
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			Export(export).
			Detail("expected 1 result, got %d", len(res)).
			Build()
	}
	return uint32(res[0]), nil
}

// fail records the first host import error of the current guest call.
func (i *Instance) fail(err error) {
	if i.pending == nil {
		i.pending = err
	}
}

func (i *Instance) logDispatch(export string, start time.Time, results int, err error) {
	if err != nil {
		i.log.Debug("dispatch failed",
			zap.String("export", export),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	i.log.Debug("dispatch",
		zap.String("export", export),
		zap.Int("results", results),
		zap.Int("live_handles", i.table.Live()),
		zap.Duration("elapsed", time.Since(start)))
}

func (i *Instance) traceHandle(e resource.Event) {
	i.log.Debug("handle",
		zap.Stringer("event", e.Type),
		zap.Stringer("handle", e.Handle),
		zap.Uint32("refs", e.Refs),
		zap.Stringer("kind", e.Value.Kind()))
}

// Close releases the guest instance and every host value it still holds.
// It fails without closing anything while a call is in progress.
func (i *Instance) Close(ctx context.Context) error {
	if !i.busy.CompareAndSwap(false, true) {
		return errBusy("")
	}
	defer i.busy.Store(false)
	if i.closed {
		return nil
	}
	i.closed = true
	i.table.Reset()
	return i.inst.Close(ctx)
}

func errBusy(export string) *errors.Error {
	return errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
		Export(export).
		Detail("instance is already dispatching").
		Build()
}

// guestAllocator allocates through the guest's exported malloc/free pair.
type guestAllocator struct {
	inst   *Instance
	malloc string
	free   string
}

func (a *guestAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	return a.inst.call1(ctx, a.malloc, uint64(size))
}

func (a *guestAllocator) Free(ctx context.Context, ptr, size uint32) error {
	_, err := a.inst.callGuest(ctx, a.free, uint64(ptr), uint64(size))
	return err
}
