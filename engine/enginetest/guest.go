// Package enginetest provides an in-process guest for testing code that
// drives an engine.Engine without compiling real wasm.
//
// The fake guest behaves like GuestWAT: same exports, same imports, same
// allocator accounting. Tests that need a real backend compile GuestWAT with
// engine.CompileWAT instead.
package enginetest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/memory"
)

const (
	pageSize = 65536
	heapBase = 1024
)

// Option customizes fake guests created by an Engine.
type Option func(*Guest)

// WithPages sets the initial memory size in pages.
func WithPages(n int) Option {
	return func(g *Guest) { g.mem = make([]byte, n*pageSize) }
}

// WithMaxPages caps memory growth.
func WithMaxPages(n int) Option {
	return func(g *Guest) { g.maxPages = n }
}

// WithExport adds or replaces an export. The function receives the guest so
// it can allocate and call imports.
func WithExport(name string, fn func(ctx context.Context, g *Guest, args []uint64) ([]uint64, error)) Option {
	return func(g *Guest) { g.custom[name] = fn }
}

// Engine creates fake guests. Compile accepts any bytes.
type Engine struct {
	opts []Option

	mu     sync.Mutex
	guests []*Guest
	closed bool
}

func NewEngine(opts ...Option) *Engine {
	return &Engine{opts: opts}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Compile(context.Context, []byte) (engine.Compiled, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}
	return &compiled{engine: e}, nil
}

func (e *Engine) Close(context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Guests returns every guest instantiated so far.
func (e *Engine) Guests() []*Guest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Guest(nil), e.guests...)
}

type compiled struct {
	engine *Engine
}

func (c *compiled) Instantiate(_ context.Context, cfg engine.InstanceConfig) (engine.Instance, error) {
	g := &Guest{
		mem:     make([]byte, pageSize),
		heap:    heapBase,
		limit:   -1,
		imports: make(map[string]engine.HostFunc, len(cfg.Funcs)),
		custom:  make(map[string]func(context.Context, *Guest, []uint64) ([]uint64, error)),
	}
	for _, opt := range c.engine.opts {
		opt(g)
	}
	if cfg.ImportModule != ImportModule {
		return nil, fmt.Errorf("unknown import module %q", cfg.ImportModule)
	}
	for _, hf := range cfg.Funcs {
		g.imports[hf.Name] = hf
	}

	c.engine.mu.Lock()
	c.engine.guests = append(c.engine.guests, g)
	c.engine.mu.Unlock()
	return g, nil
}

func (c *compiled) Close(context.Context) error { return nil }

// Guest is one fake instance.
type Guest struct {
	mem      []byte
	maxPages int
	heap     uint32
	live     int
	limit    int
	closed   bool
	imports  map[string]engine.HostFunc
	custom   map[string]func(context.Context, *Guest, []uint64) ([]uint64, error)

	// Calls counts export invocations by name.
	Calls map[string]int
	// Logged holds console_log payloads as raw bytes.
	Logged [][]byte
}

// Live returns the number of allocations not yet freed.
func (g *Guest) Live() int { return g.live }

// SetAllocLimit lets the next n allocations succeed; n < 0 is unlimited.
func (g *Guest) SetAllocLimit(n int) { g.limit = n }

// Closed reports whether Close was called.
func (g *Guest) Closed() bool { return g.closed }

type guestMemory struct{ g *Guest }

func (m guestMemory) Buffer() []byte { return m.g.mem }

func (g *Guest) Memory() memory.Source { return guestMemory{g: g} }

// Grow adds n pages. The buffer is reallocated so stale views are detected.
func (g *Guest) Grow(n int) bool {
	pages := len(g.mem) / pageSize
	if g.maxPages > 0 && pages+n > g.maxPages {
		return false
	}
	next := make([]byte, len(g.mem)+n*pageSize)
	copy(next, g.mem)
	g.mem = next
	return true
}

// Malloc mirrors the guest allocator.
func (g *Guest) Malloc(n uint32) uint32 {
	if g.limit == 0 {
		return 0
	}
	if g.limit > 0 {
		g.limit--
	}
	ptr := (g.heap + 3) &^ 3
	end := uint64(ptr) + uint64(n)
	for end > uint64(len(g.mem)) {
		if !g.Grow(1) {
			return 0
		}
	}
	g.heap = uint32(end)
	g.live++
	return ptr
}

func (g *Guest) Free(uint32, uint32) { g.live-- }

// PutU32 writes a little-endian word.
func (g *Guest) PutU32(ptr, v uint32) {
	binary.LittleEndian.PutUint32(g.mem[ptr:], v)
}

func (g *Guest) u32(ptr uint32) uint32 {
	return binary.LittleEndian.Uint32(g.mem[ptr:])
}

// PutBytes allocates and writes b, returning its pointer.
func (g *Guest) PutBytes(b []byte) uint32 {
	ptr := g.Malloc(uint32(len(b)))
	if ptr != 0 {
		copy(g.mem[ptr:], b)
	}
	return ptr
}

// Box allocates the (ptr, len) pair a dispatch returns.
func (g *Guest) Box(ptr, n uint32) uint32 {
	b := g.Malloc(8)
	g.PutU32(b, ptr)
	g.PutU32(b+4, n)
	return b
}

// Import invokes a host import by name.
func (g *Guest) Import(ctx context.Context, name string, args ...uint64) (uint64, error) {
	hf, ok := g.imports[name]
	if !ok {
		return 0, fmt.Errorf("import %q not provided", name)
	}
	stack := make([]uint64, max(len(hf.Params), len(hf.Results), 1))
	copy(stack, args)
	if err := hf.Fn(ctx, stack); err != nil {
		return 0, err
	}
	return stack[0], nil
}

func (g *Guest) HasExport(name string) bool {
	if _, ok := g.custom[name]; ok {
		return true
	}
	switch name {
	case "__wbindgen_malloc", "__wbindgen_free", "run",
		"__wbindgen_boxed_str_ptr", "__wbindgen_boxed_str_len", "__wbindgen_boxed_str_free",
		"set_alloc_limit", "live_allocs":
		return true
	}
	return false
}

func (g *Guest) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if g.closed {
		return nil, fmt.Errorf("guest is closed")
	}
	if g.Calls == nil {
		g.Calls = make(map[string]int)
	}
	g.Calls[name]++

	if fn, ok := g.custom[name]; ok {
		return fn(ctx, g, args)
	}

	arg := func(i int) uint32 { return uint32(args[i]) }
	switch name {
	case "__wbindgen_malloc":
		return []uint64{uint64(g.Malloc(arg(0)))}, nil
	case "__wbindgen_free":
		g.Free(arg(0), arg(1))
		return nil, nil
	case "set_alloc_limit":
		g.limit = int(int32(arg(0)))
		return nil, nil
	case "live_allocs":
		return []uint64{uint64(g.live)}, nil
	case "__wbindgen_boxed_str_ptr":
		return []uint64{uint64(g.u32(arg(0)))}, nil
	case "__wbindgen_boxed_str_len":
		return []uint64{uint64(g.u32(arg(0) + 4))}, nil
	case "__wbindgen_boxed_str_free":
		b := arg(0)
		g.Free(g.u32(b), g.u32(b+4)*4)
		g.Free(b, 8)
		return nil, nil
	case "run":
		ret, err := g.run(ctx, arg(0), arg(1), arg(2), arg(3))
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ret)}, nil
	}
	return nil, fmt.Errorf("export %q not found", name)
}

func (g *Guest) run(ctx context.Context, pp, pl, ip, il uint32) (uint32, error) {
	if pl == 0 {
		return g.Box(g.Malloc(0), 0), nil
	}

	switch g.mem[pp] {
	case '!':
		if _, err := g.Import(ctx, "__wbindgen_throw", uint64(pp+1), uint64(pl-1)); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("unreachable")
	case '#':
		arr := g.Malloc(16)
		steps := []struct {
			name string
			args []uint64
		}{
			{"__wbindgen_number_new", []uint64{math.Float64bits(3.5)}},
			{"__wbindgen_boolean_new", []uint64{1}},
			{"__wbindgen_null_new", nil},
			{"__wbindgen_undefined_new", nil},
		}
		for k, s := range steps {
			h, err := g.Import(ctx, s.name, s.args...)
			if err != nil {
				return 0, err
			}
			g.PutU32(arr+uint32(k)*4, uint32(h))
		}
		return g.Box(arr, 4), nil
	case 'g':
		g.Grow(2)
	}

	if _, err := g.Import(ctx, "__wbg_s_console_log", uint64(pp), uint64(pl)); err != nil {
		return 0, err
	}
	g.Logged = append(g.Logged, append([]byte(nil), g.mem[pp:pp+pl]...))

	arr := g.Malloc(8)
	first, err := g.Import(ctx, "__wbindgen_string_new", uint64(pp), uint64(pl))
	if err != nil {
		return 0, err
	}
	g.PutU32(arr, uint32(first))

	second, err := g.Import(ctx, "__wbindgen_string_new", uint64(ip), uint64(il))
	if err != nil {
		return 0, err
	}
	clone, err := g.Import(ctx, "__wbindgen_object_clone_ref", second)
	if err != nil {
		return 0, err
	}
	if _, err := g.Import(ctx, "__wbindgen_object_drop_ref", second); err != nil {
		return 0, err
	}
	g.PutU32(arr+4, uint32(clone))
	return g.Box(arr, 2), nil
}

func (g *Guest) Close(context.Context) error {
	g.closed = true
	return nil
}

var (
	_ engine.Engine   = (*Engine)(nil)
	_ engine.Instance = (*Guest)(nil)
)
