package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
)

// Runtime compiles guest modules on one engine.
type Runtime struct {
	engine     engine.Engine
	logger     *zap.Logger
	cfg        Config
	ownsEngine bool
}

type options struct {
	engine engine.Engine
	logger *zap.Logger
	cfg    Config
}

// Option configures a Runtime.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger instances derive their loggers from.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEngine uses e instead of creating the engine named in the config.
// The caller keeps ownership of e.
func WithEngine(e engine.Engine) Option {
	return func(o *options) { o.engine = e }
}

func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	r := &Runtime{engine: o.engine, logger: o.logger, cfg: o.cfg}
	if r.engine == nil {
		eng, err := engine.New(ctx, o.cfg.Engine, o.cfg.engineConfig())
		if err != nil {
			return nil, errors.Load("create engine", err)
		}
		r.engine = eng
		r.ownsEngine = true
	}

	r.logger.Debug("runtime created",
		zap.String("engine", r.engine.Name()),
		zap.String("import_module", o.cfg.ImportModule),
		zap.Uint32("memory_limit_pages", o.cfg.MemoryLimitPages))
	return r, nil
}

func (r *Runtime) Config() Config {
	return r.cfg
}

// Load compiles a guest module.
func (r *Runtime) Load(ctx context.Context, wasm []byte) (*Module, error) {
	if len(wasm) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module")
	}
	compiled, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, errors.Load("load module", err)
	}
	return &Module{runtime: r, compiled: compiled}, nil
}

// Close releases the engine if the runtime created it.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.ownsEngine {
		return nil
	}
	return r.engine.Close(ctx)
}
