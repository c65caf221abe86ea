package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/vmbridge/errors"
)

// Pool hands out instances of one module to concurrent callers. Each
// instance serves one call at a time.
type Pool struct {
	idle chan *Instance
	done chan struct{}
	all  []*Instance
	once sync.Once
}

// NewPool instantiates size instances of m.
func NewPool(ctx context.Context, m *Module, size int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "pool size must be positive")
	}
	p := &Pool{
		idle: make(chan *Instance, size),
		done: make(chan struct{}),
	}
	for n := 0; n < size; n++ {
		inst, err := m.Instantiate(ctx)
		if err != nil {
			_ = p.Close(ctx)
			return nil, err
		}
		p.all = append(p.all, inst)
		p.idle <- inst
	}
	return p, nil
}

// Size returns the number of instances in the pool.
func (p *Pool) Size() int {
	return len(p.all)
}

// Execute runs program on the next free instance, waiting for one if
// necessary.
func (p *Pool) Execute(ctx context.Context, program, input string) ([]string, error) {
	inst, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(inst)
	return inst.Execute(ctx, program, input)
}

func (p *Pool) acquire(ctx context.Context) (*Instance, error) {
	select {
	case <-p.done:
		return nil, errors.Closed("pool")
	default:
	}
	select {
	case inst := <-p.idle:
		return inst, nil
	case <-p.done:
		return nil, errors.Closed("pool")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(inst *Instance) {
	p.idle <- inst
}

// Close waits for in-flight calls to return their instances, then closes
// every instance.
func (p *Pool) Close(ctx context.Context) error {
	var first error
	p.once.Do(func() {
		close(p.done)
		for range p.all {
			inst := <-p.idle
			if err := inst.Close(ctx); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
