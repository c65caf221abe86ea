package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/vmbridge/engine/enginetest"
)

type fixture struct {
	rt    *Runtime
	mod   *Module
	inst  *Instance
	guest *enginetest.Guest
	fake  *enginetest.Engine
}

func newFixture(t *testing.T, opts ...enginetest.Option) *fixture {
	return newFixtureWith(t, nil, opts...)
}

func newFixtureWith(t *testing.T, rtOpts []Option, opts ...enginetest.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	fake := enginetest.NewEngine(opts...)
	rt, err := New(ctx, append([]Option{WithEngine(fake)}, rtOpts...)...)
	require.NoError(t, err)

	mod, err := rt.Load(ctx, []byte("fake"))
	require.NoError(t, err)

	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = inst.Close(ctx)
		_ = rt.Close(ctx)
	})

	guests := fake.Guests()
	require.NotEmpty(t, guests)
	return &fixture{rt: rt, mod: mod, inst: inst, guest: guests[len(guests)-1], fake: fake}
}

// boxed writes handles into a fresh guest array and returns its box.
func boxed(g *enginetest.Guest, handles ...uint32) uint32 {
	arr := g.Malloc(uint32(len(handles)) * 4)
	for k, h := range handles {
		g.PutU32(arr+uint32(k)*4, h)
	}
	return g.Box(arr, uint32(len(handles)))
}

func nopLogger() Option {
	return WithLogger(zap.NewNop())
}
