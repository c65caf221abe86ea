package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, engine.Wazero, cfg.Engine)
	assert.Equal(t, DefaultImportModule, cfg.ImportModule)
	assert.Equal(t, "run", cfg.Exports.Run)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown engine", func(c *Config) { c.Engine = "v8" }},
		{"empty import module", func(c *Config) { c.ImportModule = "" }},
		{"empty run export", func(c *Config) { c.Exports.Run = "" }},
		{"memory limit above 4GiB", func(c *Config) { c.MemoryLimitPages = 65537 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
engine: wasmtime
memory_limit_pages: 256
trace_handles: true
exports:
  run: main
`))
	require.NoError(t, err)
	assert.Equal(t, engine.Wasmtime, cfg.Engine)
	assert.Equal(t, uint32(256), cfg.MemoryLimitPages)
	assert.True(t, cfg.TraceHandles)
	assert.Equal(t, "main", cfg.Exports.Run)
	assert.Equal(t, "__wbindgen_malloc", cfg.Exports.Malloc, "unset keys keep defaults")
	assert.Equal(t, DefaultImportModule, cfg.ImportModule)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig([]byte("engin: wazero\n"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidData))

	_, err = ParseConfig([]byte("engine: [\n"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidData))

	_, err = ParseConfig([]byte("engine: v8\n"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("close_on_context_done: true\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.CloseOnContextDone)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = "v8"
	_, err := New(context.Background(), WithConfig(cfg))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}
