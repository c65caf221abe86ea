package runtime

import (
	"bytes"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
)

// DefaultImportModule is the import module name the stack VM links against.
const DefaultImportModule = "./simple_vm_wasm"

var validate = validator.New()

// Exports names the guest exports the dispatcher relies on.
type Exports struct {
	Memory    string `yaml:"memory" validate:"required"`
	Malloc    string `yaml:"malloc" validate:"required"`
	Free      string `yaml:"free" validate:"required"`
	Run       string `yaml:"run" validate:"required"`
	BoxedPtr  string `yaml:"boxed_ptr" validate:"required"`
	BoxedLen  string `yaml:"boxed_len" validate:"required"`
	BoxedFree string `yaml:"boxed_free" validate:"required"`
}

// Config holds runtime settings.
type Config struct {
	// Engine selects the backend: "wazero" (default) or "wasmtime".
	Engine string `yaml:"engine" validate:"omitempty,oneof=wazero wasmtime"`

	// ImportModule is the module name host imports are provided under.
	ImportModule string `yaml:"import_module" validate:"required"`

	Exports Exports `yaml:"exports"`

	// MemoryLimitPages caps guest memory in 64KiB pages; 0 is the backend default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" validate:"lte=65536"`

	// TraceHandles logs every handle table event at debug level.
	TraceHandles bool `yaml:"trace_handles"`

	// CloseOnContextDone aborts guest code when the call context ends.
	CloseOnContextDone bool `yaml:"close_on_context_done"`
}

// DefaultConfig returns the settings for a wasm-bindgen built stack VM.
func DefaultConfig() Config {
	return Config{
		Engine:       engine.Wazero,
		ImportModule: DefaultImportModule,
		Exports: Exports{
			Memory:    "memory",
			Malloc:    "__wbindgen_malloc",
			Free:      "__wbindgen_free",
			Run:       "run",
			BoxedPtr:  "__wbindgen_boxed_str_ptr",
			BoxedLen:  "__wbindgen_boxed_str_len",
			BoxedFree: "__wbindgen_boxed_str_free",
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid runtime config")
	}
	return nil
}

func (c Config) engineConfig() engine.Config {
	return engine.Config{
		MemoryLimitPages:   c.MemoryLimitPages,
		CloseOnContextDone: c.CloseOnContextDone,
	}
}

// ParseConfig reads YAML on top of DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config "+path)
	}
	return ParseConfig(data)
}
