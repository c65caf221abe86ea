package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/vmbridge/engine"
	"github.com/wippyai/vmbridge/errors"
	"github.com/wippyai/vmbridge/runtime"
)

type options struct {
	wasm        string
	program     string
	config      string
	engine      string
	verbose     bool
	interactive bool
	args        []string
}

func main() {
	var o options
	flag.StringVar(&o.wasm, "wasm", "", "Path to the stack VM wasm module")
	flag.StringVar(&o.program, "program", "", "Path to the program to run")
	flag.StringVar(&o.config, "config", "", "YAML runtime config (optional)")
	flag.StringVar(&o.engine, "engine", "", "Engine backend: wazero or wasmtime (overrides config)")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()
	o.args = flag.Args()

	if o.wasm == "" || o.program == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <vm.wasm> -program <file> [input words...]")
		fmt.Fprintln(os.Stderr, "       run -wasm <vm.wasm> -program <file> -i  (interactive mode)")
		os.Exit(1)
	}

	if err := setupLogging(o.verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if o.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(o); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(o); err != nil {
		if msg, ok := errors.BoundaryMessage(err); ok {
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func setupLogging(verbose bool) error {
	if !verbose {
		return nil
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	runtime.SetLogger(l)
	engine.SetLogger(l.Named("engine"))
	return nil
}

func loadConfig(o options) (runtime.Config, error) {
	cfg := runtime.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = runtime.LoadConfig(o.config); err != nil {
			return cfg, err
		}
	}
	if o.engine != "" {
		cfg.Engine = o.engine
	}
	return cfg, cfg.Validate()
}

// session is a loaded program bound to one instance.
type session struct {
	rt      *runtime.Runtime
	mod     *runtime.Module
	inst    *runtime.Instance
	program string
}

func open(ctx context.Context, o options) (*session, error) {
	cfg, err := loadConfig(o)
	if err != nil {
		return nil, err
	}

	program, err := os.ReadFile(o.program)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	wasm, err := os.ReadFile(o.wasm)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	rt, err := runtime.New(ctx, runtime.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	mod, err := rt.Load(ctx, wasm)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("load module: %w", err), rt.Close(ctx))
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		err = fmt.Errorf("instantiate: %w", err)
		return nil, multierr.Combine(err, mod.Close(ctx), rt.Close(ctx))
	}
	return &session{rt: rt, mod: mod, inst: inst, program: string(program)}, nil
}

func (s *session) execute(ctx context.Context, input string) ([]string, error) {
	return s.inst.Execute(ctx, s.program, input)
}

// close releases the instance, the module and the runtime, in that order.
func (s *session) close(ctx context.Context) error {
	return multierr.Combine(
		s.inst.Close(ctx),
		s.mod.Close(ctx),
		s.rt.Close(ctx),
	)
}

// input joins the remaining arguments, or reads stdin when it is piped.
func input(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func run(o options) (err error) {
	ctx := context.Background()

	in, err := input(o.args)
	if err != nil {
		return err
	}

	s, err := open(ctx, o)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.close(ctx))
	}()

	out, err := s.execute(ctx, in)
	if err != nil {
		return err
	}
	for _, line := range out {
		fmt.Println(line)
	}
	return nil
}
