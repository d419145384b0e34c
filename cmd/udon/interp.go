package main

import (
	"io"

	"github.com/udonscript/udon/builtin"
	"github.com/udonscript/udon/compiler"
	"github.com/udonscript/udon/host"
	"github.com/udonscript/udon/internal/logio"
	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/subinterp"
	"github.com/udonscript/udon/vm"
)

// commonFlags are the construction knobs every subcommand that builds a VM
// shares, mirroring jcorbin-gothird/main.go's -mem-limit/-trace flags.
type commonFlags struct {
	memLimit int
	trace    bool
}

// newRegistry builds a host registry with the reference builtin library plus
// import/run_eventhandlers wired against a fresh sub-interpreter manager
// sharing that same registry (builtin.RegisterImports' documented
// construction order: registry, then manager, then the import wiring).
func newRegistry() (*host.Registry, *subinterp.Manager) {
	reg := host.NewRegistry()
	builtin.RegisterReference(reg)
	mgr := subinterp.NewManager(reg)
	builtin.RegisterImports(reg, mgr)
	return reg, mgr
}

// buildVM compiles and lowers src, then constructs a VM over it using the
// given flags, output writer, and trace logger.
func buildVM(src string, flags commonFlags, out io.Writer, log *logio.Logger) (*vm.VM, error) {
	prog, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	lowered, err := lower.Lower(prog)
	if err != nil {
		return nil, err
	}

	reg, _ := newRegistry()
	opts := []vm.Option{
		vm.WithBuiltins(reg),
		vm.WithOutput(out),
		vm.WithMemLimit(flags.memLimit),
	}
	if flags.trace {
		opts = append(opts, vm.WithLogf(log.Leveledf("TRACE")))
	}
	return vm.New(lowered, opts...), nil
}

// lowerSource is the dump/repl-shared compile+lower step, exposed separately
// from buildVM since `dump` never constructs a VM.
func lowerSource(src string) (*lower.Program, error) {
	prog, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	return lower.Lower(prog)
}
