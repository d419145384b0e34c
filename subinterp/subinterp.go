// Package subinterp implements udon's `import` machinery (spec.md §4.6):
// each imported module runs in its own sub-interpreter with a private heap
// and globals table, sharing only the parent's read-only builtin registry.
// Grounded on jcorbin-gothird/core.go's Core.closers/Close() pattern,
// generalized from closing I/O handles to tearing down child interpreters.
package subinterp

import (
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/udonscript/udon/compiler"
	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

// child is one owned sub-interpreter.
type child struct {
	path string
	vm   *vm.VM
}

// Manager owns every sub-interpreter a parent interpreter has imported,
// indexed by the integer id `import` hands back to script code via the
// forwarding Array (package builtin builds that Array; Manager only knows
// how to create and address children).
type Manager struct {
	builtins vm.Builtins
	children []*child
}

// NewManager returns a Manager whose children share builtins, the parent's
// own registry, read-only (spec.md §4.6: "sharing the host's builtins").
func NewManager(builtins vm.Builtins) *Manager {
	return &Manager{builtins: builtins}
}

// Import compiles and runs the initializer of the single script at path,
// returning its child id.
func (m *Manager) Import(path string) (int, error) {
	ids, err := m.ImportAll([]string{path})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// ImportAll compiles every path concurrently — independent work, since each
// compilation only touches its own AST — then constructs and initializes
// each child VM sequentially, preserving the single-threaded execution
// model spec.md §5 requires (concurrency here is confined to the compile
// step, never to VM execution).
func (m *Manager) ImportAll(paths []string) ([]int, error) {
	lowered := make([]*lower.Program, len(paths))

	var g errgroup.Group
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			prog, err := compiler.Compile(string(src))
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			lp, err := lower.Lower(prog)
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			lowered[i] = lp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]int, len(paths))
	for i, lp := range lowered {
		cvm := vm.New(lp, vm.WithBuiltins(m.builtins))
		if err := cvm.Init(); err != nil {
			return nil, fmt.Errorf("import %s: %w", paths[i], err)
		}
		ids[i] = len(m.children)
		m.children = append(m.children, &child{path: paths[i], vm: cvm})
	}
	return ids, nil
}

func (m *Manager) get(id int) (*child, error) {
	if id < 0 || id >= len(m.children) {
		return nil, fmt.Errorf("subinterp: no such sub-interpreter %d", id)
	}
	return m.children[id], nil
}

// Globals returns the child's global table, used to enumerate names when
// building the forwarding Array import() returns.
func (m *Manager) Globals(id int) (*value.Globals, error) {
	c, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return c.vm.Globals(), nil
}

// Call invokes name on the child identified by id.
func (m *Manager) Call(id int, name string, positional []value.Value, named map[string]value.Value) (value.Value, error) {
	c, err := m.get(id)
	if err != nil {
		return value.None, err
	}
	return c.vm.CallNamed(name, positional, named)
}

// RunEventHandlers dispatches event on the child identified by id.
func (m *Manager) RunEventHandlers(id int, event string) error {
	c, err := m.get(id)
	if err != nil {
		return err
	}
	return c.vm.RunEventHandlers(event)
}

// Close drops every owned child, mirroring jcorbin-gothird's
// Core.Close() closing every registered closer.
func (m *Manager) Close() {
	m.children = nil
}
