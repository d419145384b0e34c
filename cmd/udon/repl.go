package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/udonscript/udon/internal/logio"
)

// repl holds the accumulated session state: every committed top-level
// function declaration, recompiled as a whole each time a new declaration or
// expression is evaluated, since the compiler has no incremental mode.
// Grounded on original_source/src/programs/repl.cpp's accumulated_code
// buffer and brace-depth continuation, generalized here to persist
// committed function declarations across evaluations (the C++ original's
// interpreter is itself stateful across `compile` calls; recompiling the
// full history reproduces the same user-visible persistence without an
// incremental compiler). Local variables do not persist between
// evaluations, matching the original's documented behavior.
type repl struct {
	history    []string
	evalCount  int
	braceDepth int
	pending    strings.Builder
	log        *logio.Logger
	flags      commonFlags
}

func runRepl(args []string, log *logio.Logger) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	memLimit := fs.Int("mem-limit", 0, "enable a heap byte limit")
	trace := fs.Bool("trace", false, "enable VM trace logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := &repl{log: log, flags: commonFlags{memLimit: *memLimit, trace: *trace}}

	fmt.Println("udon REPL")
	fmt.Println("Type 'exit' or 'quit' to exit, 'help' for help")
	fmt.Println("==============================================")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if r.pending.Len() == 0 {
			fmt.Print(">>> ")
		} else {
			fmt.Print("... ")
		}
		if !scanner.Scan() {
			break
		}
		if done := r.handleLine(strings.TrimSpace(scanner.Text())); done {
			break
		}
	}
	return scanner.Err()
}

func (r *repl) handleLine(line string) (done bool) {
	switch line {
	case "exit", "quit":
		fmt.Println("Goodbye!")
		return true
	case "help":
		r.printHelp()
		return false
	case "clear":
		r.pending.Reset()
		r.braceDepth = 0
		fmt.Println("Input cleared.")
		return false
	case "":
		if r.pending.Len() == 0 {
			return false
		}
	}

	if r.pending.Len() > 0 {
		r.pending.WriteByte('\n')
	}
	r.pending.WriteString(line)
	for _, c := range line {
		switch c {
		case '{':
			r.braceDepth++
		case '}':
			r.braceDepth--
		}
	}
	if r.braceDepth > 0 {
		return false
	}

	code := r.pending.String()
	r.pending.Reset()
	r.braceDepth = 0
	r.evaluate(code)
	return false
}

func (r *repl) evaluate(code string) {
	trimmed := strings.TrimSpace(code)
	isDecl := strings.HasPrefix(trimmed, "function")

	if isDecl {
		candidate := append(append([]string{}, r.history...), code)
		if _, err := lowerSource(strings.Join(candidate, "\n")); err != nil {
			fmt.Println("Error:", err)
			return
		}
		r.history = candidate
		fmt.Println("OK")
		return
	}

	r.evalCount++
	fnName := fmt.Sprintf("__repl_eval_%d", r.evalCount)
	src := strings.Join(r.history, "\n") + "\nfunction " + fnName + "() {\n" + code + "\n}\n"

	machine, err := buildVM(src, r.flags, os.Stdout, r.log)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	// Mirrors original_source/src/programs/repl.cpp: only errors are surfaced
	// automatically. A fall-through with no explicit `return` always yields
	// None (compiler.go's implicit trailing return), so expression statements
	// are evaluated for their side effects (e.g. print) rather than echoed.
	if _, err := machine.Run(fnName); err != nil {
		fmt.Println("Runtime error:", err)
	}
}

func (r *repl) printHelp() {
	fmt.Println(`Commands:
  exit, quit - Exit the REPL
  help       - Show this help
  clear      - Clear pending multi-line input

Usage:
  - Enter expressions to evaluate them
  - Define functions with 'function name(...) { ... }' to persist them
  - Multi-line input continues while braces are unbalanced

Examples:
  >>> print("Hello")
  >>> function add(a, b) { return a + b }
  >>> add(5, 3)`)
}
