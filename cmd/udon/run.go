package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/udonscript/udon/internal/fileinput"
	"github.com/udonscript/udon/internal/logio"
	"github.com/udonscript/udon/value"
)

// runUs implements `udon us <script...>` (spec.md §6). Script arguments are
// read through a fileinput.Input queue, the same sequential multi-source
// reading this project's teacher uses to chain a named file after its
// embedded kernel source; here it lets "udon us a.udon b.udon" concatenate a
// program split across files, or "udon us -" read the program from stdin,
// before a single compile of the joined source.
func runUs(args []string, log *logio.Logger) error {
	fs := flag.NewFlagSet("us", flag.ExitOnError)
	memLimit := fs.Int("mem-limit", 0, "enable a heap byte limit")
	trace := fs.Bool("trace", false, "enable VM trace logging")
	entryFlag := fs.String("entry", "main", "function to invoke after loading the script(s)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	scriptPaths := fs.Args()
	if len(scriptPaths) < 1 {
		return fmt.Errorf("usage: udon us [-entry name] <script...>")
	}
	entry := *entryFlag

	src, err := readScripts(scriptPaths)
	if err != nil {
		return err
	}

	machine, err := buildVM(src, commonFlags{memLimit: *memLimit, trace: *trace}, os.Stdout, log)
	if err != nil {
		return err
	}

	result, err := machine.Run(entry)
	if err != nil {
		return err
	}
	if !result.IsNone() {
		fmt.Println(formatResult(result))
	}
	return nil
}

func formatResult(v value.Value) string {
	return v.String()
}

// readScripts concatenates one or more script sources into a single string,
// queuing each path in turn behind a fileinput.Input. A path of "-" reads
// from stdin.
func readScripts(paths []string) (string, error) {
	in := &fileinput.Input{}
	for _, p := range paths {
		if p == "-" {
			in.Queue = append(in.Queue, os.Stdin)
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return "", err
		}
		defer f.Close()
		in.Queue = append(in.Queue, f)
	}

	var sb strings.Builder
	for {
		r, _, err := in.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if r == 0 {
			// Input reports a zero rune with a nil error when it moves on to
			// the next queued stream; it is not part of the source.
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
