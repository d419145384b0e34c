package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/udonscript/udon/dump"
	"github.com/udonscript/udon/internal/logio"
)

// runDump implements `udon dump <script> [fn]` (spec.md §6).
func runDump(args []string, _ *logio.Logger) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("usage: udon dump <script> [fn]")
	}

	src, err := os.ReadFile(rest[0])
	if err != nil {
		return err
	}
	prog, err := lowerSource(string(src))
	if err != nil {
		return err
	}

	d := dump.New(prog, os.Stdout)
	if len(rest) > 1 {
		return d.DumpFunction(rest[1])
	}
	return d.Dump()
}
