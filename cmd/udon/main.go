// Command udon is the udon language's CLI: running scripts, disassembling
// them, an interactive REPL, and a directory-of-fixtures test runner
// (spec.md §6 "External interfaces"), plumbed through the standard library
// flag package exactly the way jcorbin-gothird/main.go does.
package main

import (
	"fmt"
	"os"

	"github.com/udonscript/udon/internal/logio"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer os.Exit(log.ExitCode())

	var err error
	switch os.Args[1] {
	case "us":
		err = runUs(os.Args[2:], &log)
	case "dump":
		err = runDump(os.Args[2:], &log)
	case "repl":
		err = runRepl(os.Args[2:], &log)
	case "testrunner":
		err = runTestrunner(os.Args[2:], &log)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "udon: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	log.ErrorIf(err)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: udon <command> [arguments]

commands:
  us [-entry name] <script...>   compile and run one or more scripts, calling
                                  entry (default "main"); "-" reads stdin
  dump <script> [fn]    print disassembly of script, or just function fn
  repl                  start an interactive read-eval-print loop
  testrunner [dir]      run *.udon/.expected fixture pairs under dir`)
}
