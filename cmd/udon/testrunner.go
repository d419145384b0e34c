package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/udonscript/udon/internal/logio"
	"github.com/udonscript/udon/internal/panicerr"
)

// testResult is one *.udon/.expected fixture's outcome.
type testResult struct {
	path   string
	failOK bool // true if expected to error (fail_* convention)
	err    error
}

func (r testResult) passed() bool {
	return r.err == nil
}

// runTestrunner implements `udon testrunner [dir]` (spec.md §6): it walks
// every *.udon file under dir, compiles and runs it against a sibling
// .expected file (trailing whitespace trimmed before comparing), treats a
// `fail_*`-prefixed file as expected to produce a runtime or compile error,
// and writes tmp/testsuite.report. Each fixture runs inside
// internal/panicerr.Recover so a single panicking script cannot abort the
// run, the same isolation role it plays wrapping jcorbin-gothird's vm.Run.
func runTestrunner(args []string, log *logio.Logger) error {
	fs := flag.NewFlagSet("testrunner", flag.ExitOnError)
	memLimit := fs.Int("mem-limit", 0, "enable a heap byte limit")
	trace := fs.Bool("trace", false, "enable VM trace logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := "."
	if rest := fs.Args(); len(rest) > 0 {
		dir = rest[0]
	}

	var scripts []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".udon") {
			scripts = append(scripts, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	flags := commonFlags{memLimit: *memLimit, trace: *trace}
	results := make([]testResult, 0, len(scripts))
	for _, path := range scripts {
		results = append(results, runFixture(path, flags, log))
	}

	report := formatReport(results)
	if err := writeReport(report); err != nil {
		return err
	}
	fmt.Print(report)

	for _, r := range results {
		if !r.passed() {
			return fmt.Errorf("%d/%d fixtures failed", countFailed(results), len(results))
		}
	}
	return nil
}

func runFixture(path string, flags commonFlags, log *logio.Logger) testResult {
	base := filepath.Base(path)
	expectFail := strings.HasPrefix(base, "fail_")
	result := testResult{path: path, failOK: expectFail}

	result.err = panicerr.Recover(path, func() error {
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		machine, buildErr := buildVM(string(src), flags, &out, log)
		if buildErr != nil {
			if expectFail {
				return nil
			}
			return buildErr
		}

		_, runErr := machine.Run("main")
		if expectFail {
			if runErr == nil {
				return fmt.Errorf("expected an error, got none")
			}
			return nil
		}
		if runErr != nil {
			return runErr
		}

		expectedPath := strings.TrimSuffix(path, ".udon") + ".expected"
		expected, err := os.ReadFile(expectedPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", expectedPath, err)
		}

		got := strings.TrimRight(out.String(), " \t\r\n")
		want := strings.TrimRight(string(expected), " \t\r\n")
		if got != want {
			return fmt.Errorf("output mismatch:\n--- want ---\n%s\n--- got ---\n%s", want, got)
		}
		return nil
	})
	return result
}

func countFailed(results []testResult) int {
	n := 0
	for _, r := range results {
		if !r.passed() {
			n++
		}
	}
	return n
}

func formatReport(results []testResult) string {
	var buf strings.Builder
	passed := 0
	for _, r := range results {
		status := "PASS"
		if !r.passed() {
			status = "FAIL"
		} else {
			passed++
		}
		tag := ""
		if r.failOK {
			tag = " (expected-fail)"
		}
		fmt.Fprintf(&buf, "%s %s%s\n", status, r.path, tag)
		if !r.passed() {
			fmt.Fprintf(&buf, "  %v\n", r.err)
		}
	}
	fmt.Fprintf(&buf, "%d/%d passed\n", passed, len(results))
	return buf.String()
}

func writeReport(report string) error {
	if err := os.MkdirAll("tmp", 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join("tmp", "testsuite.report"), []byte(report), 0o644)
}
