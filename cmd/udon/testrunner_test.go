package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/internal/logio"
)

func TestRunFixturePassesOnMatchingOutput(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "greet.udon")
	require.NoError(t, os.WriteFile(script, []byte(`function main() { print("hi") }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.expected"), []byte("hi\n\n"), 0o644))

	log := &logio.Logger{}
	result := runFixture(script, commonFlags{}, log)
	require.True(t, result.passed(), "%v", result.err)
}

func TestRunFixtureFailsOnMismatchedOutput(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "greet.udon")
	require.NoError(t, os.WriteFile(script, []byte(`function main() { print("hi") }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.expected"), []byte("bye"), 0o644))

	log := &logio.Logger{}
	result := runFixture(script, commonFlags{}, log)
	require.False(t, result.passed())
}

func TestRunFixtureFailPrefixExpectsRuntimeError(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail_divzero.udon")
	require.NoError(t, os.WriteFile(script, []byte(`function main() { return 1 / 0 }`), 0o644))

	log := &logio.Logger{}
	result := runFixture(script, commonFlags{}, log)
	require.True(t, result.passed(), "%v", result.err)
	require.True(t, result.failOK)
}

func TestRunFixtureFailPrefixFailsWhenNoErrorOccurs(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail_nothing.udon")
	require.NoError(t, os.WriteFile(script, []byte(`function main() { return 1 }`), 0o644))

	log := &logio.Logger{}
	result := runFixture(script, commonFlags{}, log)
	require.False(t, result.passed())
}

func TestFormatReportCountsPassAndFail(t *testing.T) {
	results := []testResult{{path: "a"}, {path: "b", err: errString("boom")}}
	report := formatReport(results)
	require.Contains(t, report, "PASS a")
	require.Contains(t, report, "FAIL b")
	require.Contains(t, report, "1/2 passed")
}

type errString string

func (e errString) Error() string { return string(e) }
