package compiler

import (
	"fmt"

	"github.com/udonscript/udon/token"
)

// Error is a compile-time diagnostic carrying the position it occurred at,
// per spec.md §7 ("Any lexical or parse error returns a record with
// line/column and a single message; compilation stops immediately").
type Error struct {
	Pos     token.Pos
	Message string
	Cause   error // optional wrapped error; the parser itself never sets it
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func errf(pos token.Pos, format string, args ...interface{}) *Error {
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
