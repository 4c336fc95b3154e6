// Package errs defines the three disjoint error kinds ember's pipeline can
// raise, so cmd/ember can type-switch on what came back from the compiler
// or VM and pick the right exit code (§6/§7 of the language's own spec)
// without parsing error strings.
package errs

import (
	"fmt"
	"strings"
)

// IOError wraps a failure reading source (file open/read, or an allocation
// failure the standard library surfaces as an error). It is never
// recoverable - the driver prints it and exits immediately.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// CompileError carries every diagnostic the compiler collected in one
// panic-mode pass, not just the first - §7 requires reporting as many
// independent errors as possible before returning INTERPRET_COMPILE_ERR.
type CompileError struct {
	Diagnostics []string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Diagnostics, "\n")
}

// RuntimeError is raised during VM execution: an arithmetic operand that
// isn't a number, an ADD between incompatible types, or a reference to an
// undefined global. Message is the formatted "what went wrong" line; Line
// is the source line active when the fault occurred, used to render the
// trailing "[line N] in script" per §7.
type RuntimeError struct {
	Message string
	Line    int
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Message, e.Line)
}

// NewRuntimeError is a small constructor so VM call sites read as
// errs.NewRuntimeError(msg, line) instead of repeating the struct literal
// at every one of the dispatch loop's type-check failures.
func NewRuntimeError(message string, line int) *RuntimeError {
	return &RuntimeError{Message: message, Line: line}
}
