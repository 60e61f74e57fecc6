package vm

import (
	"fmt"

	"github.com/aldezex/moon/internal/span"
)

// Error is a runtime fault: stack underflow, an out-of-range index, a
// call to an undefined name, a type mismatch a typecheck-then-compile
// pipeline would normally already have ruled out (reachable only when
// the VM runs hand-built bytecode, e.g. in tests).
type Error struct {
	Message string
	Span    span.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Message)
}

func errf(sp span.Span, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: sp}
}
