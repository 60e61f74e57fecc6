package compiler

import (
	"fmt"

	"github.com/aldezex/moon/internal/span"
)

// Error is a compile error: a malformed assignment target, a
// duplicate function declaration, or (in principle) any other
// structural problem the typechecker doesn't already catch.
type Error struct {
	Message string
	Span    span.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("compile error: %s", e.Message)
}

func errf(sp span.Span, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: sp}
}
