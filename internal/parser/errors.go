package parser

import (
	"fmt"

	"github.com/aldezex/moon/internal/span"
)

// Error is a syntax error: an unexpected token, a missing delimiter,
// a malformed type annotation.
type Error struct {
	Message string
	Span    span.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error: %s", e.Message)
}

func errf(sp span.Span, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: sp}
}
