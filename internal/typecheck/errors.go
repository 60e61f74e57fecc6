package typecheck

import (
	"fmt"

	"github.com/aldezex/moon/internal/span"
)

// Error is a type error: a fatal, span-tagged rejection of the
// compilation unit.
type Error struct {
	Message string
	Span    span.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("type error: %s", e.Message)
}

func errf(sp span.Span, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: sp}
}
