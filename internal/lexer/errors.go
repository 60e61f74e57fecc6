package lexer

import (
	"fmt"

	"github.com/aldezex/moon/internal/span"
)

// Error reports a malformed token: an unterminated string, an unknown
// escape, an out-of-range integer literal, or a stray character.
type Error struct {
	Message string
	Span    span.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("lex error: %s", e.Message)
}

func errf(sp span.Span, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: sp}
}
