// Package diagnose renders a span.Span error against the original
// source text: the enclosing line and a caret run under the span, per
// spec.md §7. Color is gated on isatty.IsTerminal the same way
// funxy's own builtins_term.go decides whether to emit ANSI escapes.
package diagnose

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/aldezex/moon/internal/span"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// Source pairs a file path with its text, so a span can be rendered
// against the line it falls on.
type Source struct {
	Path string
	Text string
}

// lineCol converts a byte offset to a 1-based (line, column) pair and
// returns the full text of that line (without its trailing newline).
func (s Source) lineCol(offset int) (line, col int, lineText string) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.Text) {
		offset = len(s.Text)
	}

	line = 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if s.Text[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	col = offset - lineStart + 1

	lineEnd := len(s.Text)
	if idx := strings.IndexByte(s.Text[lineStart:], '\n'); idx >= 0 {
		lineEnd = lineStart + idx
	}
	return line, col, s.Text[lineStart:lineEnd]
}

// LineCol converts a byte offset to a 1-based (line, col) pair; it
// satisfies bytecode.LineCol so a Source can feed the disassembler
// directly.
func (s Source) LineCol(offset int) (line, col int) {
	line, col, _ = s.lineCol(offset)
	return line, col
}

// RenderSpan renders message at sp as "path:line:col: message" followed
// by the source line and a caret run under the span (minimum one
// caret), matching the original implementation's Source.render_span.
func (s Source) RenderSpan(sp span.Span, message string) string {
	line, col, lineText := s.lineCol(sp.Start)

	width := sp.End - sp.Start
	if width < 1 {
		width = 1
	}
	// Clamp the caret run so it never runs past the rendered line.
	if col-1+width > len(lineText) {
		width = len(lineText) - (col - 1)
		if width < 1 {
			width = 1
		}
	}

	path := s.Path
	if path == "" {
		path = "<input>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%d: %s\n", path, line, col, message)
	b.WriteString(lineText)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", col-1))
	b.WriteString(caretRun(width))
	return b.String()
}

func caretRun(width int) string {
	return strings.Repeat("^", width)
}

// colorWanted reports whether stdout is a real terminal that should
// receive ANSI color, honoring NO_COLOR like funxy's detectColorLevel.
// This is the "auto" mode's decision; "always"/"never" (set via
// moss.yaml's color key, see internal/cliconfig) bypass it entirely.
func colorWanted() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// RenderSpanColor is RenderSpan with the caret line wrapped in ANSI
// red depending on mode: "always" forces color, "never" forces plain
// text, and "auto" (or "") falls back to colorWanted's isatty/NO_COLOR
// check. mode is expected to already be validated (cliconfig.Parse
// rejects anything else), so an unrecognized value is treated as auto.
func (s Source) RenderSpanColor(sp span.Span, message string, mode string) string {
	plain := s.RenderSpan(sp, message)

	var colorize bool
	switch mode {
	case "always":
		colorize = true
	case "never":
		colorize = false
	default:
		colorize = colorWanted()
	}
	if !colorize {
		return plain
	}

	lines := strings.SplitN(plain, "\n", 3)
	if len(lines) != 3 {
		return plain
	}
	return lines[0] + "\n" + lines[1] + "\n" + ansiRed + lines[2] + ansiReset
}
