// Package lexer turns source text into a flat token stream for the
// parser. It is a collaborator outside the typecheck/compile/vm core:
// its only contract with the rest of the pipeline is the ast.Program
// shape the parser builds from its tokens.
package lexer

import "github.com/aldezex/moon/internal/span"

// Kind discriminates token variants.
type Kind uint8

const (
	Ident Kind = iota
	Int
	String

	KwLet
	KwTrue
	KwFalse
	KwFn
	KwIf
	KwElse
	KwReturn

	Plus
	Minus
	Star
	Slash
	Percent
	Bang
	Equal
	EqualEqual
	BangEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	AndAnd
	OrOr

	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Hash // '#', only meaningful immediately before '{' (object literal)
	Comma
	Colon
	Arrow // "->"
	Semicolon

	Eof
)

// Token pairs a Kind with its payload (IVal/SVal, depending on Kind)
// and source span.
type Token struct {
	Kind Kind
	SVal string // Ident name, String contents
	IVal int64  // Int value
	Span span.Span
}
