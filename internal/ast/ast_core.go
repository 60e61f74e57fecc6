// Package ast defines the AST shape produced by the lexer/parser and
// consumed by the typechecker and bytecode compiler. The core pipeline
// treats these node shapes as a fixed external contract; the lexer and
// parser that build them are collaborators outside the core (see
// internal/lexer, internal/parser).
package ast

import "github.com/aldezex/moon/internal/span"

// Program is a sequence of top-level items (functions and statements)
// terminated by an optional tail expression.
type Program struct {
	Stmts []Stmt
	Tail  Expr // nil if the program has no tail expression
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Span() span.Span
	stmtNode()
}

// Param is a function parameter: a name with its declared type.
type Param struct {
	Name string
	Ty   TypeExpr
}

// Let declares a variable, optionally annotated, initialized by Expr.
type LetStmt struct {
	Name string
	Ann  TypeExpr // nil if unannotated
	Expr Expr
	Sp   span.Span
}

func (s *LetStmt) Span() span.Span { return s.Sp }
func (*LetStmt) stmtNode()         {}

// Assign writes Expr through Target, which must be an Ident or Index.
type AssignStmt struct {
	Target Expr
	Expr   Expr
	Sp     span.Span
}

func (s *AssignStmt) Span() span.Span { return s.Sp }
func (*AssignStmt) stmtNode()         {}

// Return is only valid inside a function body.
type ReturnStmt struct {
	Expr Expr // nil for a bare `return;`
	Sp   span.Span
}

func (s *ReturnStmt) Span() span.Span { return s.Sp }
func (*ReturnStmt) stmtNode()         {}

// FnStmt is a named, top-level function declaration with forward
// reference support (it is registered before any body is checked or
// compiled).
type FnStmt struct {
	Name   string
	Params []Param
	RetTy  TypeExpr
	Body   Expr
	Sp     span.Span
}

func (s *FnStmt) Span() span.Span { return s.Sp }
func (*FnStmt) stmtNode()         {}

// ExprStmt evaluates Expr and discards its value.
type ExprStmt struct {
	Expr Expr
	Sp   span.Span
}

func (s *ExprStmt) Span() span.Span { return s.Sp }
func (*ExprStmt) stmtNode()        {}
