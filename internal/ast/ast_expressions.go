package ast

import "github.com/aldezex/moon/internal/span"

// Expr is implemented by every expression node.
type Expr interface {
	Span() span.Span
	exprNode()
}

type UnaryOp uint8

const (
	Neg UnaryOp = iota
	Not
)

type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
)

type IntLit struct {
	Value int64
	Sp    span.Span
}

func (e *IntLit) Span() span.Span { return e.Sp }
func (*IntLit) exprNode()         {}

type BoolLit struct {
	Value bool
	Sp    span.Span
}

func (e *BoolLit) Span() span.Span { return e.Sp }
func (*BoolLit) exprNode()         {}

type StringLit struct {
	Value string
	Sp    span.Span
}

func (e *StringLit) Span() span.Span { return e.Sp }
func (*StringLit) exprNode()         {}

type Ident struct {
	Name string
	Sp   span.Span
}

func (e *Ident) Span() span.Span { return e.Sp }
func (*Ident) exprNode()         {}

// Group is a parenthesized expression; it carries its own span so that
// `(expr)` can be blamed distinctly from `expr` in diagnostics, but it
// compiles and typechecks transparently as its inner expression.
type Group struct {
	Expr Expr
	Sp   span.Span
}

func (e *Group) Span() span.Span { return e.Sp }
func (*Group) exprNode()         {}

// ArrayLit is the literal `[e1, e2, ...]`. Must be non-empty unless the
// enclosing `let` carries an Array<T> annotation.
type ArrayLit struct {
	Elements []Expr
	Sp       span.Span
}

func (e *ArrayLit) Span() span.Span { return e.Sp }
func (*ArrayLit) exprNode()         {}

// ObjectProp is one `key: value` entry of an ObjectLit.
type ObjectProp struct {
	Key   string
	Value Expr
}

// ObjectLit is the literal `#{ k1: v1, "k2": v2, ... }`.
type ObjectLit struct {
	Props []ObjectProp
	Sp    span.Span
}

func (e *ObjectLit) Span() span.Span { return e.Sp }
func (*ObjectLit) exprNode()         {}

// Block is `{ stmts... tail? }`; it always opens and closes one
// lexical scope.
type Block struct {
	Stmts []Stmt
	Tail  Expr // nil if the block has no tail expression
	Sp    span.Span
}

func (e *Block) Span() span.Span { return e.Sp }
func (*Block) exprNode()         {}

type If struct {
	Cond Expr
	Then Expr
	Else Expr // nil if no else branch (typechecks as an empty Block -> Unit)
	Sp   span.Span
}

func (e *If) Span() span.Span { return e.Sp }
func (*If) exprNode()         {}

type UnaryExpr struct {
	Op   UnaryOp
	Expr Expr
	Sp   span.Span
}

func (e *UnaryExpr) Span() span.Span { return e.Sp }
func (*UnaryExpr) exprNode()         {}

type BinaryExpr struct {
	Lhs Expr
	Op  BinaryOp
	Rhs Expr
	Sp  span.Span
}

func (e *BinaryExpr) Span() span.Span { return e.Sp }
func (*BinaryExpr) exprNode()         {}

// Call evaluates Callee then Args left-to-right.
type Call struct {
	Callee Expr
	Args   []Expr
	Sp     span.Span
}

func (e *Call) Span() span.Span { return e.Sp }
func (*Call) exprNode()         {}

// Index is `target[index]`, valid for Array<T> with an Int index or
// Object<T> with a String index.
type Index struct {
	Target Expr
	Idx    Expr
	Sp     span.Span
}

func (e *Index) Span() span.Span { return e.Sp }
func (*Index) exprNode()         {}

// FnExpr is an anonymous function literal; it compiles to a fresh
// module function plus a MakeClosure at the creation site.
type FnExpr struct {
	Params []Param
	RetTy  TypeExpr
	Body   Expr
	Sp     span.Span
}

func (e *FnExpr) Span() span.Span { return e.Sp }
func (*FnExpr) exprNode()         {}
