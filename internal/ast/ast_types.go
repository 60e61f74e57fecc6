package ast

import "github.com/aldezex/moon/internal/span"

// TypeExpr is the surface syntax for a type annotation: a bare name
// (Int, Bool, String, Unit) or a one-argument generic (Array<T>,
// Object<T>). Only these forms are recognized by the core.
type TypeExpr interface {
	Span() span.Span
	typeExprNode()
}

type NamedType struct {
	Name string
	Sp   span.Span
}

func (t *NamedType) Span() span.Span { return t.Sp }
func (*NamedType) typeExprNode()     {}

type GenericType struct {
	Base string
	Args []TypeExpr
	Sp   span.Span
}

func (t *GenericType) Span() span.Span { return t.Sp }
func (*GenericType) typeExprNode()     {}
