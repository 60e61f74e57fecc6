// Package astprint pretty-prints an ast.Program as an indented tree,
// for the CLI's `ast` subcommand. It is the thinnest possible dump of
// the AST shapes in spec.md §6 — an external-collaborator concern with
// no independent design weight, in the same spirit as funxy's own
// internal/prettyprinter but rendering a debug tree instead of
// round-trippable source.
package astprint

import (
	"fmt"
	"strings"

	"github.com/aldezex/moon/internal/ast"
)

type printer struct {
	b      strings.Builder
	indent int
}

// Program renders program as an indented tree of its statements and
// tail expression.
func Program(program *ast.Program) string {
	p := &printer{}
	p.line("Program")
	p.indent++
	for _, s := range program.Stmts {
		p.stmt(s)
	}
	if program.Tail != nil {
		p.line("Tail:")
		p.indent++
		p.expr(program.Tail)
		p.indent--
	}
	p.indent--
	return p.b.String()
}

func (p *printer) line(format string, args ...any) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.b, format, args...)
	p.b.WriteByte('\n')
}

func (p *printer) stmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.LetStmt:
		p.line("Let %s", st.Name)
		p.indent++
		p.expr(st.Expr)
		p.indent--
	case *ast.AssignStmt:
		p.line("Assign")
		p.indent++
		p.expr(st.Target)
		p.expr(st.Expr)
		p.indent--
	case *ast.ReturnStmt:
		p.line("Return")
		if st.Expr != nil {
			p.indent++
			p.expr(st.Expr)
			p.indent--
		}
	case *ast.FnStmt:
		p.line("Fn %s(%s)", st.Name, paramList(st.Params))
		p.indent++
		p.expr(st.Body)
		p.indent--
	case *ast.ExprStmt:
		p.line("ExprStmt")
		p.indent++
		p.expr(st.Expr)
		p.indent--
	default:
		p.line("<unknown stmt>")
	}
}

func paramList(params []ast.Param) string {
	names := make([]string, len(params))
	for i, pm := range params {
		names[i] = pm.Name + ": " + typeExprString(pm.Ty)
	}
	return strings.Join(names, ", ")
}

func typeExprString(t ast.TypeExpr) string {
	switch te := t.(type) {
	case *ast.NamedType:
		return te.Name
	case *ast.GenericType:
		args := make([]string, len(te.Args))
		for i, a := range te.Args {
			args[i] = typeExprString(a)
		}
		return te.Base + "<" + strings.Join(args, ", ") + ">"
	default:
		return "?"
	}
}

func (p *printer) expr(e ast.Expr) {
	switch ex := e.(type) {
	case *ast.IntLit:
		p.line("Int %d", ex.Value)
	case *ast.BoolLit:
		p.line("Bool %t", ex.Value)
	case *ast.StringLit:
		p.line("String %q", ex.Value)
	case *ast.Ident:
		p.line("Ident %s", ex.Name)
	case *ast.Group:
		p.line("Group")
		p.indent++
		p.expr(ex.Expr)
		p.indent--
	case *ast.ArrayLit:
		p.line("Array")
		p.indent++
		for _, el := range ex.Elements {
			p.expr(el)
		}
		p.indent--
	case *ast.ObjectLit:
		p.line("Object")
		p.indent++
		for _, prop := range ex.Props {
			p.line("%s:", prop.Key)
			p.indent++
			p.expr(prop.Value)
			p.indent--
		}
		p.indent--
	case *ast.Block:
		p.line("Block")
		p.indent++
		for _, s := range ex.Stmts {
			p.stmt(s)
		}
		if ex.Tail != nil {
			p.expr(ex.Tail)
		}
		p.indent--
	case *ast.If:
		p.line("If")
		p.indent++
		p.line("Cond:")
		p.indent++
		p.expr(ex.Cond)
		p.indent--
		p.line("Then:")
		p.indent++
		p.expr(ex.Then)
		p.indent--
		if ex.Else != nil {
			p.line("Else:")
			p.indent++
			p.expr(ex.Else)
			p.indent--
		}
		p.indent--
	case *ast.UnaryExpr:
		p.line("Unary %s", unaryOpString(ex.Op))
		p.indent++
		p.expr(ex.Expr)
		p.indent--
	case *ast.BinaryExpr:
		p.line("Binary %s", binaryOpString(ex.Op))
		p.indent++
		p.expr(ex.Lhs)
		p.expr(ex.Rhs)
		p.indent--
	case *ast.Call:
		p.line("Call")
		p.indent++
		p.line("Callee:")
		p.indent++
		p.expr(ex.Callee)
		p.indent--
		for _, a := range ex.Args {
			p.expr(a)
		}
		p.indent--
	case *ast.Index:
		p.line("Index")
		p.indent++
		p.expr(ex.Target)
		p.expr(ex.Idx)
		p.indent--
	case *ast.FnExpr:
		p.line("FnExpr(%s) -> %s", paramList(ex.Params), typeExprString(ex.RetTy))
		p.indent++
		p.expr(ex.Body)
		p.indent--
	default:
		p.line("<unknown expr>")
	}
}

func unaryOpString(op ast.UnaryOp) string {
	switch op {
	case ast.Neg:
		return "-"
	case ast.Not:
		return "!"
	default:
		return "?"
	}
}

func binaryOpString(op ast.BinaryOp) string {
	switch op {
	case ast.Add:
		return "+"
	case ast.Sub:
		return "-"
	case ast.Mul:
		return "*"
	case ast.Div:
		return "/"
	case ast.Mod:
		return "%"
	case ast.Eq:
		return "=="
	case ast.Ne:
		return "!="
	case ast.Lt:
		return "<"
	case ast.Le:
		return "<="
	case ast.Gt:
		return ">"
	case ast.Ge:
		return ">="
	case ast.And:
		return "&&"
	case ast.Or:
		return "||"
	default:
		return "?"
	}
}
