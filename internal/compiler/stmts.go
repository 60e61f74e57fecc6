package compiler

import (
	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/bytecode"
	"github.com/aldezex/moon/internal/runtime"
)

func (c *compiler) compileStmts(stmts []ast.Stmt, code *[]bytecode.Instr, ctx *funcCtx) error {
	for _, stmt := range stmts {
		if err := c.compileStmt(stmt, code, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) compileStmt(stmt ast.Stmt, code *[]bytecode.Instr, ctx *funcCtx) error {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		if err := c.compileExpr(s.Expr, code, ctx); err != nil {
			return err
		}
		emit(code, bytecode.DefineVar(s.Name), s.Sp)
		ctx.defineLocal(s.Name)
		return nil

	case *ast.AssignStmt:
		return c.compileAssign(s, code, ctx)

	case *ast.ReturnStmt:
		if s.Expr != nil {
			if err := c.compileExpr(s.Expr, code, ctx); err != nil {
				return err
			}
		} else {
			emit(code, bytecode.Push(runtime.Unit()), s.Sp)
		}
		emit(code, bytecode.Return(), s.Sp)
		return nil

	case *ast.FnStmt:
		// Top-level items; they don't execute inline in main's body.
		return nil

	case *ast.ExprStmt:
		if err := c.compileExpr(s.Expr, code, ctx); err != nil {
			return err
		}
		emit(code, bytecode.Pop(), s.Expr.Span())
		return nil

	default:
		return errf(stmt.Span(), "unsupported statement node")
	}
}

func (c *compiler) compileAssign(s *ast.AssignStmt, code *[]bytecode.Instr, ctx *funcCtx) error {
	switch target := s.Target.(type) {
	case *ast.Ident:
		if err := c.compileExpr(s.Expr, code, ctx); err != nil {
			return err
		}
		emit(code, bytecode.SetVar(target.Name), target.Sp)
		return nil

	case *ast.Index:
		if err := c.compileExpr(target.Target, code, ctx); err != nil {
			return err
		}
		if err := c.compileExpr(target.Idx, code, ctx); err != nil {
			return err
		}
		if err := c.compileExpr(s.Expr, code, ctx); err != nil {
			return err
		}
		emit(code, bytecode.IndexSet(), s.Sp)
		return nil

	default:
		return errf(s.Sp, "invalid assignment target")
	}
}
