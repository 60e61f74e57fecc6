package compiler

import (
	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/bytecode"
	"github.com/aldezex/moon/internal/runtime"
)

func (c *compiler) compileExpr(expr ast.Expr, code *[]bytecode.Instr, ctx *funcCtx) error {
	switch e := expr.(type) {
	case *ast.IntLit:
		emit(code, bytecode.Push(runtime.Int(e.Value)), e.Sp)
		return nil

	case *ast.BoolLit:
		emit(code, bytecode.Push(runtime.Bool(e.Value)), e.Sp)
		return nil

	case *ast.StringLit:
		emit(code, bytecode.Push(runtime.String(e.Value)), e.Sp)
		return nil

	case *ast.Ident:
		emit(code, bytecode.LoadVar(e.Name), e.Sp)
		return nil

	case *ast.Group:
		return c.compileExpr(e.Expr, code, ctx)

	case *ast.FnExpr:
		return c.compileFnExpr(e, code, ctx)

	case *ast.ArrayLit:
		for _, elem := range e.Elements {
			if err := c.compileExpr(elem, code, ctx); err != nil {
				return err
			}
		}
		emit(code, bytecode.MakeArray(len(e.Elements)), e.Sp)
		return nil

	case *ast.ObjectLit:
		keys := make([]string, len(e.Props))
		for i, prop := range e.Props {
			keys[i] = prop.Key
			if err := c.compileExpr(prop.Value, code, ctx); err != nil {
				return err
			}
		}
		emit(code, bytecode.MakeObject(keys), e.Sp)
		return nil

	case *ast.Index:
		if err := c.compileExpr(e.Target, code, ctx); err != nil {
			return err
		}
		if err := c.compileExpr(e.Idx, code, ctx); err != nil {
			return err
		}
		emit(code, bytecode.IndexGet(), e.Sp)
		return nil

	case *ast.Block:
		return c.compileBlock(e, code, ctx)

	case *ast.If:
		return c.compileIf(e, code, ctx)

	case *ast.UnaryExpr:
		if err := c.compileExpr(e.Expr, code, ctx); err != nil {
			return err
		}
		switch e.Op {
		case ast.Neg:
			emit(code, bytecode.Neg(), e.Sp)
		case ast.Not:
			emit(code, bytecode.Not(), e.Sp)
		default:
			return errf(e.Sp, "unknown unary operator")
		}
		return nil

	case *ast.BinaryExpr:
		return c.compileBinary(e, code, ctx)

	case *ast.Call:
		// Evaluate callee first, then args left-to-right, then call by
		// value. The VM resolves LoadVar to Function(name) when no
		// variable shadows it, so named calls and closure calls share
		// one opcode.
		if err := c.compileExpr(e.Callee, code, ctx); err != nil {
			return err
		}
		for _, arg := range e.Args {
			if err := c.compileExpr(arg, code, ctx); err != nil {
				return err
			}
		}
		emit(code, bytecode.CallValue(len(e.Args)), e.Sp)
		return nil

	default:
		return errf(expr.Span(), "unsupported expression node")
	}
}

func (c *compiler) compileBlock(e *ast.Block, code *[]bytecode.Instr, ctx *funcCtx) error {
	emit(code, bytecode.PushScope(), e.Sp)
	ctx.pushScope()

	if err := c.compileStmts(e.Stmts, code, ctx); err != nil {
		return err
	}
	if e.Tail != nil {
		if err := c.compileExpr(e.Tail, code, ctx); err != nil {
			return err
		}
	} else {
		emit(code, bytecode.Push(runtime.Unit()), e.Sp)
	}

	ctx.popScope()
	emit(code, bytecode.PopScope(), e.Sp)
	return nil
}

func (c *compiler) compileIf(e *ast.If, code *[]bytecode.Instr, ctx *funcCtx) error {
	if err := c.compileExpr(e.Cond, code, ctx); err != nil {
		return err
	}

	jmpFalseAt := len(*code)
	emit(code, bytecode.JumpIfFalse(-1), e.Sp)
	emit(code, bytecode.Pop(), e.Cond.Span())

	if err := c.compileExpr(e.Then, code, ctx); err != nil {
		return err
	}
	jmpEndAt := len(*code)
	emit(code, bytecode.Jump(-1), e.Sp)

	elseIP := len(*code)
	patchJump(*code, jmpFalseAt, elseIP)
	emit(code, bytecode.Pop(), e.Cond.Span())

	if e.Else != nil {
		if err := c.compileExpr(e.Else, code, ctx); err != nil {
			return err
		}
	} else {
		emit(code, bytecode.Push(runtime.Unit()), e.Sp)
	}

	endIP := len(*code)
	patchJump(*code, jmpEndAt, endIP)
	return nil
}

func (c *compiler) compileBinary(e *ast.BinaryExpr, code *[]bytecode.Instr, ctx *funcCtx) error {
	switch e.Op {
	case ast.And:
		if err := c.compileExpr(e.Lhs, code, ctx); err != nil {
			return err
		}
		jmpFalseAt := len(*code)
		emit(code, bytecode.JumpIfFalse(-1), e.Sp)
		emit(code, bytecode.Pop(), e.Lhs.Span())
		if err := c.compileExpr(e.Rhs, code, ctx); err != nil {
			return err
		}
		patchJump(*code, jmpFalseAt, len(*code))
		return nil

	case ast.Or:
		if err := c.compileExpr(e.Lhs, code, ctx); err != nil {
			return err
		}
		jmpTrueAt := len(*code)
		emit(code, bytecode.JumpIfTrue(-1), e.Sp)
		emit(code, bytecode.Pop(), e.Lhs.Span())
		if err := c.compileExpr(e.Rhs, code, ctx); err != nil {
			return err
		}
		patchJump(*code, jmpTrueAt, len(*code))
		return nil

	default:
		if err := c.compileExpr(e.Lhs, code, ctx); err != nil {
			return err
		}
		if err := c.compileExpr(e.Rhs, code, ctx); err != nil {
			return err
		}
		var kind bytecode.Kind
		switch e.Op {
		case ast.Add:
			kind = bytecode.Add()
		case ast.Sub:
			kind = bytecode.Sub()
		case ast.Mul:
			kind = bytecode.Mul()
		case ast.Div:
			kind = bytecode.Div()
		case ast.Mod:
			kind = bytecode.Mod()
		case ast.Eq:
			kind = bytecode.Eq()
		case ast.Ne:
			kind = bytecode.Ne()
		case ast.Lt:
			kind = bytecode.Lt()
		case ast.Le:
			kind = bytecode.Le()
		case ast.Gt:
			kind = bytecode.Gt()
		case ast.Ge:
			kind = bytecode.Ge()
		default:
			return errf(e.Sp, "unknown binary operator")
		}
		emit(code, kind, e.Sp)
		return nil
	}
}

func (c *compiler) compileFnExpr(e *ast.FnExpr, code *[]bytecode.Instr, ctx *funcCtx) error {
	name := c.freshLambdaName()

	// Capture every currently-visible local (including the enclosing
	// closure's own environment) before entering the new function's
	// own context.
	captures := ctx.visibleNames()

	params := paramNames(e.Params)
	id := c.defineStub(name, params)

	innerCtx := newFunctionCtx(params, captures)
	if err := c.compileFunctionBody(id, e.Body, innerCtx); err != nil {
		return err
	}

	emit(code, bytecode.MakeClosure(name, captures), e.Sp)
	return nil
}
