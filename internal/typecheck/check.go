// Package typecheck implements the two-pass typechecker described in
// spec.md §4.1: a signature pass that registers every top-level
// function (so calls work regardless of declaration order), then a
// body pass that checks statements in order, threading a divergence
// type (Never) through every compositional rule.
package typecheck

import (
	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/span"
	"github.com/aldezex/moon/internal/types"
)

// ExprType pairs a sub-expression's span with its inferred type; the
// span-indexed list this builds up is for tooling (hover, etc.), not
// for the compiler.
type ExprType struct {
	Span span.Span
	Type types.Type
}

// Info is the full output of CheckProgramWithSpans: the program's
// overall type, plus a type for every checked sub-expression.
type Info struct {
	Type      types.Type
	ExprTypes []ExprType
}

type sink interface {
	record(sp span.Span, ty types.Type)
}

type noopSink struct{}

func (noopSink) record(span.Span, types.Type) {}

type recordingSink struct {
	entries []ExprType
}

func (s *recordingSink) record(sp span.Span, ty types.Type) {
	s.entries = append(s.entries, ExprType{Span: sp, Type: ty})
}

// CheckProgram typechecks program and returns its overall type (the
// type of its tail expression, or Unit).
func CheckProgram(program *ast.Program) (types.Type, error) {
	return checkProgram(program, noopSink{})
}

// CheckProgramWithSpans is CheckProgram plus a span->type map recorded
// for every checked sub-expression, for IDE-style tooling.
func CheckProgramWithSpans(program *ast.Program) (*Info, error) {
	sk := &recordingSink{}
	ty, err := checkProgram(program, sk)
	if err != nil {
		return nil, err
	}
	return &Info{Type: ty, ExprTypes: sk.entries}, nil
}

func checkProgram(program *ast.Program, sk sink) (types.Type, error) {
	c := &checker{env: newEnv(), sink: sk}

	// gc: () -> Unit is pre-registered like any other function.
	c.env.defineFn("gc", nil, types.TUnit())

	// Pass 1: register every top-level function signature.
	for _, stmt := range program.Stmts {
		fn, ok := stmt.(*ast.FnStmt)
		if !ok {
			continue
		}
		if _, exists := c.env.getFn(fn.Name); exists {
			return types.Type{}, errf(fn.Sp, "duplicate function: %s", fn.Name)
		}
		params := make([]types.Type, len(fn.Params))
		for i, p := range fn.Params {
			ty, err := lowerType(p.Ty)
			if err != nil {
				return types.Type{}, err
			}
			params[i] = ty
		}
		ret, err := lowerType(fn.RetTy)
		if err != nil {
			return types.Type{}, err
		}
		c.env.defineFn(fn.Name, params, ret)
	}

	// Pass 2: check every top-level statement in order.
	for _, stmt := range program.Stmts {
		if _, err := c.checkStmt(stmt, nil); err != nil {
			return types.Type{}, err
		}
	}

	if program.Tail != nil {
		return c.checkExpr(program.Tail, nil)
	}
	return types.TUnit(), nil
}

type checker struct {
	env  *env
	sink sink
}

// checkStmt returns whether the statement diverges (has Never type),
// so a caller checking a block can stop at the first such statement.
func (c *checker) checkStmt(stmt ast.Stmt, currentRet *types.Type) (bool, error) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		return c.checkLet(s, currentRet)
	case *ast.AssignStmt:
		return c.checkAssign(s, currentRet)
	case *ast.ReturnStmt:
		return c.checkReturn(s, currentRet)
	case *ast.FnStmt:
		return c.checkFnStmt(s)
	case *ast.ExprStmt:
		ty, err := c.checkExpr(s.Expr, currentRet)
		if err != nil {
			return false, err
		}
		return ty.Kind == types.Never, nil
	default:
		return false, errf(stmt.Span(), "unsupported statement node")
	}
}

func (c *checker) checkLet(s *ast.LetStmt, currentRet *types.Type) (bool, error) {
	var exprTy types.Type
	var err error

	// Contextual typing: an empty array/object literal adopts the
	// annotation's element type instead of failing to infer.
	switch lit := s.Expr.(type) {
	case *ast.ArrayLit:
		if len(lit.Elements) == 0 && s.Ann != nil {
			exprTy, err = lowerType(s.Ann)
			if err == nil && exprTy.Kind != types.Array {
				err = errf(s.Ann.Span(), "type mismatch: expected %s, got an empty array literal", exprTy)
			}
		} else {
			exprTy, err = c.checkExpr(s.Expr, currentRet)
		}
	case *ast.ObjectLit:
		if len(lit.Props) == 0 && s.Ann != nil {
			exprTy, err = lowerType(s.Ann)
			if err == nil && exprTy.Kind != types.Object {
				err = errf(s.Ann.Span(), "type mismatch: expected %s, got an empty object literal", exprTy)
			}
		} else {
			exprTy, err = c.checkExpr(s.Expr, currentRet)
		}
	default:
		exprTy, err = c.checkExpr(s.Expr, currentRet)
	}
	if err != nil {
		return false, err
	}

	declared := exprTy
	if s.Ann != nil {
		annTy, err := lowerType(s.Ann)
		if err != nil {
			return false, err
		}
		if !types.Compatible(annTy, exprTy) {
			return false, errf(s.Ann.Span(), "type mismatch: expected %s, got %s", annTy, exprTy)
		}
		declared = annTy
	}

	c.env.defineVar(s.Name, declared)
	return exprTy.Kind == types.Never, nil
}

func (c *checker) checkAssign(s *ast.AssignStmt, currentRet *types.Type) (bool, error) {
	switch target := s.Target.(type) {
	case *ast.Ident:
		rhsTy, err := c.checkExpr(s.Expr, currentRet)
		if err != nil {
			return false, err
		}
		if rhsTy.Kind == types.Never {
			return true, nil
		}
		varTy, ok := c.env.getVar(target.Name)
		if !ok {
			return false, errf(target.Sp, "undefined variable: %s", target.Name)
		}
		if !types.Compatible(varTy, rhsTy) {
			return false, errf(s.Sp, "type mismatch: expected %s, got %s", varTy, rhsTy)
		}
		return false, nil

	case *ast.Index:
		// The VM evaluates base, then index, then RHS; check in that order.
		baseTy, err := c.checkExpr(target.Target, currentRet)
		if err != nil {
			return false, err
		}
		if baseTy.Kind == types.Never {
			return true, nil
		}
		idxTy, err := c.checkExpr(target.Idx, currentRet)
		if err != nil {
			return false, err
		}
		if idxTy.Kind == types.Never {
			return true, nil
		}
		rhsTy, err := c.checkExpr(s.Expr, currentRet)
		if err != nil {
			return false, err
		}
		if rhsTy.Kind == types.Never {
			return true, nil
		}

		switch baseTy.Kind {
		case types.Array:
			if idxTy.Kind != types.Int {
				return false, errf(s.Sp, "array index must be Int, got %s", idxTy)
			}
			if !types.Compatible(*baseTy.Elem, rhsTy) {
				return false, errf(s.Sp, "type mismatch: expected %s, got %s", *baseTy.Elem, rhsTy)
			}
			return false, nil
		case types.Object:
			if idxTy.Kind != types.String {
				return false, errf(s.Sp, "object key must be String, got %s", idxTy)
			}
			if !types.Compatible(*baseTy.Elem, rhsTy) {
				return false, errf(s.Sp, "type mismatch: expected %s, got %s", *baseTy.Elem, rhsTy)
			}
			return false, nil
		default:
			return false, errf(s.Sp, "cannot assign through index on %s", baseTy)
		}

	default:
		return false, errf(s.Sp, "invalid assignment target")
	}
}

func (c *checker) checkReturn(s *ast.ReturnStmt, currentRet *types.Type) (bool, error) {
	if currentRet == nil {
		return false, errf(s.Sp, "return is only allowed inside functions")
	}

	got := types.TUnit()
	if s.Expr != nil {
		ty, err := c.checkExpr(s.Expr, currentRet)
		if err != nil {
			return false, err
		}
		got = ty
	}

	if !types.Compatible(*currentRet, got) {
		return false, errf(s.Sp, "type mismatch: expected %s, got %s", *currentRet, got)
	}
	return true, nil
}

func (c *checker) checkFnStmt(s *ast.FnStmt) (bool, error) {
	sig, ok := c.env.getFn(s.Name)
	if !ok {
		return false, errf(s.Sp, "internal error: missing signature for function %s", s.Name)
	}

	saved := c.env.takeScopes()
	c.env.pushScope()
	for i, p := range s.Params {
		c.env.defineVar(p.Name, sig.params[i])
	}

	bodyTy, err := c.checkExpr(s.Body, &sig.ret)
	c.env.restoreScopes(saved)
	if err != nil {
		return false, err
	}

	if !types.Compatible(sig.ret, bodyTy) {
		return false, errf(s.Sp, "type mismatch: expected %s, got %s", sig.ret, bodyTy)
	}

	// Re-lower the declared return type so a malformed annotation still
	// produces a span-accurate error even though pass 1 already lowered it.
	if _, err := lowerType(s.RetTy); err != nil {
		return false, err
	}

	return false, nil
}

func (c *checker) checkExpr(expr ast.Expr, currentRet *types.Type) (types.Type, error) {
	ty, err := c.checkExprInner(expr, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	c.sink.record(expr.Span(), ty)
	return ty, nil
}

func (c *checker) checkExprInner(expr ast.Expr, currentRet *types.Type) (types.Type, error) {
	switch e := expr.(type) {
	case *ast.IntLit:
		return types.TInt(), nil
	case *ast.BoolLit:
		return types.TBool(), nil
	case *ast.StringLit:
		return types.TString(), nil

	case *ast.Ident:
		if ty, ok := c.env.getVar(e.Name); ok {
			return ty, nil
		}
		if sig, ok := c.env.getFn(e.Name); ok {
			return types.TFunction(sig.params, sig.ret), nil
		}
		return types.Type{}, errf(e.Sp, "undefined variable: %s", e.Name)

	case *ast.Group:
		return c.checkExpr(e.Expr, currentRet)

	case *ast.FnExpr:
		return c.checkFnExpr(e, currentRet)

	case *ast.ArrayLit:
		return c.checkArrayLit(e, currentRet)

	case *ast.ObjectLit:
		return c.checkObjectLit(e, currentRet)

	case *ast.Block:
		return c.checkBlock(e, currentRet)

	case *ast.If:
		return c.checkIf(e, currentRet)

	case *ast.Call:
		return c.checkCall(e, currentRet)

	case *ast.Index:
		return c.checkIndex(e, currentRet)

	case *ast.UnaryExpr:
		return c.checkUnary(e, currentRet)

	case *ast.BinaryExpr:
		return c.checkBinary(e, currentRet)

	default:
		return types.Type{}, errf(expr.Span(), "unsupported expression node")
	}
}

func (c *checker) checkFnExpr(e *ast.FnExpr, _ *types.Type) (types.Type, error) {
	ret, err := lowerType(e.RetTy)
	if err != nil {
		return types.Type{}, err
	}
	paramTys := make([]types.Type, len(e.Params))
	for i, p := range e.Params {
		ty, err := lowerType(p.Ty)
		if err != nil {
			return types.Type{}, err
		}
		paramTys[i] = ty
	}

	c.env.pushScope()
	for i, p := range e.Params {
		c.env.defineVar(p.Name, paramTys[i])
	}
	bodyTy, err := c.checkExpr(e.Body, &ret)
	c.env.popScope()
	if err != nil {
		return types.Type{}, err
	}

	if !types.Compatible(ret, bodyTy) {
		return types.Type{}, errf(e.Sp, "type mismatch: expected %s, got %s", ret, bodyTy)
	}

	return types.TFunction(paramTys, ret), nil
}

func (c *checker) checkArrayLit(e *ast.ArrayLit, currentRet *types.Type) (types.Type, error) {
	if len(e.Elements) == 0 {
		return types.Type{}, errf(e.Sp, "cannot infer type of empty array; add an annotation")
	}

	first, err := c.checkExpr(e.Elements[0], currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if first.Kind == types.Never {
		return types.TNever(), nil
	}

	for _, elem := range e.Elements[1:] {
		ty, err := c.checkExpr(elem, currentRet)
		if err != nil {
			return types.Type{}, err
		}
		if ty.Kind == types.Never {
			return types.TNever(), nil
		}
		if !types.Equal(ty, first) {
			return types.Type{}, errf(e.Sp, "array elements must have the same type: got %s and %s", first, ty)
		}
	}

	return types.TArray(first), nil
}

func (c *checker) checkObjectLit(e *ast.ObjectLit, currentRet *types.Type) (types.Type, error) {
	if len(e.Props) == 0 {
		return types.Type{}, errf(e.Sp, "cannot infer type of empty object; add an annotation")
	}

	first, err := c.checkExpr(e.Props[0].Value, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if first.Kind == types.Never {
		return types.TNever(), nil
	}

	for _, prop := range e.Props[1:] {
		ty, err := c.checkExpr(prop.Value, currentRet)
		if err != nil {
			return types.Type{}, err
		}
		if ty.Kind == types.Never {
			return types.TNever(), nil
		}
		if !types.Equal(ty, first) {
			return types.Type{}, errf(e.Sp, "object values must have the same type: got %s and %s", first, ty)
		}
	}

	return types.TObject(first), nil
}

func (c *checker) checkBlock(e *ast.Block, currentRet *types.Type) (types.Type, error) {
	c.env.pushScope()
	ty, err := c.checkBlockBody(e, currentRet)
	c.env.popScope()
	return ty, err
}

func (c *checker) checkBlockBody(e *ast.Block, currentRet *types.Type) (types.Type, error) {
	for _, stmt := range e.Stmts {
		diverges, err := c.checkStmt(stmt, currentRet)
		if err != nil {
			return types.Type{}, err
		}
		if diverges {
			return types.TNever(), nil
		}
	}
	if e.Tail != nil {
		return c.checkExpr(e.Tail, currentRet)
	}
	return types.TUnit(), nil
}

func (c *checker) checkIf(e *ast.If, currentRet *types.Type) (types.Type, error) {
	condTy, err := c.checkExpr(e.Cond, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if condTy.Kind == types.Never {
		return types.TNever(), nil
	}
	if condTy.Kind != types.Bool {
		return types.Type{}, errf(e.Sp, "if condition must be Bool, got %s", condTy)
	}

	thenTy, err := c.checkExpr(e.Then, currentRet)
	if err != nil {
		return types.Type{}, err
	}

	var elseTy types.Type
	if e.Else != nil {
		elseTy, err = c.checkExpr(e.Else, currentRet)
		if err != nil {
			return types.Type{}, err
		}
	} else {
		elseTy = types.TUnit()
	}

	switch {
	case types.Equal(thenTy, elseTy):
		return thenTy, nil
	case thenTy.Kind == types.Never:
		return elseTy, nil
	case elseTy.Kind == types.Never:
		return thenTy, nil
	default:
		return types.Type{}, errf(e.Sp, "if branches must have the same type: got %s and %s", thenTy, elseTy)
	}
}

func (c *checker) checkCall(e *ast.Call, currentRet *types.Type) (types.Type, error) {
	calleeTy, err := c.checkExpr(e.Callee, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if calleeTy.Kind == types.Never {
		return types.TNever(), nil
	}
	if calleeTy.Kind != types.Function {
		return types.Type{}, errf(e.Sp, "cannot call non-function value: %s", calleeTy)
	}

	if len(calleeTy.Params) != len(e.Args) {
		return types.Type{}, errf(e.Sp, "wrong number of arguments: expected %d, got %d", len(calleeTy.Params), len(e.Args))
	}

	for i, arg := range e.Args {
		argTy, err := c.checkExpr(arg, currentRet)
		if err != nil {
			return types.Type{}, err
		}
		if argTy.Kind == types.Never {
			return types.TNever(), nil
		}
		if !types.Compatible(calleeTy.Params[i], argTy) {
			return types.Type{}, errf(arg.Span(), "argument type mismatch: expected %s, got %s", calleeTy.Params[i], argTy)
		}
	}

	return *calleeTy.Ret, nil
}

func (c *checker) checkIndex(e *ast.Index, currentRet *types.Type) (types.Type, error) {
	baseTy, err := c.checkExpr(e.Target, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if baseTy.Kind == types.Never {
		return types.TNever(), nil
	}
	idxTy, err := c.checkExpr(e.Idx, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if idxTy.Kind == types.Never {
		return types.TNever(), nil
	}

	switch baseTy.Kind {
	case types.Array:
		if idxTy.Kind != types.Int {
			return types.Type{}, errf(e.Sp, "array index must be Int, got %s", idxTy)
		}
		return *baseTy.Elem, nil
	case types.Object:
		if idxTy.Kind != types.String {
			return types.Type{}, errf(e.Sp, "object key must be String, got %s", idxTy)
		}
		return *baseTy.Elem, nil
	default:
		return types.Type{}, errf(e.Sp, "cannot index into %s", baseTy)
	}
}

func (c *checker) checkUnary(e *ast.UnaryExpr, currentRet *types.Type) (types.Type, error) {
	inner, err := c.checkExpr(e.Expr, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if inner.Kind == types.Never {
		return types.TNever(), nil
	}
	switch e.Op {
	case ast.Neg:
		if inner.Kind != types.Int {
			return types.Type{}, errf(e.Sp, "cannot apply unary '-' to %s", inner)
		}
		return types.TInt(), nil
	case ast.Not:
		if inner.Kind != types.Bool {
			return types.Type{}, errf(e.Sp, "cannot apply unary '!' to %s", inner)
		}
		return types.TBool(), nil
	default:
		return types.Type{}, errf(e.Sp, "unknown unary operator")
	}
}

func (c *checker) checkBinary(e *ast.BinaryExpr, currentRet *types.Type) (types.Type, error) {
	if e.Op == ast.And || e.Op == ast.Or {
		l, err := c.checkExpr(e.Lhs, currentRet)
		if err != nil {
			return types.Type{}, err
		}
		if l.Kind == types.Never {
			return types.TNever(), nil
		}
		if l.Kind != types.Bool {
			return types.Type{}, errf(e.Sp, "logical operators require Bool, got %s", l)
		}

		r, err := c.checkExpr(e.Rhs, currentRet)
		if err != nil {
			return types.Type{}, err
		}
		// A Never right operand doesn't poison the result: the left
		// operand short-circuits, so the expression still produces Bool.
		if r.Kind == types.Never || r.Kind == types.Bool {
			return types.TBool(), nil
		}
		return types.Type{}, errf(e.Sp, "logical operators require Bool, got %s and %s", l, r)
	}

	l, err := c.checkExpr(e.Lhs, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if l.Kind == types.Never {
		return types.TNever(), nil
	}
	r, err := c.checkExpr(e.Rhs, currentRet)
	if err != nil {
		return types.Type{}, err
	}
	if r.Kind == types.Never {
		return types.TNever(), nil
	}

	return checkBinaryOp(e.Op, l, r, e.Sp)
}

func checkBinaryOp(op ast.BinaryOp, l, r types.Type, sp span.Span) (types.Type, error) {
	switch op {
	case ast.Add:
		if l.Kind == types.Int && r.Kind == types.Int {
			return types.TInt(), nil
		}
		if l.Kind == types.String && r.Kind == types.String {
			return types.TString(), nil
		}
		return types.Type{}, errf(sp, "cannot add %s and %s", l, r)
	case ast.Sub, ast.Mul, ast.Div, ast.Mod:
		if l.Kind == types.Int && r.Kind == types.Int {
			return types.TInt(), nil
		}
		return types.Type{}, errf(sp, "arithmetic operators require Int, got %s and %s", l, r)
	case ast.Lt, ast.Le, ast.Gt, ast.Ge:
		if l.Kind == types.Int && r.Kind == types.Int {
			return types.TBool(), nil
		}
		return types.Type{}, errf(sp, "comparison operators require Int, got %s and %s", l, r)
	case ast.Eq, ast.Ne:
		if types.Equal(l, r) {
			return types.TBool(), nil
		}
		return types.Type{}, errf(sp, "cannot compare %s and %s", l, r)
	default:
		return types.Type{}, errf(sp, "internal error: unexpected operator in checkBinaryOp")
	}
}

func lowerType(t ast.TypeExpr) (types.Type, error) {
	switch te := t.(type) {
	case *ast.NamedType:
		switch te.Name {
		case "Int":
			return types.TInt(), nil
		case "Bool":
			return types.TBool(), nil
		case "String":
			return types.TString(), nil
		case "Unit":
			return types.TUnit(), nil
		default:
			return types.Type{}, errf(te.Sp, "unknown type: %s", te.Name)
		}
	case *ast.GenericType:
		switch te.Base {
		case "Array":
			if len(te.Args) != 1 {
				return types.Type{}, errf(te.Sp, "Array<T> expects exactly one type argument")
			}
			inner, err := lowerType(te.Args[0])
			if err != nil {
				return types.Type{}, err
			}
			return types.TArray(inner), nil
		case "Object":
			if len(te.Args) != 1 {
				return types.Type{}, errf(te.Sp, "Object<T> expects exactly one type argument")
			}
			inner, err := lowerType(te.Args[0])
			if err != nil {
				return types.Type{}, err
			}
			return types.TObject(inner), nil
		default:
			return types.Type{}, errf(te.Sp, "unknown type: %s", te.Base)
		}
	default:
		return types.Type{}, errf(t.Span(), "unsupported type expression")
	}
}
