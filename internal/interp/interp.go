// Package interp is the older tree-walking evaluator, kept only as the
// cross-check oracle spec.md §8 calls for ("for every program P the
// typechecker accepts ... run(compile(P)) == interp(P)"). It shares no
// code with the VM: it walks the ast.Program directly, using its own
// environment chain and its own heap, and carries no independent
// design weight beyond reproducing the same observable semantics by a
// different, simpler route. The `vm` subcommand is the one users
// actually want; this one backs `run`.
package interp

import (
	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/runtime"
	"github.com/aldezex/moon/internal/span"
)

// Error is a runtime fault raised while walking the tree, with the
// same {message, span} shape as every other pipeline stage.
type Error struct {
	Message string
	Span    span.Span
}

func (e *Error) Error() string { return "runtime error: " + e.Message }

func errf(sp span.Span, msg string) *Error { return &Error{Message: msg, Span: sp} }

// env is a chain of lexical scopes plus an optional closure capture
// map, mirroring the VM's scope-stack-then-closure-then-globals
// resolution order without sharing any of the VM's code.
type env struct {
	vars    map[string]runtime.Value
	parent  *env
	closure map[string]runtime.Value
	globals *env
}

func newGlobalEnv() *env {
	e := &env{vars: make(map[string]runtime.Value)}
	e.globals = e
	return e
}

func (e *env) child() *env {
	return &env{vars: make(map[string]runtime.Value), parent: e, globals: e.globals}
}

func (e *env) childWithClosure(captured map[string]runtime.Value) *env {
	c := e.globals.child()
	c.closure = captured
	return c
}

func (e *env) get(name string) (runtime.Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
		if cur.closure != nil {
			if v, ok := cur.closure[name]; ok {
				return v, true
			}
		}
	}
	return runtime.Value{}, false
}

func (e *env) define(name string, v runtime.Value) {
	e.vars[name] = v
}

func (e *env) set(name string, v runtime.Value) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return true
		}
		if cur.closure != nil {
			if _, ok := cur.closure[name]; ok {
				cur.closure[name] = v
				return true
			}
		}
	}
	return false
}

// returnSignal unwinds the Go call stack up to the enclosing function
// call when a `return` statement runs.
type returnSignal struct {
	value runtime.Value
}

func (returnSignal) Error() string { return "internal: uncaught return" }

// Interp walks a typechecked ast.Program directly, with its own heap
// (program-scoped, never collected: interp is the oracle, not the
// production path, so gc() is accepted as a no-op).
type Interp struct {
	fns  map[string]*ast.FnStmt
	heap *runtime.Heap
}

// Run typechecks nothing itself (callers check first) and evaluates
// program, returning its tail value (or Unit).
func Run(program *ast.Program) (runtime.Value, error) {
	it := &Interp{fns: make(map[string]*ast.FnStmt), heap: runtime.NewHeap()}
	for _, stmt := range program.Stmts {
		if fn, ok := stmt.(*ast.FnStmt); ok {
			it.fns[fn.Name] = fn
		}
	}

	g := newGlobalEnv()
	for _, stmt := range program.Stmts {
		if _, ok := stmt.(*ast.FnStmt); ok {
			continue
		}
		if err := it.execStmt(stmt, g); err != nil {
			if rs, ok := err.(returnSignal); ok {
				return rs.value, nil
			}
			return runtime.Value{}, err
		}
	}
	if program.Tail != nil {
		return it.eval(program.Tail, g)
	}
	return runtime.Unit(), nil
}

func (it *Interp) execStmt(stmt ast.Stmt, e *env) error {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		v, err := it.eval(s.Expr, e)
		if err != nil {
			return err
		}
		e.define(s.Name, v)
		return nil

	case *ast.AssignStmt:
		return it.execAssign(s, e)

	case *ast.ReturnStmt:
		v := runtime.Unit()
		if s.Expr != nil {
			var err error
			v, err = it.eval(s.Expr, e)
			if err != nil {
				return err
			}
		}
		return returnSignal{value: v}

	case *ast.FnStmt:
		return nil // already registered in it.fns

	case *ast.ExprStmt:
		_, err := it.eval(s.Expr, e)
		return err

	default:
		return errf(stmt.Span(), "unsupported statement node")
	}
}

func (it *Interp) execAssign(s *ast.AssignStmt, e *env) error {
	switch target := s.Target.(type) {
	case *ast.Ident:
		v, err := it.eval(s.Expr, e)
		if err != nil {
			return err
		}
		if !e.set(target.Name, v) {
			return errf(target.Sp, "undefined variable: "+target.Name)
		}
		return nil

	case *ast.Index:
		base, err := it.eval(target.Target, e)
		if err != nil {
			return err
		}
		idx, err := it.eval(target.Idx, e)
		if err != nil {
			return err
		}
		val, err := it.eval(s.Expr, e)
		if err != nil {
			return err
		}
		return it.indexSet(s.Sp, base, idx, val)

	default:
		return errf(s.Sp, "invalid assignment target")
	}
}

func (it *Interp) eval(expr ast.Expr, e *env) (runtime.Value, error) {
	switch ex := expr.(type) {
	case *ast.IntLit:
		return runtime.Int(ex.Value), nil
	case *ast.BoolLit:
		return runtime.Bool(ex.Value), nil
	case *ast.StringLit:
		return runtime.String(ex.Value), nil

	case *ast.Ident:
		if v, ok := e.get(ex.Name); ok {
			return v, nil
		}
		if _, ok := it.fns[ex.Name]; ok {
			return runtime.Function(ex.Name), nil
		}
		return runtime.Value{}, errf(ex.Sp, "undefined variable: "+ex.Name)

	case *ast.Group:
		return it.eval(ex.Expr, e)

	case *ast.FnExpr:
		captured := map[string]runtime.Value{}
		snapshotEnv(e, captured)
		name := it.registerLambda(ex)
		h := it.heap.AllocClosure(name, captured)
		return runtime.Closure(h), nil

	case *ast.ArrayLit:
		elems := make([]runtime.Value, len(ex.Elements))
		for i, el := range ex.Elements {
			v, err := it.eval(el, e)
			if err != nil {
				return runtime.Value{}, err
			}
			elems[i] = v
		}
		return runtime.Array(it.heap.AllocArray(elems)), nil

	case *ast.ObjectLit:
		entries := make(map[string]runtime.Value, len(ex.Props))
		for _, p := range ex.Props {
			v, err := it.eval(p.Value, e)
			if err != nil {
				return runtime.Value{}, err
			}
			entries[p.Key] = v
		}
		return runtime.Object(it.heap.AllocObject(entries)), nil

	case *ast.Block:
		return it.evalBlock(ex, e)

	case *ast.If:
		return it.evalIf(ex, e)

	case *ast.Call:
		return it.evalCall(ex, e)

	case *ast.Index:
		base, err := it.eval(ex.Target, e)
		if err != nil {
			return runtime.Value{}, err
		}
		idx, err := it.eval(ex.Idx, e)
		if err != nil {
			return runtime.Value{}, err
		}
		return it.indexGet(ex.Sp, base, idx)

	case *ast.UnaryExpr:
		return it.evalUnary(ex, e)

	case *ast.BinaryExpr:
		return it.evalBinary(ex, e)

	default:
		return runtime.Value{}, errf(expr.Span(), "unsupported expression node")
	}
}

// lambdaCounter names anonymous functions the same way the compiler
// does (<lambda#k>), purely so disasm/debug output looks consistent
// across both executors; the interp keeps its own counter since it
// never shares compiler state.
var lambdaNames = map[*ast.FnExpr]string{}
var lambdaCounter int

func (it *Interp) registerLambda(fe *ast.FnExpr) string {
	if name, ok := lambdaNames[fe]; ok {
		if _, known := it.fns[name]; known {
			return name
		}
	}
	name := lambdaNameFor(lambdaCounter)
	lambdaCounter++
	lambdaNames[fe] = name
	it.fns[name] = &ast.FnStmt{Name: name, Params: fe.Params, RetTy: fe.RetTy, Body: fe.Body, Sp: fe.Sp}
	return name
}

func lambdaNameFor(id int) string {
	return "<lambda#" + itoa(id) + ">"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func snapshotEnv(e *env, out map[string]runtime.Value) {
	// Walk outer-to-inner so inner shadows take precedence, matching
	// the compiler's "innermost wins" visibleNames semantics. The global
	// env is not captured: globals are read live at call time.
	var chain []*env
	for cur := e; cur != nil && cur != e.globals; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		if cur.closure != nil {
			for k, v := range cur.closure {
				out[k] = v
			}
		}
		for k, v := range cur.vars {
			out[k] = v
		}
	}
}

func (it *Interp) evalBlock(b *ast.Block, e *env) (runtime.Value, error) {
	inner := e.child()
	for _, stmt := range b.Stmts {
		if err := it.execStmt(stmt, inner); err != nil {
			return runtime.Value{}, err
		}
	}
	if b.Tail != nil {
		return it.eval(b.Tail, inner)
	}
	return runtime.Unit(), nil
}

func (it *Interp) evalIf(i *ast.If, e *env) (runtime.Value, error) {
	cond, err := it.eval(i.Cond, e)
	if err != nil {
		return runtime.Value{}, err
	}
	if !cond.IsBool() {
		return runtime.Value{}, errf(i.Sp, "if condition must be bool")
	}
	if cond.AsBool() {
		return it.eval(i.Then, e)
	}
	if i.Else != nil {
		return it.eval(i.Else, e)
	}
	return runtime.Unit(), nil
}

func (it *Interp) evalCall(c *ast.Call, e *env) (runtime.Value, error) {
	callee, err := it.eval(c.Callee, e)
	if err != nil {
		return runtime.Value{}, err
	}

	args := make([]runtime.Value, len(c.Args))
	for i, a := range c.Args {
		v, err := it.eval(a, e)
		if err != nil {
			return runtime.Value{}, err
		}
		args[i] = v
	}

	var name string
	var captured map[string]runtime.Value
	switch {
	case callee.IsFunction():
		name = callee.FunctionName()
	case callee.IsClosure():
		name, err = it.heap.ClosureFuncName(callee.AsHandle())
		if err != nil {
			return runtime.Value{}, errf(c.Sp, "invalid closure handle")
		}
		captured, err = it.heap.ClosureEnvClone(callee.AsHandle())
		if err != nil {
			return runtime.Value{}, errf(c.Sp, "invalid closure handle")
		}
	default:
		return runtime.Value{}, errf(c.Sp, "cannot call non-function value: "+callee.TypeName())
	}

	if name == "gc" {
		return runtime.Unit(), nil // interp has no GC; gc() is a no-op oracle-side
	}

	fn, ok := it.fns[name]
	if !ok {
		return runtime.Value{}, errf(c.Sp, "undefined function: "+name)
	}
	if len(fn.Params) != len(args) {
		return runtime.Value{}, errf(c.Sp, "wrong number of arguments")
	}

	var callEnv *env
	if captured != nil {
		callEnv = e.childWithClosure(captured)
	} else {
		callEnv = e.globals.child()
	}
	for i, p := range fn.Params {
		callEnv.define(p.Name, args[i])
	}

	v, err := it.eval(fn.Body, callEnv)
	// Write the call's copy of the captured environment back to the
	// heap so assignments to captured names persist across calls.
	for k, cv := range captured {
		if setErr := it.heap.ClosureSet(callee.AsHandle(), k, cv); setErr != nil {
			return runtime.Value{}, errf(c.Sp, "invalid closure handle")
		}
	}
	if err != nil {
		if rs, ok := err.(returnSignal); ok {
			return rs.value, nil
		}
		return runtime.Value{}, err
	}
	return v, nil
}

func (it *Interp) evalUnary(u *ast.UnaryExpr, e *env) (runtime.Value, error) {
	v, err := it.eval(u.Expr, e)
	if err != nil {
		return runtime.Value{}, err
	}
	switch u.Op {
	case ast.Neg:
		if !v.IsInt() {
			return runtime.Value{}, errf(u.Sp, "cannot apply unary '-' to "+v.TypeName())
		}
		return runtime.Int(-v.AsInt()), nil
	case ast.Not:
		if !v.IsBool() {
			return runtime.Value{}, errf(u.Sp, "cannot apply unary '!' to "+v.TypeName())
		}
		return runtime.Bool(!v.AsBool()), nil
	default:
		return runtime.Value{}, errf(u.Sp, "unknown unary operator")
	}
}

func (it *Interp) evalBinary(b *ast.BinaryExpr, e *env) (runtime.Value, error) {
	if b.Op == ast.And {
		l, err := it.eval(b.Lhs, e)
		if err != nil {
			return runtime.Value{}, err
		}
		if !l.IsBool() {
			return runtime.Value{}, errf(b.Sp, "logical operators require bool")
		}
		if !l.AsBool() {
			return runtime.Bool(false), nil
		}
		r, err := it.eval(b.Rhs, e)
		if err != nil {
			return runtime.Value{}, err
		}
		return r, nil
	}
	if b.Op == ast.Or {
		l, err := it.eval(b.Lhs, e)
		if err != nil {
			return runtime.Value{}, err
		}
		if !l.IsBool() {
			return runtime.Value{}, errf(b.Sp, "logical operators require bool")
		}
		if l.AsBool() {
			return runtime.Bool(true), nil
		}
		r, err := it.eval(b.Rhs, e)
		if err != nil {
			return runtime.Value{}, err
		}
		return r, nil
	}

	l, err := it.eval(b.Lhs, e)
	if err != nil {
		return runtime.Value{}, err
	}
	r, err := it.eval(b.Rhs, e)
	if err != nil {
		return runtime.Value{}, err
	}

	switch b.Op {
	case ast.Add:
		switch {
		case l.IsInt() && r.IsInt():
			return runtime.Int(l.AsInt() + r.AsInt()), nil
		case l.IsString() && r.IsString():
			return runtime.String(l.AsString() + r.AsString()), nil
		default:
			return runtime.Value{}, errf(b.Sp, "cannot add "+l.TypeName()+" and "+r.TypeName())
		}
	case ast.Sub:
		return intOp(b.Sp, l, r, func(a, c int64) (int64, error) { return a - c, nil })
	case ast.Mul:
		return intOp(b.Sp, l, r, func(a, c int64) (int64, error) { return a * c, nil })
	case ast.Div:
		return intOp(b.Sp, l, r, func(a, c int64) (int64, error) {
			if c == 0 {
				return 0, errf(b.Sp, "division by zero")
			}
			return a / c, nil
		})
	case ast.Mod:
		return intOp(b.Sp, l, r, func(a, c int64) (int64, error) {
			if c == 0 {
				return 0, errf(b.Sp, "modulo by zero")
			}
			return a % c, nil
		})
	case ast.Lt:
		return cmpOp(b.Sp, l, r, func(a, c int64) bool { return a < c })
	case ast.Le:
		return cmpOp(b.Sp, l, r, func(a, c int64) bool { return a <= c })
	case ast.Gt:
		return cmpOp(b.Sp, l, r, func(a, c int64) bool { return a > c })
	case ast.Ge:
		return cmpOp(b.Sp, l, r, func(a, c int64) bool { return a >= c })
	case ast.Eq:
		return runtime.Bool(l.Equals(r)), nil
	case ast.Ne:
		return runtime.Bool(!l.Equals(r)), nil
	default:
		return runtime.Value{}, errf(b.Sp, "unknown binary operator")
	}
}

func intOp(sp span.Span, l, r runtime.Value, f func(a, b int64) (int64, error)) (runtime.Value, error) {
	if !l.IsInt() || !r.IsInt() {
		return runtime.Value{}, errf(sp, "arithmetic operators require int operands")
	}
	v, err := f(l.AsInt(), r.AsInt())
	if err != nil {
		return runtime.Value{}, err
	}
	return runtime.Int(v), nil
}

func cmpOp(sp span.Span, l, r runtime.Value, f func(a, b int64) bool) (runtime.Value, error) {
	if !l.IsInt() || !r.IsInt() {
		return runtime.Value{}, errf(sp, "comparison operators require int operands")
	}
	return runtime.Bool(f(l.AsInt(), r.AsInt())), nil
}

func (it *Interp) indexGet(sp span.Span, base, index runtime.Value) (runtime.Value, error) {
	switch {
	case base.IsArray():
		if !index.IsInt() {
			return runtime.Value{}, errf(sp, "array index must be int")
		}
		v, ok, err := it.heap.ArrayGet(base.AsHandle(), int(index.AsInt()))
		if err != nil {
			return runtime.Value{}, errf(sp, err.Error())
		}
		if !ok {
			return runtime.Value{}, errf(sp, "index out of bounds")
		}
		return v, nil
	case base.IsObject():
		if !index.IsString() {
			return runtime.Value{}, errf(sp, "object key must be string")
		}
		v, ok, err := it.heap.ObjectGet(base.AsHandle(), index.AsString())
		if err != nil {
			return runtime.Value{}, errf(sp, err.Error())
		}
		if !ok {
			return runtime.Value{}, errf(sp, "missing key: "+index.AsString())
		}
		return v, nil
	default:
		return runtime.Value{}, errf(sp, "cannot index into "+base.TypeName())
	}
}

func (it *Interp) indexSet(sp span.Span, base, index, value runtime.Value) error {
	switch {
	case base.IsArray():
		if !index.IsInt() {
			return errf(sp, "array index must be int")
		}
		if err := it.heap.ArraySet(base.AsHandle(), int(index.AsInt()), value); err != nil {
			return errf(sp, err.Error())
		}
		return nil
	case base.IsObject():
		if !index.IsString() {
			return errf(sp, "object key must be string")
		}
		if err := it.heap.ObjectSet(base.AsHandle(), index.AsString(), value); err != nil {
			return errf(sp, err.Error())
		}
		return nil
	default:
		return errf(sp, "cannot assign through index on "+base.TypeName())
	}
}
