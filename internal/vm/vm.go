// Package vm is the stack-based bytecode interpreter: a frame stack,
// an operand stack, and a traced heap (runtime.Heap) that it collects
// only on explicit gc() calls. It never re-typechecks; a VM Error here
// means either hand-built bytecode violated an invariant the compiler
// would otherwise guarantee, or a genuine runtime condition (division
// by zero, an out-of-bounds index) that typechecking can't rule out.
package vm

import (
	"github.com/aldezex/moon/internal/bytecode"
	"github.com/aldezex/moon/internal/runtime"
	"github.com/aldezex/moon/internal/span"
)

const gcBuiltinName = "gc"

type frame struct {
	fn         bytecode.FuncID
	ip         int
	stackBase  int
	scopes     []map[string]runtime.Value
	closure    runtime.Handle
	hasClosure bool
}

// Vm executes a compiled Module to completion. Each run is single-use:
// construct a fresh Vm per execution.
type Vm struct {
	module      *bytecode.Module
	heap        *runtime.Heap
	globals     map[string]runtime.Value
	stack       []runtime.Value
	frames      []frame
	currentSpan span.Span
}

// New returns a Vm ready to run module, backed by a fresh heap.
func New(module *bytecode.Module) *Vm {
	return &Vm{
		module:  module,
		heap:    runtime.NewHeap(),
		globals: make(map[string]runtime.Value),
	}
}

// Heap exposes the Vm's heap, mainly so callers can inspect Stats
// after a run (e.g. the CLI's vm subcommand).
func (v *Vm) Heap() *runtime.Heap { return v.heap }

// Run executes module.Main to completion and returns its result.
// Main runs with no local scopes, so a top-level `let` defines a
// global rather than a frame-local.
func Run(module *bytecode.Module) (runtime.Value, error) {
	return New(module).Run()
}

func (v *Vm) Run() (runtime.Value, error) {
	v.frames = append(v.frames, frame{fn: v.module.Main, stackBase: 0})

	for {
		fi := len(v.frames) - 1
		fn, ok := v.module.Func(v.frames[fi].fn)
		if !ok {
			return runtime.Value{}, v.err("invalid function id")
		}
		ip := v.frames[fi].ip
		if ip >= len(fn.Code) {
			return runtime.Value{}, v.err("instruction pointer out of bounds in " + fn.Name)
		}

		instr := fn.Code[ip]
		v.frames[fi].ip++
		v.currentSpan = instr.Span

		result, err := v.step(fi, instr.Kind)
		if err != nil {
			return runtime.Value{}, err
		}
		if result.done {
			return result.value, nil
		}
	}
}

type stepResult struct {
	done  bool
	value runtime.Value
}

func (v *Vm) step(fi int, k bytecode.Kind) (stepResult, error) {
	switch k.Op {
	case bytecode.OpPush:
		v.push(k.Value)

	case bytecode.OpPop:
		if _, err := v.pop(); err != nil {
			return stepResult{}, err
		}

	case bytecode.OpPushScope:
		v.frames[fi].scopes = append(v.frames[fi].scopes, map[string]runtime.Value{})

	case bytecode.OpPopScope:
		n := len(v.frames[fi].scopes)
		if n == 0 {
			return stepResult{}, v.err("scope underflow")
		}
		v.frames[fi].scopes = v.frames[fi].scopes[:n-1]

	case bytecode.OpLoadVar:
		if val, ok := v.getVar(fi, k.Name); ok {
			v.push(val)
		} else if _, ok := v.module.ByName[k.Name]; ok {
			v.push(runtime.Function(k.Name))
		} else {
			return stepResult{}, v.err("undefined variable: " + k.Name)
		}

	case bytecode.OpDefineVar:
		val, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		v.defineVar(fi, k.Name, val)

	case bytecode.OpSetVar:
		val, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		if err := v.setVar(fi, k.Name, val); err != nil {
			return stepResult{}, err
		}

	case bytecode.OpNeg:
		val, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		if !val.IsInt() {
			return stepResult{}, v.err("cannot apply unary '-' to " + val.TypeName())
		}
		v.push(runtime.Int(-val.AsInt()))

	case bytecode.OpNot:
		val, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		if !val.IsBool() {
			return stepResult{}, v.err("cannot apply unary '!' to " + val.TypeName())
		}
		v.push(runtime.Bool(!val.AsBool()))

	case bytecode.OpAdd:
		if err := v.binAdd(); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpSub:
		if err := v.binInt(func(a, b int64) int64 { return a - b }); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpMul:
		if err := v.binInt(func(a, b int64) int64 { return a * b }); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpDiv:
		a, b, err := v.popTwoInts()
		if err != nil {
			return stepResult{}, err
		}
		if b == 0 {
			return stepResult{}, v.err("division by zero")
		}
		v.push(runtime.Int(a / b))
	case bytecode.OpMod:
		a, b, err := v.popTwoInts()
		if err != nil {
			return stepResult{}, err
		}
		if b == 0 {
			return stepResult{}, v.err("modulo by zero")
		}
		v.push(runtime.Int(a % b))
	case bytecode.OpEq:
		if err := v.binEq(true); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpNe:
		if err := v.binEq(false); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpLt:
		if err := v.binCmp(func(a, b int64) bool { return a < b }); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpLe:
		if err := v.binCmp(func(a, b int64) bool { return a <= b }); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpGt:
		if err := v.binCmp(func(a, b int64) bool { return a > b }); err != nil {
			return stepResult{}, err
		}
	case bytecode.OpGe:
		if err := v.binCmp(func(a, b int64) bool { return a >= b }); err != nil {
			return stepResult{}, err
		}

	case bytecode.OpJump:
		v.frames[fi].ip = k.Dst

	case bytecode.OpJumpIfFalse:
		val, err := v.peek()
		if err != nil {
			return stepResult{}, err
		}
		if !val.IsBool() {
			return stepResult{}, v.err("expected bool condition, got " + val.TypeName())
		}
		if !val.AsBool() {
			v.frames[fi].ip = k.Dst
		}

	case bytecode.OpJumpIfTrue:
		val, err := v.peek()
		if err != nil {
			return stepResult{}, err
		}
		if !val.IsBool() {
			return stepResult{}, v.err("expected bool condition, got " + val.TypeName())
		}
		if val.AsBool() {
			v.frames[fi].ip = k.Dst
		}

	case bytecode.OpCall:
		if err := v.doCall(k.FuncID, k.Argc); err != nil {
			return stepResult{}, err
		}

	case bytecode.OpCallValue:
		if err := v.callValue(k.Argc); err != nil {
			return stepResult{}, err
		}

	case bytecode.OpReturn:
		ret, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		f := v.frames[len(v.frames)-1]
		v.frames = v.frames[:len(v.frames)-1]
		v.stack = v.stack[:f.stackBase]

		if len(v.frames) == 0 {
			return stepResult{done: true, value: ret}, nil
		}
		v.push(ret)

	case bytecode.OpMakeArray:
		elems := make([]runtime.Value, k.N)
		for i := k.N - 1; i >= 0; i-- {
			val, err := v.pop()
			if err != nil {
				return stepResult{}, err
			}
			elems[i] = val
		}
		h := v.heap.AllocArray(elems)
		v.push(runtime.Array(h))

	case bytecode.OpMakeObject:
		n := len(k.Keys)
		values := make([]runtime.Value, n)
		for i := n - 1; i >= 0; i-- {
			val, err := v.pop()
			if err != nil {
				return stepResult{}, err
			}
			values[i] = val
		}
		entries := make(map[string]runtime.Value, n)
		for i, key := range k.Keys {
			entries[key] = values[i]
		}
		h := v.heap.AllocObject(entries)
		v.push(runtime.Object(h))

	case bytecode.OpIndexGet:
		index, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		base, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		val, err := v.indexGet(base, index)
		if err != nil {
			return stepResult{}, err
		}
		v.push(val)

	case bytecode.OpIndexSet:
		value, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		index, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		base, err := v.pop()
		if err != nil {
			return stepResult{}, err
		}
		if err := v.indexSet(base, index, value); err != nil {
			return stepResult{}, err
		}

	case bytecode.OpMakeClosure:
		env := make(map[string]runtime.Value, len(k.Captures))
		for _, name := range k.Captures {
			if val, ok := v.getLocal(fi, name); ok {
				env[name] = val
			}
		}
		h := v.heap.AllocClosure(k.ClosureFunc, env)
		v.push(runtime.Closure(h))

	default:
		return stepResult{}, v.err("unknown opcode")
	}

	return stepResult{}, nil
}

func (v *Vm) err(message string) *Error {
	return errf(v.currentSpan, "%s", message)
}

func (v *Vm) push(val runtime.Value) { v.stack = append(v.stack, val) }

func (v *Vm) pop() (runtime.Value, error) {
	n := len(v.stack)
	if n == 0 {
		return runtime.Value{}, v.err("stack underflow")
	}
	val := v.stack[n-1]
	v.stack = v.stack[:n-1]
	return val, nil
}

func (v *Vm) peek() (runtime.Value, error) {
	n := len(v.stack)
	if n == 0 {
		return runtime.Value{}, v.err("stack underflow")
	}
	return v.stack[n-1], nil
}

func (v *Vm) popTwoInts() (int64, int64, error) {
	b, err := v.pop()
	if err != nil {
		return 0, 0, err
	}
	a, err := v.pop()
	if err != nil {
		return 0, 0, err
	}
	if !a.IsInt() || !b.IsInt() {
		return 0, 0, v.err("expected two ints, got " + a.TypeName() + " and " + b.TypeName())
	}
	return a.AsInt(), b.AsInt(), nil
}

func (v *Vm) binInt(f func(a, b int64) int64) error {
	a, b, err := v.popTwoInts()
	if err != nil {
		return err
	}
	v.push(runtime.Int(f(a, b)))
	return nil
}

func (v *Vm) binAdd() error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}
	switch {
	case a.IsInt() && b.IsInt():
		v.push(runtime.Int(a.AsInt() + b.AsInt()))
		return nil
	case a.IsString() && b.IsString():
		v.push(runtime.String(a.AsString() + b.AsString()))
		return nil
	default:
		return v.err("cannot add " + a.TypeName() + " and " + b.TypeName())
	}
}

func (v *Vm) binEq(eq bool) error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}
	r := a.Equals(b)
	if !eq {
		r = !r
	}
	v.push(runtime.Bool(r))
	return nil
}

func (v *Vm) binCmp(f func(a, b int64) bool) error {
	a, b, err := v.popTwoInts()
	if err != nil {
		return err
	}
	v.push(runtime.Bool(f(a, b)))
	return nil
}

// doCall handles a statically-resolved Call(id, argc): it intercepts
// the gc() builtin by the name of the function at id, and otherwise
// pops argc arguments in reverse and pushes a fresh call frame. The
// compiler never emits Call
// (only CallValue), but the VM supports it fully for hand-built
// bytecode and tests.
func (v *Vm) doCall(id bytecode.FuncID, argc int) error {
	fn, ok := v.module.Func(id)
	if !ok {
		return v.err("invalid function id")
	}

	if fn.Name == gcBuiltinName {
		if argc != 0 {
			return v.err("gc() takes no arguments")
		}
		v.heap.CollectGarbage(v.roots())
		v.push(runtime.Unit())
		return nil
	}

	args, err := v.popArgs(argc)
	if err != nil {
		return err
	}
	stackBase := len(v.stack)
	return v.pushCallFrame(id, stackBase, args, false, runtime.Handle(0))
}

func (v *Vm) callValue(argc int) error {
	args, err := v.popArgs(argc)
	if err != nil {
		return err
	}

	callee, err := v.pop()
	if err != nil {
		return err
	}

	var name string
	var closureHandle runtime.Handle
	hasClosure := false

	switch {
	case callee.IsFunction():
		name = callee.FunctionName()
	case callee.IsClosure():
		h := callee.AsHandle()
		fn, err := v.heap.ClosureFuncName(h)
		if err != nil {
			return v.err("invalid closure handle")
		}
		name = fn
		closureHandle = h
		hasClosure = true
	default:
		return v.err("cannot call non-function value: " + callee.TypeName())
	}

	id, ok := v.module.ByName[name]
	if !ok {
		return v.err("undefined function: " + name)
	}
	fn, ok := v.module.Func(id)
	if !ok {
		return v.err("invalid function id")
	}

	if fn.Name == gcBuiltinName {
		if argc != 0 {
			return v.err("gc() takes no arguments")
		}
		v.heap.CollectGarbage(v.roots())
		v.push(runtime.Unit())
		return nil
	}

	stackBase := len(v.stack)
	return v.pushCallFrame(id, stackBase, args, hasClosure, closureHandle)
}

func (v *Vm) popArgs(argc int) ([]runtime.Value, error) {
	args := make([]runtime.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		val, err := v.pop()
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return args, nil
}

func (v *Vm) pushCallFrame(id bytecode.FuncID, stackBase int, args []runtime.Value, hasClosure bool, closure runtime.Handle) error {
	fn, ok := v.module.Func(id)
	if !ok {
		return v.err("invalid function id")
	}

	scope := make(map[string]runtime.Value, len(fn.Params))
	for i, name := range fn.Params {
		if i < len(args) {
			scope[name] = args[i]
		}
	}

	v.frames = append(v.frames, frame{
		fn:         id,
		stackBase:  stackBase,
		scopes:     []map[string]runtime.Value{scope},
		closure:    closure,
		hasClosure: hasClosure,
	})
	return nil
}

func (v *Vm) getVar(fi int, name string) (runtime.Value, bool) {
	f := &v.frames[fi]
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if val, ok := f.scopes[i][name]; ok {
			return val, true
		}
	}
	if f.hasClosure {
		if val, ok, err := v.heap.ClosureGet(f.closure, name); err == nil && ok {
			return val, true
		}
	}
	val, ok := v.globals[name]
	return val, ok
}

func (v *Vm) getLocal(fi int, name string) (runtime.Value, bool) {
	f := &v.frames[fi]
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if val, ok := f.scopes[i][name]; ok {
			return val, true
		}
	}
	if f.hasClosure {
		if val, ok, err := v.heap.ClosureGet(f.closure, name); err == nil && ok {
			return val, true
		}
	}
	return runtime.Value{}, false
}

func (v *Vm) defineVar(fi int, name string, val runtime.Value) {
	f := &v.frames[fi]
	if n := len(f.scopes); n > 0 {
		f.scopes[n-1][name] = val
		return
	}
	v.globals[name] = val
}

func (v *Vm) setVar(fi int, name string, val runtime.Value) error {
	f := &v.frames[fi]
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if _, ok := f.scopes[i][name]; ok {
			f.scopes[i][name] = val
			return nil
		}
	}
	if f.hasClosure && v.heap.ClosureContains(f.closure, name) {
		return v.heap.ClosureSet(f.closure, name, val)
	}
	if _, ok := v.globals[name]; ok {
		v.globals[name] = val
		return nil
	}
	return v.err("undefined variable: " + name)
}

func (v *Vm) indexGet(base, index runtime.Value) (runtime.Value, error) {
	switch {
	case base.IsArray():
		if !index.IsInt() {
			return runtime.Value{}, v.err("array index must be int, got " + index.TypeName())
		}
		idx := int(index.AsInt())
		if idx < 0 {
			return runtime.Value{}, v.err("array index must be >= 0")
		}
		val, ok, err := v.heap.ArrayGet(base.AsHandle(), idx)
		if err != nil {
			return runtime.Value{}, v.err(err.Error())
		}
		if !ok {
			return runtime.Value{}, v.err("index out of bounds")
		}
		return val, nil

	case base.IsObject():
		if !index.IsString() {
			return runtime.Value{}, v.err("object key must be string, got " + index.TypeName())
		}
		key := index.AsString()
		val, ok, err := v.heap.ObjectGet(base.AsHandle(), key)
		if err != nil {
			return runtime.Value{}, v.err(err.Error())
		}
		if !ok {
			return runtime.Value{}, v.err("missing key: " + key)
		}
		return val, nil

	default:
		return runtime.Value{}, v.err("cannot index into " + base.TypeName())
	}
}

func (v *Vm) indexSet(base, index, value runtime.Value) error {
	switch {
	case base.IsArray():
		if !index.IsInt() {
			return v.err("array index must be int, got " + index.TypeName())
		}
		idx := int(index.AsInt())
		if idx < 0 {
			return v.err("array index must be >= 0")
		}
		if err := v.heap.ArraySet(base.AsHandle(), idx, value); err != nil {
			return v.err(err.Error())
		}
		return nil

	case base.IsObject():
		if !index.IsString() {
			return v.err("object key must be string, got " + index.TypeName())
		}
		if err := v.heap.ObjectSet(base.AsHandle(), index.AsString(), value); err != nil {
			return v.err(err.Error())
		}
		return nil

	default:
		return v.err("cannot assign through index on " + base.TypeName())
	}
}

// roots enumerates every Value currently reachable without tracing
// through the heap: globals, every open scope and closure of every
// live frame, and the operand stack. gc() is the only place these are
// collected, matching the spec's explicit-trigger collection model.
func (v *Vm) roots() []runtime.Value {
	var roots []runtime.Value
	for _, val := range v.globals {
		roots = append(roots, val)
	}
	for _, f := range v.frames {
		if f.hasClosure {
			roots = append(roots, runtime.Closure(f.closure))
		}
		for _, scope := range f.scopes {
			for _, val := range scope {
				roots = append(roots, val)
			}
		}
	}
	roots = append(roots, v.stack...)
	return roots
}
