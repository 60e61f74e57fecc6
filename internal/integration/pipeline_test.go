// Package integration exercises the full lex -> parse -> typecheck ->
// compile -> run pipeline against the example programs from the
// project's design notes, end to end.
package integration

import (
	"testing"

	"github.com/aldezex/moon/internal/compiler"
	"github.com/aldezex/moon/internal/parser"
	"github.com/aldezex/moon/internal/runtime"
	"github.com/aldezex/moon/internal/typecheck"
	"github.com/aldezex/moon/internal/vm"
)

func runSource(t *testing.T, src string) runtime.Value {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := typecheck.CheckProgram(prog); err != nil {
		t.Fatalf("typecheck error: %v", err)
	}
	module, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	val, err := vm.Run(module)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return val
}

func requireInt(t *testing.T, v runtime.Value, want int64) {
	t.Helper()
	if !v.IsInt() || v.AsInt() != want {
		t.Fatalf("want Int(%d), got %s", want, v.Inspect())
	}
}

func TestArithmeticAndPrecedence(t *testing.T) {
	requireInt(t, runSource(t, "let x = 1 + 2 * 3; x + 1"), 8)
}

func TestBlockScoping(t *testing.T) {
	requireInt(t, runSource(t, "let x = 1; { let x = 2; x } + x"), 3)
}

func TestFunctionsIfElseAndReturn(t *testing.T) {
	requireInt(t, runSource(t,
		"fn f(x: Int) -> Int { if x > 0 { return x; } else {}; x + 1 } f(0) + f(2)"), 3)
}

func TestArraysObjectsAndAssignment(t *testing.T) {
	requireInt(t, runSource(t,
		`let a = [1,2,3]; a[0] = 10; let o = #{ a: 1, "b": 2 }; o["a"] = 10; a[0] + o["b"]`), 12)
}

func TestClosuresCaptureLexicalScope(t *testing.T) {
	requireInt(t, runSource(t,
		`let f = { let x = 10; fn(y: Int) -> Int { x + y } }; { let x = 100; f(1) }`), 11)
}

func TestClosuresPersistMutableState(t *testing.T) {
	requireInt(t, runSource(t,
		`let c = { let x = 0; fn() -> Int { x = x + 1; x } }; c() + c()`), 3)
}

func TestCallBeforeDefinition(t *testing.T) {
	requireInt(t, runSource(t,
		"f(1); fn f(x: Int) -> Int { x + 1 } f(1)"), 2)
}

func TestFunctionsAreValuesCalledIndirectly(t *testing.T) {
	requireInt(t, runSource(t,
		"fn add1(x: Int) -> Int { x + 1 } let f = add1; f(41)"), 42)
}

func TestGcBuiltinPreservesReachableState(t *testing.T) {
	requireInt(t, runSource(t, "let a = [1, 2, 3]; gc(); a[0]"), 1)
}

func TestEmptyArrayRejectedWithoutAnnotation(t *testing.T) {
	prog, err := parser.Parse("let a = []; a")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := typecheck.CheckProgram(prog); err == nil {
		t.Fatal("expected a typecheck error for unannotated empty array literal")
	}
}

func TestEmptyArrayAcceptedWithAnnotation(t *testing.T) {
	requireInt(t, runSource(t, "let a: Array<Int> = []; 0"), 0)
}

func TestDivisionByZeroIsARuntimeError(t *testing.T) {
	prog, err := parser.Parse("1 / 0")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := typecheck.CheckProgram(prog); err != nil {
		t.Fatalf("typecheck error: %v", err)
	}
	module, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if _, err := vm.Run(module); err == nil {
		t.Fatal("expected a division-by-zero runtime error")
	}
}
