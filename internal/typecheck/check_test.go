package typecheck

import (
	"strings"
	"testing"

	"github.com/aldezex/moon/internal/parser"
)

// check parses and typechecks src, returning its rendered type or the
// error message, the way the original implementation's own
// typechecker test harness wraps lex+parse+check_program.
func check(t *testing.T, src string) (string, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ty, err := CheckProgram(prog)
	if err != nil {
		return "", err
	}
	return ty.String(), nil
}

func requireErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a type error, got none")
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

func TestInfersLetAndChecksOps(t *testing.T) {
	ty, err := check(t, "let x = 1 + 2 * 3; x")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Int" {
		t.Fatalf("want Int, got %s", ty)
	}
}

func TestRejectsMismatchedLetAnnotation(t *testing.T) {
	_, err := check(t, "let x: Bool = 1; x")
	requireErrContains(t, err, "type mismatch")
}

func TestRejectsIfBranchTypeMismatch(t *testing.T) {
	_, err := check(t, "if true { 1 } else { false }")
	requireErrContains(t, err, "if branches")
}

func TestRejectsDuplicateFunction(t *testing.T) {
	_, err := check(t, "fn f() -> Int { 1 } fn f() -> Int { 2 } f()")
	requireErrContains(t, err, "duplicate function")
}

func TestRejectsWrongArgumentType(t *testing.T) {
	_, err := check(t, "fn f(x: Int) -> Int { x } f(true)")
	requireErrContains(t, err, "argument type mismatch")
}

func TestRejectsWrongReturnType(t *testing.T) {
	_, err := check(t, "fn f() -> Bool { 1 } 0")
	requireErrContains(t, err, "type mismatch")
}

func TestCanTypecheckCallBeforeDefinition(t *testing.T) {
	ty, err := check(t, "f(1); fn f(x: Int) -> Int { x } f(2)")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Int" {
		t.Fatalf("want Int, got %s", ty)
	}
}

func TestAllowsFunctionsAsValuesAndIndirectCalls(t *testing.T) {
	ty, err := check(t, "fn add1(x: Int) -> Int { x + 1 } let f = add1; f(41)")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Int" {
		t.Fatalf("want Int, got %s", ty)
	}
}

func TestRejectsCallingNonFunctionValue(t *testing.T) {
	_, err := check(t, "let x = 1; x(2)")
	requireErrContains(t, err, "cannot call non-function")
}

func TestInfersArrayTypesAndIndexing(t *testing.T) {
	ty, err := check(t, "let a = [1, 2, 3]; a[0]")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Int" {
		t.Fatalf("want Int, got %s", ty)
	}
}

func TestRejectsMixedArrayElementTypes(t *testing.T) {
	_, err := check(t, "let a = [1, true]; a")
	requireErrContains(t, err, "array elements")
}

func TestRequiresAnnotationForEmptyArrayLiteral(t *testing.T) {
	_, err := check(t, "let a = []; a")
	requireErrContains(t, err, "empty array")
}

func TestAllowsEmptyArrayWithAnnotation(t *testing.T) {
	ty, err := check(t, "let a: Array<Int> = []; a")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Array<Int>" {
		t.Fatalf("want Array<Int>, got %s", ty)
	}
}

func TestInfersObjectTypesAndIndexing(t *testing.T) {
	ty, err := check(t, `let o = #{ a: 1, "b": 2 }; o["a"]`)
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Int" {
		t.Fatalf("want Int, got %s", ty)
	}
}

func TestAllowsEmptyObjectWithAnnotation(t *testing.T) {
	ty, err := check(t, "let o: Object<Int> = #{}; o")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Object<Int>" {
		t.Fatalf("want Object<Int>, got %s", ty)
	}
}

func TestRejectsAssignmentTypeMismatch(t *testing.T) {
	_, err := check(t, "let x: Int = 1; x = true; x")
	requireErrContains(t, err, "type mismatch")
}

func TestRejectsReturnOutsideFunction(t *testing.T) {
	_, err := check(t, "return 1; 0")
	requireErrContains(t, err, "return")
}

func TestRejectsReturnTypeMismatch(t *testing.T) {
	_, err := check(t, "fn f() -> Int { return true; } 0")
	requireErrContains(t, err, "type mismatch")
}

func TestAllowsFunctionWithOnlyReturnStatement(t *testing.T) {
	ty, err := check(t, "fn f() -> Int { return 1; } f()")
	if err != nil {
		t.Fatal(err)
	}
	if ty != "Int" {
		t.Fatalf("want Int, got %s", ty)
	}
}

func TestRejectsArrayIndexWithNonInt(t *testing.T) {
	_, err := check(t, `let a = [1, 2]; a["x"]`)
	requireErrContains(t, err, "array index must be Int")
}

func TestRejectsWrongArgumentCount(t *testing.T) {
	_, err := check(t, "fn f(x: Int) -> Int { x } f(1, 2)")
	requireErrContains(t, err, "wrong number of arguments")
}
