package vm

import (
	"testing"

	"github.com/aldezex/moon/internal/bytecode"
	"github.com/aldezex/moon/internal/runtime"
	"github.com/aldezex/moon/internal/span"
)

func sp() span.Span { return span.New(0, 0) }

func instr(k bytecode.Kind) bytecode.Instr { return bytecode.NewInstr(k, sp()) }

func mainModule(code ...bytecode.Instr) *bytecode.Module {
	return &bytecode.Module{
		Functions: []bytecode.Function{{Name: "<main>", Code: code}},
		ByName:    map[string]bytecode.FuncID{"<main>": 0},
		Main:      0,
	}
}

func requireInt(t *testing.T, v runtime.Value, want int64) {
	t.Helper()
	if !v.IsInt() || v.AsInt() != want {
		t.Fatalf("want Int(%d), got %s", want, v.Inspect())
	}
}

func TestArithmeticAndPrecedence(t *testing.T) {
	// let x = 1 + 2 * 3; x + 1
	code := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Push(runtime.Int(2))),
		instr(bytecode.Push(runtime.Int(3))),
		instr(bytecode.Mul()),
		instr(bytecode.Add()),
		instr(bytecode.DefineVar("x")),
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	v, err := Run(mainModule(code...))
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 8)
}

func TestBlockScopeShadowing(t *testing.T) {
	// let x = 1; { let x = 2; x } + x
	code := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.DefineVar("x")),
		instr(bytecode.PushScope()),
		instr(bytecode.Push(runtime.Int(2))),
		instr(bytecode.DefineVar("x")),
		instr(bytecode.LoadVar("x")),
		instr(bytecode.PopScope()),
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	v, err := Run(mainModule(code...))
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 3)
}

func TestIfExpression(t *testing.T) {
	// if true { 1 } else { 2 }
	var code []bytecode.Instr
	code = append(code, instr(bytecode.Push(runtime.Bool(true)))) // 0
	jmpFalseAt := len(code)
	code = append(code, instr(bytecode.Jump(-1))) // 1 placeholder, fixed below
	code[jmpFalseAt] = instr(bytecode.JumpIfFalse(-1))
	code = append(code, instr(bytecode.Pop()))                // 2
	code = append(code, instr(bytecode.Push(runtime.Int(1)))) // 3
	jmpEndAt := len(code)
	code = append(code, instr(bytecode.Jump(-1))) // 4
	elseIP := len(code)
	code[jmpFalseAt] = instr(bytecode.JumpIfFalse(elseIP))
	code = append(code, instr(bytecode.Pop()))                // 5
	code = append(code, instr(bytecode.Push(runtime.Int(2)))) // 6
	endIP := len(code)
	code[jmpEndAt] = instr(bytecode.Jump(endIP))
	code = append(code, instr(bytecode.Return())) // 7

	v, err := Run(mainModule(code...))
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 1)
}

func TestCallBeforeDefinitionAndCallOpcode(t *testing.T) {
	// fn f(x) { x + 1 }; Call(f, 1); CallValue via LoadVar(f)(1)
	fBody := []bytecode.Instr{
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	mainCode := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Call(1, 1)), // static Call opcode, exercised directly
		instr(bytecode.Pop()),
		instr(bytecode.LoadVar("f")),
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.CallValue(1)),
		instr(bytecode.Return()),
	}
	m := &bytecode.Module{
		Functions: []bytecode.Function{
			{Name: "<main>", Code: mainCode},
			{Name: "f", Params: []string{"x"}, Code: fBody},
		},
		ByName: map[string]bytecode.FuncID{"<main>": 0, "f": 1},
		Main:   0,
	}
	v, err := Run(m)
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 2)
}

func TestFunctionValuesCalledIndirectly(t *testing.T) {
	// fn add1(x) { x + 1 }; let f = add1; f(41)
	addBody := []bytecode.Instr{
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	mainCode := []bytecode.Instr{
		instr(bytecode.LoadVar("add1")),
		instr(bytecode.DefineVar("f")),
		instr(bytecode.LoadVar("f")),
		instr(bytecode.Push(runtime.Int(41))),
		instr(bytecode.CallValue(1)),
		instr(bytecode.Return()),
	}
	m := &bytecode.Module{
		Functions: []bytecode.Function{
			{Name: "<main>", Code: mainCode},
			{Name: "add1", Params: []string{"x"}, Code: addBody},
		},
		ByName: map[string]bytecode.FuncID{"<main>": 0, "add1": 1},
		Main:   0,
	}
	v, err := Run(m)
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 42)
}

func TestClosuresCaptureLexicalVariables(t *testing.T) {
	// let f = { let x = 10; fn(y) { x + y } }; { let x = 100; f(1) }
	lambdaBody := []bytecode.Instr{
		instr(bytecode.LoadVar("x")),
		instr(bytecode.LoadVar("y")),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	mainCode := []bytecode.Instr{
		instr(bytecode.PushScope()),
		instr(bytecode.Push(runtime.Int(10))),
		instr(bytecode.DefineVar("x")),
		instr(bytecode.MakeClosure("<lambda#0>", []string{"x"})),
		instr(bytecode.PopScope()),
		instr(bytecode.DefineVar("f")),
		instr(bytecode.PushScope()),
		instr(bytecode.Push(runtime.Int(100))),
		instr(bytecode.DefineVar("x")),
		instr(bytecode.LoadVar("f")),
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.CallValue(1)),
		instr(bytecode.PopScope()),
		instr(bytecode.Return()),
	}
	m := &bytecode.Module{
		Functions: []bytecode.Function{
			{Name: "<main>", Code: mainCode},
			{Name: "<lambda#0>", Params: []string{"y"}, Code: lambdaBody},
		},
		ByName: map[string]bytecode.FuncID{"<main>": 0, "<lambda#0>": 1},
		Main:   0,
	}
	v, err := Run(m)
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 11)
}

func TestClosuresCanMutateCapturedState(t *testing.T) {
	// let c = { let x = 0; fn() { x = x + 1; x } }; c() + c()
	lambdaBody := []bytecode.Instr{
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Add()),
		instr(bytecode.SetVar("x")),
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Return()),
	}
	mainCode := []bytecode.Instr{
		instr(bytecode.PushScope()),
		instr(bytecode.Push(runtime.Int(0))),
		instr(bytecode.DefineVar("x")),
		instr(bytecode.MakeClosure("<lambda#0>", []string{"x"})),
		instr(bytecode.PopScope()),
		instr(bytecode.DefineVar("c")),
		instr(bytecode.LoadVar("c")),
		instr(bytecode.CallValue(0)),
		instr(bytecode.LoadVar("c")),
		instr(bytecode.CallValue(0)),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	m := &bytecode.Module{
		Functions: []bytecode.Function{
			{Name: "<main>", Code: mainCode},
			{Name: "<lambda#0>", Params: nil, Code: lambdaBody},
		},
		ByName: map[string]bytecode.FuncID{"<main>": 0, "<lambda#0>": 1},
		Main:   0,
	}
	v, err := Run(m)
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 3)
}

func TestArraysObjectsAndAssignment(t *testing.T) {
	// let a = [1,2,3]; a[0] = 10; let o = #{a: 1, "b": 2}; o["a"] = 10;
	// a[0] + o["b"]
	code := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Push(runtime.Int(2))),
		instr(bytecode.Push(runtime.Int(3))),
		instr(bytecode.MakeArray(3)),
		instr(bytecode.DefineVar("a")),

		instr(bytecode.LoadVar("a")),
		instr(bytecode.Push(runtime.Int(0))),
		instr(bytecode.Push(runtime.Int(10))),
		instr(bytecode.IndexSet()),

		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Push(runtime.Int(2))),
		instr(bytecode.MakeObject([]string{"a", "b"})),
		instr(bytecode.DefineVar("o")),

		instr(bytecode.LoadVar("o")),
		instr(bytecode.Push(runtime.String("a"))),
		instr(bytecode.Push(runtime.Int(10))),
		instr(bytecode.IndexSet()),

		instr(bytecode.LoadVar("a")),
		instr(bytecode.Push(runtime.Int(0))),
		instr(bytecode.IndexGet()),

		instr(bytecode.LoadVar("o")),
		instr(bytecode.Push(runtime.String("b"))),
		instr(bytecode.IndexGet()),

		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	v, err := Run(mainModule(code...))
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 12)
}

func TestGcBuiltinKeepsRootsAlive(t *testing.T) {
	// let a = [1, 2, 3]; gc(); a[0]
	gcStub := bytecode.Function{Name: "gc"}
	code := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.Push(runtime.Int(2))),
		instr(bytecode.Push(runtime.Int(3))),
		instr(bytecode.MakeArray(3)),
		instr(bytecode.DefineVar("a")),
		instr(bytecode.LoadVar("gc")),
		instr(bytecode.CallValue(0)),
		instr(bytecode.Pop()),
		instr(bytecode.LoadVar("a")),
		instr(bytecode.Push(runtime.Int(0))),
		instr(bytecode.IndexGet()),
		instr(bytecode.Return()),
	}
	m := &bytecode.Module{
		Functions: []bytecode.Function{{Name: "<main>", Code: code}, gcStub},
		ByName:    map[string]bytecode.FuncID{"<main>": 0, "gc": 1},
		Main:      0,
	}
	v, err := Run(m)
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 1)

	vm := New(m)
	if _, err := vm.Run(); err != nil {
		t.Fatal(err)
	}
	stats := vm.Heap().Stats()
	if stats.LiveObjects != 1 {
		t.Fatalf("expected the array to survive gc(), got %d live objects", stats.LiveObjects)
	}
}

func TestReturnStatementExitsFunctionEarly(t *testing.T) {
	// fn f(x) { if x > 0 { return x; } else {} ; x + 1 }
	// f(0) + f(2)
	fBody := []bytecode.Instr{
		instr(bytecode.LoadVar("x")),
		instr(bytecode.Push(runtime.Int(0))),
		instr(bytecode.Gt()),
	}
	jmpFalseAt := len(fBody)
	fBody = append(fBody, instr(bytecode.JumpIfFalse(-1)))
	fBody = append(fBody, instr(bytecode.Pop()))
	fBody = append(fBody, instr(bytecode.LoadVar("x")))
	fBody = append(fBody, instr(bytecode.Return()))
	jmpEndAt := len(fBody)
	fBody = append(fBody, instr(bytecode.Jump(-1)))
	elseIP := len(fBody)
	fBody[jmpFalseAt] = instr(bytecode.JumpIfFalse(elseIP))
	fBody = append(fBody, instr(bytecode.Pop()))
	fBody = append(fBody, instr(bytecode.Push(runtime.Unit())))
	endIP := len(fBody)
	fBody[jmpEndAt] = instr(bytecode.Jump(endIP))
	fBody = append(fBody, instr(bytecode.Pop()))
	fBody = append(fBody, instr(bytecode.LoadVar("x")))
	fBody = append(fBody, instr(bytecode.Push(runtime.Int(1))))
	fBody = append(fBody, instr(bytecode.Add()))
	fBody = append(fBody, instr(bytecode.Return()))

	mainCode := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(0))),
		instr(bytecode.Call(1, 1)),
		instr(bytecode.Push(runtime.Int(2))),
		instr(bytecode.Call(1, 1)),
		instr(bytecode.Add()),
		instr(bytecode.Return()),
	}
	m := &bytecode.Module{
		Functions: []bytecode.Function{
			{Name: "<main>", Code: mainCode},
			{Name: "f", Params: []string{"x"}, Code: fBody},
		},
		ByName: map[string]bytecode.FuncID{"<main>": 0, "f": 1},
		Main:   0,
	}
	v, err := Run(m)
	if err != nil {
		t.Fatal(err)
	}
	requireInt(t, v, 3)
}

func TestDivisionAndModuloByZero(t *testing.T) {
	cases := []struct {
		name string
		op   bytecode.Kind
	}{
		{"div", bytecode.Div()},
		{"mod", bytecode.Mod()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := []bytecode.Instr{
				instr(bytecode.Push(runtime.Int(1))),
				instr(bytecode.Push(runtime.Int(0))),
				instr(tc.op),
				instr(bytecode.Return()),
			}
			if _, err := Run(mainModule(code...)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestArraySetAtLengthIsOutOfBounds(t *testing.T) {
	code := []bytecode.Instr{
		instr(bytecode.Push(runtime.Int(1))),
		instr(bytecode.MakeArray(1)),
		instr(bytecode.DefineVar("a")),
		instr(bytecode.LoadVar("a")),
		instr(bytecode.Push(runtime.Int(1))), // == len
		instr(bytecode.Push(runtime.Int(9))),
		instr(bytecode.IndexSet()),
		instr(bytecode.Push(runtime.Unit())),
		instr(bytecode.Return()),
	}
	if _, err := Run(mainModule(code...)); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestStackUnderflowOnEmptyPop(t *testing.T) {
	code := []bytecode.Instr{
		instr(bytecode.Pop()),
		instr(bytecode.Return()),
	}
	if _, err := Run(mainModule(code...)); err == nil {
		t.Fatal("expected stack underflow error")
	}
}

func TestUndefinedVariableLookup(t *testing.T) {
	code := []bytecode.Instr{
		instr(bytecode.LoadVar("missing")),
		instr(bytecode.Return()),
	}
	if _, err := Run(mainModule(code...)); err == nil {
		t.Fatal("expected undefined variable error")
	}
}
