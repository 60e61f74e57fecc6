package parser

import (
	"testing"

	"github.com/aldezex/moon/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func TestParseLetAndTail(t *testing.T) {
	prog := mustParse(t, "let x = 1 + 2 * 3; x + 1")
	if len(prog.Stmts) != 1 {
		t.Fatalf("expected 1 stmt, got %d", len(prog.Stmts))
	}
	if _, ok := prog.Stmts[0].(*ast.LetStmt); !ok {
		t.Fatalf("expected LetStmt, got %T", prog.Stmts[0])
	}
	if prog.Tail == nil {
		t.Fatal("expected a tail expression")
	}
	if _, ok := prog.Tail.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected tail to be a BinaryExpr, got %T", prog.Tail)
	}
}

func TestParseFnDeclAndCallBeforeDefinition(t *testing.T) {
	prog := mustParse(t, `f(1);
		fn f(x: Int) -> Int { x + 1 }
		f(1)`)
	if len(prog.Stmts) != 2 {
		t.Fatalf("expected 2 stmts, got %d", len(prog.Stmts))
	}
	if _, ok := prog.Stmts[0].(*ast.ExprStmt); !ok {
		t.Fatalf("expected ExprStmt first, got %T", prog.Stmts[0])
	}
	fn, ok := prog.Stmts[1].(*ast.FnStmt)
	if !ok {
		t.Fatalf("expected FnStmt, got %T", prog.Stmts[1])
	}
	if fn.Name != "f" || len(fn.Params) != 1 || fn.Params[0].Name != "x" {
		t.Fatalf("unexpected fn shape: %+v", fn)
	}
	if prog.Tail == nil {
		t.Fatal("expected tail call expression")
	}
}

func TestParseIfElseAndReturn(t *testing.T) {
	prog := mustParse(t, `fn f(x: Int) -> Int { if x > 0 { return x; } else {}; x + 1 }
		f(0) + f(2)`)
	fn := prog.Stmts[0].(*ast.FnStmt)
	block := fn.Body.(*ast.Block)
	if len(block.Stmts) != 1 {
		t.Fatalf("expected 1 stmt in fn body (x + 1 is the tail), got %d", len(block.Stmts))
	}
	if _, ok := block.Stmts[0].(*ast.ExprStmt); !ok {
		t.Fatalf("expected if-expr statement, got %T", block.Stmts[0])
	}
	ifExpr := block.Stmts[0].(*ast.ExprStmt).Expr.(*ast.If)
	if ifExpr.Else == nil {
		t.Fatal("expected an else branch")
	}
}

func TestParseArraysAndObjectsAndAssignment(t *testing.T) {
	prog := mustParse(t, `let a = [1, 2, 3];
		a[0] = 10;
		let o = #{ a: 1, "b": 2 };
		o["a"] = 10;
		a[0] + o["b"]`)
	if len(prog.Stmts) != 4 {
		t.Fatalf("expected 4 stmts, got %d", len(prog.Stmts))
	}
	if _, ok := prog.Stmts[0].(*ast.LetStmt); !ok {
		t.Fatalf("expected LetStmt, got %T", prog.Stmts[0])
	}
	assign, ok := prog.Stmts[1].(*ast.AssignStmt)
	if !ok {
		t.Fatalf("expected AssignStmt, got %T", prog.Stmts[1])
	}
	if _, ok := assign.Target.(*ast.Index); !ok {
		t.Fatalf("expected Index assignment target, got %T", assign.Target)
	}
	letObj := prog.Stmts[2].(*ast.LetStmt)
	obj := letObj.Expr.(*ast.ObjectLit)
	if len(obj.Props) != 2 || obj.Props[0].Key != "a" || obj.Props[1].Key != "b" {
		t.Fatalf("unexpected object literal shape: %+v", obj.Props)
	}
}

func TestParseClosureLiteralAndGenericAnnotation(t *testing.T) {
	prog := mustParse(t, `let f: Array<Int> = [1, 2];
		let g = fn(y: Int) -> Int { y };
		g(1)`)
	letStmt := prog.Stmts[0].(*ast.LetStmt)
	generic, ok := letStmt.Ann.(*ast.GenericType)
	if !ok || generic.Base != "Array" {
		t.Fatalf("expected Array<Int> annotation, got %+v", letStmt.Ann)
	}
	fnLet := prog.Stmts[1].(*ast.LetStmt)
	if _, ok := fnLet.Expr.(*ast.FnExpr); !ok {
		t.Fatalf("expected FnExpr, got %T", fnLet.Expr)
	}
}

func TestParseErrorOnMissingSemicolon(t *testing.T) {
	_, err := Parse("let x = 1 x")
	if err == nil {
		t.Fatal("expected a parse error")
	}
}
