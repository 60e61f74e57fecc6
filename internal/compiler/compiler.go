// Package compiler is the tree-walking bytecode compiler: it turns a
// typechecked ast.Program into a bytecode.Module, patching forward
// jumps for if/short-circuit forms and tracking lexical visibility so
// anonymous functions capture the right names.
package compiler

import (
	"fmt"

	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/bytecode"
	"github.com/aldezex/moon/internal/runtime"
	"github.com/aldezex/moon/internal/span"
)

type compiler struct {
	functions    []bytecode.Function
	byName       map[string]bytecode.FuncID
	nextLambdaID int
}

// Compile transforms a typechecked program into a Module. program is
// assumed to have already passed typecheck.CheckProgram; Compile does
// not re-validate types, only assignment-target shape and duplicate
// function names.
func Compile(program *ast.Program) (*bytecode.Module, error) {
	c := &compiler{byName: make(map[string]bytecode.FuncID)}

	// Reserve id 0 for <main>.
	c.functions = append(c.functions, bytecode.Function{Name: "<main>"})
	mainID := bytecode.FuncID(0)
	c.byName["<main>"] = mainID

	// The gc builtin is a function like any other; the VM intercepts
	// it by name at the call site.
	c.defineStub("gc", nil)

	// Register every top-level function so calls may forward-reference.
	for _, stmt := range program.Stmts {
		fn, ok := stmt.(*ast.FnStmt)
		if !ok {
			continue
		}
		if _, exists := c.byName[fn.Name]; exists {
			return nil, errf(fn.Sp, "duplicate function: %s", fn.Name)
		}
		c.defineStub(fn.Name, paramNames(fn.Params))
	}

	// Compile each function body.
	for _, stmt := range program.Stmts {
		fn, ok := stmt.(*ast.FnStmt)
		if !ok {
			continue
		}
		id := c.byName[fn.Name]
		params := c.functions[id].Params
		ctx := newFunctionCtx(params, nil)
		if err := c.compileFunctionBody(id, fn.Body, ctx); err != nil {
			return nil, err
		}
	}

	// Compile main: its statements execute with an empty scope stack,
	// so top-level `let` falls through to VM globals.
	var code []bytecode.Instr
	ctx := newMainCtx()
	if err := c.compileStmts(program.Stmts, &code, ctx); err != nil {
		return nil, err
	}

	endSpan := programEndSpan(program)
	if program.Tail != nil {
		if err := c.compileExpr(program.Tail, &code, ctx); err != nil {
			return nil, err
		}
	} else {
		emit(&code, bytecode.Push(runtime.Unit()), endSpan)
	}
	emit(&code, bytecode.Return(), endSpan)
	c.functions[mainID].Code = code

	return &bytecode.Module{
		Functions: c.functions,
		ByName:    c.byName,
		Main:      mainID,
	}, nil
}

func programEndSpan(program *ast.Program) span.Span {
	if program.Tail != nil {
		return program.Tail.Span()
	}
	if n := len(program.Stmts); n > 0 {
		return program.Stmts[n-1].Span()
	}
	return span.Zero
}

func paramNames(params []ast.Param) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func (c *compiler) defineStub(name string, params []string) bytecode.FuncID {
	id := bytecode.FuncID(len(c.functions))
	c.byName[name] = id
	c.functions = append(c.functions, bytecode.Function{Name: name, Params: params})
	return id
}

func (c *compiler) freshLambdaName() string {
	id := c.nextLambdaID
	c.nextLambdaID++
	return lambdaName(id)
}

func lambdaName(id int) string {
	return fmt.Sprintf("<lambda#%d>", id)
}

func (c *compiler) compileFunctionBody(id bytecode.FuncID, body ast.Expr, ctx *funcCtx) error {
	var code []bytecode.Instr
	if err := c.compileExpr(body, &code, ctx); err != nil {
		return err
	}
	emit(&code, bytecode.Return(), body.Span())
	c.functions[id].Code = code
	return nil
}

func emit(code *[]bytecode.Instr, kind bytecode.Kind, sp span.Span) {
	*code = append(*code, bytecode.NewInstr(kind, sp))
}

// patchJump rewrites the Dst of the jump instruction at index `at` to
// target.
func patchJump(code []bytecode.Instr, at int, target int) {
	k := code[at].Kind
	k.Dst = target
	code[at].Kind = k
}
