// Package bytecode defines the instruction set and compiled Module
// shape that the compiler emits and the VM executes.
package bytecode

import "github.com/aldezex/moon/internal/span"

// FuncID indexes a Module's function table. Function id 0 is always
// the main function.
type FuncID int

// Function is one compiled function: its parameter names (by which
// call frames bind arguments) and its instruction stream.
type Function struct {
	Name   string
	Params []string
	Code   []Instr
}

// Module is a compiled unit: an immutable function table plus a
// name->id index and the id of main. The reserved "gc" builtin always
// appears in ByName with an empty-bodied Function, so calls to it
// dispatch through the same Call/CallValue machinery as user code; the
// VM intercepts it by name.
type Module struct {
	Functions []Function
	ByName    map[string]FuncID
	Main      FuncID
}

// Func returns the function at id, or false if id is out of range.
func (m *Module) Func(id FuncID) (*Function, bool) {
	if int(id) < 0 || int(id) >= len(m.Functions) {
		return nil, false
	}
	return &m.Functions[id], true
}

// Instr pairs an instruction kind with the span of the source
// construct that produced it, so runtime errors can blame the right
// syntax.
type Instr struct {
	Kind Kind
	Span span.Span
}

func NewInstr(kind Kind, sp span.Span) Instr {
	return Instr{Kind: kind, Span: sp}
}
