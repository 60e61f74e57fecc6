package bytecode

import (
	"fmt"
	"strings"
)

// LineCol resolves a byte offset to a 1-based (line, col) pair, as
// produced by a Source. The disassembler takes it as a dependency
// instead of importing a Source type directly, keeping bytecode free
// of any notion of source text.
type LineCol func(offset int) (line, col int)

// Disassemble renders a human-readable listing of every function in m,
// one line per instruction: `ip  OPCODE operand  @line:col [start..end]`.
func Disassemble(m *Module, lc LineCol) string {
	var sb strings.Builder
	for id := range m.Functions {
		fn := &m.Functions[id]
		fmt.Fprintf(&sb, "== %s (#%d) ==\n", fn.Name, id)
		for ip, instr := range fn.Code {
			writeInstr(&sb, ip, instr, lc)
		}
	}
	return sb.String()
}

func writeInstr(sb *strings.Builder, ip int, instr Instr, lc LineCol) {
	line, col := lc(instr.Span.Start)
	fmt.Fprintf(sb, "%04d  %-14s%-24s @%d:%d [%d..%d]\n",
		ip, instr.Kind.Name(), operandText(instr.Kind), line, col, instr.Span.Start, instr.Span.End)
}

func operandText(k Kind) string {
	switch k.Op {
	case OpPush:
		return k.Value.Inspect()
	case OpLoadVar, OpDefineVar, OpSetVar:
		return k.Name
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("-> %d", k.Dst)
	case OpCall:
		return fmt.Sprintf("#%d argc=%d", k.FuncID, k.Argc)
	case OpCallValue:
		return fmt.Sprintf("argc=%d", k.Argc)
	case OpMakeArray:
		return fmt.Sprintf("n=%d", k.N)
	case OpMakeObject:
		return fmt.Sprintf("keys=%v", k.Keys)
	case OpMakeClosure:
		return fmt.Sprintf("%s captures=%v", k.ClosureFunc, k.Captures)
	default:
		return ""
	}
}
