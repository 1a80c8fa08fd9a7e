package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders chunk as an indented instruction listing annotated
// with resolved source lines, in the tradition of `smog disassemble`
// (cmd/smog). Used by `ember disasm` and by compiler/VM tests that assert
// on emitted opcodes rather than raw bytes.
func Disassemble(chunk *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	lastLine := -1
	for i, instr := range chunk.Code {
		line := chunk.Line(i)
		if line == lastLine {
			fmt.Fprintf(&b, "%04d    | %s\n", i, operandString(instr))
		} else {
			fmt.Fprintf(&b, "%04d %4d %s\n", i, line, operandString(instr))
			lastLine = line
		}
	}
	return b.String()
}

func operandString(instr Instruction) string {
	switch instr.Op {
	case OpPop, OpDup, OpPushNull, OpPushTrue, OpPushFalse,
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpNeg, OpNot,
		OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe,
		OpCloseUpvalue, OpReturn, OpPopHandler, OpRaise, OpReraise, OpHalt:
		return instr.Op.String()
	case OpInvoke, OpSuperInvoke, OpNewTable:
		index, argc := UnpackArgs(instr.Operand)
		return fmt.Sprintf("%-16s %4d (argc %d)", instr.Op.String(), index, argc)
	default:
		return fmt.Sprintf("%-16s %4d", instr.Op.String(), instr.Operand)
	}
}
