package bytecode

import (
	"fmt"

	"github.com/deepnoodle-ai/pycode/op"
)

// Instruction is one decoded bytecode operation.
type Instruction struct {
	Offset   int     // byte offset of the opcode within the code string
	Opcode   op.Code // numeric opcode
	Mnemonic string
	Kind     op.Kind

	// RawArg is the operand with all EXTENDED_ARG prefixes merged in. It is
	// 0 for opcodes that take no operand.
	RawArg int

	// Operand is RawArg resolved according to Kind: Str for names, the
	// pooled constant for constant references, Int byte offset for jumps,
	// Str symbol for comparisons, Int for raw integers and None otherwise.
	Operand Constant

	Line       int  // source line, valid only when StartsLine is set
	StartsLine bool // first instruction of a source line

	IsJumpTarget bool

	// ExtendedArgs is the number of EXTENDED_ARG prefixes merged into
	// RawArg. The prefixes occupy the slots just before Offset.
	ExtendedArgs int
}

// JumpTarget returns the resolved target offset of a jump instruction.
func (i Instruction) JumpTarget() (int, bool) {
	if !i.Kind.IsJump() {
		return 0, false
	}
	target, ok := i.Operand.(Int)
	return int(target), ok
}

// Equal reports whether two instructions are structurally equal.
func (i Instruction) Equal(other Instruction) bool {
	return i.Offset == other.Offset &&
		i.Opcode == other.Opcode &&
		i.Mnemonic == other.Mnemonic &&
		i.Kind == other.Kind &&
		i.RawArg == other.RawArg &&
		i.Line == other.Line &&
		i.StartsLine == other.StartsLine &&
		i.IsJumpTarget == other.IsJumpTarget &&
		i.ExtendedArgs == other.ExtendedArgs &&
		Equal(i.Operand, other.Operand)
}

// String returns a one-line rendering similar to the dis module's output.
func (i Instruction) String() string {
	marker := "  "
	if i.IsJumpTarget {
		marker = ">>"
	}
	s := fmt.Sprintf("%s %4d %s", marker, i.Offset, i.Mnemonic)
	if i.Kind == op.None {
		return s
	}
	s = fmt.Sprintf("%-28s %d", s, i.RawArg)
	switch i.Kind {
	case op.RelativeJump, op.AbsoluteJump:
		s += fmt.Sprintf(" (to %s)", i.Operand)
	case op.Local, op.Name, op.FreeOrCell, op.Comparator:
		if str, ok := i.Operand.(Str); ok {
			s += fmt.Sprintf(" (%s)", string(str))
		}
	case op.Constant:
		s += fmt.Sprintf(" (%s)", i.Operand)
	}
	return s
}
