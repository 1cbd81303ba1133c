// Package dis disassembles CPython wordcode into typed instructions.
//
// Every instruction occupies one or more two-byte slots: an opcode byte and
// an argument byte. EXTENDED_ARG prefixes widen the argument of the
// instruction that follows them and are folded into it, so the returned
// instructions never contain EXTENDED_ARG. Operands are resolved against
// the code object's symbol tables according to the opcode's op.Kind.
package dis

import (
	"math"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/op"
)

// Input holds the parts of a code object the disassembler reads.
type Input struct {
	Code      []byte
	Constants []bytecode.Constant
	Names     []string
	VarNames  []string
	CellVars  []string
	FreeVars  []string
	LineTable []byte
	FirstLine int
}

// Disassemble decodes in.Code into instructions with resolved operands,
// line starts and jump target markers.
func Disassemble(v *op.Version, in Input) ([]bytecode.Instruction, error) {
	if len(in.Code)%2 != 0 {
		return nil, errz.Newf(errz.MalformedInput, len(in.Code)-1,
			"code length %d is not a multiple of the instruction size", len(in.Code))
	}
	instrs, err := scan(v, in)
	if err != nil {
		return nil, err
	}
	markLines(instrs, LineStarts(v, in.LineTable, in.FirstLine, len(in.Code)))
	markJumpTargets(instrs)
	return instrs, nil
}

// scan walks the slots, merges EXTENDED_ARG prefixes and resolves operands.
func scan(v *op.Version, in Input) ([]bytecode.Instruction, error) {
	instrs := make([]bytecode.Instruction, 0, len(in.Code)/2)
	var (
		acc      int64
		prefixes int
	)
	for offset := 0; offset < len(in.Code); offset += 2 {
		code := op.Code(in.Code[offset])
		arg := int64(in.Code[offset+1])
		info, ok := v.Info(code)
		if !ok {
			return nil, errz.Newf(errz.MalformedInstruction, offset, "unknown opcode %d", code)
		}
		if code == v.ExtendedArg() {
			acc = (acc | arg) << 8
			prefixes++
			if acc > math.MaxInt32 {
				return nil, errz.Newf(errz.MalformedInstruction, offset,
					"argument overflows after %d EXTENDED_ARG prefixes", prefixes)
			}
			continue
		}
		instr := bytecode.Instruction{
			Offset:       offset,
			Opcode:       code,
			Mnemonic:     info.Name,
			Kind:         info.Kind,
			ExtendedArgs: prefixes,
			Operand:      bytecode.None{},
		}
		if info.HasArgument() {
			instr.RawArg = int(arg | acc)
			operand, err := resolve(v, in, info, offset, instr.RawArg)
			if err != nil {
				return nil, err
			}
			instr.Operand = operand
		}
		acc, prefixes = 0, 0
		instrs = append(instrs, instr)
	}
	if prefixes > 0 {
		return nil, errz.New(errz.MalformedInstruction, len(in.Code)-2,
			"EXTENDED_ARG at end of code")
	}
	return instrs, nil
}

func resolve(v *op.Version, in Input, info op.Info, offset, arg int) (bytecode.Constant, error) {
	switch info.Kind {
	case op.Local:
		return symbol(in.VarNames, "varnames", info, offset, arg)
	case op.Name:
		return symbol(in.Names, "names", info, offset, arg)
	case op.FreeOrCell:
		// Cell variables come first, then free variables.
		if arg < len(in.CellVars) {
			return bytecode.Str(in.CellVars[arg]), nil
		}
		return symbol(in.FreeVars, "cellvars+freevars", info, offset, arg-len(in.CellVars))
	case op.Constant:
		if arg >= len(in.Constants) {
			return nil, outOfRange(info, offset, arg, "consts", len(in.Constants))
		}
		return in.Constants[arg], nil
	case op.RelativeJump:
		return jumpTarget(info, offset, offset+2+arg*v.JumpUnit(), len(in.Code))
	case op.AbsoluteJump:
		return jumpTarget(info, offset, arg*v.JumpUnit(), len(in.Code))
	case op.Comparator:
		name, ok := v.CompareOp(arg)
		if !ok {
			return nil, outOfRange(info, offset, arg, "comparison operators", v.CompareOpCount())
		}
		return bytecode.Str(name), nil
	default:
		return bytecode.Int(arg), nil
	}
}

func symbol(table []string, tableName string, info op.Info, offset, arg int) (bytecode.Constant, error) {
	if arg < 0 || arg >= len(table) {
		return nil, outOfRange(info, offset, arg, tableName, len(table))
	}
	return bytecode.Str(table[arg]), nil
}

func outOfRange(info op.Info, offset, arg int, table string, size int) error {
	return errz.Newf(errz.MalformedInstruction, offset,
		"%s argument %d out of range for %s (size %d)", info.Name, arg, table, size)
}

func jumpTarget(info op.Info, offset, target, codeLen int) (bytecode.Constant, error) {
	if target < 0 || target >= codeLen {
		return nil, errz.Newf(errz.MalformedInstruction, offset,
			"%s target %d outside code of length %d", info.Name, target, codeLen)
	}
	return bytecode.Int(target), nil
}

// prefixStart returns the offset of the first slot belonging to instr,
// including its EXTENDED_ARG prefixes.
func prefixStart(instr *bytecode.Instruction) int {
	return instr.Offset - 2*instr.ExtendedArgs
}

func markLines(instrs []bytecode.Instruction, starts []bytecode.LineStart) {
	if len(starts) == 0 {
		return
	}
	lines := make(map[int]int, len(starts))
	for _, s := range starts {
		lines[s.Offset] = s.Line
	}
	for i := range instrs {
		for off := prefixStart(&instrs[i]); off <= instrs[i].Offset; off += 2 {
			if line, ok := lines[off]; ok {
				instrs[i].Line = line
				instrs[i].StartsLine = true
				break
			}
		}
	}
}

func markJumpTargets(instrs []bytecode.Instruction) {
	targets := map[int]bool{}
	for _, instr := range instrs {
		if target, ok := instr.JumpTarget(); ok {
			targets[target] = true
		}
	}
	if len(targets) == 0 {
		return
	}
	for i := range instrs {
		for off := prefixStart(&instrs[i]); off <= instrs[i].Offset; off += 2 {
			if targets[off] {
				instrs[i].IsJumpTarget = true
				break
			}
		}
	}
}
