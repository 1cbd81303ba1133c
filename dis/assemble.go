package dis

import (
	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/op"
)

// Assemble encodes instructions back into wordcode, emitting the
// EXTENDED_ARG prefixes each one needs. Instruction offsets must be
// consistent with the encoded layout.
func Assemble(v *op.Version, instrs []bytecode.Instruction) ([]byte, error) {
	var out []byte
	for _, instr := range instrs {
		if _, ok := v.Info(instr.Opcode); !ok || instr.Opcode == v.ExtendedArg() {
			return nil, errz.Newf(errz.MalformedInstruction, instr.Offset,
				"cannot assemble opcode %d", instr.Opcode)
		}
		if instr.RawArg < 0 {
			return nil, errz.Newf(errz.MalformedInstruction, instr.Offset,
				"negative argument %d", instr.RawArg)
		}
		prefixes := 0
		for rest := instr.RawArg >> 8; rest > 0; rest >>= 8 {
			prefixes++
		}
		prefixes = max(prefixes, instr.ExtendedArgs)
		if want := len(out) + 2*prefixes; instr.Offset != want {
			return nil, errz.Newf(errz.MalformedInstruction, instr.Offset,
				"%s expected at offset %d", instr.Mnemonic, want)
		}
		for k := prefixes; k > 0; k-- {
			out = append(out, byte(v.ExtendedArg()), byte(instr.RawArg>>(8*k)))
		}
		out = append(out, byte(instr.Opcode), byte(instr.RawArg))
	}
	return out, nil
}
