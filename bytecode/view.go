package bytecode

import (
	"encoding/json"
	"math"
)

// Serialization view. The same structs are used for JSON and CBOR output;
// the cbor encoder falls back to the json tags.

// ConstantView is the serializable form of a Constant.
type ConstantView struct {
	Type  string         `json:"type"`
	Value any            `json:"value,omitempty"`
	Items []ConstantView `json:"items,omitempty"`
	Code  *CodeView      `json:"code,omitempty"`
}

// InstructionView is the serializable form of an Instruction.
type InstructionView struct {
	Offset     int           `json:"offset"`
	Opcode     int           `json:"opcode"`
	Mnemonic   string        `json:"mnemonic"`
	Kind       string        `json:"kind"`
	Arg        int           `json:"arg"`
	Operand    *ConstantView `json:"operand,omitempty"`
	Line       int           `json:"line,omitempty"`
	JumpTarget bool          `json:"jump_target,omitempty"`
}

// CodeView is the serializable form of a CodeObject.
type CodeView struct {
	Name            string            `json:"name"`
	Filename        string            `json:"filename"`
	Version         string            `json:"version,omitempty"`
	Flags           uint32            `json:"flags"`
	FlagNames       string            `json:"flag_names"`
	ArgCount        int               `json:"arg_count"`
	PosOnlyArgCount int               `json:"posonly_arg_count"`
	KwOnlyArgCount  int               `json:"kwonly_arg_count"`
	LocalCount      int               `json:"local_count"`
	StackSize       int               `json:"stack_size"`
	FirstLine       int               `json:"first_line"`
	CellVars        []string          `json:"cellvars"`
	FreeVars        []string          `json:"freevars"`
	Names           []string          `json:"names"`
	VarNames        []string          `json:"varnames"`
	Constants       []ConstantView    `json:"constants"`
	Instructions    []InstructionView `json:"instructions"`
	LineStarts      [][2]int          `json:"line_starts,omitempty"`
}

// NewCodeView converts a code object tree into its serializable form.
func NewCodeView(c *CodeObject) *CodeView {
	view := &CodeView{
		Name:            c.name,
		Filename:        c.filename,
		Version:         c.version,
		Flags:           uint32(c.flags),
		FlagNames:       c.flags.String(),
		ArgCount:        c.argCount,
		PosOnlyArgCount: c.posOnlyArgCount,
		KwOnlyArgCount:  c.kwOnlyArgCount,
		LocalCount:      c.localCount,
		StackSize:       c.stackSize,
		FirstLine:       c.firstLine,
		CellVars:        nonNil(c.cellVars),
		FreeVars:        nonNil(c.freeVars),
		Names:           nonNil(c.names),
		VarNames:        nonNil(c.varNames),
		Constants:       make([]ConstantView, len(c.constants)),
		Instructions:    make([]InstructionView, len(c.instructions)),
	}
	for i, k := range c.constants {
		view.Constants[i] = NewConstantView(k)
	}
	for i, instr := range c.instructions {
		iv := InstructionView{
			Offset:     instr.Offset,
			Opcode:     int(instr.Opcode),
			Mnemonic:   instr.Mnemonic,
			Kind:       instr.Kind.String(),
			Arg:        instr.RawArg,
			JumpTarget: instr.IsJumpTarget,
		}
		if instr.StartsLine {
			iv.Line = instr.Line
		}
		if instr.Operand != nil && instr.Operand.Kind() != NoneKind {
			if code, ok := instr.Operand.(Code); ok {
				// The pooled constant already carries the full body.
				iv.Operand = &ConstantView{Type: CodeKind.String(), Value: code.Object.Name()}
			} else {
				cv := NewConstantView(instr.Operand)
				iv.Operand = &cv
			}
		}
		view.Instructions[i] = iv
	}
	for _, ls := range c.lineStarts {
		view.LineStarts = append(view.LineStarts, [2]int{ls.Offset, ls.Line})
	}
	return view
}

// NewConstantView converts a constant into its serializable form.
func NewConstantView(k Constant) ConstantView {
	cv := ConstantView{Type: k.Kind().String()}
	switch v := k.(type) {
	case Bool:
		cv.Value = bool(v)
	case Int:
		cv.Value = int64(v)
	case BigInt:
		cv.Value = v.String()
	case Float:
		cv.Value = floatValue(float64(v))
	case Complex:
		cv.Value = []any{floatValue(real(v)), floatValue(imag(v))}
	case Str:
		cv.Value = string(v)
	case Bytes:
		cv.Value = []byte(v)
	case Tuple:
		cv.Items = constantViews(v)
	case FrozenSet:
		cv.Items = constantViews(v)
	case Code:
		cv.Code = NewCodeView(v.Object)
	}
	return cv
}

func constantViews(items []Constant) []ConstantView {
	out := make([]ConstantView, len(items))
	for i, item := range items {
		out[i] = NewConstantView(item)
	}
	return out
}

// JSON has no representation for non-finite floats.
func floatValue(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return formatFloat(f)
	}
	return f
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MarshalJSON converts the code object tree into JSON.
func (c *CodeObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(NewCodeView(c))
}
