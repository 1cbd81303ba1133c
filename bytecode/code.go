package bytecode

import "github.com/deepnoodle-ai/pycode/op"

// CodeObject is one compiled unit: a module, function or class body.
// It is immutable after creation and safe for concurrent use.
type CodeObject struct {
	name     string
	filename string
	version  string
	flags    Flags

	argCount        int
	posOnlyArgCount int
	kwOnlyArgCount  int
	localCount      int
	stackSize       int
	firstLine       int

	// Index spaces used by instruction operands; order is significant.
	cellVars []string
	freeVars []string
	names    []string
	varNames []string

	constants    []Constant
	instructions []Instruction

	// Raw delta-encoded table and its decoded form.
	lineTable  []byte
	lineStarts []LineStart
}

// CodeParams contains parameters for creating a new CodeObject.
type CodeParams struct {
	Name            string
	Filename        string
	Version         string // op.Version name the code was decoded with
	Flags           Flags
	ArgCount        int
	PosOnlyArgCount int
	KwOnlyArgCount  int
	LocalCount      int
	StackSize       int
	FirstLine       int
	CellVars        []string
	FreeVars        []string
	Names           []string
	VarNames        []string
	Constants       []Constant
	Instructions    []Instruction
	LineTable       []byte
	LineStarts      []LineStart
}

// NewCode creates a new immutable CodeObject from the given parameters.
// Input slices are copied to ensure immutability.
func NewCode(params CodeParams) *CodeObject {
	return &CodeObject{
		name:            params.Name,
		filename:        params.Filename,
		version:         params.Version,
		flags:           params.Flags,
		argCount:        params.ArgCount,
		posOnlyArgCount: params.PosOnlyArgCount,
		kwOnlyArgCount:  params.KwOnlyArgCount,
		localCount:      params.LocalCount,
		stackSize:       params.StackSize,
		firstLine:       params.FirstLine,
		cellVars:        copyStrings(params.CellVars),
		freeVars:        copyStrings(params.FreeVars),
		names:           copyStrings(params.Names),
		varNames:        copyStrings(params.VarNames),
		constants:       copyConstants(params.Constants),
		instructions:    copyInstructions(params.Instructions),
		lineTable:       copyBytes(params.LineTable),
		lineStarts:      copyLineStarts(params.LineStarts),
	}
}

// Name returns the name of the code object (co_name).
func (c *CodeObject) Name() string {
	return c.name
}

// Filename returns the filename recorded by the compiler.
func (c *CodeObject) Filename() string {
	return c.filename
}

// Version returns the name of the opcode table this code was decoded with.
func (c *CodeObject) Version() string {
	return c.version
}

// Flags returns the code flags, preserved verbatim.
func (c *CodeObject) Flags() Flags {
	return c.flags
}

// ArgCount returns the number of positional parameters.
func (c *CodeObject) ArgCount() int {
	return c.argCount
}

// PosOnlyArgCount returns the number of positional-only parameters.
func (c *CodeObject) PosOnlyArgCount() int {
	return c.posOnlyArgCount
}

// KwOnlyArgCount returns the number of keyword-only parameters.
func (c *CodeObject) KwOnlyArgCount() int {
	return c.kwOnlyArgCount
}

// LocalCount returns the number of local variables.
func (c *CodeObject) LocalCount() int {
	return c.localCount
}

// StackSize returns the maximum evaluation stack depth.
func (c *CodeObject) StackSize() int {
	return c.stackSize
}

// FirstLineNumber returns the source line of the first instruction.
func (c *CodeObject) FirstLineNumber() int {
	return c.firstLine
}

// CellVars returns a copy of the cell variable names.
func (c *CodeObject) CellVars() []string {
	return copyStrings(c.cellVars)
}

// FreeVars returns a copy of the free variable names.
func (c *CodeObject) FreeVars() []string {
	return copyStrings(c.freeVars)
}

// Names returns a copy of the global and attribute names.
func (c *CodeObject) Names() []string {
	return copyStrings(c.names)
}

// VarNames returns a copy of the local variable names.
func (c *CodeObject) VarNames() []string {
	return copyStrings(c.varNames)
}

// IsClosure returns true if the code has cell or free variables.
func (c *CodeObject) IsClosure() bool {
	return len(c.cellVars)+len(c.freeVars) > 0
}

// ConstantCount returns the number of constants.
func (c *CodeObject) ConstantCount() int {
	return len(c.constants)
}

// ConstantAt returns the constant at the given index.
func (c *CodeObject) ConstantAt(index int) Constant {
	return c.constants[index]
}

// InstructionCount returns the number of instructions.
func (c *CodeObject) InstructionCount() int {
	return len(c.instructions)
}

// InstructionAt returns the instruction at the given index.
func (c *CodeObject) InstructionAt(index int) Instruction {
	return c.instructions[index]
}

// Instructions returns a copy of the instruction sequence.
func (c *CodeObject) Instructions() []Instruction {
	return copyInstructions(c.instructions)
}

// LineTable returns a copy of the raw line table bytes.
func (c *CodeObject) LineTable() []byte {
	return copyBytes(c.lineTable)
}

// LineStarts returns a copy of the decoded (offset, line) pairs.
func (c *CodeObject) LineStarts() []LineStart {
	return copyLineStarts(c.lineStarts)
}

// Children returns the code objects nested directly in the constant pool,
// in constant order.
func (c *CodeObject) Children() []*CodeObject {
	var children []*CodeObject
	for _, k := range c.constants {
		if code, ok := k.(Code); ok && code.Object != nil {
			children = append(children, code.Object)
		}
	}
	return children
}

// Flatten returns this code and all descendants in a flat slice, depth first.
func (c *CodeObject) Flatten() []*CodeObject {
	codes := []*CodeObject{c}
	for _, child := range c.Children() {
		codes = append(codes, child.Flatten()...)
	}
	return codes
}

// Find returns the first code object in the tree with the given name.
func (c *CodeObject) Find(name string) (*CodeObject, bool) {
	for _, code := range c.Flatten() {
		if code.name == name {
			return code, true
		}
	}
	return nil, false
}

// Stats returns statistics about this code object and its descendants.
func (c *CodeObject) Stats() Stats {
	var s Stats
	for _, code := range c.Flatten() {
		s.CodeObjectCount++
		s.InstructionCount += len(code.instructions)
		s.ConstantCount += len(code.constants)
		s.LineCount += len(code.lineStarts)
		for _, instr := range code.instructions {
			if instr.IsJumpTarget {
				s.JumpTargetCount++
			}
		}
		if code.IsClosure() {
			s.ClosureCount++
		}
	}
	return s
}

// Clone returns a deep copy of the code object. Instruction operands that
// reference the constant pool point into the copied pool.
func (c *CodeObject) Clone() *CodeObject {
	if c == nil {
		return nil
	}
	clone := *c
	clone.cellVars = copyStrings(c.cellVars)
	clone.freeVars = copyStrings(c.freeVars)
	clone.names = copyStrings(c.names)
	clone.varNames = copyStrings(c.varNames)
	clone.constants = cloneConstants(c.constants)
	clone.lineTable = copyBytes(c.lineTable)
	clone.lineStarts = copyLineStarts(c.lineStarts)
	clone.instructions = copyInstructions(c.instructions)
	for i, instr := range clone.instructions {
		if instr.Kind == op.Constant && instr.RawArg < len(clone.constants) {
			clone.instructions[i].Operand = clone.constants[instr.RawArg]
		} else {
			clone.instructions[i].Operand = Clone(instr.Operand)
		}
	}
	return &clone
}

// Equal reports whether two code objects are structurally equal.
func (c *CodeObject) Equal(other *CodeObject) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.name != other.name || c.filename != other.filename ||
		c.version != other.version || c.flags != other.flags ||
		c.argCount != other.argCount || c.posOnlyArgCount != other.posOnlyArgCount ||
		c.kwOnlyArgCount != other.kwOnlyArgCount || c.localCount != other.localCount ||
		c.stackSize != other.stackSize || c.firstLine != other.firstLine {
		return false
	}
	if !equalStrings(c.cellVars, other.cellVars) || !equalStrings(c.freeVars, other.freeVars) ||
		!equalStrings(c.names, other.names) || !equalStrings(c.varNames, other.varNames) {
		return false
	}
	if string(c.lineTable) != string(other.lineTable) || len(c.lineStarts) != len(other.lineStarts) {
		return false
	}
	for i := range c.lineStarts {
		if c.lineStarts[i] != other.lineStarts[i] {
			return false
		}
	}
	if !equalSlices(c.constants, other.constants) || len(c.instructions) != len(other.instructions) {
		return false
	}
	for i := range c.instructions {
		if !c.instructions[i].Equal(other.instructions[i]) {
			return false
		}
	}
	return true
}
