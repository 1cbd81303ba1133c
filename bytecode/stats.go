package bytecode

// Stats contains statistics about a decoded code object tree.
// This is useful for auditing files before analysis.
type Stats struct {
	// CodeObjectCount is the number of code objects, including the root.
	CodeObjectCount int

	// InstructionCount is the total number of decoded instructions.
	InstructionCount int

	// ConstantCount is the total size of all constant pools.
	ConstantCount int

	// LineCount is the number of line-start markers.
	LineCount int

	// JumpTargetCount is the number of instructions that are jump targets.
	JumpTargetCount int

	// ClosureCount is the number of code objects with cell or free variables.
	ClosureCount int
}
