// Package bytecode provides the immutable in-memory representation of
// decoded CPython code objects.
//
// # Key Types
//
//   - [CodeObject]: one compiled unit (module, function or class body)
//   - [Instruction]: one decoded operation with its resolved operand (value type)
//   - [Constant]: closed union of constant pool values (None, Bool, Int,
//     BigInt, Float, Complex, Str, Bytes, Ellipsis, Tuple, FrozenSet, Code)
//   - [LineStart]: maps a byte offset to the source line it begins (value type)
//
// # Immutability Guarantees
//
// All types in this package are immutable after construction:
//
//   - CodeObject fields are unexported and have no mutation methods
//   - NewCode copies its input slices
//   - Slice accessors return copies; index accessors return values
//
// Nested code objects appear only as Code constants in the constant pool:
//
//	for _, child := range code.Children() {
//	    fmt.Println(child.Name(), child.InstructionCount())
//	}
//
// # Package Dependencies
//
// This package depends only on the op package for opcode and operand kind
// types. Decoding lives in the marshal, dis and loader packages.
package bytecode
