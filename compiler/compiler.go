// Package compiler defines the boundary to the external Python compiler.
//
// The loader never compiles source itself. A Compiler turns source text into
// a Handle: an in-memory code object tree made of plain Go values, which
// loader.FromHandle converts into the typed bytecode model without going
// through the marshal format.
//
// # Constants
//
// Handle.Constants holds the constant pool as Go values:
//
//   - nil for None
//   - bool
//   - int64, or *big.Int when the value does not fit
//   - float64 and complex128
//   - string for str and []byte for bytes
//   - Ellipsis
//   - []any for tuples and FrozenSet for frozensets
//   - *Handle for nested code objects
//
// # Exec
//
// Exec is the stock implementation. It runs a Python interpreter with a
// small embedded script that compiles the source and prints the code object
// tree as JSON on stdout.
package compiler

import (
	"context"
)

// Compiler compiles Python source text.
type Compiler interface {
	// Compile compiles source as a module. Syntax errors are reported as
	// errz.CompileError values carrying the source position.
	Compile(ctx context.Context, source, filename string) (*Handle, error)
}

// Ellipsis is the Ellipsis constant.
type Ellipsis struct{}

// FrozenSet is a frozenset constant, in iteration order.
type FrozenSet []any

// Handle is a compiled code object held in memory.
type Handle struct {
	// Version is the interpreter version that produced the code, for
	// example "3.9". It selects the opcode table.
	Version string
	// Magic is the interpreter's bytecode magic number.
	Magic [4]byte

	Name            string
	Filename        string
	ArgCount        int
	PosOnlyArgCount int
	KwOnlyArgCount  int
	LocalCount      int
	StackSize       int
	Flags           uint32
	FirstLine       int
	Code            []byte
	Constants       []any
	Names           []string
	VarNames        []string
	FreeVars        []string
	CellVars        []string
	LineTable       []byte
}

// Children returns the nested code objects in the constant pool, in order.
func (h *Handle) Children() []*Handle {
	var children []*Handle
	for _, c := range h.Constants {
		if child, ok := c.(*Handle); ok {
			children = append(children, child)
		}
	}
	return children
}
