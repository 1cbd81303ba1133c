package bytecode

import (
	"fmt"
	"strings"
)

// Flags is the co_flags bit field. The loader preserves it verbatim; the
// named bits exist for display only.
type Flags uint32

const (
	FlagOptimized         Flags = 0x0001
	FlagNewLocals         Flags = 0x0002
	FlagVarArgs           Flags = 0x0004
	FlagVarKeywords       Flags = 0x0008
	FlagNested            Flags = 0x0010
	FlagGenerator         Flags = 0x0020
	FlagNoFree            Flags = 0x0040
	FlagCoroutine         Flags = 0x0080
	FlagIterableCoroutine Flags = 0x0100
	FlagAsyncGenerator    Flags = 0x0200
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagOptimized, "OPTIMIZED"},
	{FlagNewLocals, "NEWLOCALS"},
	{FlagVarArgs, "VARARGS"},
	{FlagVarKeywords, "VARKEYWORDS"},
	{FlagNested, "NESTED"},
	{FlagGenerator, "GENERATOR"},
	{FlagNoFree, "NOFREE"},
	{FlagCoroutine, "COROUTINE"},
	{FlagIterableCoroutine, "ITERABLE_COROUTINE"},
	{FlagAsyncGenerator, "ASYNC_GENERATOR"},
}

// Has returns true if all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// String returns the flag names joined with ", ", as dis.pretty_flags does.
// Unnamed bits are shown in hex.
func (f Flags) String() string {
	var names []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 || len(names) == 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, ", ")
}
