// Package op defines the opcode tables used to disassemble CPython wordcode.
//
// Each supported interpreter version is described by one YAML file under
// versions/, embedded into the binary and parsed at init. The rest of the
// pipeline is version-agnostic: it consults a *Version for every decision
// that differs between releases (magic number, jump unit, line table format,
// opcode numbering, comparison operator names).
package op

import (
	"fmt"
)

// Code is a numeric opcode, the first byte of every instruction slot.
type Code uint8

// Kind describes how an opcode's argument is interpreted.
type Kind uint8

const (
	// None means the opcode takes no operand.
	None Kind = iota
	// Local indexes co_varnames.
	Local
	// Name indexes co_names.
	Name
	// FreeOrCell indexes co_cellvars followed by co_freevars.
	FreeOrCell
	// Constant indexes co_consts.
	Constant
	// RelativeJump is a jump relative to the next instruction.
	RelativeJump
	// AbsoluteJump is a jump to an absolute position.
	AbsoluteJump
	// Comparator indexes the version's comparison operator names.
	Comparator
	// RawInt is an immediate integer such as an argument count.
	RawInt
)

var kindNames = map[Kind]string{
	None:         "none",
	Local:        "local",
	Name:         "name",
	FreeOrCell:   "free",
	Constant:     "const",
	RelativeJump: "jrel",
	AbsoluteJump: "jabs",
	Comparator:   "compare",
	RawInt:       "raw",
}

// String returns the name used for the kind in the version files.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsJump returns true for relative and absolute jumps.
func (k Kind) IsJump() bool {
	return k == RelativeJump || k == AbsoluteJump
}

// ParseKind converts a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown operand kind %q", s)
}

// Info contains information about an opcode.
type Info struct {
	Code Code
	Name string
	Kind Kind
}

// HasArgument returns true if the opcode's argument byte is meaningful.
func (i Info) HasArgument() bool {
	return i.Kind != None
}

// LineTableFormat identifies the encoding of a code object's line table.
type LineTableFormat string

const (
	// Lnotab is the co_lnotab encoding used through CPython 3.9.
	Lnotab LineTableFormat = "lnotab"
	// LineTable is the co_linetable encoding introduced in CPython 3.10.
	LineTable LineTableFormat = "linetable"
)

// Version describes one target interpreter version. It is immutable once
// constructed and safe for concurrent use.
type Version struct {
	name         string
	magic        [4]byte
	jumpUnit     int
	lineTable    LineTableFormat
	haveArgument Code
	extendedArg  Code
	compareOps   []string
	infos        [256]Info
	defined      [256]bool
}

// Name returns the version name, for example "3.9".
func (v *Version) Name() string {
	return v.name
}

// Magic returns the four magic bytes that begin a container for this version.
func (v *Version) Magic() [4]byte {
	return v.magic
}

// JumpUnit returns the number of bytes one unit of a jump operand spans.
func (v *Version) JumpUnit() int {
	return v.jumpUnit
}

// LineTable returns the line table encoding used by this version.
func (v *Version) LineTable() LineTableFormat {
	return v.lineTable
}

// HaveArgument returns the lowest opcode that takes an argument.
func (v *Version) HaveArgument() Code {
	return v.haveArgument
}

// ExtendedArg returns the argument-extension prefix opcode.
func (v *Version) ExtendedArg() Code {
	return v.extendedArg
}

// Info returns information about the given opcode. The second result is
// false if the opcode is not defined in this version.
func (v *Version) Info(code Code) (Info, bool) {
	return v.infos[code], v.defined[code]
}

// Lookup returns the opcode with the given mnemonic.
func (v *Version) Lookup(name string) (Info, bool) {
	for i := range v.infos {
		if v.defined[i] && v.infos[i].Name == name {
			return v.infos[i], true
		}
	}
	return Info{}, false
}

// CompareOpCount returns the number of comparison operators.
func (v *Version) CompareOpCount() int {
	return len(v.compareOps)
}

// CompareOp returns the symbol for the comparison operator at index i.
func (v *Version) CompareOp(i int) (string, bool) {
	if i < 0 || i >= len(v.compareOps) {
		return "", false
	}
	return v.compareOps[i], true
}

// Opcodes returns the defined opcodes in numeric order.
func (v *Version) Opcodes() []Info {
	var out []Info
	for i := range v.infos {
		if v.defined[i] {
			out = append(out, v.infos[i])
		}
	}
	return out
}

// String returns a short description of the version.
func (v *Version) String() string {
	return fmt.Sprintf("Python %s (magic %x)", v.name, v.magic[:])
}
