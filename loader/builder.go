package loader

import (
	"fmt"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/dis"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/marshal"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/rs/zerolog"
)

// Builder turns decoded code object fields into bytecode.CodeObject values.
// The marshal decoder calls it once per code object, innermost first, so
// nested code constants are always complete when their parent is built.
type Builder struct {
	version *op.Version
	logger  zerolog.Logger
}

// NewBuilder returns a builder that disassembles with the given version.
// A nil version defers to the version carried by each CodeFields.
func NewBuilder(v *op.Version, logger zerolog.Logger) *Builder {
	return &Builder{version: v, logger: logger}
}

// BuildCode implements marshal.CodeBuilder.
func (b *Builder) BuildCode(f *marshal.CodeFields) (*bytecode.CodeObject, error) {
	v := b.version
	if v == nil {
		v = f.Version
	}
	if v == nil {
		return nil, errz.Newf(errz.UnsupportedVersion, f.Offset, "code object %q: no opcode table", f.Name)
	}
	if err := validateCounts(f); err != nil {
		return nil, err
	}
	instrs, err := dis.Disassemble(v, dis.Input{
		Code:      f.Code,
		Constants: f.Constants,
		Names:     f.Names,
		VarNames:  f.VarNames,
		CellVars:  f.CellVars,
		FreeVars:  f.FreeVars,
		LineTable: f.LineTable,
		FirstLine: int(f.FirstLine),
	})
	if err != nil {
		return nil, fmt.Errorf("code object %q: %w", f.Name, err)
	}
	code := bytecode.NewCode(bytecode.CodeParams{
		Name:            f.Name,
		Filename:        f.Filename,
		Version:         v.Name(),
		Flags:           bytecode.Flags(uint32(f.Flags)),
		ArgCount:        int(f.ArgCount),
		PosOnlyArgCount: int(f.PosOnlyArgCount),
		KwOnlyArgCount:  int(f.KwOnlyArgCount),
		LocalCount:      int(f.LocalCount),
		StackSize:       int(f.StackSize),
		FirstLine:       int(f.FirstLine),
		CellVars:        f.CellVars,
		FreeVars:        f.FreeVars,
		Names:           f.Names,
		VarNames:        f.VarNames,
		Constants:       f.Constants,
		Instructions:    instrs,
		LineTable:       f.LineTable,
		LineStarts:      dis.LineStarts(v, f.LineTable, int(f.FirstLine), len(f.Code)),
	})
	b.logger.Debug().
		Str("name", code.Name()).
		Int("offset", f.Offset).
		Int("instructions", code.InstructionCount()).
		Int("constants", code.ConstantCount()).
		Msg("built code object")
	return code, nil
}

// validateCounts applies the argument count checks CPython performs when
// constructing a code object.
func validateCounts(f *marshal.CodeFields) error {
	if f.ArgCount < f.PosOnlyArgCount || f.PosOnlyArgCount < 0 || f.KwOnlyArgCount < 0 ||
		f.LocalCount < 0 || f.StackSize < 0 || f.Flags < 0 {
		return errz.Newf(errz.MalformedInput, f.Offset, "code object %q: argument out of range", f.Name)
	}
	flags := bytecode.Flags(uint32(f.Flags))
	total := int(f.ArgCount) + int(f.KwOnlyArgCount)
	if flags.Has(bytecode.FlagVarArgs) {
		total++
	}
	if flags.Has(bytecode.FlagVarKeywords) {
		total++
	}
	if total > len(f.VarNames) {
		return errz.Newf(errz.MalformedInput, f.Offset,
			"code object %q: %d varnames cannot hold %d arguments", f.Name, len(f.VarNames), total)
	}
	return nil
}
