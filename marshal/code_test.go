package marshal

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/dis"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/op"
	"github.com/stretchr/testify/require"
)

// stream builds marshal data by hand.
type stream []byte

func (s stream) tag(b byte) stream { return append(s, b) }

func (s stream) i32(v int32) stream {
	return binary.LittleEndian.AppendUint32(s, uint32(v))
}

func (s stream) bytes(b ...byte) stream {
	return append(s.tag('s').i32(int32(len(b))), b...)
}

func (s stream) short(tag byte, str string) stream {
	return append(append(s, tag, byte(len(str))), str...)
}

func (s stream) ref(i int32) stream { return s.tag('r').i32(i) }

func (s stream) ints(vals ...int32) stream {
	for _, v := range vals {
		s = s.i32(v)
	}
	return s
}

// disBuilder builds code objects the way the loader does, minus the
// symbol validation.
func disBuilder(t *testing.T, v *op.Version) CodeBuilder {
	return CodeBuilderFunc(func(f *CodeFields) (*bytecode.CodeObject, error) {
		require.Same(t, v, f.Version)
		in := dis.Input{
			Code:      f.Code,
			Constants: f.Constants,
			Names:     f.Names,
			VarNames:  f.VarNames,
			CellVars:  f.CellVars,
			FreeVars:  f.FreeVars,
			LineTable: f.LineTable,
			FirstLine: int(f.FirstLine),
		}
		instrs, err := dis.Disassemble(v, in)
		if err != nil {
			return nil, err
		}
		return bytecode.NewCode(bytecode.CodeParams{
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
		}), nil
	})
}

// moduleStream is a module defining "def f(x): return x", laid out the way
// CPython writes it: shared strings and the empty tuple are back-references.
//
// Reference slots: 0 module code, 1 module consts, 2 function code,
// 3 empty tuple, 4 varnames, 5 "x", 6 "m.py", 7 "f".
func moduleStream() []byte {
	var s stream
	s = s.tag('c'|flagRef).ints(0, 0, 0, 0, 2, 0x40).
		bytes(100, 0, 100, 1, 132, 0, 90, 0, 100, 2, 83, 0).
		tag(')'|flagRef).tag(3)
	// Function code object.
	s = s.tag('c'|flagRef).ints(1, 0, 0, 1, 1, 0x43).
		bytes(124, 0, 83, 0).
		tag(')').tag(1).tag('N').
		tag(')'|flagRef).tag(0).
		tag(')'|flagRef).tag(1).short('z'|flagRef, "x").
		ref(3).
		ref(3).
		short('z'|flagRef, "m.py").
		short('z'|flagRef, "f").
		i32(1).
		bytes(0, 1)
	// Remaining module constants, then module fields.
	s = s.ref(7).tag('N').
		tag(')').tag(1).ref(7).
		ref(3).ref(3).ref(3).
		ref(6).
		short('z', "<module>").
		i32(1).
		bytes()
	return s
}

func TestDecodeCodeObject(t *testing.T) {
	v, err := op.Lookup("3.9")
	require.NoError(t, err)
	data := moduleStream()

	d := NewDecoder(data, WithVersion(v), WithCodeBuilder(disBuilder(t, v)))
	got, err := d.Decode()
	require.NoError(t, err)
	require.Equal(t, len(data), d.Pos())

	module := got.(bytecode.Code).Object
	require.Equal(t, "<module>", module.Name())
	require.Equal(t, "m.py", module.Filename())
	require.Equal(t, []string{"f"}, module.Names())
	require.Empty(t, module.VarNames())
	require.Equal(t, 3, module.ConstantCount())
	require.Equal(t, bytecode.Str("f"), module.ConstantAt(1))
	require.Equal(t, bytecode.None{}, module.ConstantAt(2))
	require.Equal(t, 6, module.InstructionCount())
	require.Equal(t, "MAKE_FUNCTION", module.InstructionAt(2).Mnemonic)
	require.Equal(t, []bytecode.LineStart{{Offset: 0, Line: 1}}, module.LineStarts())

	children := module.Children()
	require.Len(t, children, 1)
	fn := children[0]
	require.Equal(t, "f", fn.Name())
	require.Equal(t, "m.py", fn.Filename())
	require.Equal(t, []string{"x"}, fn.VarNames())
	require.Equal(t, 1, fn.ArgCount())
	require.True(t, fn.Flags().Has(bytecode.FlagOptimized))
	require.False(t, fn.IsClosure())
	require.Equal(t, bytecode.Str("x"), fn.InstructionAt(0).Operand)
	require.Equal(t, []bytecode.LineStart{{Offset: 0, Line: 2}}, fn.LineStarts())

	// The LOAD_CONST operand is the nested code object itself.
	require.True(t, bytecode.Equal(module.ConstantAt(0), module.InstructionAt(0).Operand))
}

func TestCodeRoundTrip(t *testing.T) {
	v, err := op.Lookup("3.9")
	require.NoError(t, err)
	builder := WithCodeBuilder(disBuilder(t, v))

	first, err := Decode(moduleStream(), WithVersion(v), builder)
	require.NoError(t, err)

	encoded, err := Encode(v, first)
	require.NoError(t, err)
	second, err := Decode(encoded, WithVersion(v), builder)
	require.NoError(t, err)
	require.True(t, bytecode.Equal(first, second))

	again, err := Encode(v, second)
	require.NoError(t, err)
	require.Equal(t, encoded, again)
}

func TestCodeFieldTypeErrors(t *testing.T) {
	v, err := op.Lookup("3.9")
	require.NoError(t, err)
	tests := []struct {
		name string
		data stream
	}{
		{"code not bytes", stream{}.tag('c').ints(0, 0, 0, 0, 0, 0).tag('N')},
		{"consts not tuple", stream{}.tag('c').ints(0, 0, 0, 0, 0, 0).bytes().tag('N')},
		{"names item not str", stream{}.tag('c').ints(0, 0, 0, 0, 0, 0).bytes().
			tag(')').tag(0).tag(')').tag(1).tag('N')},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, WithVersion(v), WithCodeBuilder(disBuilder(t, v)))
			require.True(t, errors.Is(err, errz.MalformedInput), "%v", err)
			require.Equal(t, 0, errz.OffsetOf(err))
		})
	}
}

func TestBuilderErrorPropagates(t *testing.T) {
	v, err := op.Lookup("3.9")
	require.NoError(t, err)
	// Function body LOAD_FAST 3 has no matching varname.
	data := moduleStream()
	for i := range data {
		if data[i] == 124 && data[i+1] == 0 {
			data[i+1] = 3
			break
		}
	}
	_, err = Decode(data, WithVersion(v), WithCodeBuilder(disBuilder(t, v)))
	require.True(t, errors.Is(err, errz.MalformedInstruction))
}
