package marshal

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/dis"
	"github.com/deepnoodle-ai/pycode/op"
)

// Encoder writes constants in marshal format. Code objects are
// re-assembled from their instructions using the encoder's opcode table.
// The output never uses back-references.
type Encoder struct {
	version *op.Version
	buf     []byte
}

// NewEncoder returns an encoder for the given version. The version may be
// nil when no code objects will be encoded.
func NewEncoder(v *op.Version) *Encoder {
	return &Encoder{version: v}
}

// Encode returns the marshal encoding of c.
func (e *Encoder) Encode(c bytecode.Constant) ([]byte, error) {
	e.buf = e.buf[:0]
	if err := e.write(c); err != nil {
		return nil, err
	}
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out, nil
}

// Encode is a convenience wrapper around NewEncoder(v).Encode(c).
func Encode(v *op.Version, c bytecode.Constant) ([]byte, error) {
	return NewEncoder(v).Encode(c)
}

func (e *Encoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *Encoder) writeInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *Encoder) writeFloat(f float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(f))
}

func (e *Encoder) writeSized(tag byte, b []byte) error {
	if len(b) > math.MaxInt32 {
		return fmt.Errorf("marshal: object of %d bytes is too large", len(b))
	}
	e.writeByte(tag)
	e.writeInt32(int32(len(b)))
	e.buf = append(e.buf, b...)
	return nil
}

func (e *Encoder) write(c bytecode.Constant) error {
	switch v := c.(type) {
	case nil:
		return fmt.Errorf("marshal: cannot encode nil constant")
	case bytecode.None:
		e.writeByte(tagNone)
	case bytecode.Bool:
		if v {
			e.writeByte(tagTrue)
		} else {
			e.writeByte(tagFalse)
		}
	case bytecode.Ellipsis:
		e.writeByte(tagEllipsis)
	case bytecode.Int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			e.writeByte(tagInt)
			e.writeInt32(int32(v))
		} else {
			e.writeLong(big.NewInt(int64(v)))
		}
	case bytecode.BigInt:
		if v.Value == nil {
			return fmt.Errorf("marshal: big integer without a value")
		}
		e.writeLong(v.Value)
	case bytecode.Float:
		e.writeByte(tagBinaryFloat)
		e.writeFloat(float64(v))
	case bytecode.Complex:
		e.writeByte(tagBinaryComplex)
		e.writeFloat(real(v))
		e.writeFloat(imag(v))
	case bytecode.Bytes:
		return e.writeSized(tagString, v)
	case bytecode.Str:
		return e.writeStr(string(v))
	case bytecode.Tuple:
		return e.writeSequence(tagTuple, v)
	case bytecode.FrozenSet:
		return e.writeSequence(tagFrozenSet, v)
	case bytecode.Code:
		if v.Object == nil {
			return fmt.Errorf("marshal: code constant without a code object")
		}
		return e.writeCode(v.Object)
	default:
		return fmt.Errorf("marshal: unsupported constant %T", c)
	}
	return nil
}

func (e *Encoder) writeStr(s string) error {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	switch {
	case !ascii:
		return e.writeSized(tagUnicode, []byte(s))
	case len(s) < 256:
		e.writeByte(tagShortASCII)
		e.writeByte(byte(len(s)))
		e.buf = append(e.buf, s...)
		return nil
	default:
		return e.writeSized(tagASCII, []byte(s))
	}
}

func (e *Encoder) writeSequence(tag byte, items []bytecode.Constant) error {
	if tag == tagTuple && len(items) < 256 {
		e.writeByte(tagSmallTuple)
		e.writeByte(byte(len(items)))
	} else {
		e.writeByte(tag)
		e.writeInt32(int32(len(items)))
	}
	for _, item := range items {
		if err := e.write(item); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeLong(v *big.Int) {
	abs := new(big.Int).Abs(v)
	mask := big.NewInt(longBase - 1)
	var digits []uint16
	for abs.Sign() > 0 {
		digits = append(digits, uint16(new(big.Int).And(abs, mask).Uint64()))
		abs.Rsh(abs, longShift)
	}
	n := int32(len(digits))
	if v.Sign() < 0 {
		n = -n
	}
	e.writeByte(tagLong)
	e.writeInt32(n)
	for _, d := range digits {
		e.buf = binary.LittleEndian.AppendUint16(e.buf, d)
	}
}

func (e *Encoder) writeNames(names []string) error {
	items := make([]bytecode.Constant, len(names))
	for i, name := range names {
		items[i] = bytecode.Str(name)
	}
	return e.writeSequence(tagTuple, items)
}

func (e *Encoder) writeCode(code *bytecode.CodeObject) error {
	if e.version == nil {
		return fmt.Errorf("marshal: encoding code object %q requires a version", code.Name())
	}
	raw, err := dis.Assemble(e.version, code.Instructions())
	if err != nil {
		return fmt.Errorf("marshal: assembling %q: %w", code.Name(), err)
	}
	e.writeByte(tagCode)
	for _, v := range []int{
		code.ArgCount(),
		code.PosOnlyArgCount(),
		code.KwOnlyArgCount(),
		code.LocalCount(),
		code.StackSize(),
	} {
		e.writeInt32(int32(v))
	}
	e.writeInt32(int32(uint32(code.Flags())))
	if err := e.writeSized(tagString, raw); err != nil {
		return err
	}
	consts := make([]bytecode.Constant, code.ConstantCount())
	for i := range consts {
		consts[i] = code.ConstantAt(i)
	}
	if err := e.writeSequence(tagTuple, consts); err != nil {
		return err
	}
	for _, names := range [][]string{code.Names(), code.VarNames(), code.FreeVars(), code.CellVars()} {
		if err := e.writeNames(names); err != nil {
			return err
		}
	}
	if err := e.writeStr(code.Filename()); err != nil {
		return err
	}
	if err := e.writeStr(code.Name()); err != nil {
		return err
	}
	e.writeInt32(int32(code.FirstLineNumber()))
	return e.writeSized(tagString, code.LineTable())
}
