package bytecode

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Constant.
type Kind uint8

const (
	NoneKind Kind = iota
	BoolKind
	IntKind
	BigIntKind
	FloatKind
	ComplexKind
	StrKind
	BytesKind
	EllipsisKind
	TupleKind
	FrozenSetKind
	CodeKind
)

var kindNames = [...]string{
	NoneKind:      "none",
	BoolKind:      "bool",
	IntKind:       "int",
	BigIntKind:    "bigint",
	FloatKind:     "float",
	ComplexKind:   "complex",
	StrKind:       "str",
	BytesKind:     "bytes",
	EllipsisKind:  "ellipsis",
	TupleKind:     "tuple",
	FrozenSetKind: "frozenset",
	CodeKind:      "code",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Constant is a value from a code object's constant pool. The set of
// implementations is closed: None, Bool, Int, BigInt, Float, Complex, Str,
// Bytes, Ellipsis, Tuple, FrozenSet and Code.
type Constant interface {
	Kind() Kind
	String() string
	isConstant()
}

// None is the None singleton.
type None struct{}

// Bool is True or False.
type Bool bool

// Int is an integer that fits in 64 bits.
type Int int64

// BigInt is an integer outside the 64-bit range. The decoder only produces
// it when big integers were explicitly enabled.
type BigInt struct {
	Value *big.Int
}

// Float is a binary64 float.
type Float float64

// Complex is a complex number.
type Complex complex128

// Str is a text string.
type Str string

// Bytes is a bytes object.
type Bytes []byte

// Ellipsis is the Ellipsis singleton.
type Ellipsis struct{}

// Tuple is an ordered sequence of constants.
type Tuple []Constant

// FrozenSet is a frozenset constant. Element order is the serialized order.
type FrozenSet []Constant

// Code is a nested code object.
type Code struct {
	Object *CodeObject
}

func (None) Kind() Kind      { return NoneKind }
func (Bool) Kind() Kind      { return BoolKind }
func (Int) Kind() Kind       { return IntKind }
func (BigInt) Kind() Kind    { return BigIntKind }
func (Float) Kind() Kind     { return FloatKind }
func (Complex) Kind() Kind   { return ComplexKind }
func (Str) Kind() Kind       { return StrKind }
func (Bytes) Kind() Kind     { return BytesKind }
func (Ellipsis) Kind() Kind  { return EllipsisKind }
func (Tuple) Kind() Kind     { return TupleKind }
func (FrozenSet) Kind() Kind { return FrozenSetKind }
func (Code) Kind() Kind      { return CodeKind }

func (None) isConstant()      {}
func (Bool) isConstant()      {}
func (Int) isConstant()       {}
func (BigInt) isConstant()    {}
func (Float) isConstant()     {}
func (Complex) isConstant()   {}
func (Str) isConstant()       {}
func (Bytes) isConstant()     {}
func (Ellipsis) isConstant()  {}
func (Tuple) isConstant()     {}
func (FrozenSet) isConstant() {}
func (Code) isConstant()      {}

func (None) String() string { return "None" }

func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

func (b BigInt) String() string {
	if b.Value == nil {
		return "0"
	}
	return b.Value.String()
}

func (f Float) String() string { return formatFloat(float64(f)) }

func (c Complex) String() string {
	re, im := real(c), imag(c)
	if re == 0 && !math.Signbit(re) {
		return formatFloatShort(im) + "j"
	}
	sign := "+"
	if im < 0 || (im == 0 && math.Signbit(im)) {
		sign = "-"
		im = -im
	}
	return "(" + formatFloatShort(re) + sign + formatFloatShort(im) + "j)"
}

func (s Str) String() string { return strconv.Quote(string(s)) }

func (b Bytes) String() string { return "b" + strconv.Quote(string(b)) }

func (Ellipsis) String() string { return "Ellipsis" }

func (t Tuple) String() string {
	if len(t) == 1 {
		return "(" + t[0].String() + ",)"
	}
	return "(" + joinConstants(t) + ")"
}

func (s FrozenSet) String() string {
	if len(s) == 0 {
		return "frozenset()"
	}
	return "frozenset({" + joinConstants(s) + "})"
}

func (c Code) String() string {
	if c.Object == nil {
		return "<code object>"
	}
	return fmt.Sprintf("<code object %s, file %q, line %d>",
		c.Object.Name(), c.Object.Filename(), c.Object.FirstLineNumber())
}

func joinConstants(items []Constant) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.String()
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Complex parts print integral values without a trailing ".0", as repr does.
func formatFloatShort(f float64) string {
	s := formatFloat(f)
	return strings.TrimSuffix(s, ".0")
}

// Equal reports whether two constants are structurally equal. Floats compare
// by bit pattern so that NaN constants equal themselves.
func Equal(a, b Constant) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case None, Ellipsis:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case BigInt:
		bv := b.(BigInt)
		if av.Value == nil || bv.Value == nil {
			return av.Value == bv.Value
		}
		return av.Value.Cmp(bv.Value) == 0
	case Float:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Float)))
	case Complex:
		bv := b.(Complex)
		return math.Float64bits(real(av)) == math.Float64bits(real(bv)) &&
			math.Float64bits(imag(av)) == math.Float64bits(imag(bv))
	case Str:
		return av == b.(Str)
	case Bytes:
		return bytes.Equal(av, b.(Bytes))
	case Tuple:
		return equalSlices(av, b.(Tuple))
	case FrozenSet:
		return equalSlices(av, b.(FrozenSet))
	case Code:
		return av.Object.Equal(b.(Code).Object)
	}
	return false
}

func equalSlices(a, b []Constant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of c that shares no mutable state with it.
func Clone(c Constant) Constant {
	switch v := c.(type) {
	case BigInt:
		if v.Value == nil {
			return v
		}
		return BigInt{Value: new(big.Int).Set(v.Value)}
	case Bytes:
		return Bytes(bytes.Clone(v))
	case Tuple:
		return Tuple(cloneConstants(v))
	case FrozenSet:
		return FrozenSet(cloneConstants(v))
	case Code:
		return Code{Object: v.Object.Clone()}
	default:
		return c
	}
}

func cloneConstants(src []Constant) []Constant {
	if src == nil {
		return nil
	}
	dst := make([]Constant, len(src))
	for i, c := range src {
		dst[i] = Clone(c)
	}
	return dst
}
