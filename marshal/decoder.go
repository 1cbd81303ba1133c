// Package marshal decodes and encodes the CPython marshal serialization
// format as it appears in the payload of compiled Python files.
//
// Only the value kinds the compiler places in code objects are supported.
// Mutable containers and the rare StopIteration and unknown markers are
// rejected with errz.UnsupportedConstantKind.
package marshal

import (
	"math"
	"math/big"
	"strconv"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/internal/cursor"
	"github.com/deepnoodle-ai/pycode/op"
)

// Type tags. A tag with flagRef set asks the reader to remember the value
// for later back-references.
const (
	tagNull          = '0'
	tagNone          = 'N'
	tagFalse         = 'F'
	tagTrue          = 'T'
	tagStopIter      = 'S'
	tagEllipsis      = '.'
	tagInt           = 'i'
	tagInt64         = 'I'
	tagFloat         = 'f'
	tagBinaryFloat   = 'g'
	tagComplex       = 'x'
	tagBinaryComplex = 'y'
	tagLong          = 'l'
	tagString        = 's'
	tagInterned      = 't'
	tagRef           = 'r'
	tagTuple         = '('
	tagList          = '['
	tagDict          = '{'
	tagCode          = 'c'
	tagUnicode       = 'u'
	tagUnknown       = '?'
	tagSet           = '<'
	tagFrozenSet     = '>'
	tagASCII         = 'a'
	tagASCIIInterned = 'A'
	tagSmallTuple    = ')'
	tagShortASCII    = 'z'
	tagShortInterned = 'Z'

	flagRef = 0x80
)

// DefaultMaxDepth matches CPython's MAX_MARSHAL_STACK_DEPTH.
const DefaultMaxDepth = 2000

// DefaultMaxNodes bounds the number of values a decode may produce, counting
// every back-reference as the full size of the value it copies. A bytes
// value counts one extra node per bytesPerNode bytes of payload.
const DefaultMaxNodes = 1 << 20

const bytesPerNode = 16

const (
	longShift = 15
	longBase  = 1 << longShift
)

// CodeFields holds the sub-fields of one serialized code object, in the
// order they appear for CPython 3.8 through 3.10. Nested code objects in
// Constants have already been built.
type CodeFields struct {
	Offset int // offset of the code object's tag

	ArgCount        int32
	PosOnlyArgCount int32
	KwOnlyArgCount  int32
	LocalCount      int32
	StackSize       int32
	Flags           int32
	Code            []byte
	Constants       []bytecode.Constant
	Names           []string
	VarNames        []string
	FreeVars        []string
	CellVars        []string
	Filename        string
	Name            string
	FirstLine       int32
	LineTable       []byte

	// Version is the opcode table configured on the decoder, if any.
	Version *op.Version
}

// CodeBuilder turns decoded code object fields into a CodeObject.
type CodeBuilder interface {
	BuildCode(fields *CodeFields) (*bytecode.CodeObject, error)
}

// CodeBuilderFunc adapts a function to the CodeBuilder interface.
type CodeBuilderFunc func(fields *CodeFields) (*bytecode.CodeObject, error)

// BuildCode calls f(fields).
func (f CodeBuilderFunc) BuildCode(fields *CodeFields) (*bytecode.CodeObject, error) {
	return f(fields)
}

type options struct {
	version  *op.Version
	builder  CodeBuilder
	bigInts  bool
	maxDepth int
	maxNodes int
}

// Option configures a Decoder.
type Option func(*options)

// WithVersion sets the opcode table passed to the code builder.
func WithVersion(v *op.Version) Option {
	return func(o *options) {
		o.version = v
	}
}

// WithCodeBuilder sets the builder used for code objects. Without one,
// code objects fail to decode.
func WithCodeBuilder(b CodeBuilder) Option {
	return func(o *options) {
		o.builder = b
	}
}

// WithBigInts allows integers outside the int64 range, which decode to
// bytecode.BigInt instead of failing with errz.IntegerOverflow.
func WithBigInts() Option {
	return func(o *options) {
		o.bigInts = true
	}
}

// WithMaxDepth bounds the nesting depth of decoded values.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

// WithMaxNodes bounds the number of values a decode may produce.
// Back-references count as the size of the value they copy.
func WithMaxNodes(n int) Option {
	return func(o *options) {
		o.maxNodes = n
	}
}

// Decoder reads marshal values from a byte slice. A Decoder is not safe for
// concurrent use; the reference table belongs to a single decode.
type Decoder struct {
	c     *cursor.Cursor
	opts  options
	refs  []bytecode.Constant
	depth int

	// nodes counts produced values. refSizes[i] is the node count of
	// refs[i]; while a container is still being read it holds the count at
	// the container's start.
	nodes    int
	refSizes []int
}

// NewDecoder returns a decoder reading from data.
func NewDecoder(data []byte, opts ...Option) *Decoder {
	return NewCursorDecoder(cursor.New(data), opts...)
}

// NewCursorDecoder returns a decoder reading from the current position of c.
func NewCursorDecoder(c *cursor.Cursor, opts ...Option) *Decoder {
	o := options{maxDepth: DefaultMaxDepth, maxNodes: DefaultMaxNodes}
	for _, opt := range opts {
		opt(&o)
	}
	return &Decoder{c: c, opts: o}
}

// Pos returns the offset of the next unread byte.
func (d *Decoder) Pos() int {
	return d.c.Pos()
}

// Decode reads one value, consuming exactly the bytes that encode it.
func (d *Decoder) Decode() (bytecode.Constant, error) {
	start := d.c.Pos()
	v, err := d.readObject()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errz.New(errz.MalformedInput, start, "unexpected null object")
	}
	return v, nil
}

// readObject returns a nil Constant only for the null sentinel.
func (d *Decoder) readObject() (bytecode.Constant, error) {
	d.depth++
	defer func() { d.depth-- }()
	offset := d.c.Pos()
	if d.depth > d.opts.maxDepth {
		return nil, errz.Newf(errz.MalformedInput, offset, "recursion limit of %d exceeded", d.opts.maxDepth)
	}
	code, err := d.c.ReadU8()
	if err != nil {
		return nil, err
	}
	if err := d.count(offset, 1); err != nil {
		return nil, err
	}
	tag := code &^ flagRef
	remember := code&flagRef != 0

	switch tag {
	case tagNull:
		return nil, nil
	case tagNone:
		return d.scalar(bytecode.None{}, remember)
	case tagFalse:
		return d.scalar(bytecode.Bool(false), remember)
	case tagTrue:
		return d.scalar(bytecode.Bool(true), remember)
	case tagEllipsis:
		return d.scalar(bytecode.Ellipsis{}, remember)
	case tagInt:
		v, err := d.c.ReadI32LE()
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Int(v), remember)
	case tagInt64:
		v, err := d.c.ReadI64LE()
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Int(v), remember)
	case tagLong:
		v, err := d.readLong(offset)
		if err != nil {
			return nil, err
		}
		return d.scalar(v, remember)
	case tagFloat:
		f, err := d.readASCIIFloat(offset)
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Float(f), remember)
	case tagBinaryFloat:
		f, err := d.readBinaryFloat()
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Float(f), remember)
	case tagComplex:
		re, err := d.readASCIIFloat(offset)
		if err != nil {
			return nil, err
		}
		im, err := d.readASCIIFloat(offset)
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Complex(complex(re, im)), remember)
	case tagBinaryComplex:
		re, err := d.readBinaryFloat()
		if err != nil {
			return nil, err
		}
		im, err := d.readBinaryFloat()
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Complex(complex(re, im)), remember)
	case tagString:
		b, err := d.readSized32(offset)
		if err != nil {
			return nil, err
		}
		extra := len(b) / bytesPerNode
		if err := d.count(offset, extra); err != nil {
			return nil, err
		}
		if remember {
			d.refs = append(d.refs, bytecode.Bytes(b))
			d.refSizes = append(d.refSizes, 1+extra)
		}
		return bytecode.Bytes(b), nil
	case tagInterned, tagUnicode, tagASCII, tagASCIIInterned:
		b, err := d.readSized32(offset)
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Str(b), remember)
	case tagShortASCII, tagShortInterned:
		n, err := d.c.ReadU8()
		if err != nil {
			return nil, err
		}
		b, err := d.c.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		return d.scalar(bytecode.Str(b), remember)
	case tagRef:
		return d.readRef(offset)
	case tagTuple:
		n, err := d.readSize(offset)
		if err != nil {
			return nil, err
		}
		return d.readTuple(offset, n, remember)
	case tagSmallTuple:
		n, err := d.c.ReadU8()
		if err != nil {
			return nil, err
		}
		return d.readTuple(offset, int(n), remember)
	case tagFrozenSet:
		n, err := d.readSize(offset)
		if err != nil {
			return nil, err
		}
		return d.readFrozenSet(offset, n, remember)
	case tagCode:
		return d.readCode(offset, remember)
	case tagList, tagDict, tagSet:
		return nil, errz.Newf(errz.UnsupportedConstantKind, offset,
			"marshal tag %s: mutable containers never appear in code constants", describeTag(tag))
	case tagStopIter, tagUnknown:
		return nil, errz.Newf(errz.UnsupportedConstantKind, offset, "marshal tag %s", describeTag(tag))
	default:
		return nil, errz.Newf(errz.UnsupportedConstantKind, offset, "unknown marshal tag %s", describeTag(tag))
	}
}

func describeTag(tag byte) string {
	if tag >= 0x20 && tag < 0x7f {
		return strconv.QuoteRune(rune(tag))
	}
	return "0x" + strconv.FormatUint(uint64(tag), 16)
}

func (d *Decoder) count(offset, n int) error {
	d.nodes += n
	if d.nodes > d.opts.maxNodes {
		return errz.Newf(errz.MalformedInput, offset, "value exceeds the limit of %d nodes", d.opts.maxNodes)
	}
	return nil
}

func (d *Decoder) scalar(v bytecode.Constant, remember bool) (bytecode.Constant, error) {
	if remember {
		d.refs = append(d.refs, v)
		d.refSizes = append(d.refSizes, 1)
	}
	return v, nil
}

// reserve claims a reference slot before a container's children are read,
// so the slot numbering matches the order CPython's writer assigned.
func (d *Decoder) reserve(remember bool) int {
	if !remember {
		return -1
	}
	d.refs = append(d.refs, nil)
	d.refSizes = append(d.refSizes, d.nodes)
	return len(d.refs) - 1
}

func (d *Decoder) fill(idx int, v bytecode.Constant) {
	if idx >= 0 {
		d.refs[idx] = v
		// The container itself was counted before reserve ran.
		d.refSizes[idx] = d.nodes - d.refSizes[idx] + 1
	}
}

func (d *Decoder) readRef(offset int) (bytecode.Constant, error) {
	idx, err := d.c.ReadI32LE()
	if err != nil {
		return nil, err
	}
	if idx < 0 || int(idx) >= len(d.refs) {
		return nil, errz.Newf(errz.MalformedInput, offset,
			"invalid reference %d (%d entries)", idx, len(d.refs))
	}
	v := d.refs[idx]
	if v == nil {
		return nil, errz.Newf(errz.MalformedInput, offset,
			"reference %d points at a value still being decoded", idx)
	}
	if err := d.count(offset, d.refSizes[idx]); err != nil {
		return nil, err
	}
	return bytecode.Clone(v), nil
}

func (d *Decoder) readSize(offset int) (int, error) {
	n, err := d.c.ReadI32LE()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errz.Newf(errz.MalformedInput, offset, "negative size %d", n)
	}
	return int(n), nil
}

func (d *Decoder) readSized32(offset int) ([]byte, error) {
	n, err := d.readSize(offset)
	if err != nil {
		return nil, err
	}
	return d.c.ReadBytes(n)
}

func (d *Decoder) readBinaryFloat() (float64, error) {
	bits, err := d.c.ReadU64LE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (d *Decoder) readASCIIFloat(offset int) (float64, error) {
	n, err := d.c.ReadU8()
	if err != nil {
		return 0, err
	}
	b, err := d.c.ReadBytes(int(n))
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, errz.Newf(errz.MalformedInput, offset, "invalid float literal %q", b)
	}
	return f, nil
}

// readLong decodes an arbitrary-precision integer stored as a signed digit
// count followed by little-endian 15-bit digits, least significant first.
func (d *Decoder) readLong(offset int) (bytecode.Constant, error) {
	n, err := d.c.ReadI32LE()
	if err != nil {
		return nil, err
	}
	if n == math.MinInt32 {
		return nil, errz.New(errz.MalformedInput, offset, "long digit count out of range")
	}
	size := int(n)
	negative := size < 0
	if negative {
		size = -size
	}
	if size > d.c.Remaining()/2 {
		return nil, errz.Newf(errz.TruncatedInput, d.c.Pos(),
			"long: need %d bytes, have %d", size*2, d.c.Remaining())
	}
	value := new(big.Int)
	digit := new(big.Int)
	for i := 0; i < size; i++ {
		dv, err := d.c.ReadU16LE()
		if err != nil {
			return nil, err
		}
		if dv >= longBase {
			return nil, errz.Newf(errz.MalformedInput, offset, "long digit %d out of range", dv)
		}
		if i == size-1 && dv == 0 {
			return nil, errz.New(errz.MalformedInput, offset, "unnormalized long data")
		}
		digit.SetUint64(uint64(dv))
		value.Or(value, digit.Lsh(digit, uint(i*longShift)))
	}
	if negative {
		value.Neg(value)
	}
	if value.IsInt64() {
		return bytecode.Int(value.Int64()), nil
	}
	if !d.opts.bigInts {
		return nil, errz.Newf(errz.IntegerOverflow, offset,
			"integer literal of %d bits does not fit in 64 bits", value.BitLen())
	}
	return bytecode.BigInt{Value: value}, nil
}

func (d *Decoder) readItems(offset, n int, container string) ([]bytecode.Constant, error) {
	// Cap the initial allocation by the bytes left; every item takes at
	// least one byte.
	items := make([]bytecode.Constant, 0, min(n, d.c.Remaining()))
	for i := 0; i < n; i++ {
		item, err := d.readObject()
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, errz.Newf(errz.MalformedInput, offset, "null object in %s", container)
		}
		items = append(items, item)
	}
	return items, nil
}

func (d *Decoder) readTuple(offset, n int, remember bool) (bytecode.Constant, error) {
	idx := d.reserve(remember)
	items, err := d.readItems(offset, n, "tuple")
	if err != nil {
		return nil, err
	}
	v := bytecode.Tuple(items)
	d.fill(idx, v)
	return v, nil
}

func (d *Decoder) readFrozenSet(offset, n int, remember bool) (bytecode.Constant, error) {
	idx := d.reserve(remember)
	items, err := d.readItems(offset, n, "frozenset")
	if err != nil {
		return nil, err
	}
	v := bytecode.FrozenSet(items)
	d.fill(idx, v)
	return v, nil
}

func (d *Decoder) readCode(offset int, remember bool) (bytecode.Constant, error) {
	if d.opts.builder == nil {
		return nil, errz.New(errz.UnsupportedConstantKind, offset,
			"marshal tag 'c': no code builder configured")
	}
	idx := d.reserve(remember)
	f := &CodeFields{Offset: offset, Version: d.opts.version}

	ints := []*int32{&f.ArgCount, &f.PosOnlyArgCount, &f.KwOnlyArgCount,
		&f.LocalCount, &f.StackSize, &f.Flags}
	for _, p := range ints {
		v, err := d.c.ReadI32LE()
		if err != nil {
			return nil, err
		}
		*p = v
	}
	var err error
	if f.Code, err = d.readBytesField(offset, "code"); err != nil {
		return nil, err
	}
	consts, err := d.readField(offset, "consts")
	if err != nil {
		return nil, err
	}
	tuple, ok := consts.(bytecode.Tuple)
	if !ok {
		return nil, errz.Newf(errz.MalformedInput, offset, "code consts: expected tuple, got %s", consts.Kind())
	}
	f.Constants = []bytecode.Constant(tuple)
	for _, field := range []struct {
		name string
		dst  *[]string
	}{
		{"names", &f.Names},
		{"varnames", &f.VarNames},
		{"freevars", &f.FreeVars},
		{"cellvars", &f.CellVars},
	} {
		if *field.dst, err = d.readStringsField(offset, field.name); err != nil {
			return nil, err
		}
	}
	if f.Filename, err = d.readStrField(offset, "filename"); err != nil {
		return nil, err
	}
	if f.Name, err = d.readStrField(offset, "name"); err != nil {
		return nil, err
	}
	if f.FirstLine, err = d.c.ReadI32LE(); err != nil {
		return nil, err
	}
	if f.LineTable, err = d.readBytesField(offset, "line table"); err != nil {
		return nil, err
	}

	obj, err := d.opts.builder.BuildCode(f)
	if err != nil {
		return nil, err
	}
	v := bytecode.Code{Object: obj}
	d.fill(idx, v)
	return v, nil
}

func (d *Decoder) readField(offset int, name string) (bytecode.Constant, error) {
	v, err := d.readObject()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errz.Newf(errz.MalformedInput, offset, "code %s: null object", name)
	}
	return v, nil
}

func (d *Decoder) readBytesField(offset int, name string) ([]byte, error) {
	v, err := d.readField(offset, name)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bytecode.Bytes)
	if !ok {
		return nil, errz.Newf(errz.MalformedInput, offset, "code %s: expected bytes, got %s", name, v.Kind())
	}
	return []byte(b), nil
}

func (d *Decoder) readStrField(offset int, name string) (string, error) {
	v, err := d.readField(offset, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(bytecode.Str)
	if !ok {
		return "", errz.Newf(errz.MalformedInput, offset, "code %s: expected str, got %s", name, v.Kind())
	}
	return string(s), nil
}

func (d *Decoder) readStringsField(offset int, name string) ([]string, error) {
	v, err := d.readField(offset, name)
	if err != nil {
		return nil, err
	}
	tuple, ok := v.(bytecode.Tuple)
	if !ok {
		return nil, errz.Newf(errz.MalformedInput, offset, "code %s: expected tuple, got %s", name, v.Kind())
	}
	out := make([]string, len(tuple))
	for i, item := range tuple {
		s, ok := item.(bytecode.Str)
		if !ok {
			return nil, errz.Newf(errz.MalformedInput, offset,
				"code %s[%d]: expected str, got %s", name, i, item.Kind())
		}
		out[i] = string(s)
	}
	return out, nil
}

// Decode is a convenience wrapper that decodes a single value from data.
func Decode(data []byte, opts ...Option) (bytecode.Constant, error) {
	return NewDecoder(data, opts...).Decode()
}
