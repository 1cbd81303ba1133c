package marshal

import (
	"encoding/hex"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// Vectors produced by CPython's marshal.dumps.
func TestDecodeCPythonVectors(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want bytecode.Constant
	}{
		{"tuple", "a902e901000000da026162", bytecode.Tuple{bytecode.Int(1), bytecode.Str("ab")}},
		{"nested tuple", "a902e901000000a902e902000000e903000000",
			bytecode.Tuple{bytecode.Int(1), bytecode.Tuple{bytecode.Int(2), bytecode.Int(3)}}},
		{"empty tuple", "a900", bytecode.Tuple{}},
		{"negative long", "ecfdffffff000000000004", bytecode.Int(-1 << 40)},
		{"long above int32", "ec03000000000000000200", bytecode.Int(1 << 31)},
		{"minus one", "e9ffffffff", bytecode.Int(-1)},
		{"float", "e7000000000000f83f", bytecode.Float(1.5)},
		{"complex", "f900000000000000000000000000000040", bytecode.Complex(2i)},
		{"bytes", "f3020000007879", bytecode.Bytes("xy")},
		{"frozenset", "be01000000e901000000", bytecode.FrozenSet{bytecode.Int(1)}},
		{"ellipsis", "2e", bytecode.Ellipsis{}},
		{"none", "4e", bytecode.None{}},
		{"true", "54", bytecode.Bool(true)},
		{"false", "46", bytecode.Bool(false)},
		{"unicode", "f502000000c3a9", bytecode.Str("é")},
		{"int64", "490000000001000000", bytecode.Int(1 << 32)},
		{"ascii float", "6603312e35", bytecode.Float(1.5)},
		{"ascii complex", "7803312e3503322e30", bytecode.Complex(complex(1.5, 2))},
		{"ascii", "6103000000616263", bytecode.Str("abc")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := mustHex(t, tt.hex)
			d := NewDecoder(data)
			got, err := d.Decode()
			require.NoError(t, err)
			require.True(t, bytecode.Equal(tt.want, got), "got %s", got)
			require.Equal(t, len(data), d.Pos())
		})
	}
}

func TestBackReferenceResolvesToCopies(t *testing.T) {
	// ('hello', 'hello'): the tuple takes slot 0 before its items, so the
	// second item refers to slot 1.
	got, err := Decode(mustHex(t, "a902da0568656c6c6f7201000000"))
	require.NoError(t, err)
	require.Equal(t, bytecode.Tuple{bytecode.Str("hello"), bytecode.Str("hello")}, got)
}

func TestBackReferenceToTuple(t *testing.T) {
	// ((1,), <ref 1>) where the inner tuple is slot 1.
	data := []byte{
		')' | flagRef, 2,
		')' | flagRef, 1, 'i', 1, 0, 0, 0,
		'r', 1, 0, 0, 0,
	}
	got, err := Decode(data)
	require.NoError(t, err)
	tuple := got.(bytecode.Tuple)
	require.Equal(t, tuple[0], tuple[1])

	// Mutating one copy must not affect the other.
	tuple[1].(bytecode.Tuple)[0] = bytecode.Int(9)
	require.Equal(t, bytecode.Int(1), tuple[0].(bytecode.Tuple)[0])
}

func TestLongOverflow(t *testing.T) {
	data := mustHex(t, "ec0500000000000000000000000004") // 2**70
	_, err := Decode(data)
	require.True(t, errors.Is(err, errz.IntegerOverflow))
	require.Equal(t, 0, errz.OffsetOf(err))

	got, err := Decode(data, WithBigInts())
	require.NoError(t, err)
	want := new(big.Int).Lsh(big.NewInt(1), 70)
	require.True(t, bytecode.Equal(bytecode.BigInt{Value: want}, got))
}

func TestLongLimits(t *testing.T) {
	for _, v := range []int64{math.MaxInt64, math.MinInt64, math.MaxInt32 + 1, math.MinInt32 - 1} {
		data, err := Encode(nil, bytecode.Int(v))
		require.NoError(t, err)
		require.Equal(t, byte(tagLong), data[0])
		got, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, bytecode.Int(v), got)
	}
}

func TestMalformedLongs(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"digit out of range", []byte{'l', 1, 0, 0, 0, 0x00, 0x80}},
		{"unnormalized", []byte{'l', 2, 0, 0, 0, 1, 0, 0, 0}},
		{"min int32 count", []byte{'l', 0, 0, 0, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.True(t, errors.Is(err, errz.MalformedInput), "%v", err)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		kind   errz.ErrorKind
		offset int
	}{
		{"empty", nil, errz.TruncatedInput, 0},
		{"unknown tag", []byte{'Q'}, errz.UnsupportedConstantKind, 0},
		{"unknown tag in tuple", []byte{')', 1, 'Q'}, errz.UnsupportedConstantKind, 2},
		{"list", []byte{'[', 0, 0, 0, 0}, errz.UnsupportedConstantKind, 0},
		{"dict", []byte{'{', '0'}, errz.UnsupportedConstantKind, 0},
		{"set", []byte{'<', 0, 0, 0, 0}, errz.UnsupportedConstantKind, 0},
		{"stop iteration", []byte{'S'}, errz.UnsupportedConstantKind, 0},
		{"code without builder", []byte{'c'}, errz.UnsupportedConstantKind, 0},
		{"null", []byte{'0'}, errz.MalformedInput, 0},
		{"null in tuple", []byte{')', 1, '0'}, errz.MalformedInput, 0},
		{"ref with empty table", []byte{'r', 0, 0, 0, 0}, errz.MalformedInput, 0},
		{"negative ref", []byte{'N' | flagRef, 'r', 0xff, 0xff, 0xff, 0xff}, errz.MalformedInput, 1},
		{"ref to unfinished tuple", []byte{')' | flagRef, 1, 'r', 0, 0, 0, 0}, errz.MalformedInput, 2},
		{"negative size", []byte{'(', 0xff, 0xff, 0xff, 0xff}, errz.MalformedInput, 0},
		{"short string", []byte{'s', 5, 0, 0, 0, 'a'}, errz.TruncatedInput, 5},
		{"short tuple", []byte{')', 2, 'N'}, errz.TruncatedInput, 3},
		{"bad float", []byte{'f', 2, 'x', 'y'}, errz.MalformedInput, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.kind), err.Error())
			require.Equal(t, tt.offset, errz.OffsetOf(err))
		})
	}
}

func TestTruncatedPrefixes(t *testing.T) {
	data := mustHex(t, "a902e901000000a902e902000000e903000000")
	for n := 0; n < len(data); n++ {
		_, err := Decode(data[:n])
		require.True(t, errors.Is(err, errz.TruncatedInput), "prefix %d: %v", n, err)
	}
}

func TestMaxDepth(t *testing.T) {
	nested := []byte{')', 1, ')', 1, ')', 1, 'N'}
	_, err := Decode(nested)
	require.NoError(t, err)

	_, err = Decode(nested, WithMaxDepth(3))
	require.True(t, errors.Is(err, errz.MalformedInput))
	require.Equal(t, 6, errz.OffsetOf(err))
}

// refChain encodes a tuple of levels+1 items where item 0 is None and item
// k is a pair of references to item k-1, so each level doubles the
// expanded size.
func refChain(levels int) []byte {
	data := []byte{')', byte(levels + 1), 'N' | flagRef}
	for k := 1; k <= levels; k++ {
		prev := byte(k - 1)
		data = append(data, ')'|flagRef, 2, 'r', prev, 0, 0, 0, 'r', prev, 0, 0, 0)
	}
	return data
}

func TestReferenceExpansion(t *testing.T) {
	got, err := Decode(refChain(2), WithMaxNodes(20))
	require.NoError(t, err)
	pair := bytecode.Tuple{bytecode.None{}, bytecode.None{}}
	require.Equal(t, bytecode.Tuple{bytecode.None{}, pair, bytecode.Tuple{pair, pair}}, got)

	_, err = Decode(refChain(2), WithMaxNodes(19))
	require.True(t, errors.Is(err, errz.MalformedInput))
}

func TestReferenceExpansionLimit(t *testing.T) {
	data := refChain(40)
	require.Less(t, len(data), 512)
	_, err := Decode(data)
	require.True(t, errors.Is(err, errz.MalformedInput), "%v", err)
	require.Contains(t, err.Error(), "nodes")
}

func TestBytesCountTowardNodeLimit(t *testing.T) {
	data := append([]byte{'s', 64, 0, 0, 0}, make([]byte, 64)...)
	_, err := Decode(data, WithMaxNodes(5))
	require.NoError(t, err)
	_, err = Decode(data, WithMaxNodes(4))
	require.True(t, errors.Is(err, errz.MalformedInput))
	require.Equal(t, 0, errz.OffsetOf(err))
}

func TestDecodeConsumesOneValue(t *testing.T) {
	data := []byte{'i', 7, 0, 0, 0, 'N'}
	d := NewDecoder(data)
	got, err := d.Decode()
	require.NoError(t, err)
	require.Equal(t, bytecode.Int(7), got)
	require.Equal(t, 5, d.Pos())

	got, err = d.Decode()
	require.NoError(t, err)
	require.Equal(t, bytecode.None{}, got)
}
