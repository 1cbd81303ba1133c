package marshal

import (
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/pycode/bytecode"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytes(t *testing.T) {
	tests := []struct {
		name  string
		value bytecode.Constant
		want  []byte
	}{
		{"none", bytecode.None{}, []byte{'N'}},
		{"true", bytecode.Bool(true), []byte{'T'}},
		{"false", bytecode.Bool(false), []byte{'F'}},
		{"ellipsis", bytecode.Ellipsis{}, []byte{'.'}},
		{"int", bytecode.Int(-1), []byte{'i', 0xff, 0xff, 0xff, 0xff}},
		{"long", bytecode.Int(1 << 31), []byte{'l', 3, 0, 0, 0, 0, 0, 0, 0, 2, 0}},
		{"short ascii", bytecode.Str("ab"), []byte{'z', 2, 'a', 'b'}},
		{"unicode", bytecode.Str("é"), []byte{'u', 2, 0, 0, 0, 0xc3, 0xa9}},
		{"bytes", bytecode.Bytes("xy"), []byte{'s', 2, 0, 0, 0, 'x', 'y'}},
		{"small tuple", bytecode.Tuple{bytecode.Int(1)}, []byte{')', 1, 'i', 1, 0, 0, 0}},
		{"frozenset", bytecode.FrozenSet{}, []byte{'>', 0, 0, 0, 0}},
		{"float", bytecode.Float(1.5), []byte{'g', 0, 0, 0, 0, 0, 0, 0xf8, 0x3f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(nil, tt.value)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecodeConstants(t *testing.T) {
	huge, _ := new(big.Int).SetString("-123456789012345678901234567890", 10)
	values := []bytecode.Constant{
		bytecode.Int(0),
		bytecode.Int(math.MinInt64),
		bytecode.BigInt{Value: huge},
		bytecode.Float(math.Inf(-1)),
		bytecode.Float(math.NaN()),
		bytecode.Complex(complex(-1, 0.25)),
		bytecode.Str(strings.Repeat("a", 300)),
		bytecode.Str(""),
		bytecode.Bytes{},
		bytecode.Tuple{},
		bytecode.Tuple{bytecode.Str("a"), bytecode.Tuple{bytecode.None{}, bytecode.Ellipsis{}}},
		bytecode.FrozenSet{bytecode.Str("x"), bytecode.Int(2)},
	}
	long := make(bytecode.Tuple, 300)
	for i := range long {
		long[i] = bytecode.Int(i)
	}
	values = append(values, long)

	enc := NewEncoder(nil)
	for _, v := range values {
		data, err := enc.Encode(v)
		require.NoError(t, err)
		got, err := Decode(data, WithBigInts())
		require.NoError(t, err)
		require.True(t, bytecode.Equal(v, got), "%s != %s", v, got)
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode(nil, nil)
	require.Error(t, err)

	_, err = Encode(nil, bytecode.BigInt{})
	require.Error(t, err)

	_, err = Encode(nil, bytecode.Code{})
	require.Error(t, err)

	code := bytecode.NewCode(bytecode.CodeParams{Name: "f"})
	_, err = Encode(nil, bytecode.Code{Object: code})
	require.ErrorContains(t, err, "requires a version")
}
