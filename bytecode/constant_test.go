package bytecode

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstantString(t *testing.T) {
	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	tests := []struct {
		c    Constant
		want string
	}{
		{None{}, "None"},
		{Bool(true), "True"},
		{Bool(false), "False"},
		{Int(-42), "-42"},
		{BigInt{Value: big1}, "123456789012345678901234567890"},
		{Float(1), "1.0"},
		{Float(2.5), "2.5"},
		{Float(1e100), "1e+100"},
		{Float(math.Inf(-1)), "-inf"},
		{Complex(complex(0, 2)), "2j"},
		{Complex(complex(1, -2.5)), "(1-2.5j)"},
		{Str("hi\n"), `"hi\n"`},
		{Bytes("ab"), `b"ab"`},
		{Ellipsis{}, "Ellipsis"},
		{Tuple{}, "()"},
		{Tuple{Int(1)}, "(1,)"},
		{Tuple{Int(1), Str("a")}, `(1, "a")`},
		{FrozenSet{}, "frozenset()"},
		{FrozenSet{Int(1), Int(2)}, "frozenset({1, 2})"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.c.String())
		})
	}
}

func TestConstantKinds(t *testing.T) {
	require.Equal(t, "tuple", Tuple{}.Kind().String())
	require.Equal(t, CodeKind, Code{}.Kind())
	require.Equal(t, "kind(200)", Kind(200).String())
}

func TestEqual(t *testing.T) {
	nan := Float(math.NaN())
	require.True(t, Equal(nan, nan))
	require.True(t, Equal(Tuple{Str("a"), Tuple{None{}}}, Tuple{Str("a"), Tuple{None{}}}))
	require.False(t, Equal(Tuple{Str("a")}, FrozenSet{Str("a")}))
	require.False(t, Equal(Int(1), Bool(true)))
	require.False(t, Equal(Float(0), Float(math.Copysign(0, -1))))
	require.True(t, Equal(BigInt{Value: big.NewInt(5)}, BigInt{Value: big.NewInt(5)}))
	require.True(t, Equal(Bytes("x"), Bytes("x")))
	require.True(t, Equal(nil, nil))
	require.False(t, Equal(nil, None{}))
}

func TestCloneConstant(t *testing.T) {
	b := Bytes("abc")
	tup := Tuple{b, Str("s")}
	clone := Clone(tup).(Tuple)
	require.True(t, Equal(tup, clone))

	b[0] = 'z'
	require.Equal(t, Bytes("abc"), clone[0])

	n := big.NewInt(7)
	bc := Clone(BigInt{Value: n}).(BigInt)
	n.SetInt64(8)
	require.Equal(t, int64(7), bc.Value.Int64())
}
