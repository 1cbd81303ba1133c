package cursor

import (
	"errors"
	"testing"

	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/stretchr/testify/require"
)

func TestReadIntegers(t *testing.T) {
	c := New([]byte{
		0x7f,
		0x34, 0x12,
		0x12, 0x34,
		0x78, 0x56, 0x34, 0x12,
		0xfe, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	})
	u8, err := c.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), u8)

	le, err := c.ReadU16LE()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), le)

	be, err := c.ReadU16BE()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), be)

	u32, err := c.ReadU32LE()
	require.NoError(t, err)
	require.Equal(t, uint32(0x12345678), u32)

	i32, err := c.ReadI32LE()
	require.NoError(t, err)
	require.Equal(t, int32(-2), i32)

	i64, err := c.ReadI64LE()
	require.NoError(t, err)
	require.Equal(t, int64(-1), i64)

	require.Equal(t, 21, c.Pos())
	require.Equal(t, 0, c.Remaining())
}

func TestTruncatedReadConsumesNothing(t *testing.T) {
	c := New([]byte{1, 2, 3})
	require.NoError(t, c.Skip(1))

	_, err := c.ReadU32LE()
	require.True(t, errors.Is(err, errz.TruncatedInput))
	require.Equal(t, 1, errz.OffsetOf(err))
	require.Equal(t, 1, c.Pos())

	_, err = c.ReadBytes(3)
	require.True(t, errors.Is(err, errz.TruncatedInput))
	require.Equal(t, 2, c.Remaining())

	require.True(t, errors.Is(c.Skip(5), errz.TruncatedInput))
}

func TestReadBytesCopies(t *testing.T) {
	data := []byte("hello")
	c := New(data)
	b, err := c.ReadBytes(5)
	require.NoError(t, err)
	data[0] = 'j'
	require.Equal(t, []byte("hello"), b)
}

func TestPeekDoesNotAdvance(t *testing.T) {
	c := New([]byte{9, 8, 7})
	b, err := c.Peek(2)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8}, b)
	require.Equal(t, 0, c.Pos())

	_, err = c.Peek(4)
	require.True(t, errors.Is(err, errz.TruncatedInput))
}

func TestNegativeLength(t *testing.T) {
	c := New([]byte{1})
	_, err := c.ReadBytes(-1)
	require.True(t, errors.Is(err, errz.MalformedInput))
}
