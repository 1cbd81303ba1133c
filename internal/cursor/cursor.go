// Package cursor provides a bounds-checked forward reader over a byte slice.
package cursor

import (
	"encoding/binary"

	"github.com/deepnoodle-ai/pycode/errz"
)

// Cursor reads sequentially from a byte slice. A failed read consumes
// nothing and reports errz.TruncatedInput at the current position.
type Cursor struct {
	data []byte
	pos  int
}

// New returns a cursor positioned at the start of data.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the current read position.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the total length of the underlying buffer.
func (c *Cursor) Len() int {
	return len(c.data)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

func (c *Cursor) need(n int, what string) error {
	if n < 0 {
		return errz.Newf(errz.MalformedInput, c.pos, "%s: negative length %d", what, n)
	}
	if c.Remaining() < n {
		return errz.Newf(errz.TruncatedInput, c.pos, "%s: need %d bytes, have %d", what, n, c.Remaining())
	}
	return nil
}

// ReadU8 reads a single byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1, "u8"); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// ReadU16LE reads a little-endian uint16.
func (c *Cursor) ReadU16LE() (uint16, error) {
	if err := c.need(2, "u16"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadU16BE reads a big-endian uint16.
func (c *Cursor) ReadU16BE() (uint16, error) {
	if err := c.need(2, "u16"); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadU32LE reads a little-endian uint32.
func (c *Cursor) ReadU32LE() (uint32, error) {
	if err := c.need(4, "u32"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadI32LE reads a little-endian two's complement int32.
func (c *Cursor) ReadI32LE() (int32, error) {
	v, err := c.ReadU32LE()
	return int32(v), err
}

// ReadU64LE reads a little-endian uint64.
func (c *Cursor) ReadU64LE() (uint64, error) {
	if err := c.need(8, "u64"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// ReadI64LE reads a little-endian two's complement int64.
func (c *Cursor) ReadI64LE() (int64, error) {
	v, err := c.ReadU64LE()
	return int64(v), err
}

// ReadBytes reads n bytes and returns a copy of them.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n, "bytes"); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, c.data[c.pos:c.pos+n])
	c.pos += n
	return b, nil
}

// Peek returns a copy of the next n bytes without advancing.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.need(n, "peek"); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, c.data[c.pos:c.pos+n])
	return b, nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n, "skip"); err != nil {
		return err
	}
	c.pos += n
	return nil
}
