// Package pyc reads and writes the 16-byte header that precedes the marshal
// payload in a compiled Python file.
//
// The header layout follows PEP 552:
//
//	[4 magic][4 flags][8 invalidation data][marshal payload]
//
// Flag bit 0 selects hash-based invalidation (an 8-byte source hash, with
// bit 1 requesting that the hash be checked) over timestamp-based
// invalidation (a 4-byte mtime followed by a 4-byte source size).
package pyc

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/deepnoodle-ai/pycode/errz"
	"github.com/deepnoodle-ai/pycode/internal/cursor"
	"github.com/deepnoodle-ai/pycode/op"
)

// HeaderSize is the size of the container header in bytes.
const HeaderSize = 16

const (
	flagHashBased   = 0b01
	flagCheckSource = 0b10
)

// Mode is the cache invalidation mode recorded in the header.
type Mode int

const (
	Timestamp Mode = iota
	UncheckedHash
	CheckedHash
)

// String returns the mode name as py_compile spells it.
func (m Mode) String() string {
	switch m {
	case Timestamp:
		return "TIMESTAMP"
	case UncheckedHash:
		return "UNCHECKED_HASH"
	case CheckedHash:
		return "CHECKED_HASH"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Header is a decoded container header. Raw holds the eight invalidation
// bytes verbatim for provenance.
type Header struct {
	Magic [4]byte
	Flags uint32
	Raw   [8]byte
}

// Mode returns the invalidation mode selected by the flag bits.
func (h *Header) Mode() Mode {
	switch {
	case h.Flags&flagHashBased == 0:
		return Timestamp
	case h.Flags&flagCheckSource != 0:
		return CheckedHash
	default:
		return UncheckedHash
	}
}

// IsHashBased returns true if the header carries a source hash.
func (h *Header) IsHashBased() bool {
	return h.Flags&flagHashBased != 0
}

// Timestamp returns the source modification time of a timestamp header.
func (h *Header) Timestamp() (time.Time, bool) {
	if h.IsHashBased() {
		return time.Time{}, false
	}
	return time.Unix(int64(binary.LittleEndian.Uint32(h.Raw[:4])), 0).UTC(), true
}

// SourceSize returns the source size recorded by a timestamp header.
func (h *Header) SourceSize() (uint32, bool) {
	if h.IsHashBased() {
		return 0, false
	}
	return binary.LittleEndian.Uint32(h.Raw[4:]), true
}

// Hash returns the source hash of a hash-based header.
func (h *Header) Hash() ([8]byte, bool) {
	if !h.IsHashBased() {
		return [8]byte{}, false
	}
	return h.Raw, true
}

// String describes the header on one line.
func (h *Header) String() string {
	if hash, ok := h.Hash(); ok {
		return fmt.Sprintf("magic=%x mode=%s hash=%s", h.Magic[:], h.Mode(), hex.EncodeToString(hash[:]))
	}
	mtime, _ := h.Timestamp()
	size, _ := h.SourceSize()
	return fmt.Sprintf("magic=%x mode=%s mtime=%s size=%d",
		h.Magic[:], h.Mode(), mtime.Format(time.RFC3339), size)
}

// Bytes encodes the header.
func (h *Header) Bytes() []byte {
	out := make([]byte, HeaderSize)
	copy(out[:4], h.Magic[:])
	binary.LittleEndian.PutUint32(out[4:8], h.Flags)
	copy(out[8:], h.Raw[:])
	return out
}

// WriteHeader writes the encoded header to w.
func WriteHeader(w io.Writer, h *Header) error {
	_, err := w.Write(h.Bytes())
	return err
}

// NewTimestampHeader returns a timestamp-based header.
func NewTimestampHeader(magic [4]byte, mtime time.Time, size uint32) *Header {
	h := &Header{Magic: magic}
	binary.LittleEndian.PutUint32(h.Raw[:4], uint32(mtime.Unix()))
	binary.LittleEndian.PutUint32(h.Raw[4:], size)
	return h
}

// NewHashHeader returns a hash-based header.
func NewHashHeader(magic [4]byte, hash [8]byte, checkSource bool) *Header {
	h := &Header{Magic: magic, Flags: flagHashBased, Raw: hash}
	if checkSource {
		h.Flags |= flagCheckSource
	}
	return h
}

// ReadHeader validates and consumes the header, leaving c positioned at the
// first byte of the marshal payload. A magic mismatch is reported as
// errz.UnsupportedVersion without consuming any bytes.
func ReadHeader(c *cursor.Cursor, expected [4]byte) (*Header, error) {
	if c.Remaining() < HeaderSize {
		return nil, errz.Newf(errz.TruncatedInput, c.Pos(),
			"container header needs %d bytes, have %d", HeaderSize, c.Remaining())
	}
	magic, err := c.Peek(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, expected[:]) {
		return nil, errz.Newf(errz.UnsupportedVersion, c.Pos(),
			"bad magic %x, expected %x", magic, expected[:])
	}
	h := &Header{Magic: expected}
	if err := c.Skip(4); err != nil {
		return nil, err
	}
	flagsPos := c.Pos()
	if h.Flags, err = c.ReadU32LE(); err != nil {
		return nil, err
	}
	if h.Flags&^(flagHashBased|flagCheckSource) != 0 {
		return nil, errz.Newf(errz.MalformedInput, flagsPos, "invalid header flags %#x", h.Flags)
	}
	raw, err := c.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	copy(h.Raw[:], raw)
	return h, nil
}

// DetectVersion returns the registered version whose magic begins data.
func DetectVersion(data []byte) (*op.Version, error) {
	if len(data) < 4 {
		return nil, errz.Newf(errz.TruncatedInput, 0, "container magic needs 4 bytes, have %d", len(data))
	}
	var magic [4]byte
	copy(magic[:], data)
	v, ok := op.ByMagic(magic)
	if !ok {
		return nil, errz.Newf(errz.UnsupportedVersion, 0,
			"no opcode table for magic %x (number %d)", magic[:], binary.LittleEndian.Uint16(magic[:2]))
	}
	return v, nil
}
