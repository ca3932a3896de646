package main

import (
	"errors"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var ErrOutOfRange = errors.New("cursor: access past end of buffer")

// Cursor is a seekable read/write window over a byte buffer. Multi-byte
// integers honor the cursor's current byte order; the LCE formats are
// big-endian streams with a few little-endian islands, so the order is a
// cursor mode rather than a per-call argument.
type Cursor struct {
	buf    []byte
	pos    int
	little bool
}

// NewCursor wraps an existing buffer for reading or in-place writing.
// The cursor starts big-endian.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewWriteCursor allocates a zeroed buffer of the given size. Writes past
// the end fail with ErrOutOfRange, the same as reads.
func NewWriteCursor(size int) *Cursor {
	return &Cursor{buf: make([]byte, size)}
}

func (c *Cursor) SetBigEndian()    { c.little = false }
func (c *Cursor) SetLittleEndian() { c.little = true }

func (c *Cursor) Pos() int       { return c.pos }
func (c *Cursor) Len() int       { return len(c.buf) }
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Bytes returns the underlying buffer.
func (c *Cursor) Bytes() []byte { return c.buf }

// Taken returns the buffer truncated at the current position.
func (c *Cursor) Taken() []byte { return c.buf[:c.pos] }

func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return ErrOutOfRange
	}
	c.pos = pos
	return nil
}

func (c *Cursor) Skip(n int) error {
	return c.Seek(c.pos + n)
}

// Slice returns a view of n bytes starting at off, without moving the cursor.
func (c *Cursor) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(c.buf) {
		return nil, ErrOutOfRange
	}
	return c.buf[off : off+n], nil
}

func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, ErrOutOfRange
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	if c.pos+1 > len(c.buf) {
		return 0, ErrOutOfRange
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	if c.little {
		return uint16(b[0]) | uint16(b[1])<<8, nil
	}
	return uint16(b[1]) | uint16(b[0])<<8, nil
}

func (c *Cursor) ReadU24() (uint32, error) {
	b, err := c.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	if c.little {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
	}
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16, nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	if c.little {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
	}
	return uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24, nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	lo, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	hi, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	if c.little {
		return uint64(hi)<<32 | uint64(lo), nil
	}
	return uint64(lo)<<32 | uint64(hi), nil
}

func (c *Cursor) WriteBytes(b []byte) error {
	if c.pos+len(b) > len(c.buf) {
		return ErrOutOfRange
	}
	copy(c.buf[c.pos:], b)
	c.pos += len(b)
	return nil
}

func (c *Cursor) WriteU8(v uint8) error {
	if c.pos+1 > len(c.buf) {
		return ErrOutOfRange
	}
	c.buf[c.pos] = v
	c.pos++
	return nil
}

func (c *Cursor) WriteU16(v uint16) error {
	var b [2]byte
	if c.little {
		b[0], b[1] = byte(v), byte(v>>8)
	} else {
		b[0], b[1] = byte(v>>8), byte(v)
	}
	return c.WriteBytes(b[:])
}

func (c *Cursor) WriteU24(v uint32) error {
	var b [3]byte
	if c.little {
		b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
	} else {
		b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
	}
	return c.WriteBytes(b[:])
}

func (c *Cursor) WriteU32(v uint32) error {
	var b [4]byte
	if c.little {
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	} else {
		b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
	return c.WriteBytes(b[:])
}

func (c *Cursor) WriteU64(v uint64) error {
	if c.little {
		if err := c.WriteU32(uint32(v)); err != nil {
			return err
		}
		return c.WriteU32(uint32(v >> 32))
	}
	if err := c.WriteU32(uint32(v >> 32)); err != nil {
		return err
	}
	return c.WriteU32(uint32(v))
}

// WriteU8At and WriteU16At patch a value at an absolute offset without
// moving the cursor. Both honor the cursor's current byte order.
func (c *Cursor) WriteU8At(off int, v uint8) error {
	if off < 0 || off+1 > len(c.buf) {
		return ErrOutOfRange
	}
	c.buf[off] = v
	return nil
}

func (c *Cursor) WriteU16At(off int, v uint16) error {
	if off < 0 || off+2 > len(c.buf) {
		return ErrOutOfRange
	}
	if c.little {
		c.buf[off], c.buf[off+1] = byte(v), byte(v>>8)
	} else {
		c.buf[off], c.buf[off+1] = byte(v>>8), byte(v)
	}
	return nil
}

// Read and Write let the cursor act as an io stream for the NBT gateway.
func (c *Cursor) Read(p []byte) (int, error) {
	b, err := c.ReadBytes(len(p))
	if err != nil {
		return 0, err
	}
	copy(p, b)
	return len(p), nil
}

func (c *Cursor) Write(p []byte) (int, error) {
	if err := c.WriteBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Cursor) ReadByte() (byte, error) { return c.ReadU8() }

func (c *Cursor) utf16Codec() encoding.Encoding {
	order := unicode.BigEndian
	if c.little {
		order = unicode.LittleEndian
	}
	return unicode.UTF16(order, unicode.IgnoreBOM)
}

// ReadWString reads a fixed window of units UTF-16 code units and returns
// the string up to its first NUL.
func (c *Cursor) ReadWString(units int) (string, error) {
	raw, err := c.ReadBytes(units * 2)
	if err != nil {
		return "", err
	}
	end := units
	for i := 0; i < units; i++ {
		if raw[2*i] == 0 && raw[2*i+1] == 0 {
			end = i
			break
		}
	}
	decoded, err := c.utf16Codec().NewDecoder().Bytes(raw[:end*2])
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// WriteWString writes s into a fixed window of units UTF-16 code units,
// NUL-padded. Strings too wide for the window are refused.
func (c *Cursor) WriteWString(s string, units int) error {
	encoded, err := c.utf16Codec().NewEncoder().Bytes([]byte(s))
	if err != nil {
		return err
	}
	if len(encoded) > units*2 {
		return ErrOutOfRange
	}
	window := make([]byte, units*2)
	copy(window, encoded)
	return c.WriteBytes(window)
}

// ReadWStringNul reads UTF-16 code units up to and including a NUL terminator.
func (c *Cursor) ReadWStringNul() (string, error) {
	var raw []byte
	for {
		u, err := c.ReadU16()
		if err != nil {
			return "", err
		}
		if u == 0 {
			break
		}
		if c.little {
			raw = append(raw, byte(u), byte(u>>8))
		} else {
			raw = append(raw, byte(u>>8), byte(u))
		}
	}
	decoded, err := c.utf16Codec().NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// ReadString reads a fixed window of n bytes and cuts at the first NUL.
func (c *Cursor) ReadString(n int) (string, error) {
	b, err := c.ReadBytes(n)
	if err != nil {
		return "", err
	}
	end := len(b)
	for i, v := range b {
		if v == 0 {
			end = i
			break
		}
	}
	return string(b[:end]), nil
}
