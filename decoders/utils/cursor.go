package utils

import (
	"bytes"
	"errors"
	"fmt"
)

var ErrShortRead = errors.New("short read")

// Cursor reads little-endian values from an immutable byte slice.
// Every read is bounds checked against the remaining length; a failed read
// does not move the cursor.
type Cursor struct {
	data []byte
	off  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Offset() int {
	return c.off
}

func (c *Cursor) Len() int {
	return len(c.data) - c.off
}

func (c *Cursor) need(n int) error {
	if n < 0 || c.Len() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, %d left", ErrShortRead, n, c.off, c.Len())
	}
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Next returns the next n bytes without copying.
func (c *Cursor) Next(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *Cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.off]
	c.off++
	return v, nil
}

func (c *Cursor) U16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := Order.Uint16(c.data[c.off:])
	c.off += 2
	return v, nil
}

func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := Order.Uint32(c.data[c.off:])
	c.off += 4
	return v, nil
}

func (c *Cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := Order.Uint64(c.data[c.off:])
	c.off += 8
	return v, nil
}

// Fixed reads a NUL padded string field of size bytes.
func (c *Cursor) Fixed(size int) (string, error) {
	b, err := c.Next(size)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// String reads a u16 length prefixed string.
func (c *Cursor) String() (string, error) {
	start := c.off
	n, err := c.U16()
	if err != nil {
		return "", err
	}
	b, err := c.Next(int(n))
	if err != nil {
		c.off = start
		return "", err
	}
	return string(b), nil
}
