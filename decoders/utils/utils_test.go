package utils

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorIntegers(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})

	v8, err := c.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v8)

	v16, err := c.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), v16)

	v32, err := c.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), v32)

	v64, err := c.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0f0e0d0c0b0a0908), v64)
	assert.Equal(t, 0, c.Len())
}

func TestCursorShortRead(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	_, err := c.U32()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
	assert.Equal(t, 0, c.Offset())

	require.Error(t, c.Skip(4))
	require.NoError(t, c.Skip(3))
	assert.Equal(t, 3, c.Offset())
}

func TestWriteReadRoundtrip(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteU8(buf, 0xab))
	require.NoError(t, WriteU16(buf, 0x1234))
	require.NoError(t, WriteU32(buf, 0xdeadbeef))
	require.NoError(t, WriteU64(buf, 0x0102030405060708))
	require.NoError(t, WriteFixed(buf, "user", 8))
	require.NoError(t, WriteString(buf, "router-1"))

	c := NewCursor(buf.Bytes())
	v8, _ := c.U8()
	v16, _ := c.U16()
	v32, _ := c.U32()
	v64, _ := c.U64()
	fixed, err := c.Fixed(8)
	require.NoError(t, err)
	str, err := c.String()
	require.NoError(t, err)

	assert.Equal(t, uint8(0xab), v8)
	assert.Equal(t, uint16(0x1234), v16)
	assert.Equal(t, uint32(0xdeadbeef), v32)
	assert.Equal(t, uint64(0x0102030405060708), v64)
	assert.Equal(t, "user", fixed)
	assert.Equal(t, "router-1", str)
}

func TestWriteFixedTruncates(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteFixed(buf, "abcdefgh", 4))
	assert.Equal(t, []byte{'a', 'b', 'c', 0}, buf.Bytes())
}

func TestMacAddressString(t *testing.T) {
	assert.Equal(t, "00:1b:21:3c:4d:5e", MacAddress(0x001b213c4d5e).String())
}

func BenchmarkCursorU64(b *testing.B) {
	data := make([]byte, 8)
	for n := 0; n < b.N; n++ {
		c := NewCursor(data)
		_, _ = c.U64()
	}
}
