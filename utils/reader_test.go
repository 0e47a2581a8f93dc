package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(typ uint16, payload ...byte) []byte {
	b := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint16(b, typ)
	binary.LittleEndian.PutUint16(b[2:], uint16(4+len(payload)))
	return append(b, payload...)
}

func TestRecordReader(t *testing.T) {
	stream := append(record(11, 1, 2, 3, 4), record(7)...)
	stream = append(stream, record(9, 5, 6)...)
	rr := NewRecordReader(bytes.NewReader(stream))

	rec, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, record(11, 1, 2, 3, 4), rec)

	rec, err = rr.Next()
	require.NoError(t, err)
	assert.Equal(t, record(7), rec)
	assert.Equal(t, int64(12), rr.Offset())

	rec, err = rr.Next()
	require.NoError(t, err)
	assert.Equal(t, record(9, 5, 6), rec)

	_, err = rr.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestRecordReaderTruncated(t *testing.T) {
	stream := record(11, 1, 2, 3, 4)
	rr := NewRecordReader(bytes.NewReader(stream[:6]))
	_, err := rr.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	rr = NewRecordReader(bytes.NewReader(stream[:2]))
	_, err = rr.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRecordReaderFraming(t *testing.T) {
	rr := NewRecordReader(bytes.NewReader([]byte{11, 0, 2, 0, 0, 0}))
	_, err := rr.Next()
	assert.ErrorIs(t, err, ErrRecordFraming)
}
