package utils

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const recordHeaderSize = 4

var ErrRecordFraming = errors.New("invalid record framing")

// RecordReader splits a stream into self sized records sharing the common
// {type u16, size u16} little-endian header.
type RecordReader struct {
	r      *bufio.Reader
	buf    []byte
	offset int64
}

func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{
		r:   bufio.NewReaderSize(r, 64*1024),
		buf: make([]byte, 0xffff),
	}
}

// Offset returns the stream offset of the next record.
func (rr *RecordReader) Offset() int64 {
	return rr.offset
}

// Next returns the next complete record. The slice is only valid until the
// following call. io.EOF is returned at a record boundary, io.ErrUnexpectedEOF
// inside a record.
func (rr *RecordReader) Next() ([]byte, error) {
	hdr, err := rr.r.Peek(recordHeaderSize)
	if err != nil {
		if errors.Is(err, io.EOF) && len(hdr) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	size := int(binary.LittleEndian.Uint16(hdr[2:]))
	if size < recordHeaderSize {
		return nil, fmt.Errorf("%w: record type %d size %d at offset %d",
			ErrRecordFraming, binary.LittleEndian.Uint16(hdr), size, rr.offset)
	}
	rec := rr.buf[:size]
	if _, err := io.ReadFull(rr.r, rec); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	rr.offset += int64(size)
	return rec, nil
}
