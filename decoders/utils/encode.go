package utils

import (
	"bytes"
	"encoding/binary"
)

// Wire order of nfcapd records and blocks.
var Order = binary.LittleEndian

func WriteU8(buf *bytes.Buffer, v uint8) error {
	return buf.WriteByte(v)
}

func WriteU16(buf *bytes.Buffer, v uint16) error {
	var b [2]byte
	Order.PutUint16(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func WriteU32(buf *bytes.Buffer, v uint32) error {
	var b [4]byte
	Order.PutUint32(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func WriteU64(buf *bytes.Buffer, v uint64) error {
	var b [8]byte
	Order.PutUint64(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

// WriteFixed writes s truncated to size-1 bytes and NUL padded to size.
func WriteFixed(buf *bytes.Buffer, s string, size int) error {
	if size <= 0 {
		return nil
	}
	if len(s) > size-1 {
		s = s[:size-1]
	}
	if _, err := buf.WriteString(s); err != nil {
		return err
	}
	_, err := buf.Write(make([]byte, size-len(s)))
	return err
}

// WriteString writes a u16 length prefixed string.
func WriteString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xffff {
		s = s[:0xffff]
	}
	if err := WriteU16(buf, uint16(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}
