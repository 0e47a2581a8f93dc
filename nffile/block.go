// Package nffile implements the block buffer and the on-disk container of
// collected flow records.
package nffile

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/netsampler/nfcapd/decoders/utils"
)

const (
	// WriteBufferSize is the default capacity of a data block.
	WriteBufferSize = 1024 * 1024
	// MaxBlockSize bounds the capacity of a data block and the sizes a
	// reader accepts from block headers.
	MaxBlockSize = 64 * WriteBufferSize

	BlockHeaderSize = 12
)

// Block types.
const (
	DataBlockType     uint16 = 3
	AppendixBlockType uint16 = 5
)

// Block flags.
const (
	BlockFlagCompressed uint16 = 1 << iota
)

var (
	ErrRecordTooLarge = errors.New("record larger than block capacity")
	ErrBufferOverflow = errors.New("append beyond block capacity")
)

// WriteError wraps a storage failure while flushing a block.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write block: %s", e.Err.Error())
	}
	return fmt.Sprintf("write block to %s: %s", e.Path, e.Err.Error())
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type BlockHeader struct {
	NumRecords uint32
	Size       uint32
	Type       uint16
	Flags      uint16
}

func (h BlockHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, BlockHeaderSize)
	h.put(b)
	return b, nil
}

func (h BlockHeader) put(b []byte) {
	utils.Order.PutUint32(b, h.NumRecords)
	utils.Order.PutUint32(b[4:], h.Size)
	utils.Order.PutUint16(b[8:], h.Type)
	utils.Order.PutUint16(b[10:], h.Flags)
}

func (h *BlockHeader) UnmarshalBinary(b []byte) error {
	if len(b) < BlockHeaderSize {
		return fmt.Errorf("%w: block header needs %d bytes, have %d", utils.ErrShortRead, BlockHeaderSize, len(b))
	}
	h.NumRecords = utils.Order.Uint32(b)
	h.Size = utils.Order.Uint32(b[4:])
	h.Type = utils.Order.Uint16(b[8:])
	h.Flags = utils.Order.Uint16(b[10:])
	return nil
}

// BlockWriter stores a finished block. It returns the number of bytes
// written to the underlying storage.
type BlockWriter interface {
	WriteBlock(hdr BlockHeader, data []byte) (int, error)
}

// BlockWriterFunc adapts a function to BlockWriter.
type BlockWriterFunc func(hdr BlockHeader, data []byte) (int, error)

func (f BlockWriterFunc) WriteBlock(hdr BlockHeader, data []byte) (int, error) {
	return f(hdr, data)
}

// BlockBuffer accumulates records into a fixed capacity block and hands
// full blocks to its BlockWriter. It is not safe for concurrent use.
type BlockBuffer struct {
	hdr      BlockHeader
	buf      []byte
	capacity int
	writer   BlockWriter
	logger   *slog.Logger

	blocks uint32
}

func NewBlockBuffer(w BlockWriter, capacity int, logger *slog.Logger) *BlockBuffer {
	if capacity <= 0 {
		capacity = WriteBufferSize
	}
	capacity = min(capacity, MaxBlockSize)
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockBuffer{
		hdr:      BlockHeader{Type: DataBlockType},
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
		writer:   w,
		logger:   logger,
	}
}

func (b *BlockBuffer) Header() BlockHeader {
	return b.hdr
}

func (b *BlockBuffer) Capacity() int {
	return b.capacity
}

// Blocks returns the number of blocks flushed so far.
func (b *BlockBuffer) Blocks() uint32 {
	return b.blocks
}

// EnsureSpace makes room for required more bytes, flushing the current block
// when it cannot hold them. The caller must not append after an error.
func (b *BlockBuffer) EnsureSpace(required int) error {
	if int(b.hdr.Size)+required <= b.capacity {
		return nil
	}
	if required > b.capacity {
		b.logger.Error("required buffer size too big for output buffer",
			slog.Int("required", required),
			slog.Int("capacity", b.capacity))
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, required, b.capacity)
	}
	if err := b.Flush(); err != nil {
		b.logger.Error("failed to write output buffer",
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Append copies p into the block and accounts for one more record.
func (b *BlockBuffer) Append(p []byte) error {
	if int(b.hdr.Size)+len(p) > b.capacity {
		return fmt.Errorf("%w: size %d, record %d, capacity %d", ErrBufferOverflow, b.hdr.Size, len(p), b.capacity)
	}
	b.buf = append(b.buf, p...)
	b.hdr.NumRecords++
	b.hdr.Size += uint32(len(p))
	return nil
}

// Flush writes the current block if it holds any data. On failure the data
// stays buffered.
func (b *BlockBuffer) Flush() error {
	if b.hdr.NumRecords == 0 && b.hdr.Size == 0 {
		return nil
	}
	if _, err := b.writer.WriteBlock(b.hdr, b.buf); err != nil {
		var we *WriteError
		if !errors.As(err, &we) {
			err = &WriteError{Err: err}
		}
		return err
	}
	b.blocks++
	b.hdr = BlockHeader{Type: b.hdr.Type}
	b.buf = b.buf[:0]
	return nil
}
