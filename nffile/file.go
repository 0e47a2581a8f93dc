package nffile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/ksuid"

	"github.com/netsampler/nfcapd/decoders/utils"
)

const (
	Magic   uint16 = 0xA50C
	Version uint16 = 3

	FileHeaderSize      = 64
	diskBlockHeaderSize = BlockHeaderSize + 4 + 8

	// CreatorCollector marks files written by the collector.
	CreatorCollector uint8 = 1
)

// Appendix record types.
const (
	identRecordType uint16 = 1
	statRecordType  uint16 = 2
)

var (
	ErrMagic     = errors.New("bad file magic")
	ErrVersion   = errors.New("unsupported file version")
	ErrChecksum  = errors.New("block checksum mismatch")
	ErrClosed    = errors.New("file closed")
	ErrBlockSize = errors.New("block size out of range")
)

// Stat summarizes the flows stored in a file.
type Stat struct {
	NumFlows        uint64 `json:"flows"`
	NumPackets      uint64 `json:"packets"`
	NumBytes        uint64 `json:"bytes"`
	SequenceFailure uint64 `json:"sequence_failures"`
	FirstSeen       uint64 `json:"first_seen"`
	LastSeen        uint64 `json:"last_seen"`
}

// Seen widens the first/last seen window to include [first, last] (msec).
func (s *Stat) Seen(first, last uint64) {
	if s.FirstSeen == 0 || (first != 0 && first < s.FirstSeen) {
		s.FirstSeen = first
	}
	if last > s.LastSeen {
		s.LastSeen = last
	}
}

func (s *Stat) marshal(buf *bytes.Buffer) {
	utils.WriteU16(buf, statRecordType)
	utils.WriteU16(buf, 4+6*8)
	for _, v := range []uint64{s.NumFlows, s.NumPackets, s.NumBytes, s.SequenceFailure, s.FirstSeen, s.LastSeen} {
		utils.WriteU64(buf, v)
	}
}

func (s *Stat) unmarshal(cur *utils.Cursor) error {
	for _, v := range []*uint64{&s.NumFlows, &s.NumPackets, &s.NumBytes, &s.SequenceFailure, &s.FirstSeen, &s.LastSeen} {
		x, err := cur.U64()
		if err != nil {
			return err
		}
		*v = x
	}
	return nil
}

type Options struct {
	Compression Compression
	// BlockSize is the capacity of the data block; WriteBufferSize when zero.
	BlockSize int
	Logger    *slog.Logger
	// WrapWriter decorates the storage side of the block buffer.
	WrapWriter func(BlockWriter) BlockWriter
}

type header struct {
	Compression    Compression
	Creator        uint8
	NumBlocks      uint32
	AppendixOffset uint64
	Created        uint64
	ID             ksuid.KSUID
}

func (h *header) marshal() []byte {
	b := make([]byte, FileHeaderSize)
	utils.Order.PutUint16(b, Magic)
	utils.Order.PutUint16(b[2:], Version)
	b[4] = uint8(h.Compression)
	b[5] = h.Creator
	utils.Order.PutUint32(b[8:], h.NumBlocks)
	utils.Order.PutUint64(b[12:], h.AppendixOffset)
	utils.Order.PutUint64(b[20:], h.Created)
	copy(b[28:48], h.ID[:])
	return b
}

func (h *header) unmarshal(b []byte) error {
	if len(b) < FileHeaderSize {
		return fmt.Errorf("%w: file header", utils.ErrShortRead)
	}
	if m := utils.Order.Uint16(b); m != Magic {
		return fmt.Errorf("%w: 0x%04x", ErrMagic, m)
	}
	if v := utils.Order.Uint16(b[2:]); v != Version {
		return fmt.Errorf("%w: %d", ErrVersion, v)
	}
	h.Compression = Compression(b[4])
	h.Creator = b[5]
	h.NumBlocks = utils.Order.Uint32(b[8:])
	h.AppendixOffset = utils.Order.Uint64(b[12:])
	h.Created = utils.Order.Uint64(b[20:])
	id, err := ksuid.FromBytes(b[28:48])
	if err != nil {
		return err
	}
	h.ID = id
	return nil
}

// File is a container being written. Records go through Block(); Close
// writes the appendix and finalizes the header.
type File struct {
	path   string
	f      *os.File
	hdr    header
	codec  Codec
	block  *BlockBuffer
	logger *slog.Logger
	offset int64

	ident string
	stat  Stat
}

func OpenNewFile(path string, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	codec, err := GetCodec(opts.Compression)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	file := &File{
		path: path,
		f:    f,
		hdr: header{
			Compression: opts.Compression,
			Creator:     CreatorCollector,
			Created:     uint64(now.UnixMilli()),
			ID:          id,
		},
		codec:  codec,
		logger: logger,
	}
	if _, err := f.Write(file.hdr.marshal()); err != nil {
		_ = f.Close()
		return nil, &WriteError{path, err}
	}
	file.offset = FileHeaderSize

	var w BlockWriter = file
	if opts.WrapWriter != nil {
		w = opts.WrapWriter(w)
	}
	file.block = NewBlockBuffer(w, opts.BlockSize, logger)
	return file, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) ID() ksuid.KSUID {
	return f.hdr.ID
}

func (f *File) Compression() Compression {
	return f.hdr.Compression
}

// Block returns the buffer records are appended to.
func (f *File) Block() *BlockBuffer {
	return f.block
}

func (f *File) SetIdent(ident string) {
	f.ident = ident
}

func (f *File) Ident() string {
	return f.ident
}

// Stat returns the running statistics, updated in place by the caller.
func (f *File) Stat() *Stat {
	return &f.stat
}

// NumBlocks returns the number of blocks stored so far.
func (f *File) NumBlocks() uint32 {
	return f.hdr.NumBlocks
}

// WriteBlock stores a data block, compressed when the file's codec shrinks it.
func (f *File) WriteBlock(hdr BlockHeader, data []byte) (int, error) {
	if f.f == nil {
		return 0, &WriteError{f.path, ErrClosed}
	}
	payload := data
	if f.hdr.Compression != CompressionNone {
		compressed, err := f.codec.Compress(data)
		if err != nil {
			return 0, &WriteError{f.path, err}
		}
		if compressed != nil && len(compressed) < len(data) {
			payload = compressed
			hdr.Flags |= BlockFlagCompressed
		}
	}
	return f.writeRaw(hdr, payload)
}

func (f *File) writeRaw(hdr BlockHeader, payload []byte) (int, error) {
	b := make([]byte, diskBlockHeaderSize, diskBlockHeaderSize+len(payload))
	hdr.put(b)
	utils.Order.PutUint32(b[BlockHeaderSize:], uint32(len(payload)))
	utils.Order.PutUint64(b[BlockHeaderSize+4:], xxhash.Sum64(payload))
	b = append(b, payload...)

	n, err := f.f.WriteAt(b, f.offset)
	if err != nil {
		return n, &WriteError{f.path, err}
	}
	f.offset += int64(n)
	f.hdr.NumBlocks++
	return n, nil
}

// Flush writes the pending data block.
func (f *File) Flush() error {
	return f.block.Flush()
}

// Close flushes pending records, appends the appendix and finalizes the
// header. The file is closed even when one of these steps fails.
func (f *File) Close() error {
	if f.f == nil {
		return ErrClosed
	}
	var errs []error
	if err := f.block.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := f.writeAppendix(); err != nil {
		errs = append(errs, err)
	}
	if _, err := f.f.WriteAt(f.hdr.marshal(), 0); err != nil {
		errs = append(errs, &WriteError{f.path, err})
	}
	if err := f.f.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := f.f.Close(); err != nil {
		errs = append(errs, err)
	}
	f.f = nil
	return errors.Join(errs...)
}

func (f *File) writeAppendix() error {
	buf := &bytes.Buffer{}
	ident := f.ident
	if len(ident) > 0xffff-6 {
		ident = ident[:0xffff-6]
	}
	utils.WriteU16(buf, identRecordType)
	utils.WriteU16(buf, uint16(4+2+len(ident)))
	utils.WriteString(buf, ident)
	f.stat.marshal(buf)

	offset := f.offset
	hdr := BlockHeader{
		NumRecords: 2,
		Size:       uint32(buf.Len()),
		Type:       AppendixBlockType,
	}
	if _, err := f.writeRaw(hdr, buf.Bytes()); err != nil {
		return err
	}
	f.hdr.AppendixOffset = uint64(offset)
	return nil
}

// Reader reads a closed container block by block.
type Reader struct {
	f     *os.File
	hdr   header
	codec Codec
	ident string
	stat  Stat
}

func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{f: f}
	if err := r.init(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) init() error {
	b := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r.f, b); err != nil {
		return err
	}
	if err := r.hdr.unmarshal(b); err != nil {
		return err
	}
	codec, err := GetCodec(r.hdr.Compression)
	if err != nil {
		return err
	}
	r.codec = codec

	if r.hdr.AppendixOffset == 0 {
		return nil
	}
	if _, err := r.f.Seek(int64(r.hdr.AppendixOffset), io.SeekStart); err != nil {
		return err
	}
	hdr, data, err := r.readBlock()
	if err != nil {
		return fmt.Errorf("appendix: %w", err)
	}
	if hdr.Type == AppendixBlockType {
		if err := r.parseAppendix(data); err != nil {
			return fmt.Errorf("appendix: %w", err)
		}
	}
	_, err = r.f.Seek(FileHeaderSize, io.SeekStart)
	return err
}

func (r *Reader) parseAppendix(data []byte) error {
	cur := utils.NewCursor(data)
	for cur.Len() >= 4 {
		typ, err := cur.U16()
		if err != nil {
			return err
		}
		size, err := cur.U16()
		if err != nil {
			return err
		}
		if size < 4 {
			return fmt.Errorf("%w: appendix record size %d", utils.ErrShortRead, size)
		}
		body, err := cur.Next(int(size) - 4)
		if err != nil {
			return err
		}
		rc := utils.NewCursor(body)
		switch typ {
		case identRecordType:
			if r.ident, err = rc.String(); err != nil {
				return err
			}
		case statRecordType:
			if err := r.stat.unmarshal(rc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) ID() ksuid.KSUID {
	return r.hdr.ID
}

func (r *Reader) Created() time.Time {
	return time.UnixMilli(int64(r.hdr.Created))
}

func (r *Reader) Compression() Compression {
	return r.hdr.Compression
}

func (r *Reader) NumBlocks() uint32 {
	return r.hdr.NumBlocks
}

func (r *Reader) Ident() string {
	return r.ident
}

func (r *Reader) Stat() Stat {
	return r.stat
}

// ReadBlock returns the next data block, decompressed. It returns io.EOF
// after the last data block.
func (r *Reader) ReadBlock() (BlockHeader, []byte, error) {
	for {
		hdr, data, err := r.readBlock()
		if err != nil {
			return hdr, nil, err
		}
		if hdr.Type == AppendixBlockType {
			continue
		}
		return hdr, data, nil
	}
}

func (r *Reader) readBlock() (BlockHeader, []byte, error) {
	var hdr BlockHeader
	b := make([]byte, diskBlockHeaderSize)
	if _, err := io.ReadFull(r.f, b); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return hdr, nil, fmt.Errorf("%w: truncated block header", utils.ErrShortRead)
		}
		return hdr, nil, err
	}
	if err := hdr.UnmarshalBinary(b); err != nil {
		return hdr, nil, err
	}
	stored := utils.Order.Uint32(b[BlockHeaderSize:])
	sum := utils.Order.Uint64(b[BlockHeaderSize+4:])
	if stored > MaxBlockSize || hdr.Size > MaxBlockSize {
		return hdr, nil, fmt.Errorf("%w: stored %d, size %d", ErrBlockSize, stored, hdr.Size)
	}

	payload := make([]byte, stored)
	if _, err := io.ReadFull(r.f, payload); err != nil {
		return hdr, nil, fmt.Errorf("%w: truncated block of %d bytes", utils.ErrShortRead, stored)
	}
	if xxhash.Sum64(payload) != sum {
		return hdr, nil, ErrChecksum
	}
	if hdr.Flags&BlockFlagCompressed == 0 {
		return hdr, payload, nil
	}
	data, err := r.codec.Decompress(payload, int(hdr.Size))
	if err != nil {
		return hdr, nil, err
	}
	if len(data) != int(hdr.Size) {
		return hdr, nil, fmt.Errorf("block decompressed to %d bytes, header announces %d", len(data), hdr.Size)
	}
	return hdr, data, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}
