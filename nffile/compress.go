package nffile

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
	CompressionS2
)

var ErrCompression = errors.New("unsupported compression")

var compressionNames = map[Compression]string{
	CompressionNone: "none",
	CompressionLZ4:  "lz4",
	CompressionZstd: "zstd",
	CompressionS2:   "s2",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression accepts a compression name, case insensitive. The empty
// string selects no compression.
func ParseCompression(name string) (Compression, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CompressionNone, nil
	}
	for c, n := range compressionNames {
		if n == name {
			return c, nil
		}
	}
	return CompressionNone, fmt.Errorf("%w: %s", ErrCompression, name)
}

func (c *Compression) UnmarshalText(text []byte) error {
	v, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Codec compresses whole blocks. Decompress receives the uncompressed size
// recorded in the block header.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, size int) ([]byte, error)
}

func GetCodec(c Compression) (Codec, error) {
	switch c {
	case CompressionNone:
		return noopCodec{}, nil
	case CompressionLZ4:
		return lz4Codec{}, nil
	case CompressionZstd:
		return zstdCodec{}, nil
	case CompressionS2:
		return s2Codec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrCompression, c)
	}
}

type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noopCodec) Decompress(data []byte, _ int) ([]byte, error) {
	return data, nil
}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

type lz4Codec struct{}

// Compress returns nil when the block does not compress.
func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return dst[:n], nil
}

func (lz4Codec) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return encoder
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(MaxBlockSize),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return decoder
	},
}

type zstdCodec struct{}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)
	return encoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	out, err := decoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

type s2Codec struct{}

func (s2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Encode(nil, data), nil
}

func (s2Codec) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("s2: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: s2 block decodes to %d bytes, header announces %d", ErrBlockSize, n, size)
	}
	return s2.Decode(make([]byte, size), data)
}
