package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRecordPipe(t *testing.T) {
	peer := netip.MustParseAddr("192.0.2.1")
	var got []*Message
	pipe := NewRecordPipe(&PipeConfig{
		Decoder: func(msg *Message) error {
			cp := *msg
			cp.Payload = append([]byte{}, msg.Payload...)
			got = append(got, &cp)
			if msg.Payload[0] == 9 {
				return errors.New("bad record")
			}
			return nil
		},
		Logger: quietLogger,
		ErrCnt: 10,
		ErrInt: time.Second,
	})

	stream := append(record(11, 1), record(9)...)
	stream = append(stream, record(7, 2, 3)...)
	require.NoError(t, pipe.Run(context.Background(), bytes.NewReader(stream), peer))

	require.Len(t, got, 3)
	assert.Equal(t, peer, got[0].Peer)
	assert.Equal(t, record(7, 2, 3), got[2].Payload)
	assert.Equal(t, uint64(3), pipe.Messages())
	assert.Equal(t, uint64(1), pipe.Errors())
}

func TestRecordPipeDecoderClosed(t *testing.T) {
	calls := 0
	pipe := NewRecordPipe(&PipeConfig{
		Decoder: func(msg *Message) error {
			calls++
			return ErrDecoderClosed
		},
		Logger: quietLogger,
	})
	stream := append(record(11, 1), record(11, 2)...)
	err := pipe.Run(context.Background(), bytes.NewReader(stream), netip.Addr{})
	assert.ErrorIs(t, err, ErrDecoderClosed)
	assert.Equal(t, 1, calls)
}

func TestRecordPipeTruncated(t *testing.T) {
	pipe := NewRecordPipe(&PipeConfig{
		Decoder: func(msg *Message) error { return nil },
		Logger:  quietLogger,
	})
	stream := record(11, 1, 2, 3)
	err := pipe.Run(context.Background(), bytes.NewReader(stream[:5]), netip.Addr{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRecordPipeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	pipe := NewRecordPipe(&PipeConfig{
		Decoder: func(msg *Message) error {
			calls++
			return nil
		},
	})
	require.NoError(t, pipe.Run(ctx, bytes.NewReader(record(11, 1)), netip.Addr{}))
	assert.Zero(t, calls)
}
