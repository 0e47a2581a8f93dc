// Package utils provides record stream plumbing shared by the commands.
package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"
)

// ErrDecoderClosed is returned by a decoder that no longer accepts messages.
var ErrDecoderClosed = errors.New("closed")

// PipeMessageError wraps a decoding error with its message metadata.
type PipeMessageError struct {
	Message *Message
	Err     error
}

func (e *PipeMessageError) Error() string {
	return fmt.Sprintf("message from %s %s", e.Message.Peer.String(), e.Err.Error())
}

func (e *PipeMessageError) Unwrap() error {
	return e.Err
}

// PipeConfig wires a decoder to a record pipe.
type PipeConfig struct {
	Decoder DecoderFunc
	Logger  *slog.Logger
	ErrCnt  int
	ErrInt  time.Duration
}

// RecordPipe feeds a record stream to a decoder, one record per message.
type RecordPipe struct {
	decode DecoderFunc
	logger *slog.Logger
	bm     *BatchMute

	messages uint64
	errors   uint64
}

func NewRecordPipe(cfg *PipeConfig) *RecordPipe {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordPipe{
		decode: cfg.Decoder,
		logger: logger,
		bm:     NewBatchMute(cfg.ErrInt, cfg.ErrCnt),
	}
}

// Messages returns the number of messages handed to the decoder.
func (p *RecordPipe) Messages() uint64 {
	return p.messages
}

// Errors returns the number of messages the decoder rejected.
func (p *RecordPipe) Errors() uint64 {
	return p.errors
}

// Run reads r until it is exhausted, ctx is done or the decoder closes.
// Decoding errors are logged and do not stop the stream.
func (p *RecordPipe) Run(ctx context.Context, r io.Reader, peer netip.Addr) error {
	rr := NewRecordReader(r)
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("reading records at offset %d: %w", rr.Offset(), err)
		}

		msg := &Message{
			Peer:     peer,
			Payload:  data,
			Received: time.Now().UTC(),
		}
		p.messages++
		if err := p.decode(msg); err != nil {
			if errors.Is(err, ErrDecoderClosed) {
				return err
			}
			p.errors++
			p.logError(&PipeMessageError{msg, err})
		}
	}
}

func (p *RecordPipe) logError(err error) {
	p.bm.Log(p.logger, slog.LevelError, "decoding errors", "error decoding records", slog.String("error", err.Error()))
}
