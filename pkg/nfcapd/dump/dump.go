// Package dump reads collector files back and hands every flow record to a
// format and transport pair.
package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/netsampler/nfcapd/format"
	"github.com/netsampler/nfcapd/format/common"
	"github.com/netsampler/nfcapd/nffile"
	"github.com/netsampler/nfcapd/transport"
)

// ErrLimit stops a dump once the requested number of flows was sent.
var ErrLimit = errors.New("flow limit reached")

type Options struct {
	Logger *slog.Logger
	NSEL   bool
	// Limit stops after this many flows over all files; 0 dumps everything.
	Limit uint64
	// Exporters logs exporter and sampler records found in the files.
	Exporters bool
}

// Summary counts what a dump went through.
type Summary struct {
	Files   int    `json:"files"`
	Blocks  uint64 `json:"blocks"`
	Records uint64 `json:"records"`
	Flows   uint64 `json:"flows"`
	Skipped uint64 `json:"skipped"`

	Stat nffile.Stat `json:"stat"`
}

type Dumper struct {
	formatter format.FormatInterface
	transport transport.TransportInterface
	opts      *Options
	logger    *slog.Logger
	nfxOpts   *nfx.Options

	header  bool
	summary Summary
}

func NewDumper(f format.FormatInterface, t transport.TransportInterface, opts *Options) *Dumper {
	if opts == nil {
		opts = &Options{NSEL: true}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dumper{
		formatter: f,
		transport: t,
		opts:      opts,
		logger:    logger,
		nfxOpts:   &nfx.Options{NSEL: opts.NSEL, Logger: logger},
	}
}

func (d *Dumper) Summary() Summary {
	return d.summary
}

// Dump sends every flow of the file at path. It returns ErrLimit once
// Options.Limit flows have been sent.
func (d *Dumper) Dump(ctx context.Context, path string) error {
	r, err := nffile.OpenFile(path)
	if err != nil {
		return err
	}
	defer r.Close()

	d.summary.Files++
	stat := r.Stat()
	d.summary.Stat.NumFlows += stat.NumFlows
	d.summary.Stat.NumPackets += stat.NumPackets
	d.summary.Stat.NumBytes += stat.NumBytes
	d.summary.Stat.SequenceFailure += stat.SequenceFailure
	d.summary.Stat.Seen(stat.FirstSeen, stat.LastSeen)

	d.logger.Debug("dumping file",
		slog.String("path", path),
		slog.String("ident", r.Ident()),
		slog.String("id", r.ID().String()),
		slog.String("compression", r.Compression().String()),
		slog.Int("blocks", int(r.NumBlocks())))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, data, err := r.ReadBlock()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("%s: block %d: %w", path, d.summary.Blocks, err)
		}
		d.summary.Blocks++
		if err := d.block(hdr, data); err != nil {
			return err
		}
	}
}

func (d *Dumper) block(hdr nffile.BlockHeader, data []byte) error {
	for n := uint32(0); len(data) > 0; n++ {
		typ, size, err := nfx.RecordHeader(data)
		if err != nil {
			return err
		}
		if size < 4 || int(size) > len(data) {
			return fmt.Errorf("record %d of %d: bad size %d", n, hdr.NumRecords, size)
		}
		record := data[:size]
		data = data[size:]
		d.summary.Records++

		if err := d.record(typ, record); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dumper) record(typ uint16, data []byte) error {
	switch typ {
	case nfx.V3Record:
		rec := &nfx.Record{}
		if err := nfx.DecodeRecord(data, rec, d.nfxOpts); err != nil {
			if nfx.IsFatal(err) {
				return err
			}
			d.logger.Warn("skipping record", slog.String("error", err.Error()))
			d.summary.Skipped++
			return nil
		}
		return d.send(common.NewFlowMessage(rec, d.nfxOpts))
	case nfx.ExporterInfoRecordType:
		if d.opts.Exporters {
			info := &nfx.ExporterInfoRecord{}
			if err := info.UnmarshalBinary(data); err != nil {
				return err
			}
			d.logger.Info(info.String())
		}
	case nfx.SamplerInfoRecordType:
		if d.opts.Exporters {
			info := &nfx.SamplerInfoRecord{}
			if err := info.UnmarshalBinary(data); err != nil {
				return err
			}
			d.logger.Info(info.String())
		}
	case nfx.ExporterStatRecordType:
	default:
		d.summary.Skipped++
		d.logger.Debug("skipping record", slog.Int("type", int(typ)))
	}
	return nil
}

func (d *Dumper) send(msg *common.FlowMessage) error {
	if !d.header {
		d.header = true
		if h, ok := d.formatter.(format.Header); ok {
			b, err := h.Header(msg)
			if err != nil {
				return err
			}
			if b != nil {
				if err := d.transport.Send(nil, b); err != nil {
					return err
				}
			}
		}
	}

	key, data, err := d.formatter.Format(msg)
	if err != nil {
		return err
	}
	if err := d.transport.Send(key, data); err != nil {
		return err
	}
	d.summary.Flows++
	if d.opts.Limit > 0 && d.summary.Flows >= d.opts.Limit {
		return ErrLimit
	}
	return nil
}

// Dump sends the flows of every file in paths, in order.
func Dump(ctx context.Context, paths []string, f format.FormatInterface, t transport.TransportInterface, opts *Options) (Summary, error) {
	d := NewDumper(f, t, opts)
	for _, path := range paths {
		if err := d.Dump(ctx, path); errors.Is(err, ErrLimit) {
			break
		} else if err != nil {
			return d.Summary(), err
		}
	}
	return d.Summary(), nil
}
