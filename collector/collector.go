// Package collector turns record streams from flow peers into rotated
// capture files, one per flow source.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/netsampler/nfcapd/metrics"
	"github.com/netsampler/nfcapd/nffile"
	"github.com/netsampler/nfcapd/utils"

	"github.com/prometheus/client_golang/prometheus"
)

var ErrClosed = fmt.Errorf("collector %w", utils.ErrDecoderClosed)

// Config configures a Collector.
type Config struct {
	Sources      *Sources
	Interval     time.Duration
	SubdirLayout int
	Compression  nffile.Compression
	BlockSize    int
	NSEL         bool
	ErrCnt       int
	ErrInt       time.Duration
	Logger       *slog.Logger
}

// Collector owns the output files of all flow sources. Process, Rotate and
// Close are serialized.
type Collector struct {
	lock sync.Mutex

	sources      *Sources
	interval     time.Duration
	subdirLayout int
	compression  nffile.Compression
	blockSize    int
	opts         *nfx.Options
	logger       *slog.Logger
	bm           *utils.BatchMute

	rec     nfx.Record
	tStart  time.Time
	started bool
	closed  bool
}

func New(cfg Config) (*Collector, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Sources == nil || (cfg.Sources.Len() == 0 && !cfg.Sources.Dynamic()) {
		return nil, errors.New("no flow source defined")
	}
	if cfg.Interval < 2*time.Second {
		return nil, fmt.Errorf("rotation interval %s too short", cfg.Interval)
	}
	if !ValidLayout(cfg.SubdirLayout) {
		return nil, fmt.Errorf("unknown subdirectory layout %d", cfg.SubdirLayout)
	}
	opts := metrics.PromDecoderOptions(nfx.Options{
		NSEL:   cfg.NSEL,
		Logger: cfg.Logger,
	})
	return &Collector{
		sources:      cfg.Sources,
		interval:     cfg.Interval,
		subdirLayout: cfg.SubdirLayout,
		compression:  cfg.Compression,
		blockSize:    cfg.BlockSize,
		opts:         opts,
		logger:       cfg.Logger,
		bm:           utils.NewBatchMute(cfg.ErrInt, cfg.ErrCnt),
	}, nil
}

func (c *Collector) Interval() time.Duration {
	return c.interval
}

// Start opens the current file of every defined source. tStart is the
// beginning of the first slot.
func (c *Collector) Start(tStart time.Time) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.started {
		return errors.New("collector already started")
	}
	for _, fs := range c.sources.List() {
		if err := c.openSource(fs); err != nil {
			return err
		}
	}
	c.tStart = tStart
	c.started = true
	c.logger.Info("startup collector",
		slog.Int("sources", c.sources.Len()),
		slog.Time("slot", tStart),
		slog.Duration("interval", c.interval))
	return nil
}

func (c *Collector) openSource(fs *FlowSource) error {
	f, err := nffile.OpenNewFile(fs.Current, &nffile.Options{
		Compression: c.compression,
		BlockSize:   c.blockSize,
		Logger:      c.logger.With(slog.String("ident", fs.Ident)),
		WrapWriter: func(w nffile.BlockWriter) nffile.BlockWriter {
			return metrics.WrapPromBlockWriter(w, fs.Ident)
		},
	})
	if err != nil {
		return &SourceError{fs.Ident, err}
	}
	f.SetIdent(fs.Ident)
	fs.File = f
	fs.BadPackets = 0
	return nil
}

// reopenSource opens the current file of a source whose previous open failed
// and writes its standing records.
func (c *Collector) reopenSource(fs *FlowSource) error {
	if err := c.openSource(fs); err != nil {
		return err
	}
	c.logger.Info("reopened source", slog.String("ident", fs.Ident))
	if err := fs.Exporters.FlushStandingRecords(fs.File.Block()); err != nil {
		return &SourceError{fs.Ident, fmt.Errorf("standing records: %w", err)}
	}
	return nil
}

// Decode adapts Process to utils.DecoderFunc.
func (c *Collector) Decode(msg *utils.Message) error {
	return c.Process(msg.Peer, msg.Payload)
}

// Process stores a chunk of records received from peer. A fatal decoding
// error abandons the rest of the chunk and is returned.
func (c *Collector) Process(peer netip.Addr, data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.started || c.closed {
		return ErrClosed
	}

	fs, created, err := c.sources.GetFlowSource(peer)
	if err != nil {
		c.mutedWarn("no flow source for peer", slog.String("peer", peer.String()))
		return err
	}
	if created {
		if err := c.openSource(fs); err != nil {
			c.sources.remove(fs)
			return err
		}
		metrics.MetricExporters.With(prometheus.Labels{"ident": fs.Ident}).Set(0)
	} else if fs.File == nil {
		if err := c.reopenSource(fs); err != nil {
			return err
		}
	}
	metrics.MetricInputBytes.With(prometheus.Labels{"ident": fs.Ident}).Add(float64(len(data)))

	seen := make(map[*Exporter]struct{})
	for len(data) > 0 {
		typ, size, err := nfx.RecordHeader(data)
		if err == nil && (size < 4 || int(size) > len(data)) {
			err = &nfx.DecoderError{Decoder: "Chunk", Err: fmt.Errorf("%w: record size %d, %d bytes left", nfx.ErrCursorOverrun, size, len(data))}
		}
		if err != nil {
			c.badPacket(fs, err)
			return err
		}
		if err := c.processRecord(fs, typ, data[:size], seen); err != nil {
			if nfx.IsFatal(err) {
				c.badPacket(fs, err)
				return err
			}
			c.mutedWarn("record skipped",
				slog.String("ident", fs.Ident),
				slog.String("error", err.Error()))
		}
		data = data[size:]
	}
	for e := range seen {
		e.Packets++
	}
	return nil
}

func (c *Collector) badPacket(fs *FlowSource, err error) {
	fs.BadPackets++
	metrics.MetricBadPackets.With(prometheus.Labels{"ident": fs.Ident}).Inc()
	c.mutedWarn("bad packet",
		slog.String("ident", fs.Ident),
		slog.String("error", err.Error()))
}

func (c *Collector) mutedWarn(msg string, attrs ...any) {
	c.bm.Log(c.logger, slog.LevelWarn, "collector messages", msg, attrs...)
}

func recordTypeName(typ uint16) string {
	switch typ {
	case nfx.V3Record:
		return "v3record"
	case nfx.ExporterInfoRecordType:
		return "exporter_info"
	case nfx.ExporterStatRecordType:
		return "exporter_stat"
	case nfx.SamplerInfoRecordType:
		return "sampler_info"
	default:
		return "unknown"
	}
}

func (c *Collector) processRecord(fs *FlowSource, typ uint16, data []byte, seen map[*Exporter]struct{}) error {
	metrics.MetricInputRecords.With(prometheus.Labels{"ident": fs.Ident, "type": recordTypeName(typ)}).Inc()

	block := fs.File.Block()
	switch typ {
	case nfx.V3Record:
		return c.processFlow(fs, data, seen)

	case nfx.ExporterInfoRecordType:
		var info nfx.ExporterInfoRecord
		if err := info.UnmarshalBinary(data); err != nil {
			return err
		}
		peerSysID := info.SysID
		e := fs.Exporters.Lookup(info.Version, info.ID, info.IP)
		if e == nil {
			e = fs.Exporters.Add(info)
			if err := fs.Exporters.FlushExporterInfo(e, block); err != nil {
				if !errors.Is(err, ErrTooManyExporters) {
					return err
				}
			}
			metrics.MetricExporters.With(prometheus.Labels{"ident": fs.Ident}).Set(float64(fs.ExporterCount()))
			metrics.MetricSysIDs.Set(float64(c.sources.ids.Assigned()))
			c.logger.Info("new exporter",
				slog.String("ident", fs.Ident),
				slog.Int("sysid", int(e.Info.SysID)),
				slog.String("exporter", e.Info.String()))
		}
		fs.sysids[peerSysID] = e.Info.SysID
		return nil

	case nfx.SamplerInfoRecordType:
		var info nfx.SamplerInfoRecord
		if err := info.UnmarshalBinary(data); err != nil {
			return err
		}
		e := fs.Exporters.BySysID(fs.sysids[info.ExporterSysID])
		if e == nil {
			return fmt.Errorf("sampler %d for unknown exporter %d", info.ID, info.ExporterSysID)
		}
		_, err := fs.Exporters.AddSampler(e, info, block)
		return err

	case nfx.ExporterStatRecordType:
		var stat nfx.ExporterStatRecord
		if err := stat.UnmarshalBinary(data); err != nil {
			return err
		}
		for _, s := range stat.Stats {
			if s.SysID > MaxSysID {
				continue
			}
			if e := fs.Exporters.BySysID(fs.sysids[uint16(s.SysID)]); e != nil {
				e.SequenceFailure += s.SequenceFailure
				fs.File.Stat().SequenceFailure += uint64(s.SequenceFailure)
			}
		}
		return nil

	default:
		return fmt.Errorf("unexpected record type %d", typ)
	}
}

func (c *Collector) processFlow(fs *FlowSource, data []byte, seen map[*Exporter]struct{}) error {
	rec := &c.rec
	if err := metrics.PromDecodeRecord(data, rec, c.opts, fs.Ident); err != nil {
		return err
	}

	var e *Exporter
	if local, ok := fs.sysids[rec.ExporterSysID]; ok {
		rec.ExporterSysID = local
		e = fs.Exporters.BySysID(local)
	} else {
		rec.ExporterSysID = 0
	}
	if e != nil {
		e.Flows += rec.AggrFlows
		seen[e] = struct{}{}
	}

	stat := fs.File.Stat()
	stat.NumFlows += rec.AggrFlows
	stat.NumPackets += rec.InPackets
	stat.NumBytes += rec.InBytes
	stat.Seen(rec.MsecFirst, rec.MsecLast)

	labels := prometheus.Labels{"ident": fs.Ident}
	metrics.MetricFlows.With(labels).Add(float64(rec.AggrFlows))
	metrics.MetricPackets.With(labels).Add(float64(rec.InPackets))
	metrics.MetricBytes.With(labels).Add(float64(rec.InBytes))

	rec.Size = uint16(rec.ComputeSize(c.opts))
	_, err := nfx.PackRecord(rec, fs.File.Block(), c.opts)
	return err
}

// Rotate closes the current file of every source, renames it after the
// slot starting at tStart and, unless done, opens the next one.
func (c *Collector) Rotate(tStart time.Time, done bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rotate(tStart, done)
}

func (c *Collector) rotate(tStart time.Time, done bool) error {
	if !c.started || c.closed {
		return ErrClosed
	}
	sw := metrics.StartStopwatch()

	var errs []error
	for _, fs := range c.sources.List() {
		if fs.File == nil {
			continue
		}
		if err := c.rotateSource(fs, tStart, done); err != nil {
			metrics.MetricRotationErrors.With(prometheus.Labels{"ident": fs.Ident}).Inc()
			errs = append(errs, &SourceError{fs.Ident, err})
		}
	}
	if done {
		c.closed = true
	} else {
		c.tStart = tStart.Add(c.interval)
	}
	sw.Observe(metrics.MetricRotationTime)
	return errors.Join(errs...)
}

func (c *Collector) rotateSource(fs *FlowSource, tStart time.Time, done bool) error {
	f := fs.File
	path := rotatedPath(fs, c.subdirLayout, tStart, c.interval, c.logger)

	stat := f.Stat()
	if stat.LastSeen == 0 {
		stat.FirstSeen = uint64(tStart.UnixMilli())
		stat.LastSeen = uint64(tStart.Add(c.interval).UnixMilli())
	}

	var errs []error
	if err := fs.Exporters.FlushExporterStats(f.Block()); err != nil {
		errs = append(errs, fmt.Errorf("exporter stats: %w", err))
	}
	blocks := f.Block().Blocks()
	if err := f.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := renameFile(fs.Current, path, c.logger); err != nil {
		c.logger.Error("can't rename dump file",
			slog.String("ident", fs.Ident),
			slog.String("error", err.Error()))
		errs = append(errs, err)
	} else {
		metrics.MetricRotations.With(prometheus.Labels{"ident": fs.Ident}).Inc()
	}

	c.logger.Info("rotated",
		slog.String("ident", fs.Ident),
		slog.String("file", path),
		slog.Uint64("flows", stat.NumFlows),
		slog.Uint64("packets", stat.NumPackets),
		slog.Uint64("bytes", stat.NumBytes),
		slog.Uint64("sequence_errors", stat.SequenceFailure),
		slog.Uint64("bad_packets", fs.BadPackets),
		slog.Uint64("blocks", uint64(blocks)))

	fs.File = nil
	if done {
		return errors.Join(errs...)
	}
	if err := c.openSource(fs); err != nil {
		c.logger.Error("killed due to fatal error", slog.String("ident", fs.Ident))
		return errors.Join(append(errs, err)...)
	}
	if err := fs.Exporters.FlushStandingRecords(fs.File.Block()); err != nil {
		errs = append(errs, fmt.Errorf("standing records: %w", err))
	}
	return errors.Join(errs...)
}

// RotateLoop rotates at the end of every slot until ctx is done.
func (c *Collector) RotateLoop(ctx context.Context) error {
	for {
		c.lock.Lock()
		slot := c.tStart
		closed := c.closed
		c.lock.Unlock()
		if closed {
			return nil
		}

		wait := time.Until(slot.Add(c.interval).Add(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if err := c.Rotate(slot, false); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			c.logger.Error("rotation failed", slog.String("error", err.Error()))
		}
	}
}

// Close performs the final rotation of the current slot.
func (c *Collector) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil
	}
	if !c.started {
		c.closed = true
		return nil
	}
	return c.rotate(c.tStart, true)
}

// ExporterStatus is the JSON view of an exporter.
type ExporterStatus struct {
	SysID    uint16 `json:"sysid"`
	Version  uint32 `json:"version"`
	ID       uint32 `json:"id"`
	IP       string `json:"ip"`
	Packets  uint64 `json:"packets"`
	Flows    uint64 `json:"flows"`
	Samplers int    `json:"samplers"`
}

// SourceStatus is the JSON view of a flow source.
type SourceStatus struct {
	Ident      string           `json:"ident"`
	Addr       string           `json:"addr,omitempty"`
	AnySource  bool             `json:"any_source"`
	Dynamic    bool             `json:"dynamic"`
	DataDir    string           `json:"datadir"`
	Current    string           `json:"current"`
	FileID     string           `json:"file_id,omitempty"`
	Stat       nffile.Stat      `json:"stat"`
	BadPackets uint64           `json:"bad_packets"`
	Exporters  []ExporterStatus `json:"exporters"`
}

// Status returns a consistent snapshot of all sources.
func (c *Collector) Status() []SourceStatus {
	c.lock.Lock()
	defer c.lock.Unlock()

	ret := make([]SourceStatus, 0, c.sources.Len())
	for _, fs := range c.sources.List() {
		st := SourceStatus{
			Ident:      fs.Ident,
			AnySource:  fs.AnySource,
			Dynamic:    fs.Dynamic,
			DataDir:    fs.DataDir,
			Current:    fs.Current,
			BadPackets: fs.BadPackets,
			Exporters:  []ExporterStatus{},
		}
		if addr := fs.Addr(); addr.IsValid() {
			st.Addr = addr.String()
		}
		if fs.File != nil {
			st.FileID = fs.File.ID().String()
			st.Stat = *fs.File.Stat()
		}
		for _, e := range fs.Exporters.List() {
			st.Exporters = append(st.Exporters, ExporterStatus{
				SysID:    e.Info.SysID,
				Version:  e.Info.Version,
				ID:       e.Info.ID,
				IP:       e.Info.IP.Addr(e.Info.Family == nfx.FamilyIPv6).String(),
				Packets:  e.Packets,
				Flows:    e.Flows,
				Samplers: len(e.Samplers),
			})
		}
		ret = append(ret, st)
	}
	return ret
}
