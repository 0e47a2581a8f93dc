package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/netsampler/nfcapd/decoders/nfx"
)

const MaxSysID = 0xffff

var ErrTooManyExporters = errors.New("too many exporters")

// SysIDAllocator hands out exporter system ids shared by all flow sources.
type SysIDAllocator struct {
	last   atomic.Uint32
	logger *slog.Logger
}

func NewSysIDAllocator(logger *slog.Logger) *SysIDAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SysIDAllocator{logger: logger}
}

// Assign returns the next id in 1..65535. Once exhausted it returns 0 and
// ErrTooManyExporters; records of such exporters carry no reference.
func (a *SysIDAllocator) Assign() (uint16, error) {
	for {
		last := a.last.Load()
		if last >= MaxSysID {
			a.logger.Error("too many exporters, flow records collected without reference to exporter",
				slog.Int("max", MaxSysID))
			return 0, fmt.Errorf("%w: id > %d", ErrTooManyExporters, MaxSysID)
		}
		if a.last.CompareAndSwap(last, last+1) {
			return uint16(last + 1), nil
		}
	}
}

// Assigned returns the number of ids handed out.
func (a *SysIDAllocator) Assigned() uint32 {
	return a.last.Load()
}

type Sampler struct {
	Info nfx.SamplerInfoRecord
}

type Exporter struct {
	Info nfx.ExporterInfoRecord

	Packets         uint64
	Flows           uint64
	SequenceFailure uint32
	PaddingErrors   uint32

	Samplers []*Sampler
}

func (e *Exporter) Sampler(id int32) *Sampler {
	for _, s := range e.Samplers {
		if s.Info.ID == id {
			return s
		}
	}
	return nil
}

func (e *Exporter) resetCounters() {
	e.SequenceFailure = 0
	e.PaddingErrors = 0
	e.Packets = 0
	e.Flows = 0
}

// Exporters is the exporter and sampler registry of one flow source.
type Exporters struct {
	ids    *SysIDAllocator
	list   []*Exporter
	count  uint32
	logger *slog.Logger
}

func NewExporters(ids *SysIDAllocator, logger *slog.Logger) *Exporters {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporters{
		ids:    ids,
		logger: logger,
	}
}

// Count returns the number of exporters whose info record was flushed.
func (x *Exporters) Count() uint32 {
	return x.count
}

func (x *Exporters) List() []*Exporter {
	return x.list
}

// Lookup finds an exporter by its identity on the network.
func (x *Exporters) Lookup(version, id uint32, ip nfx.IPAddr) *Exporter {
	for _, e := range x.list {
		if e.Info.Version == version && e.Info.ID == id && e.Info.IP == ip {
			return e
		}
	}
	return nil
}

func (x *Exporters) BySysID(sysid uint16) *Exporter {
	if sysid == 0 {
		return nil
	}
	for _, e := range x.list {
		if e.Info.SysID == sysid {
			return e
		}
	}
	return nil
}

// Add registers a new exporter. Its info record is written by FlushExporterInfo.
func (x *Exporters) Add(info nfx.ExporterInfoRecord) *Exporter {
	e := &Exporter{Info: info}
	e.Info.SysID = 0
	x.list = append(x.list, e)
	return e
}

// FlushExporterInfo assigns the exporter its system id and appends its info
// record to dst. An exhausted id space is reported after the record was
// written with id 0.
func (x *Exporters) FlushExporterInfo(e *Exporter, dst nfx.Appender) error {
	sysid, idErr := x.ids.Assign()
	e.Info.SysID = sysid
	x.count++

	if err := appendRecord(dst, &e.Info); err != nil {
		return err
	}
	x.logger.Debug("flush exporter",
		slog.Int("sysid", int(sysid)),
		slog.String("ip", e.Info.IP.Addr(e.Info.Family == nfx.FamilyIPv6).String()),
		slog.Int("version", int(e.Info.Version)),
		slog.Int("id", int(e.Info.ID)))
	return idErr
}

// AddSampler registers or updates a sampler of e and appends its info
// record when it is new or changed.
func (x *Exporters) AddSampler(e *Exporter, info nfx.SamplerInfoRecord, dst nfx.Appender) (*Sampler, error) {
	info.ExporterSysID = e.Info.SysID
	s := e.Sampler(info.ID)
	if s != nil && s.Info == info {
		return s, nil
	}
	if s == nil {
		s = &Sampler{}
		e.Samplers = append(e.Samplers, s)
	}
	s.Info = info
	return s, appendRecord(dst, &s.Info)
}

// FlushStandingRecords re-appends every exporter and sampler info record,
// as required at the start of each new file.
func (x *Exporters) FlushStandingRecords(dst nfx.Appender) error {
	for _, e := range x.list {
		if err := appendRecord(dst, &e.Info); err != nil {
			return err
		}
		for _, s := range e.Samplers {
			if err := appendRecord(dst, &s.Info); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushExporterStats appends one stat slot per counted exporter and resets
// the counters of the exporters written. Nothing is written for an idle
// source, and counters survive a failed append.
func (x *Exporters) FlushExporterStats(dst nfx.Appender) error {
	if x.count == 0 {
		return nil
	}
	n := int(x.count)
	if n != len(x.list) {
		x.logger.Error("exporter stats count mismatch",
			slog.Int("expected", n),
			slog.Int("found", len(x.list)))
		n = min(n, len(x.list))
	}
	rec := &nfx.ExporterStatRecord{
		Stats: make([]nfx.ExporterStat, n),
	}
	for i, e := range x.list[:n] {
		rec.Stats[i] = nfx.ExporterStat{
			SysID:           uint32(e.Info.SysID),
			SequenceFailure: e.SequenceFailure,
			Packets:         e.Packets,
			Flows:           e.Flows,
		}
	}
	if err := appendRecord(dst, rec); err != nil {
		return err
	}
	for _, e := range x.list[:n] {
		e.resetCounters()
	}
	return nil
}

type binaryRecord interface {
	MarshalBinary() ([]byte, error)
}

func appendRecord(dst nfx.Appender, rec binaryRecord) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	if err := dst.EnsureSpace(len(data)); err != nil {
		return err
	}
	return dst.Append(data)
}
