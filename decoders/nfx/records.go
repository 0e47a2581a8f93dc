package nfx

import (
	"bytes"
	"fmt"

	"github.com/netsampler/nfcapd/decoders/utils"
)

const (
	ExporterInfoRecordSize = 32
	SamplerInfoRecordSize  = 16
	exporterStatHeaderSize = 8
	exporterStatSlotSize   = 24
)

// ExporterInfoRecord announces an exporter and the system id records refer to.
type ExporterInfoRecord struct {
	Version uint32
	IP      IPAddr
	Family  uint16
	SysID   uint16
	ID      uint32
}

func (r *ExporterInfoRecord) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, ExporterInfoRecordSize))
	w := &elementWriter{buf: buf}
	w.u16(ExporterInfoRecordType)
	w.u16(ExporterInfoRecordSize)
	w.u32(r.Version)
	w.ip6(r.IP)
	w.u16(r.Family)
	w.u16(r.SysID)
	w.u32(r.ID)
	return buf.Bytes(), w.err
}

func (r *ExporterInfoRecord) UnmarshalBinary(data []byte) error {
	cur, err := recordCursor(data, ExporterInfoRecordType, "ExporterInfo")
	if err != nil {
		return err
	}
	if cur.Len() < ExporterInfoRecordSize-4 {
		return &DecoderError{"ExporterInfo", fmt.Errorf("%w: %d bytes", ErrRecordTooSmall, cur.Len()+4)}
	}
	r.Version, _ = cur.U32()
	hi, _ := cur.U64()
	lo, _ := cur.U64()
	r.IP = IPv6Addr(hi, lo)
	r.Family, _ = cur.U16()
	r.SysID, _ = cur.U16()
	r.ID, _ = cur.U32()
	return nil
}

// ExporterStat is one exporter's counters since the last stats flush.
type ExporterStat struct {
	SysID           uint32
	SequenceFailure uint32
	Packets         uint64
	Flows           uint64
}

type ExporterStatRecord struct {
	Stats []ExporterStat
}

func (r *ExporterStatRecord) Size() int {
	return exporterStatHeaderSize + exporterStatSlotSize*len(r.Stats)
}

func (r *ExporterStatRecord) MarshalBinary() ([]byte, error) {
	size := r.Size()
	if size > 0xffff {
		return nil, fmt.Errorf("%w: %d stat slots", ErrRecordOversize, len(r.Stats))
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	w := &elementWriter{buf: buf}
	w.u16(ExporterStatRecordType)
	w.u16(uint16(size))
	w.u32(uint32(len(r.Stats)))
	for _, s := range r.Stats {
		w.u32(s.SysID)
		w.u32(s.SequenceFailure)
		w.u64(s.Packets)
		w.u64(s.Flows)
	}
	return buf.Bytes(), w.err
}

func (r *ExporterStatRecord) UnmarshalBinary(data []byte) error {
	cur, err := recordCursor(data, ExporterStatRecordType, "ExporterStat")
	if err != nil {
		return err
	}
	count, err := cur.U32()
	if err != nil {
		return &DecoderError{"ExporterStat", err}
	}
	if cur.Len() < int(count)*exporterStatSlotSize {
		return &DecoderError{"ExporterStat", fmt.Errorf("%w: %d slots in %d bytes", ErrSizeMismatch, count, cur.Len())}
	}
	r.Stats = make([]ExporterStat, count)
	for i := range r.Stats {
		s := &r.Stats[i]
		s.SysID, _ = cur.U32()
		s.SequenceFailure, _ = cur.U32()
		s.Packets, _ = cur.U64()
		s.Flows, _ = cur.U64()
	}
	return nil
}

// SamplerInfoRecord announces a sampler of the exporter with ExporterSysID.
type SamplerInfoRecord struct {
	ID            int32
	Interval      uint32
	Mode          uint16
	ExporterSysID uint16
}

func (r *SamplerInfoRecord) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, SamplerInfoRecordSize))
	w := &elementWriter{buf: buf}
	w.u16(SamplerInfoRecordType)
	w.u16(SamplerInfoRecordSize)
	w.u32(uint32(r.ID))
	w.u32(r.Interval)
	w.u16(r.Mode)
	w.u16(r.ExporterSysID)
	return buf.Bytes(), w.err
}

func (r *SamplerInfoRecord) UnmarshalBinary(data []byte) error {
	cur, err := recordCursor(data, SamplerInfoRecordType, "SamplerInfo")
	if err != nil {
		return err
	}
	if cur.Len() < SamplerInfoRecordSize-4 {
		return &DecoderError{"SamplerInfo", fmt.Errorf("%w: %d bytes", ErrRecordTooSmall, cur.Len()+4)}
	}
	id, _ := cur.U32()
	r.ID = int32(id)
	r.Interval, _ = cur.U32()
	r.Mode, _ = cur.U16()
	r.ExporterSysID, _ = cur.U16()
	return nil
}

// recordCursor validates the common header and returns a cursor positioned
// after it, bounded by the announced size.
func recordCursor(data []byte, want uint16, name string) (*utils.Cursor, error) {
	typ, size, err := RecordHeader(data)
	if err != nil {
		return nil, err
	}
	if typ != want {
		return nil, &DecoderError{name, fmt.Errorf("%w: %d", ErrRecordType, typ)}
	}
	if size < 4 || int(size) > len(data) {
		return nil, &DecoderError{name, fmt.Errorf("%w: announced size %d, have %d bytes", ErrCursorOverrun, size, len(data))}
	}
	cur := utils.NewCursor(data[4:size])
	return cur, nil
}
