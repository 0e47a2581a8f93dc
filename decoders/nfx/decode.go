package nfx

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/netsampler/nfcapd/decoders/utils"
)

var (
	ErrRecordTooSmall  = errors.New("record too small")
	ErrRecordType      = errors.New("unexpected record type")
	ErrCursorOverrun   = errors.New("element beyond end of record")
	ErrElementLength   = errors.New("invalid element length")
	ErrShortExtension  = errors.New("extension shorter than catalog size")
	ErrSizeMismatch    = errors.New("record size not equal sum of extensions")
	ErrTooManyElements = errors.New("too many elements")
)

// DecoderError marks a record whose length accounting cannot be trusted.
// Processing of the stream it came from must not continue.
type DecoderError struct {
	Decoder string
	Err     error
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("%s %s", e.Decoder, e.Err.Error())
}

func (e *DecoderError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err poisons the record stream.
func IsFatal(err error) bool {
	var de *DecoderError
	return errors.As(err, &de)
}

// RecordHeader peeks the common {type, size} header of any record.
func RecordHeader(data []byte) (typ, size uint16, err error) {
	if len(data) < 4 {
		return 0, 0, &DecoderError{"RecordHeader", fmt.Errorf("%w: %d bytes", ErrRecordTooSmall, len(data))}
	}
	return utils.Order.Uint16(data), utils.Order.Uint16(data[2:]), nil
}

// DecodeRecord expands a V3 wire record into rec. Unknown extensions are
// logged and skipped; any length accounting violation returns a *DecoderError.
func DecodeRecord(data []byte, rec *Record, opts *Options) error {
	opts = opts.orDefault()

	elements := rec.Elements[:0]
	*rec = Record{}

	if len(data) < RecordHeaderSize {
		return &DecoderError{"V3Record", fmt.Errorf("%w: %d bytes", ErrRecordTooSmall, len(data))}
	}
	typ := utils.Order.Uint16(data)
	size := utils.Order.Uint16(data[2:])
	numElements := utils.Order.Uint16(data[4:])

	rec.Size = size
	rec.NumElements = numElements
	rec.EngineType = data[6]
	rec.EngineID = data[7]
	rec.ExporterSysID = utils.Order.Uint16(data[8:])
	rec.Flags = data[10]
	rec.NfVersion = data[11]

	if typ != V3Record {
		return &DecoderError{"V3Record", fmt.Errorf("%w: %d", ErrRecordType, typ)}
	}
	if size < RecordHeaderSize {
		return &DecoderError{"V3Record", fmt.Errorf("%w: announced size %d", ErrRecordTooSmall, size)}
	}
	if int(size) > len(data) {
		return &DecoderError{"V3Record", fmt.Errorf("%w: announced size %d, have %d bytes", ErrCursorOverrun, size, len(data))}
	}

	cur := utils.NewCursor(data[:size])
	if err := cur.Skip(RecordHeaderSize); err != nil {
		return &DecoderError{"V3Record", err}
	}
	consumed := RecordHeaderSize

	for i := 0; i < int(numElements); i++ {
		start := cur.Offset()
		tag, err := cur.U16()
		if err != nil {
			return &DecoderError{"V3Record", fmt.Errorf("%w: element %d header at %d", ErrCursorOverrun, i, start)}
		}
		length, err := cur.U16()
		if err != nil {
			return &DecoderError{"V3Record", fmt.Errorf("%w: element %d header at %d", ErrCursorOverrun, i, start)}
		}
		if length < ElementHeaderSize {
			return &DecoderError{"V3Record", fmt.Errorf("%w: %w: element %d tag %d length %d", ErrCursorOverrun, ErrElementLength, i, tag, length)}
		}
		body, err := cur.Next(int(length) - ElementHeaderSize)
		if err != nil {
			return &DecoderError{"V3Record", fmt.Errorf("%w: element %d tag %d length %d at %d", ErrCursorOverrun, i, tag, length, start)}
		}

		if tag == EXnull {
			opts.unknown(tag, length, "unexpected null extension")
		} else if info, ok := opts.lookup(tag); !ok {
			opts.unknown(tag, length, "unknown extension")
		} else {
			if len(body) < int(info.Size) {
				return &DecoderError{"V3Record", fmt.Errorf("%w: %s length %d", ErrShortExtension, info.Name, length)}
			}
			decodeElement(tag, body, rec)
			elements = insertElement(elements, tag)
		}

		consumed += int(length)
	}

	rec.Elements = elements
	rec.ICMP = rec.DstPort

	if consumed != int(size) {
		return &DecoderError{"V3Record", fmt.Errorf("%w: size %d, extensions %d", ErrSizeMismatch, size, consumed)}
	}
	if numElements > MaxElements {
		return &DecoderError{"V3Record", fmt.Errorf("%w: %d > %d", ErrTooManyElements, numElements, MaxElements)}
	}

	if rec.AggrFlows == 0 {
		rec.AggrFlows = 1
	}
	rec.NumElements = uint16(len(rec.Elements))

	return nil
}

func findElement(elements []uint16, tag uint16) (int, bool) {
	return slices.BinarySearch(elements, tag)
}

// insertElement keeps elements ascending and free of duplicates.
func insertElement(elements []uint16, tag uint16) []uint16 {
	i, found := findElement(elements, tag)
	if found {
		return elements
	}
	return slices.Insert(elements, i, tag)
}

// field reads fixed-width values from a payload whose length has already been
// checked against the catalog size.
type field struct {
	b   []byte
	off int
}

func (f *field) u8() uint8 {
	v := f.b[f.off]
	f.off++
	return v
}

func (f *field) u16() uint16 {
	v := utils.Order.Uint16(f.b[f.off:])
	f.off += 2
	return v
}

func (f *field) u32() uint32 {
	v := utils.Order.Uint32(f.b[f.off:])
	f.off += 4
	return v
}

func (f *field) u64() uint64 {
	v := utils.Order.Uint64(f.b[f.off:])
	f.off += 8
	return v
}

func (f *field) ip6() IPAddr {
	return IPv6Addr(f.u64(), f.u64())
}

func (f *field) fixed(size int) string {
	b := f.b[f.off : f.off+size]
	f.off += size
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func decodeElement(tag uint16, body []byte, rec *Record) {
	f := &field{b: body}
	switch tag {
	case EXgenericFlow:
		rec.MsecFirst = f.u64()
		rec.MsecLast = f.u64()
		rec.MsecReceived = f.u64()
		rec.InPackets = f.u64()
		rec.InBytes = f.u64()
		rec.SrcPort = f.u16()
		rec.DstPort = f.u16()
		rec.Proto = f.u8()
		rec.TCPFlags = f.u8()
		rec.FwdStatus = f.u8()
		rec.SrcTos = f.u8()
	case EXipv4Flow:
		rec.SrcAddr = IPv4Addr(f.u32())
		rec.DstAddr = IPv4Addr(f.u32())
	case EXipv6Flow:
		rec.SrcAddr = f.ip6()
		rec.DstAddr = f.ip6()
		rec.Flags |= FlagIPv6Addr
	case EXflowMisc:
		rec.Input = f.u32()
		rec.Output = f.u32()
		rec.SrcMask = f.u8()
		rec.DstMask = f.u8()
		rec.Dir = f.u8()
		rec.DstTos = f.u8()
	case EXcntFlow:
		rec.AggrFlows = f.u64()
		rec.OutPackets = f.u64()
		rec.OutBytes = f.u64()
		rec.Flags |= FlagPkg64 | FlagBytes64
	case EXvLan:
		rec.SrcVlan = f.u32()
		rec.DstVlan = f.u32()
	case EXasRouting:
		rec.SrcAS = f.u32()
		rec.DstAS = f.u32()
	case EXbgpNextHopV4:
		rec.BgpNextHop = IPv4Addr(f.u32())
		rec.Flags &^= FlagIPv6NHB
	case EXbgpNextHopV6:
		rec.BgpNextHop = f.ip6()
		rec.Flags |= FlagIPv6NHB
	case EXipNextHopV4:
		rec.IPNextHop = IPv4Addr(f.u32())
		rec.Flags &^= FlagIPv6NH
	case EXipNextHopV6:
		rec.IPNextHop = f.ip6()
		rec.Flags |= FlagIPv6NH
	case EXipReceivedV4:
		rec.IPRouter = IPv4Addr(f.u32())
		rec.Flags &^= FlagIPv6Exp
	case EXipReceivedV6:
		rec.IPRouter = f.ip6()
		rec.Flags |= FlagIPv6Exp
	case EXmplsLabel:
		for i := range rec.MPLSLabel {
			rec.MPLSLabel[i] = f.u32()
		}
	case EXmacAddr:
		rec.InSrcMac = utils.MacAddress(f.u64())
		rec.OutDstMac = utils.MacAddress(f.u64())
		rec.InDstMac = utils.MacAddress(f.u64())
		rec.OutSrcMac = utils.MacAddress(f.u64())
	case EXasAdjacent:
		rec.BgpNextAdjacentAS = f.u32()
		rec.BgpPrevAdjacentAS = f.u32()
	case EXlatency:
		rec.ClientNwDelayUsec = f.u64()
		rec.ServerNwDelayUsec = f.u64()
		rec.ApplLatencyUsec = f.u64()
	case EXmsecRelTimeFlow:
		rec.MsecRelFirst = f.u32()
		rec.MsecRelLast = f.u32()
	case EXnselCommon:
		rec.EventFlag = FwEvent
		rec.EventTime = f.u64()
		rec.ConnID = f.u32()
		rec.FwXevent = f.u16()
		rec.Event = f.u8()
		rec.Flags |= FlagEvent
	case EXnselXlateIPv4:
		rec.XlateSrcIP = IPv4Addr(f.u32())
		rec.XlateDstIP = IPv4Addr(f.u32())
		rec.XlateFlags = 0
	case EXnselXlateIPv6:
		rec.XlateSrcIP = f.ip6()
		rec.XlateDstIP = f.ip6()
		rec.XlateFlags = 1
	case EXnselXlatePort:
		rec.XlateSrcPort = f.u16()
		rec.XlateDstPort = f.u16()
	case EXnselAcl:
		for i := range rec.IngressACL {
			rec.IngressACL[i] = f.u32()
		}
		for i := range rec.EgressACL {
			rec.EgressACL[i] = f.u32()
		}
	case EXnselUser:
		rec.Username = f.fixed(UsernameSize)
	case EXnelCommon:
		rec.EventFlag = FwEvent
		rec.EventTime = f.u64()
		rec.Event = f.u8()
		f.off += 3
		rec.EgressVrfID = f.u32()
		rec.IngressVrfID = f.u32()
		rec.Flags |= FlagEvent
	case EXnelXlatePort:
		rec.BlockStart = f.u16()
		rec.BlockEnd = f.u16()
		rec.BlockStep = f.u16()
		rec.BlockSize = f.u16()
	default:
		slog.Error("no decoder for catalog extension", slog.Int("extension", int(tag)))
	}
}
