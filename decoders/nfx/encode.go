package nfx

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/netsampler/nfcapd/decoders/utils"
)

var (
	ErrRecordSkipped  = errors.New("record skipped")
	ErrRecordOversize = errors.New("record exceeds 65535 bytes")
)

// Appender is the block side of PackRecord. EnsureSpace must either make
// room for the given number of bytes or refuse; Append must only be called
// after a successful EnsureSpace.
type Appender interface {
	EnsureSpace(required int) error
	Append(p []byte) error
}

var scratchPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// elementWriter keeps the first write error so that field encoders can be
// written without error plumbing.
type elementWriter struct {
	buf *bytes.Buffer
	err error
}

func (w *elementWriter) u8(v uint8) {
	if w.err == nil {
		w.err = utils.WriteU8(w.buf, v)
	}
}

func (w *elementWriter) u16(v uint16) {
	if w.err == nil {
		w.err = utils.WriteU16(w.buf, v)
	}
}

func (w *elementWriter) u32(v uint32) {
	if w.err == nil {
		w.err = utils.WriteU32(w.buf, v)
	}
}

func (w *elementWriter) u64(v uint64) {
	if w.err == nil {
		w.err = utils.WriteU64(w.buf, v)
	}
}

func (w *elementWriter) ip6(a IPAddr) {
	w.u64(a.V6[0])
	w.u64(a.V6[1])
}

func (w *elementWriter) fixed(s string, size int) {
	if w.err == nil {
		w.err = utils.WriteFixed(w.buf, s, size)
	}
}

// EncodeRecord serializes rec with one element per tag of rec.Elements, in
// that order. The header carries the emitted size and element count.
func EncodeRecord(rec *Record, opts *Options) ([]byte, error) {
	buf := &bytes.Buffer{}
	if _, err := encodeRecord(buf, rec, opts.orDefault()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeRecord(buf *bytes.Buffer, rec *Record, opts *Options) (int, error) {
	start := buf.Len()
	w := &elementWriter{buf: buf}

	w.u16(V3Record)
	w.u16(0) // size, patched
	w.u16(0) // numElements, patched
	w.u8(rec.EngineType)
	w.u8(rec.EngineID)
	w.u16(rec.ExporterSysID)
	w.u8(rec.Flags)
	w.u8(rec.NfVersion)

	var count uint16
	for _, tag := range rec.Elements {
		info, ok := opts.lookup(tag)
		if !ok {
			if tag == EXnull {
				opts.unknown(tag, 0, "unexpected null extension")
			} else {
				opts.unknown(tag, 0, "unknown extension")
			}
			continue
		}
		elemStart := buf.Len()
		w.u16(tag)
		w.u16(info.Length())
		encodeElement(w, tag, rec)
		if w.err != nil {
			return 0, w.err
		}
		if written := buf.Len() - elemStart; written != int(info.Length()) {
			return 0, fmt.Errorf("%s: encoded %d bytes, catalog length %d", info.Name, written, info.Length())
		}
		count++
	}
	if w.err != nil {
		return 0, w.err
	}

	size := buf.Len() - start
	if size > 0xffff {
		return 0, fmt.Errorf("%w: %d", ErrRecordOversize, size)
	}
	hdr := buf.Bytes()[start:]
	utils.Order.PutUint16(hdr[2:], uint16(size))
	utils.Order.PutUint16(hdr[4:], count)
	return size, nil
}

func encodeElement(w *elementWriter, tag uint16, rec *Record) {
	switch tag {
	case EXgenericFlow:
		w.u64(rec.MsecFirst)
		w.u64(rec.MsecLast)
		w.u64(rec.MsecReceived)
		w.u64(rec.InPackets)
		w.u64(rec.InBytes)
		w.u16(rec.SrcPort)
		w.u16(rec.DstPort)
		w.u8(rec.Proto)
		w.u8(rec.TCPFlags)
		w.u8(rec.FwdStatus)
		w.u8(rec.SrcTos)
	case EXipv4Flow:
		w.u32(rec.SrcAddr.V4())
		w.u32(rec.DstAddr.V4())
	case EXipv6Flow:
		w.ip6(rec.SrcAddr)
		w.ip6(rec.DstAddr)
	case EXflowMisc:
		w.u32(rec.Input)
		w.u32(rec.Output)
		w.u8(rec.SrcMask)
		w.u8(rec.DstMask)
		w.u8(rec.Dir)
		w.u8(rec.DstTos)
	case EXcntFlow:
		w.u64(rec.AggrFlows)
		w.u64(rec.OutPackets)
		w.u64(rec.OutBytes)
	case EXvLan:
		w.u32(rec.SrcVlan)
		w.u32(rec.DstVlan)
	case EXasRouting:
		w.u32(rec.SrcAS)
		w.u32(rec.DstAS)
	case EXbgpNextHopV4:
		w.u32(rec.BgpNextHop.V4())
	case EXbgpNextHopV6:
		w.ip6(rec.BgpNextHop)
	case EXipNextHopV4:
		w.u32(rec.IPNextHop.V4())
	case EXipNextHopV6:
		w.ip6(rec.IPNextHop)
	case EXipReceivedV4:
		w.u32(rec.IPRouter.V4())
	case EXipReceivedV6:
		w.ip6(rec.IPRouter)
	case EXmplsLabel:
		for _, l := range rec.MPLSLabel {
			w.u32(l)
		}
	case EXmacAddr:
		w.u64(uint64(rec.InSrcMac))
		w.u64(uint64(rec.OutDstMac))
		w.u64(uint64(rec.InDstMac))
		w.u64(uint64(rec.OutSrcMac))
	case EXasAdjacent:
		w.u32(rec.BgpNextAdjacentAS)
		w.u32(rec.BgpPrevAdjacentAS)
	case EXlatency:
		w.u64(rec.ClientNwDelayUsec)
		w.u64(rec.ServerNwDelayUsec)
		w.u64(rec.ApplLatencyUsec)
	case EXmsecRelTimeFlow:
		w.u32(rec.MsecRelFirst)
		w.u32(rec.MsecRelLast)
	case EXnselCommon:
		w.u64(rec.EventTime)
		w.u32(rec.ConnID)
		w.u16(rec.FwXevent)
		w.u8(rec.Event)
		w.u8(0)
	case EXnselXlateIPv4:
		w.u32(rec.XlateSrcIP.V4())
		w.u32(rec.XlateDstIP.V4())
	case EXnselXlateIPv6:
		w.ip6(rec.XlateSrcIP)
		w.ip6(rec.XlateDstIP)
	case EXnselXlatePort:
		w.u16(rec.XlateSrcPort)
		w.u16(rec.XlateDstPort)
	case EXnselAcl:
		for _, a := range rec.IngressACL {
			w.u32(a)
		}
		for _, a := range rec.EgressACL {
			w.u32(a)
		}
	case EXnselUser:
		w.fixed(rec.Username, UsernameSize)
	case EXnelCommon:
		w.u64(rec.EventTime)
		w.u8(rec.Event)
		w.u8(0)
		w.u16(0)
		w.u32(rec.EgressVrfID)
		w.u32(rec.IngressVrfID)
	case EXnelXlatePort:
		w.u16(rec.BlockStart)
		w.u16(rec.BlockEnd)
		w.u16(rec.BlockStep)
		w.u16(rec.BlockSize)
	}
}

// PackRecord encodes rec into dst. Space for rec.Size bytes is reserved up
// front; a refusal skips the record without a partial write. When the
// encoded size differs from rec.Size the difference is reported and the
// emitted size is what gets reserved and appended.
func PackRecord(rec *Record, dst Appender, opts *Options) (int, error) {
	opts = opts.orDefault()
	required := int(rec.Size)

	if err := dst.EnsureSpace(required); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRecordSkipped, err)
	}

	buf := scratchPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer scratchPool.Put(buf)

	emitted, err := encodeRecord(buf, rec, opts)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRecordSkipped, err)
	}

	if emitted != required {
		opts.logger().Error("record size mismatch",
			slog.Int("required", required),
			slog.Int("emitted", emitted),
			slog.Int("elements", len(rec.Elements)))
		if opts.OnSizeMismatch != nil {
			opts.OnSizeMismatch(emitted, required)
		}
		if emitted > required {
			if err := dst.EnsureSpace(emitted); err != nil {
				return 0, fmt.Errorf("%w: %w", ErrRecordSkipped, err)
			}
		}
	}

	if err := dst.Append(buf.Bytes()); err != nil {
		return 0, err
	}
	return emitted, nil
}
