package nfx

import (
	"log/slog"
	"net/netip"

	"github.com/netsampler/nfcapd/decoders/utils"
)

// Record types sharing the common {type, size} header.
const (
	ExporterInfoRecordType uint16 = 7
	ExporterStatRecordType uint16 = 8
	SamplerInfoRecordType  uint16 = 9
	V3Record               uint16 = 11
)

// Record flags.
const (
	FlagIPv6Addr uint8 = 1 << iota
	FlagPkg64
	FlagBytes64
	FlagIPv6NH
	FlagIPv6NHB
	FlagIPv6Exp
	FlagEvent
	FlagSampled
)

// Address families as announced in exporter records.
const (
	FamilyIPv4 uint16 = 2
	FamilyIPv6 uint16 = 10
)

const FwEvent uint8 = 1

// IPAddr stores an IPv6 address as two 64-bit halves, high half first.
// An IPv4 address lives in the low 32 bits of V6[1].
type IPAddr struct {
	V6 [2]uint64
}

func IPv4Addr(v uint32) IPAddr {
	return IPAddr{V6: [2]uint64{0, uint64(v)}}
}

func IPv6Addr(hi, lo uint64) IPAddr {
	return IPAddr{V6: [2]uint64{hi, lo}}
}

// AddrFrom converts a netip address; IPv4-mapped addresses are unmapped.
func AddrFrom(ip netip.Addr) IPAddr {
	ip = ip.Unmap()
	if ip.Is4() {
		b := ip.As4()
		return IPv4Addr(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
	}
	b := ip.As16()
	var a IPAddr
	for i := 0; i < 8; i++ {
		a.V6[0] = a.V6[0]<<8 | uint64(b[i])
		a.V6[1] = a.V6[1]<<8 | uint64(b[i+8])
	}
	return a
}

func (a IPAddr) V4() uint32 {
	return uint32(a.V6[1])
}

// Addr renders the address in its v4 or v6 form.
func (a IPAddr) Addr(v6 bool) netip.Addr {
	if !v6 {
		v := a.V4()
		return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	}
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(a.V6[0] >> (56 - 8*i))
		b[i+8] = byte(a.V6[1] >> (56 - 8*i))
	}
	return netip.AddrFrom16(b)
}

// Record is the dense representation of a V3 flow record. Every field any
// extension can populate has a slot; Elements lists the extensions that were
// present, in ascending order.
type Record struct {
	Size          uint16
	Flags         uint8
	NumElements   uint16
	EngineType    uint8
	EngineID      uint8
	ExporterSysID uint16
	NfVersion     uint8

	// genericFlow
	MsecFirst    uint64
	MsecLast     uint64
	MsecReceived uint64
	InPackets    uint64
	InBytes      uint64
	SrcPort      uint16
	DstPort      uint16
	ICMP         uint16
	Proto        uint8
	TCPFlags     uint8
	FwdStatus    uint8
	SrcTos       uint8

	// msecRelTimeFlow
	MsecRelFirst uint32
	MsecRelLast  uint32

	SrcAddr IPAddr
	DstAddr IPAddr

	// flowMisc
	Input   uint32
	Output  uint32
	SrcMask uint8
	DstMask uint8
	Dir     uint8
	DstTos  uint8

	// cntFlow
	AggrFlows  uint64
	OutPackets uint64
	OutBytes   uint64

	SrcVlan uint32
	DstVlan uint32
	SrcAS   uint32
	DstAS   uint32

	BgpNextHop IPAddr
	IPNextHop  IPAddr
	IPRouter   IPAddr

	MPLSLabel [10]uint32

	InSrcMac  utils.MacAddress
	OutDstMac utils.MacAddress
	InDstMac  utils.MacAddress
	OutSrcMac utils.MacAddress

	BgpNextAdjacentAS uint32
	BgpPrevAdjacentAS uint32

	ClientNwDelayUsec uint64
	ServerNwDelayUsec uint64
	ApplLatencyUsec   uint64

	// firewall and NAT events
	EventFlag    uint8
	ConnID       uint32
	Event        uint8
	FwXevent     uint16
	EventTime    uint64
	XlateSrcIP   IPAddr
	XlateDstIP   IPAddr
	XlateFlags   uint8
	XlateSrcPort uint16
	XlateDstPort uint16
	IngressACL   [3]uint32
	EgressACL    [3]uint32
	Username     string
	IngressVrfID uint32
	EgressVrfID  uint32
	BlockStart   uint16
	BlockEnd     uint16
	BlockStep    uint16
	BlockSize    uint16

	Elements []uint16
}

func (r *Record) IsIPv6() bool {
	return r.Flags&FlagIPv6Addr != 0
}

func (r *Record) ICMPType() uint8 {
	return uint8(r.ICMP >> 8)
}

func (r *Record) ICMPCode() uint8 {
	return uint8(r.ICMP)
}

// HasElement reports whether tag is present in the element list.
func (r *Record) HasElement(tag uint16) bool {
	_, ok := findElement(r.Elements, tag)
	return ok
}

// ComputeSize returns the wire size of the record built from exactly the
// extensions listed in Elements.
func (r *Record) ComputeSize(opts *Options) int {
	opts = opts.orDefault()
	size := RecordHeaderSize
	for _, tag := range r.Elements {
		if info, ok := opts.lookup(tag); ok {
			size += int(info.Length())
		}
	}
	return size
}

// Options tunes the codec. A nil *Options behaves like DefaultOptions.
type Options struct {
	// NSEL enables the firewall/NAT extension set (tags 19-26).
	NSEL   bool
	Logger *slog.Logger

	// OnUnknown is called for every skipped tag.
	OnUnknown func(tag uint16)
	// OnSizeMismatch is called when an encoded record differs from its
	// announced size.
	OnSizeMismatch func(emitted, required int)
}

var DefaultOptions = Options{
	NSEL: true,
}

func (o *Options) orDefault() *Options {
	if o == nil {
		return &DefaultOptions
	}
	return o
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) lookup(tag uint16) (ExtensionInfo, bool) {
	info, ok := Lookup(tag)
	if !ok || (info.NSEL && !o.NSEL) {
		return ExtensionInfo{}, false
	}
	return info, true
}

func (o *Options) unknown(tag uint16, length uint16, msg string) {
	o.logger().Warn(msg,
		slog.Int("extension", int(tag)),
		slog.Int("length", int(length)))
	if o.OnUnknown != nil {
		o.OnUnknown(tag)
	}
}
