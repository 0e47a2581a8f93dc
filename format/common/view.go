package common

import (
	"encoding/json"
	"time"

	"github.com/netsampler/nfcapd/decoders/nfx"
)

// FlowView is the printable form of a flow record. Fields of absent
// extensions are left empty.
type FlowView struct {
	TimeFirst    string `json:"time_first"`
	TimeLast     string `json:"time_last"`
	TimeReceived string `json:"time_received,omitempty"`

	ExporterSysID uint16 `json:"exporter_sysid"`
	EngineType    uint8  `json:"engine_type,omitempty"`
	EngineID      uint8  `json:"engine_id,omitempty"`

	Proto     uint8  `json:"proto"`
	ProtoName string `json:"proto_name,omitempty"`
	SrcAddr   string `json:"src_addr,omitempty"`
	DstAddr   string `json:"dst_addr,omitempty"`
	SrcPort   uint16 `json:"src_port"`
	DstPort   uint16 `json:"dst_port"`
	IcmpName  string `json:"icmp_name,omitempty"`
	TCPFlags  string `json:"tcp_flags,omitempty"`
	SrcTos    uint8  `json:"src_tos,omitempty"`
	FwdStatus uint8  `json:"fwd_status,omitempty"`

	InPackets  uint64 `json:"in_packets"`
	InBytes    uint64 `json:"in_bytes"`
	OutPackets uint64 `json:"out_packets,omitempty"`
	OutBytes   uint64 `json:"out_bytes,omitempty"`
	Flows      uint64 `json:"flows"`

	Input   uint32 `json:"input,omitempty"`
	Output  uint32 `json:"output,omitempty"`
	SrcMask uint8  `json:"src_mask,omitempty"`
	DstMask uint8  `json:"dst_mask,omitempty"`
	Dir     uint8  `json:"dir,omitempty"`
	DstTos  uint8  `json:"dst_tos,omitempty"`
	SrcVlan uint32 `json:"src_vlan,omitempty"`
	DstVlan uint32 `json:"dst_vlan,omitempty"`
	SrcAS   uint32 `json:"src_as,omitempty"`
	DstAS   uint32 `json:"dst_as,omitempty"`

	NextHop    string   `json:"next_hop,omitempty"`
	BgpNextHop string   `json:"bgp_next_hop,omitempty"`
	RouterIP   string   `json:"router_ip,omitempty"`
	MPLSLabels []uint32 `json:"mpls_labels,omitempty"`

	InSrcMac  string `json:"in_src_mac,omitempty"`
	OutDstMac string `json:"out_dst_mac,omitempty"`
	InDstMac  string `json:"in_dst_mac,omitempty"`
	OutSrcMac string `json:"out_src_mac,omitempty"`

	NextAS uint32 `json:"next_as,omitempty"`
	PrevAS uint32 `json:"prev_as,omitempty"`

	ClientLatencyUsec uint64 `json:"client_latency_usec,omitempty"`
	ServerLatencyUsec uint64 `json:"server_latency_usec,omitempty"`
	ApplLatencyUsec   uint64 `json:"appl_latency_usec,omitempty"`

	Event       uint8    `json:"event,omitempty"`
	XEvent      uint16   `json:"xevent,omitempty"`
	EventTime   string   `json:"event_time,omitempty"`
	ConnID      uint32   `json:"conn_id,omitempty"`
	XlateSrc    string   `json:"xlate_src_addr,omitempty"`
	XlateDst    string   `json:"xlate_dst_addr,omitempty"`
	XlateSrcPrt uint16   `json:"xlate_src_port,omitempty"`
	XlateDstPrt uint16   `json:"xlate_dst_port,omitempty"`
	IngressACL  []uint32 `json:"ingress_acl,omitempty"`
	EgressACL   []uint32 `json:"egress_acl,omitempty"`
	Username    string   `json:"username,omitempty"`
	IngressVrf  uint32   `json:"ingress_vrf,omitempty"`
	EgressVrf   uint32   `json:"egress_vrf,omitempty"`

	PortBlockStart uint16 `json:"port_block_start,omitempty"`
	PortBlockEnd   uint16 `json:"port_block_end,omitempty"`
	PortBlockStep  uint16 `json:"port_block_step,omitempty"`
	PortBlockSize  uint16 `json:"port_block_size,omitempty"`

	Extensions []string `json:"extensions"`
}

func renderMsec(msec uint64) string {
	if msec == 0 {
		return ""
	}
	return time.UnixMilli(int64(msec)).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

var tcpFlagNames = "CEUAPRSF"

// RenderTCPFlags renders flags in the CWR..FIN order, dots for unset bits.
func RenderTCPFlags(flags uint8) string {
	b := []byte("........")
	for i := 0; i < 8; i++ {
		if flags&(0x80>>i) != 0 {
			b[i] = tcpFlagNames[i]
		}
	}
	return string(b)
}

// NewFlowView renders rec.
func NewFlowView(rec *nfx.Record) *FlowView {
	v := &FlowView{
		ExporterSysID: rec.ExporterSysID,
		EngineType:    rec.EngineType,
		EngineID:      rec.EngineID,
		Extensions:    make([]string, 0, len(rec.Elements)),
	}
	for _, tag := range rec.Elements {
		v.Extensions = append(v.Extensions, nfx.ExtensionName(tag))
		renderElement(v, tag, rec)
	}
	return v
}

func renderElement(v *FlowView, tag uint16, rec *nfx.Record) {
	switch tag {
	case nfx.EXgenericFlow:
		v.TimeFirst = renderMsec(rec.MsecFirst)
		v.TimeLast = renderMsec(rec.MsecLast)
		v.TimeReceived = renderMsec(rec.MsecReceived)
		v.Proto = rec.Proto
		v.ProtoName = ProtoName[uint32(rec.Proto)]
		v.SrcPort = rec.SrcPort
		v.DstPort = rec.DstPort
		v.IcmpName = IcmpCodeType(uint32(rec.Proto), uint32(rec.ICMPCode()), uint32(rec.ICMPType()))
		if rec.Proto == 6 {
			v.TCPFlags = RenderTCPFlags(rec.TCPFlags)
		}
		v.SrcTos = rec.SrcTos
		v.FwdStatus = rec.FwdStatus
		v.InPackets = rec.InPackets
		v.InBytes = rec.InBytes
		v.Flows = rec.AggrFlows
	case nfx.EXipv4Flow:
		v.SrcAddr = rec.SrcAddr.Addr(false).String()
		v.DstAddr = rec.DstAddr.Addr(false).String()
	case nfx.EXipv6Flow:
		v.SrcAddr = rec.SrcAddr.Addr(true).String()
		v.DstAddr = rec.DstAddr.Addr(true).String()
	case nfx.EXflowMisc:
		v.Input = rec.Input
		v.Output = rec.Output
		v.SrcMask = rec.SrcMask
		v.DstMask = rec.DstMask
		v.Dir = rec.Dir
		v.DstTos = rec.DstTos
	case nfx.EXcntFlow:
		v.Flows = rec.AggrFlows
		v.OutPackets = rec.OutPackets
		v.OutBytes = rec.OutBytes
	case nfx.EXvLan:
		v.SrcVlan = rec.SrcVlan
		v.DstVlan = rec.DstVlan
	case nfx.EXasRouting:
		v.SrcAS = rec.SrcAS
		v.DstAS = rec.DstAS
	case nfx.EXbgpNextHopV4, nfx.EXbgpNextHopV6:
		v.BgpNextHop = rec.BgpNextHop.Addr(tag == nfx.EXbgpNextHopV6).String()
	case nfx.EXipNextHopV4, nfx.EXipNextHopV6:
		v.NextHop = rec.IPNextHop.Addr(tag == nfx.EXipNextHopV6).String()
	case nfx.EXipReceivedV4, nfx.EXipReceivedV6:
		v.RouterIP = rec.IPRouter.Addr(tag == nfx.EXipReceivedV6).String()
	case nfx.EXmplsLabel:
		v.MPLSLabels = append([]uint32{}, rec.MPLSLabel[:]...)
	case nfx.EXmacAddr:
		v.InSrcMac = rec.InSrcMac.String()
		v.OutDstMac = rec.OutDstMac.String()
		v.InDstMac = rec.InDstMac.String()
		v.OutSrcMac = rec.OutSrcMac.String()
	case nfx.EXasAdjacent:
		v.NextAS = rec.BgpNextAdjacentAS
		v.PrevAS = rec.BgpPrevAdjacentAS
	case nfx.EXlatency:
		v.ClientLatencyUsec = rec.ClientNwDelayUsec
		v.ServerLatencyUsec = rec.ServerNwDelayUsec
		v.ApplLatencyUsec = rec.ApplLatencyUsec
	case nfx.EXnselCommon:
		v.Event = rec.Event
		v.XEvent = rec.FwXevent
		v.EventTime = renderMsec(rec.EventTime)
		v.ConnID = rec.ConnID
	case nfx.EXnselXlateIPv4:
		v.XlateSrc = rec.XlateSrcIP.Addr(false).String()
		v.XlateDst = rec.XlateDstIP.Addr(false).String()
	case nfx.EXnselXlateIPv6:
		v.XlateSrc = rec.XlateSrcIP.Addr(true).String()
		v.XlateDst = rec.XlateDstIP.Addr(true).String()
	case nfx.EXnelXlatePort:
		v.PortBlockStart = rec.BlockStart
		v.PortBlockEnd = rec.BlockEnd
		v.PortBlockStep = rec.BlockStep
		v.PortBlockSize = rec.BlockSize
	case nfx.EXnselXlatePort:
		v.XlateSrcPrt = rec.XlateSrcPort
		v.XlateDstPrt = rec.XlateDstPort
	case nfx.EXnselAcl:
		v.IngressACL = append([]uint32{}, rec.IngressACL[:]...)
		v.EgressACL = append([]uint32{}, rec.EgressACL[:]...)
	case nfx.EXnselUser:
		v.Username = rec.Username
	case nfx.EXnelCommon:
		v.Event = rec.Event
		v.EventTime = renderMsec(rec.EventTime)
		v.IngressVrf = rec.IngressVrfID
		v.EgressVrf = rec.EgressVrfID
	}
}

// FlowMessage is a record handed to format drivers.
type FlowMessage struct {
	Record  *nfx.Record
	Options *nfx.Options

	view *FlowView
}

func NewFlowMessage(rec *nfx.Record, opts *nfx.Options) *FlowMessage {
	return &FlowMessage{Record: rec, Options: opts}
}

func (m *FlowMessage) View() *FlowView {
	if m.view == nil {
		m.view = NewFlowView(m.Record)
	}
	return m.view
}

// Key returns the hashing key built from the -format.hash fields.
func (m *FlowMessage) Key() []byte {
	return []byte(HashProtoLocal(m.View()))
}

// MarshalBinary encodes the record back to its wire form.
func (m *FlowMessage) MarshalBinary() ([]byte, error) {
	return nfx.EncodeRecord(m.Record, m.Options)
}

func (m *FlowMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.View())
}

func (m *FlowMessage) String() string {
	return FormatMessageReflectText(m.View(), "")
}
