package nfx

import (
	"fmt"
	"strings"
)

func (a IPAddr) String() string {
	if a.V6[0] == 0 && a.V6[1]>>32 == 0 {
		return a.Addr(false).String()
	}
	return a.Addr(true).String()
}

func (r *Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sysid=%d elements=[", r.ExporterSysID)
	for i, tag := range r.Elements {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(ExtensionName(tag))
	}
	b.WriteByte(']')
	v6 := r.IsIPv6()
	fmt.Fprintf(&b, " %s:%d -> %s:%d proto=%d packets=%d bytes=%d flows=%d",
		r.SrcAddr.Addr(v6), r.SrcPort,
		r.DstAddr.Addr(v6), r.DstPort,
		r.Proto, r.InPackets, r.InBytes, r.AggrFlows)
	return b.String()
}

func (r *ExporterInfoRecord) String() string {
	return fmt.Sprintf("exporter sysid=%d version=%d id=%d ip=%s",
		r.SysID, r.Version, r.ID, r.IP.Addr(r.Family == FamilyIPv6))
}

func (r *SamplerInfoRecord) String() string {
	return fmt.Sprintf("sampler exporter=%d id=%d mode=%d interval=%d",
		r.ExporterSysID, r.ID, r.Mode, r.Interval)
}
