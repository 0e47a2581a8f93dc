package nfx

import "fmt"

// Extension type tags.
const (
	EXnull uint16 = iota
	EXgenericFlow
	EXipv4Flow
	EXipv6Flow
	EXflowMisc
	EXcntFlow
	EXvLan
	EXasRouting
	EXbgpNextHopV4
	EXbgpNextHopV6
	EXipNextHopV4
	EXipNextHopV6
	EXipReceivedV4
	EXipReceivedV6
	EXmplsLabel
	EXmacAddr
	EXasAdjacent
	EXlatency
	EXmsecRelTimeFlow
	EXnselCommon
	EXnselXlateIPv4
	EXnselXlateIPv6
	EXnselXlatePort
	EXnselAcl
	EXnselUser
	EXnelCommon
	EXnelXlatePort

	MaxExtensions
)

const (
	// MaxElements bounds the number of extensions a single record may announce.
	MaxElements = 32

	ElementHeaderSize = 4
	RecordHeaderSize  = 12

	UsernameSize = 66
)

// ExtensionInfo describes one entry of the extension catalog. Size is the
// payload size; the element length on the wire is ElementHeaderSize+Size.
type ExtensionInfo struct {
	ID   uint16
	Name string
	Size uint16
	NSEL bool
}

// Length returns the element length announced on the wire.
func (e ExtensionInfo) Length() uint16 {
	return ElementHeaderSize + e.Size
}

var catalog = [MaxExtensions]ExtensionInfo{
	{EXnull, "null", 0, false},
	{EXgenericFlow, "genericFlow", 48, false},
	{EXipv4Flow, "ipv4Flow", 8, false},
	{EXipv6Flow, "ipv6Flow", 32, false},
	{EXflowMisc, "flowMisc", 12, false},
	{EXcntFlow, "cntFlow", 24, false},
	{EXvLan, "vLan", 8, false},
	{EXasRouting, "asRouting", 8, false},
	{EXbgpNextHopV4, "bgpNextHopV4", 4, false},
	{EXbgpNextHopV6, "bgpNextHopV6", 16, false},
	{EXipNextHopV4, "ipNextHopV4", 4, false},
	{EXipNextHopV6, "ipNextHopV6", 16, false},
	{EXipReceivedV4, "ipReceivedV4", 4, false},
	{EXipReceivedV6, "ipReceivedV6", 16, false},
	{EXmplsLabel, "mplsLabel", 40, false},
	{EXmacAddr, "macAddr", 32, false},
	{EXasAdjacent, "asAdjacent", 8, false},
	{EXlatency, "latency", 24, false},
	{EXmsecRelTimeFlow, "msecRelTimeFlow", 8, false},
	{EXnselCommon, "nselCommon", 16, true},
	{EXnselXlateIPv4, "nselXlateIPv4", 8, true},
	{EXnselXlateIPv6, "nselXlateIPv6", 32, true},
	{EXnselXlatePort, "nselXlatePort", 4, true},
	{EXnselAcl, "nselAcl", 24, true},
	{EXnselUser, "nselUser", UsernameSize, true},
	{EXnelCommon, "nelCommon", 20, true},
	{EXnelXlatePort, "nelXlatePort", 8, true},
}

// Lookup returns the catalog entry of a tag regardless of feature sets.
// The null tag is reported as unknown.
func Lookup(id uint16) (ExtensionInfo, bool) {
	if id == EXnull || id >= MaxExtensions {
		return ExtensionInfo{}, false
	}
	return catalog[id], true
}

// ExtensionName returns a printable name for any tag.
func ExtensionName(id uint16) string {
	if id < MaxExtensions {
		return catalog[id].Name
	}
	return fmt.Sprintf("unknown(%d)", id)
}

// Extensions lists the catalog, null entry excluded.
func Extensions() []ExtensionInfo {
	ret := make([]ExtensionInfo, 0, MaxExtensions-1)
	for _, e := range catalog[1:] {
		ret = append(ret, e)
	}
	return ret
}
