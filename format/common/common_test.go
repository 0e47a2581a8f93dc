package common

import (
	"encoding/json"
	"net/netip"
	"strings"
	"testing"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *nfx.Record {
	return &nfx.Record{
		ExporterSysID: 3,
		MsecFirst:     1709287200000,
		MsecLast:      1709287201500,
		InPackets:     10,
		InBytes:       1500,
		SrcPort:       443,
		DstPort:       51000,
		Proto:         6,
		TCPFlags:      0x12,
		SrcAddr:       nfx.AddrFrom(netip.MustParseAddr("192.0.2.1")),
		DstAddr:       nfx.AddrFrom(netip.MustParseAddr("198.51.100.7")),
		AggrFlows:     1,
		Elements:      []uint16{nfx.EXgenericFlow, nfx.EXipv4Flow},
	}
}

func withSelector(t *testing.T, sel string) {
	selectorVar = sel
	require.NoError(t, ManualSelectorInit())
	t.Cleanup(func() {
		selectorVar = ""
		selector = nil
	})
}

func TestRenderTCPFlags(t *testing.T) {
	assert.Equal(t, "...A..S.", RenderTCPFlags(0x12))
	assert.Equal(t, "........", RenderTCPFlags(0))
	assert.Equal(t, "CEUAPRSF", RenderTCPFlags(0xff))
}

func TestFlowView(t *testing.T) {
	v := NewFlowView(testRecord())
	assert.Equal(t, "2024-03-01T10:00:00.000Z", v.TimeFirst)
	assert.Equal(t, "2024-03-01T10:00:01.500Z", v.TimeLast)
	assert.Empty(t, v.TimeReceived)
	assert.Equal(t, "TCP", v.ProtoName)
	assert.Equal(t, "192.0.2.1", v.SrcAddr)
	assert.Equal(t, "198.51.100.7", v.DstAddr)
	assert.Equal(t, "...A..S.", v.TCPFlags)
	assert.Equal(t, []string{"genericFlow", "ipv4Flow"}, v.Extensions)
	assert.Equal(t, uint64(1), v.Flows)
}

func TestIcmpCodeType(t *testing.T) {
	assert.Equal(t, "Echo", IcmpCodeType(1, 0, 8))
	assert.Equal(t, "EchoRequest", IcmpCodeType(58, 0, 128))
	assert.Equal(t, "", IcmpCodeType(6, 0, 8))
}

func TestFlowMessageJSON(t *testing.T) {
	msg := NewFlowMessage(testRecord(), nil)
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "192.0.2.1", out["src_addr"])
	assert.Equal(t, float64(443), out["src_port"])
	assert.NotContains(t, out, "out_bytes")
}

func TestFlowMessageText(t *testing.T) {
	text := NewFlowMessage(testRecord(), nil).String()
	assert.True(t, strings.HasPrefix(text, `time_first="2024-03-01T10:00:00.000Z"`), text)
	assert.Contains(t, text, " src_port=443 ")
	assert.Contains(t, text, `extensions=[genericFlow,ipv4Flow]`)
	assert.NotContains(t, text, "out_bytes")
}

func TestSelector(t *testing.T) {
	withSelector(t, "dst_addr,src_addr,missing")
	v := NewFlowView(testRecord())

	assert.Equal(t, `dst_addr="198.51.100.7" src_addr="192.0.2.1"`, FormatMessageReflectText(v, ""))
	assert.Equal(t, []string{"dst_addr", "src_addr"}, FieldNames(v))
	assert.Equal(t, []string{"198.51.100.7", "192.0.2.1"}, FormatMessageReflectCSV(v))
}

func TestCSVKeepsEmptyColumns(t *testing.T) {
	v := NewFlowView(testRecord())
	names := FieldNames(v)
	values := FormatMessageReflectCSV(v)
	require.Equal(t, len(names), len(values))
	assert.Equal(t, "time_first", names[0])
	assert.Equal(t, "2024-03-01T10:00:00.000Z", values[0])
}

func TestHashProto(t *testing.T) {
	v := NewFlowView(testRecord())
	assert.Equal(t, "3-", HashProto([]string{"exporter_sysid"}, v))
	assert.Equal(t, "192.0.2.1-443-", HashProto([]string{"src_addr", "src_port"}, v))
	assert.Equal(t, "", HashProto([]string{"nope"}, v))
	assert.Equal(t, "", HashProto([]string{"src_addr"}, nil))
}

func TestManualHashInit(t *testing.T) {
	defer func() {
		fieldsVar = ""
		fields = nil
	}()

	fieldsVar = "src_addr, dst_port"
	require.NoError(t, ManualHashInit())
	assert.Equal(t, []string{"src_addr", "dst_port"}, fields)
	assert.Equal(t, "192.0.2.1-51000-", HashProtoLocal(NewFlowView(testRecord())))

	fieldsVar = "src_addr,SamplerAddress"
	assert.ErrorContains(t, ManualHashInit(), `unknown hash field "SamplerAddress"`)
}
