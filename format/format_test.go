package format_test

import (
	"encoding/csv"
	"errors"
	"net/netip"
	"sort"
	"strings"
	"testing"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/netsampler/nfcapd/format"
	_ "github.com/netsampler/nfcapd/format/binary"
	"github.com/netsampler/nfcapd/format/common"
	_ "github.com/netsampler/nfcapd/format/csv"
	_ "github.com/netsampler/nfcapd/format/json"
	_ "github.com/netsampler/nfcapd/format/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *common.FlowMessage {
	rec := &nfx.Record{
		ExporterSysID: 1,
		MsecFirst:     1709287200000,
		MsecLast:      1709287200100,
		InPackets:     2,
		InBytes:       120,
		SrcPort:       53,
		DstPort:       40000,
		Proto:         17,
		SrcAddr:       nfx.AddrFrom(netip.MustParseAddr("10.0.0.1")),
		DstAddr:       nfx.AddrFrom(netip.MustParseAddr("10.0.0.2")),
		AggrFlows:     1,
		Elements:      []uint16{nfx.EXgenericFlow, nfx.EXipv4Flow},
	}
	return common.NewFlowMessage(rec, nil)
}

func TestGetFormats(t *testing.T) {
	names := format.GetFormats()
	sort.Strings(names)
	assert.Equal(t, []string{"bin", "csv", "json", "text"}, names)
}

func TestFindFormatUnknown(t *testing.T) {
	_, err := format.FindFormat("xml")
	assert.ErrorIs(t, err, format.ErrFormat)
}

func TestFormatJSON(t *testing.T) {
	f, err := format.FindFormat("json")
	require.NoError(t, err)
	_, out, err := f.Format(testMessage())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"src_addr":"10.0.0.1"`)
	assert.Contains(t, string(out), `"proto_name":"UDP"`)
}

func TestFormatText(t *testing.T) {
	f, err := format.FindFormat("text")
	require.NoError(t, err)
	_, out, err := f.Format(testMessage())
	require.NoError(t, err)
	assert.Contains(t, string(out), `dst_addr="10.0.0.2"`)

	_, _, err = f.Format(42)
	var derr *format.DriverFormatError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "text", derr.Driver)
	assert.ErrorIs(t, err, format.ErrNoSerializer)
	assert.ErrorIs(t, err, format.ErrFormat)
}

func TestFormatCSV(t *testing.T) {
	f, err := format.FindFormat("csv")
	require.NoError(t, err)
	msg := testMessage()

	header, err := f.Header(msg)
	require.NoError(t, err)
	_, out, err := f.Format(msg)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(header) + "\n" + string(out) + "\n")).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "time_first", rows[0][0])
	assert.Equal(t, "2024-03-01T10:00:00.000Z", rows[1][0])
	assert.Contains(t, rows[1], "[genericFlow,ipv4Flow]")
}

func TestFormatBinary(t *testing.T) {
	f, err := format.FindFormat("bin")
	require.NoError(t, err)
	msg := testMessage()

	header, err := f.Header(msg)
	require.NoError(t, err)
	assert.Nil(t, header)

	_, out, err := f.Format(msg)
	require.NoError(t, err)

	var rec nfx.Record
	require.NoError(t, nfx.DecodeRecord(out, &rec, nil))
	assert.Equal(t, msg.Record.SrcPort, rec.SrcPort)
	assert.Equal(t, msg.Record.InBytes, rec.InBytes)
	assert.Equal(t, msg.Record.Elements, rec.Elements)
}
