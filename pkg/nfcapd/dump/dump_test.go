package dump

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/netsampler/nfcapd/format"
	_ "github.com/netsampler/nfcapd/format/csv"
	_ "github.com/netsampler/nfcapd/format/json"
	"github.com/netsampler/nfcapd/nffile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type sink struct {
	lines []string
	err   error
}

func (s *sink) Send(key, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, string(data))
	return nil
}

func appendRecord(t *testing.T, f *nffile.File, b []byte) {
	t.Helper()
	require.NoError(t, f.Block().EnsureSpace(len(b)))
	require.NoError(t, f.Block().Append(b))
}

func writeFile(t *testing.T, flows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nfcapd.202403011000")
	f, err := nffile.OpenNewFile(path, &nffile.Options{
		Compression: nffile.CompressionLZ4,
		Logger:      quietLogger,
	})
	require.NoError(t, err)

	info := &nfx.ExporterInfoRecord{
		Version: 9,
		IP:      nfx.IPv4Addr(0x0a000001),
		Family:  nfx.FamilyIPv4,
		SysID:   1,
	}
	b, err := info.MarshalBinary()
	require.NoError(t, err)
	appendRecord(t, f, b)

	for i := 0; i < flows; i++ {
		rec := &nfx.Record{
			ExporterSysID: 1,
			MsecFirst:     1709287200000 + uint64(i),
			MsecLast:      1709287201000 + uint64(i),
			InPackets:     1,
			InBytes:       64,
			SrcPort:       uint16(1000 + i),
			DstPort:       53,
			Proto:         17,
			SrcAddr:       nfx.IPv4Addr(0x0a000002),
			DstAddr:       nfx.IPv4Addr(0x0a000003),
			Elements:      []uint16{nfx.EXgenericFlow, nfx.EXipv4Flow},
		}
		b, err := nfx.EncodeRecord(rec, nil)
		require.NoError(t, err)
		appendRecord(t, f, b)
		f.Stat().NumFlows++
		f.Stat().NumPackets++
		f.Stat().NumBytes += 64
		f.Stat().Seen(rec.MsecFirst, rec.MsecLast)
	}
	f.SetIdent("edge")
	require.NoError(t, f.Close())
	return path
}

func TestDumpJSON(t *testing.T) {
	path := writeFile(t, 3)
	f, err := format.FindFormat("json")
	require.NoError(t, err)
	s := &sink{}

	summary, err := Dump(context.Background(), []string{path}, f, s, &Options{Logger: quietLogger, NSEL: true, Exporters: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, uint64(1), summary.Blocks)
	assert.Equal(t, uint64(4), summary.Records)
	assert.Equal(t, uint64(3), summary.Flows)
	assert.Equal(t, uint64(0), summary.Skipped)
	assert.Equal(t, uint64(3), summary.Stat.NumFlows)
	assert.Equal(t, uint64(192), summary.Stat.NumBytes)

	require.Len(t, s.lines, 3)
	var flow map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s.lines[1]), &flow))
	assert.Equal(t, float64(1001), flow["src_port"])
	assert.Equal(t, "10.0.0.3", flow["dst_addr"])
}

func TestDumpCSVHeader(t *testing.T) {
	path := writeFile(t, 2)
	f, err := format.FindFormat("csv")
	require.NoError(t, err)
	s := &sink{}

	summary, err := Dump(context.Background(), []string{path, path}, f, s, &Options{Logger: quietLogger})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, uint64(4), summary.Flows)
	require.Len(t, s.lines, 5)
	assert.Contains(t, s.lines[0], "time_first,")
}

func TestDumpLimit(t *testing.T) {
	path := writeFile(t, 10)
	f, err := format.FindFormat("json")
	require.NoError(t, err)
	s := &sink{}

	summary, err := Dump(context.Background(), []string{path, path}, f, s, &Options{Logger: quietLogger, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), summary.Flows)
	assert.Equal(t, 1, summary.Files)
	assert.Len(t, s.lines, 4)
}

func TestDumpErrors(t *testing.T) {
	f, err := format.FindFormat("json")
	require.NoError(t, err)

	_, err = Dump(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, f, &sink{}, nil)
	assert.Error(t, err)

	sendErr := errors.New("broken pipe")
	_, err = Dump(context.Background(), []string{writeFile(t, 1)}, f, &sink{err: sendErr}, &Options{Logger: quietLogger})
	assert.ErrorIs(t, err, sendErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Dump(ctx, []string{writeFile(t, 1)}, f, &sink{}, &Options{Logger: quietLogger})
	assert.ErrorIs(t, err, context.Canceled)
}
