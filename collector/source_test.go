package collector

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/netsampler/nfcapd/decoders/nfx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFlowSource(t *testing.T) {
	dir := t.TempDir()
	sources := NewSources(nil, quietLogger)

	fs, err := sources.AddFlowSource("upstream,192.0.2.1," + dir)
	require.NoError(t, err)
	assert.Equal(t, "upstream", fs.Ident)
	assert.Equal(t, nfx.FamilyIPv4, fs.Family)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), fs.Addr())
	assert.True(t, strings.HasPrefix(filepath.Base(fs.Current), CurrentPrefix+"."))
	assert.Equal(t, fs.DataDir, filepath.Dir(fs.Current))

	fs, err = sources.AddFlowSource("v6,2001:db8::2," + dir)
	require.NoError(t, err)
	assert.Equal(t, nfx.FamilyIPv6, fs.Family)
	assert.Equal(t, 2, sources.Len())
}

func TestAddFlowSourceErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name string
		def  string
		err  error
	}{
		{"syntax", "upstream,192.0.2.1", ErrSyntax},
		{"address", "upstream,not-an-ip," + dir, ErrAddress},
		{"empty ident", ",192.0.2.1," + dir, ErrIdent},
		{"blank in ident", "up stream,192.0.2.1," + dir, ErrIdent},
		{"long ident", strings.Repeat("x", IdentLen) + ",192.0.2.1," + dir, ErrIdent},
		{"not a directory", "upstream,192.0.2.1," + file, ErrNotDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources := NewSources(nil, quietLogger)
			_, err := sources.AddFlowSource(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			var se *SourceError
			assert.ErrorAs(t, err, &se)
			assert.Zero(t, sources.Len())
		})
	}
}

func TestSourceModesExclusive(t *testing.T) {
	dir := t.TempDir()

	sources := NewSources(nil, quietLogger)
	_, err := sources.AddDefaultFlowSource("any", dir)
	require.NoError(t, err)
	_, err = sources.AddFlowSource("upstream,192.0.2.1," + dir)
	assert.ErrorIs(t, err, ErrAmbiguous)
	_, err = sources.AddDefaultFlowSource("other", dir)
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.ErrorIs(t, sources.SetDynamicSourcesDir(dir), ErrSourcesDefined)

	sources = NewSources(nil, quietLogger)
	require.NoError(t, sources.SetDynamicSourcesDir(dir))
	_, err = sources.AddFlowSource("upstream,192.0.2.1," + dir)
	assert.ErrorIs(t, err, ErrDynamicMode)
	_, err = sources.AddDefaultFlowSource("any", dir)
	assert.ErrorIs(t, err, ErrDynamicMode)
}

func TestAddFlowSourceFromFile(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(t.TempDir(), "sources")
	content := "a,192.0.2.1," + dir + "\n\nbroken line\nb,192.0.2.2," + dir + "\n"
	require.NoError(t, os.WriteFile(list, []byte(content), 0o644))

	sources := NewSources(nil, quietLogger)
	err := sources.AddFlowSourceFromFile(list)
	assert.ErrorIs(t, err, ErrSyntax)
	require.Equal(t, 2, sources.Len())
	assert.Equal(t, "a", sources.List()[0].Ident)
	assert.Equal(t, "b", sources.List()[1].Ident)

	assert.Error(t, sources.AddFlowSourceFromFile(dir))
}

func TestGetFlowSource(t *testing.T) {
	dir := t.TempDir()
	sources := NewSources(nil, quietLogger)
	a, err := sources.AddFlowSource("a,192.0.2.1," + dir)
	require.NoError(t, err)

	fs, created, err := sources.GetFlowSource(netip.MustParseAddr("::ffff:192.0.2.1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, a, fs)

	// same low 32 bits, other family
	_, _, err = sources.GetFlowSource(netip.MustParseAddr("::c000:201"))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestDynamicSource(t *testing.T) {
	dir := t.TempDir()
	sources := NewSources(nil, quietLogger)
	require.NoError(t, sources.SetDynamicSourcesDir(dir))

	fs, created, err := sources.GetFlowSource(netip.MustParseAddr("2001:db8::5"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "2001-db8--5", fs.Ident)
	assert.Equal(t, filepath.Join(dir, "2001-db8--5"), fs.DataDir)
	info, err := os.Stat(fs.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	again, created, err := sources.GetFlowSource(netip.MustParseAddr("2001:db8::5"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, fs, again)

	_, _, err = NewSources(nil, quietLogger).GetFlowSource(netip.MustParseAddr("2001:db8::5"))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestSourcesShareSysIDs(t *testing.T) {
	dir := t.TempDir()
	sources := NewSources(nil, quietLogger)
	a, err := sources.AddFlowSource("a,192.0.2.1," + dir)
	require.NoError(t, err)
	b, err := sources.AddFlowSource("b,192.0.2.2," + dir)
	require.NoError(t, err)

	dst := &capture{}
	ea := a.Exporters.Add(nfx.ExporterInfoRecord{Version: 9, IP: nfx.IPv4Addr(1), Family: nfx.FamilyIPv4})
	require.NoError(t, a.Exporters.FlushExporterInfo(ea, dst))
	eb := b.Exporters.Add(nfx.ExporterInfoRecord{Version: 9, IP: nfx.IPv4Addr(1), Family: nfx.FamilyIPv4})
	require.NoError(t, b.Exporters.FlushExporterInfo(eb, dst))

	assert.Equal(t, uint16(1), ea.Info.SysID)
	assert.Equal(t, uint16(2), eb.Info.SysID)
	assert.Equal(t, uint32(1), a.ExporterCount())
}
