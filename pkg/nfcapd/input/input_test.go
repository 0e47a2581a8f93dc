package input

import (
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInputs(t *testing.T) {
	def := netip.MustParseAddr("127.0.0.1")
	cfgs, err := ParseInputs("-, /var/spool/a.nfd,file:///var/spool/b.nfd?peer=192.0.2.7,stdin://?peer=2001:db8::1", def)
	require.NoError(t, err)
	require.Len(t, cfgs, 4)

	assert.Equal(t, InputConfig{Scheme: "stdin", Peer: def}, cfgs[0])
	assert.Equal(t, InputConfig{Scheme: "file", Path: "/var/spool/a.nfd", Peer: def}, cfgs[1])
	assert.Equal(t, InputConfig{Scheme: "file", Path: "/var/spool/b.nfd", Peer: netip.MustParseAddr("192.0.2.7")}, cfgs[2])
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), cfgs[3].Peer)
	assert.Equal(t, "file:///var/spool/b.nfd", cfgs[2].String())
	assert.Equal(t, "stdin", cfgs[0].String())
}

func TestParseInputsErrors(t *testing.T) {
	def := netip.MustParseAddr("127.0.0.1")
	for _, list := range []string{"", " , ", "udp://:2055", "file://", "file:///a?peer=nope"} {
		_, err := ParseInputs(list, def)
		assert.Error(t, err, list)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream")
	require.NoError(t, os.WriteFile(path, []byte("records"), 0o644))

	r, err := InputConfig{Scheme: "file", Path: path}.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "records", string(data))
	require.NoError(t, r.Close())

	_, err = InputConfig{Scheme: "udp"}.Open()
	assert.Error(t, err)
}
