package builder

import (
	"testing"

	"github.com/netsampler/nfcapd/format"
	_ "github.com/netsampler/nfcapd/format/json"
	"github.com/netsampler/nfcapd/transport"
	_ "github.com/netsampler/nfcapd/transport/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFormatter(t *testing.T) {
	f, err := BuildFormatter("json")
	require.NoError(t, err)
	assert.Equal(t, "json", f.Name())

	_, err = BuildFormatter("yaml")
	assert.ErrorIs(t, err, format.ErrFormat)
	assert.ErrorContains(t, err, "build formatter yaml")
}

func TestBuildTransport(t *testing.T) {
	_, err := BuildTransport("kafka")
	assert.ErrorIs(t, err, transport.ErrTransport)
	assert.ErrorContains(t, err, "build transport kafka")
}
