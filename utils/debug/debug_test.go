package debug

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/netsampler/nfcapd/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicDecoderWrapper(t *testing.T) {
	decode := PanicDecoderWrapper(func(msg *utils.Message) error {
		if len(msg.Payload) == 0 {
			panic("empty payload")
		}
		return nil
	})

	peer := netip.MustParseAddr("192.0.2.1")
	require.NoError(t, decode(&utils.Message{Peer: peer, Payload: []byte{1}}))

	err := decode(&utils.Message{Peer: peer})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPanic))

	var pErr *PanicErrorMessage
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "empty payload", pErr.Inner)
	assert.Equal(t, peer, pErr.Peer)
	assert.Equal(t, 0, pErr.Size)
	assert.NotEmpty(t, pErr.Stacktrace)
	assert.Contains(t, err.Error(), "panic processing 0 bytes of records from 192.0.2.1")
}
