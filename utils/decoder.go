package utils

import (
	"net/netip"
	"time"
)

// Message is one chunk of records received from a peer.
type Message struct {
	Peer     netip.Addr
	Payload  []byte
	Received time.Time
}

type DecoderFunc func(msg *Message) error
