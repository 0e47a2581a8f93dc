package debug

import (
	"fmt"
	"net/netip"
)

var (
	ErrPanic = fmt.Errorf("panic")
)

// PanicErrorMessage carries a panic recovered while processing a chunk of
// records from Peer.
type PanicErrorMessage struct {
	Peer       netip.Addr
	Size       int
	Msg        interface{}
	Inner      string
	Stacktrace []byte
}

func (e *PanicErrorMessage) Error() string {
	return fmt.Sprintf("panic processing %d bytes of records from %s: %s", e.Size, e.Peer, e.Inner)
}

func (e *PanicErrorMessage) Unwrap() []error {
	return []error{ErrPanic}
}
