package debug

import (
	"fmt"
	"runtime/debug"

	"github.com/netsampler/nfcapd/utils"
)

// PanicDecoderWrapper turns a panic of wrapped into a *PanicErrorMessage.
func PanicDecoderWrapper(wrapped utils.DecoderFunc) utils.DecoderFunc {
	return func(msg *utils.Message) (err error) {
		defer func() {
			if pErr := recover(); pErr != nil {
				err = &PanicErrorMessage{
					Peer:       msg.Peer,
					Size:       len(msg.Payload),
					Msg:        pErr,
					Inner:      fmt.Sprint(pErr),
					Stacktrace: debug.Stack(),
				}
			}
		}()
		err = wrapped(msg)
		return err
	}
}
