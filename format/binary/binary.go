// Package binary writes flow records in their wire encoding, so that a dump
// can be fed back to a collector as a record stream.
package binary

import (
	"encoding"

	"github.com/netsampler/nfcapd/decoders/nfx"
	"github.com/netsampler/nfcapd/format"
	"github.com/netsampler/nfcapd/format/common"
)

type BinaryDriver struct{}

func (d *BinaryDriver) Prepare() error {
	return nil
}

func (d *BinaryDriver) Init() error {
	return nil
}

// Format encodes flow messages and records with nfx; other values must be
// encoding.BinaryMarshaler. No key is produced.
func (d *BinaryDriver) Format(data interface{}) ([]byte, []byte, error) {
	switch msg := data.(type) {
	case *common.FlowMessage:
		b, err := msg.MarshalBinary()
		return nil, b, err
	case *nfx.Record:
		b, err := nfx.EncodeRecord(msg, nil)
		return nil, b, err
	case encoding.BinaryMarshaler:
		b, err := msg.MarshalBinary()
		return nil, b, err
	}
	return nil, nil, format.ErrNoSerializer
}

func init() {
	d := &BinaryDriver{}
	format.RegisterFormatDriver("bin", d)
}
