package json

import (
	"encoding/json"
	"flag"

	"github.com/netsampler/nfcapd/format"
	"github.com/netsampler/nfcapd/format/common"
)

type JsonDriver struct {
	indent bool
}

func (d *JsonDriver) Prepare() error {
	common.HashFlag()
	flag.BoolVar(&d.indent, "format.json.indent", false, "Indent JSON output")
	return nil
}

func (d *JsonDriver) Init() error {
	return common.ManualHashInit()
}

func (d *JsonDriver) Format(data interface{}) ([]byte, []byte, error) {
	var key []byte
	if dataIf, ok := data.(interface{ Key() []byte }); ok {
		key = dataIf.Key()
	}
	if d.indent {
		output, err := json.MarshalIndent(data, "", "  ")
		return key, output, err
	}
	output, err := json.Marshal(data)
	return key, output, err
}

func init() {
	d := &JsonDriver{}
	format.RegisterFormatDriver("json", d)
}
