package csv

import (
	"bytes"
	"encoding/csv"

	"github.com/netsampler/nfcapd/format"
	"github.com/netsampler/nfcapd/format/common"
)

type CSVDriver struct {
}

func (d *CSVDriver) Prepare() error {
	common.HashFlag()
	common.SelectorFlag()
	return nil
}

func (d *CSVDriver) Init() error {
	if err := common.ManualHashInit(); err != nil {
		return err
	}
	return common.ManualSelectorInit()
}

func line(values []string) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(values); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Header renders the column names.
func (d *CSVDriver) Header(data interface{}) ([]byte, error) {
	if dataIf, ok := data.(*common.FlowMessage); ok {
		return line(common.FieldNames(dataIf.View()))
	}
	return nil, format.ErrNoSerializer
}

func (d *CSVDriver) Format(data interface{}) ([]byte, []byte, error) {
	var key []byte
	if dataIf, ok := data.(interface{ Key() []byte }); ok {
		key = dataIf.Key()
	}
	if dataIf, ok := data.(*common.FlowMessage); ok {
		text, err := line(common.FormatMessageReflectCSV(dataIf.View()))
		return key, text, err
	}
	return key, nil, format.ErrNoSerializer
}

func init() {
	d := &CSVDriver{}
	format.RegisterFormatDriver("csv", d)
}
