// Package builder resolves the format and transport drivers of a dump.
package builder

import (
	"fmt"

	"github.com/netsampler/nfcapd/format"
	"github.com/netsampler/nfcapd/transport"
)

// BuildFormatter resolves a formatter by name.
func BuildFormatter(name string) (*format.Format, error) {
	formatter, err := format.FindFormat(name)
	if err != nil {
		return nil, fmt.Errorf("build formatter %s: %w", name, err)
	}
	return formatter, nil
}

// BuildTransport resolves a transport by name.
func BuildTransport(name string) (*transport.Transport, error) {
	t, err := transport.FindTransport(name)
	if err != nil {
		return nil, fmt.Errorf("build transport %s: %w", name, err)
	}
	return t, nil
}
