package input

import (
	"fmt"
	"io"
	"net/netip"
	"net/url"
	"os"
	"strings"
)

// InputConfig defines a parsed record stream input.
type InputConfig struct {
	Scheme string
	Path   string
	Peer   netip.Addr
}

func (c InputConfig) String() string {
	if c.Scheme == "stdin" {
		return "stdin"
	}
	return c.Scheme + "://" + c.Path
}

// ParseInputs parses a comma separated list of inputs. An entry is "-"
// (stdin), a plain path, or a file:// or stdin:// URL; the peer query
// parameter overrides defaultPeer.
func ParseInputs(list string, defaultPeer netip.Addr) ([]InputConfig, error) {
	var cfgs []InputConfig
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "-" {
			cfgs = append(cfgs, InputConfig{Scheme: "stdin", Peer: defaultPeer})
			continue
		}
		if !strings.Contains(entry, "://") {
			cfgs = append(cfgs, InputConfig{Scheme: "file", Path: entry, Peer: defaultPeer})
			continue
		}

		inputURL, err := url.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("parse input %q: %w", entry, err)
		}
		peer := defaultPeer
		if inputURL.Query().Has("peer") {
			peer, err = netip.ParseAddr(inputURL.Query().Get("peer"))
			if err != nil {
				return nil, fmt.Errorf("error parsing peer in URL: %w", err)
			}
		}

		cfg := InputConfig{Scheme: inputURL.Scheme, Peer: peer}
		switch inputURL.Scheme {
		case "stdin":
		case "file":
			cfg.Path = inputURL.Host + inputURL.Path
			if cfg.Path == "" {
				return nil, fmt.Errorf("input %q has no path", entry)
			}
		default:
			return nil, fmt.Errorf("input scheme %s not supported", inputURL.Scheme)
		}
		cfgs = append(cfgs, cfg)
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no input in %q", list)
	}
	return cfgs, nil
}

// Open opens the stream of an input.
func (c InputConfig) Open() (io.ReadCloser, error) {
	switch c.Scheme {
	case "stdin":
		return io.NopCloser(os.Stdin), nil
	case "file":
		return os.Open(c.Path)
	default:
		return nil, fmt.Errorf("input scheme %s not supported", c.Scheme)
	}
}
