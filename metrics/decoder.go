package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/netsampler/nfcapd/decoders/nfx"

	"github.com/prometheus/client_golang/prometheus"
)

// PromDecoderOptions returns a copy of opts whose hooks feed the codec metrics.
// Hooks already present are still called.
func PromDecoderOptions(opts nfx.Options) *nfx.Options {
	onUnknown := opts.OnUnknown
	opts.OnUnknown = func(tag uint16) {
		MetricUnknownExtensions.With(
			prometheus.Labels{
				"extension": extensionLabel(tag),
			}).
			Inc()
		if onUnknown != nil {
			onUnknown(tag)
		}
	}
	onSizeMismatch := opts.OnSizeMismatch
	opts.OnSizeMismatch = func(emitted, required int) {
		MetricSizeMismatch.Inc()
		if onSizeMismatch != nil {
			onSizeMismatch(emitted, required)
		}
	}
	return &opts
}

// extensionLabel keeps the label set bounded: tags outside the catalog
// share one value.
func extensionLabel(tag uint16) string {
	if tag < nfx.MaxExtensions {
		return strconv.Itoa(int(tag))
	}
	return "unknown"
}

// DecoderErrorKind maps a decoding error to a metric label.
func DecoderErrorKind(err error) string {
	switch {
	case errors.Is(err, nfx.ErrRecordTooSmall):
		return "record_too_small"
	case errors.Is(err, nfx.ErrRecordType):
		return "record_type"
	case errors.Is(err, nfx.ErrElementLength):
		return "element_length"
	case errors.Is(err, nfx.ErrCursorOverrun):
		return "cursor_overrun"
	case errors.Is(err, nfx.ErrShortExtension):
		return "short_extension"
	case errors.Is(err, nfx.ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, nfx.ErrTooManyElements):
		return "too_many_elements"
	default:
		return "error_decoding"
	}
}

// PromDecodeRecord decodes a record and accounts time and errors to ident.
func PromDecodeRecord(data []byte, rec *nfx.Record, opts *nfx.Options, ident string) error {
	timeTrackStart := time.Now().UTC()

	err := nfx.DecodeRecord(data, rec, opts)

	DecoderTime.With(
		prometheus.Labels{
			"ident": ident,
		}).
		Observe(float64(time.Since(timeTrackStart).Nanoseconds()) / 1000)

	if err != nil {
		DecoderErrors.With(
			prometheus.Labels{
				"ident": ident,
				"error": DecoderErrorKind(err),
			}).
			Inc()
	}
	return err
}
