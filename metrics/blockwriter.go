package metrics

import (
	"time"

	"github.com/netsampler/nfcapd/nffile"

	"github.com/prometheus/client_golang/prometheus"
)

// WrapPromBlockWriter records block storage metrics for a flow source.
func WrapPromBlockWriter(wrapped nffile.BlockWriter, ident string) nffile.BlockWriter {
	labels := prometheus.Labels{"ident": ident}
	return nffile.BlockWriterFunc(func(hdr nffile.BlockHeader, data []byte) (int, error) {
		timeTrackStart := time.Now().UTC()

		n, err := wrapped.WriteBlock(hdr, data)

		MetricBlockWriteTime.With(labels).
			Observe(float64(time.Since(timeTrackStart).Nanoseconds()) / 1000)

		if err != nil {
			MetricBlockWriteErrors.With(labels).Inc()
			return n, err
		}
		MetricBlocksWritten.With(labels).Inc()
		MetricBlockRecords.With(labels).Add(float64(hdr.NumRecords))
		MetricBlockBytes.With(labels).Add(float64(n))
		MetricBlockSize.With(labels).Observe(float64(hdr.Size))
		return n, nil
	})
}
