package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "nfcapd"
)

var (
	MetricInputBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "input_bytes",
			Help:      "Bytes of records received.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricInputRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "input_records",
			Help:      "Records received by record type.",
			Namespace: NAMESPACE,
		},
		[]string{"ident", "type"},
	)
	MetricBadPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "bad_packets",
			Help:      "Input chunks abandoned after a fatal decoding error.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	DecoderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "decoder_error_count",
			Help:      "Decoder errors by kind.",
			Namespace: NAMESPACE,
		},
		[]string{"ident", "error"},
	)
	DecoderTime = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:      "summary_decoding_time_us",
			Help:      "Decoding time summary.",
			Namespace: NAMESPACE, Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"ident"},
	)
	MetricUnknownExtensions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "unknown_extensions",
			Help:      "Extensions skipped because their tag is unknown or disabled.",
			Namespace: NAMESPACE,
		},
		[]string{"extension"},
	)
	MetricSizeMismatch = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "record_size_mismatch",
			Help:      "Records whose encoded size differs from the announced size.",
			Namespace: NAMESPACE,
		},
	)
	MetricFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "flows",
			Help:      "Flows stored.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "flow_packets",
			Help:      "Packets accounted by stored flows.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "flow_bytes",
			Help:      "Bytes accounted by stored flows.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricExporters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:      "exporters",
			Help:      "Exporters known per flow source.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricSysIDs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "exporter_sysids_assigned",
			Help:      "Exporter system ids handed out.",
			Namespace: NAMESPACE,
		},
	)
	MetricBlocksWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "blocks_written",
			Help:      "Blocks written to storage.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricBlockRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "block_records",
			Help:      "Records written in blocks.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricBlockBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "block_bytes",
			Help:      "Bytes written to storage including block headers.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricBlockWriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "block_write_errors",
			Help:      "Failed block writes.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricBlockSize = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:      "summary_block_size_bytes",
			Help:      "Summary of uncompressed block size.",
			Namespace: NAMESPACE, Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"ident"},
	)
	MetricBlockWriteTime = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:      "summary_block_write_time_us",
			Help:      "Block write time summary.",
			Namespace: NAMESPACE, Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"ident"},
	)
	MetricRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "rotations",
			Help:      "Files rotated.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricRotationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "rotation_errors",
			Help:      "Failed file rotations.",
			Namespace: NAMESPACE,
		},
		[]string{"ident"},
	)
	MetricRotationTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "rotation_time_ms",
			Help:      "Duration of the last rotation of all flow sources.",
			Namespace: NAMESPACE,
		},
	)
)

func init() {
	prometheus.MustRegister(MetricInputBytes)
	prometheus.MustRegister(MetricInputRecords)
	prometheus.MustRegister(MetricBadPackets)
	prometheus.MustRegister(DecoderErrors)
	prometheus.MustRegister(DecoderTime)
	prometheus.MustRegister(MetricUnknownExtensions)
	prometheus.MustRegister(MetricSizeMismatch)

	prometheus.MustRegister(MetricFlows)
	prometheus.MustRegister(MetricPackets)
	prometheus.MustRegister(MetricBytes)
	prometheus.MustRegister(MetricExporters)
	prometheus.MustRegister(MetricSysIDs)

	prometheus.MustRegister(MetricBlocksWritten)
	prometheus.MustRegister(MetricBlockRecords)
	prometheus.MustRegister(MetricBlockBytes)
	prometheus.MustRegister(MetricBlockWriteErrors)
	prometheus.MustRegister(MetricBlockSize)
	prometheus.MustRegister(MetricBlockWriteTime)

	prometheus.MustRegister(MetricRotations)
	prometheus.MustRegister(MetricRotationErrors)
	prometheus.MustRegister(MetricRotationTime)
}
