package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stopwatch reports the duration of a phase to a gauge, in milliseconds.
type Stopwatch struct {
	start time.Time
}

func StartStopwatch() Stopwatch {
	return Stopwatch{start: time.Now()}
}

// Observe sets metric to the time elapsed since the start and returns it.
func (s Stopwatch) Observe(metric prometheus.Gauge) time.Duration {
	d := time.Since(s.start)
	metric.Set(float64(d.Milliseconds()))
	return d
}
