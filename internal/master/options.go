package master

import "github.com/ChuLiYu/beaver-queue/internal/metrics"

// Option configures optional Master behavior at StartMaster time.
type Option func(*Master)

// WithMetrics attaches a metrics.Collector: every session dispatches,
// completions, and requeues are recorded on it, and a background poller
// keeps its queue-depth gauges current.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Master) {
		m.metrics = c
	}
}
