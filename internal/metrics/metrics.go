// Package metrics collects and exposes Prometheus metrics for the dispatch
// engine: job counters, a dispatch-latency histogram, and live gauges for
// queue depth and connected workers.
//
// Metric categories:
//
//   1. Job counters - cumulative, monotonically increasing:
//      - beaverqueue_jobs_submitted_total
//      - beaverqueue_jobs_dispatched_total
//      - beaverqueue_jobs_completed_total
//      - beaverqueue_jobs_requeued_total
//
//   2. Performance - distribution stats:
//      - beaverqueue_job_latency_seconds: dispatch-to-result latency
//
//   3. Status - instantaneous values:
//      - beaverqueue_job_sets_active
//      - beaverqueue_jobs_pending
//      - beaverqueue_workers_connected
//
// Alerting starting points:
//   - job_latency_seconds p95 climbing -> worker pool saturated
//   - jobs_requeued_total rate increase -> workers crashing under load
//   - jobs_pending steady growth with workers_connected flat -> add workers
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric this process exports. Unlike the teacher's
// Collector, which registers onto prometheus's global DefaultRegisterer,
// this one owns a private Registry — constructing more than one Collector
// in the same process (every metrics_test.go case builds its own) would
// otherwise panic on duplicate registration. See DESIGN.md.
type Collector struct {
	registry *prometheus.Registry

	jobsSubmitted  prometheus.Counter
	jobsDispatched prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsRequeued   prometheus.Counter

	jobLatency prometheus.Histogram

	jobSetsActive    prometheus.Gauge
	jobsPending      prometheus.Gauge
	workersConnected prometheus.Gauge
}

// NewCollector builds a Collector with its own private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beaverqueue_jobs_submitted_total",
			Help: "Total number of jobs submitted across all job sets.",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beaverqueue_jobs_dispatched_total",
			Help: "Total number of jobs handed to a worker.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beaverqueue_jobs_completed_total",
			Help: "Total number of jobs that produced a result.",
		}),
		jobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beaverqueue_jobs_requeued_total",
			Help: "Total number of jobs returned to circulation after a worker failure.",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beaverqueue_job_latency_seconds",
			Help:    "Time between a job being dispatched and its result arriving.",
			Buckets: prometheus.DefBuckets,
		}),
		jobSetsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beaverqueue_job_sets_active",
			Help: "Number of job sets currently active or pending.",
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beaverqueue_jobs_pending",
			Help: "Number of jobs currently queued but not yet dispatched.",
		}),
		workersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beaverqueue_workers_connected",
			Help: "Number of worker connections currently attached.",
		}),
	}

	c.registry.MustRegister(
		c.jobsSubmitted,
		c.jobsDispatched,
		c.jobsCompleted,
		c.jobsRequeued,
		c.jobLatency,
		c.jobSetsActive,
		c.jobsPending,
		c.workersConnected,
	)
	return c
}

// RecordSubmit counts n newly submitted jobs.
func (c *Collector) RecordSubmit(n int) {
	c.jobsSubmitted.Add(float64(n))
}

// RecordDispatch counts one job handed to a worker.
func (c *Collector) RecordDispatch() {
	c.jobsDispatched.Inc()
}

// RecordCompleted counts one job resolved, observing its dispatch-to-result
// latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.jobsCompleted.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordRequeued counts one job returned to circulation after a worker
// failure.
func (c *Collector) RecordRequeued() {
	c.jobsRequeued.Inc()
}

// SetJobSetsActive reports the current number of live job sets (active plus
// pending).
func (c *Collector) SetJobSetsActive(n int) {
	c.jobSetsActive.Set(float64(n))
}

// SetJobsPending reports the current queue depth.
func (c *Collector) SetJobsPending(n int) {
	c.jobsPending.Set(float64(n))
}

// SetWorkersConnected reports the current worker connection count.
func (c *Collector) SetWorkersConnected(n int) {
	c.workersConnected.Set(float64(n))
}

// Handler returns the HTTP handler that serves this Collector's metrics in
// Prometheus text format, for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer runs an HTTP server exposing Handler at /metrics on port.
func (c *Collector) StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
