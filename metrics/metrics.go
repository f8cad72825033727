// Package metrics exposes Prometheus metrics for the sync pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/prism/pulse/async"
)

// Metrics holds the sync pipeline collectors.
type Metrics struct {
	JobsProcessed  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	FanoutUnits    *prometheus.HistogramVec
	ReconcileRuns  *prometheus.CounterVec
	ReconcileLast  prometheus.Gauge
	ReconcileCount prometheus.Counter
	registry       *prometheus.Registry
}

// New creates the collectors on a private registry, so tests and several
// daemons in one process never collide on registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_jobs_processed_total",
			Help: "Jobs finished by the worker pools, by queue, handler and outcome",
		}, []string{"queue", "handler", "outcome"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prism_job_duration_seconds",
			Help:    "Wall time of one job attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "handler"}),
		FanoutUnits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prism_fanout_units",
			Help:    "Units planned by one fan-out, by mutated model",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"model"}),
		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_reconcile_runs_total",
			Help: "Reconcile passes by result (ok, skipped, failed)",
		}, []string{"result"}),
		ReconcileLast: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prism_reconcile_last_success_timestamp_seconds",
			Help: "Unix time of the last reconcile pass that advanced the watermark",
		}),
		ReconcileCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "prism_reconcile_records_total",
			Help: "Records re-triggered by reconcile passes",
		}),
		registry: reg,
	}
}

// ObserveJob records one finished job attempt. It satisfies async.Observer.
func (m *Metrics) ObserveJob(queue, handler string, outcome async.Outcome, elapsed time.Duration) {
	m.JobsProcessed.WithLabelValues(queue, handler, string(outcome)).Inc()
	m.JobDuration.WithLabelValues(queue, handler).Observe(elapsed.Seconds())
}

// ObserveFanout records the size of one fan-out.
func (m *Metrics) ObserveFanout(model string, units int) {
	m.FanoutUnits.WithLabelValues(model).Observe(float64(units))
}

// ObserveReconcile records one reconcile pass.
func (m *Metrics) ObserveReconcile(result string, records int, finishedAt time.Time) {
	m.ReconcileRuns.WithLabelValues(result).Inc()
	m.ReconcileCount.Add(float64(records))
	if result == ResultOK {
		m.ReconcileLast.Set(float64(finishedAt.Unix()))
	}
}

// Reconcile results
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ async.Observer = (*Metrics)(nil)
