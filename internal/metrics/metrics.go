// Package metrics exposes Prometheus metrics for validation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "csvlint"

// Collector records run-level metrics. A nil *Collector is valid and
// records nothing, which keeps the CLI free of metric plumbing.
type Collector struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	rowsTotal   prometheus.Counter
	runDuration prometheus.Histogram
	activeRuns  prometheus.Gauge
	rejections  *prometheus.CounterVec
}

// NewCollector registers all metrics on registry. A nil registry gets a
// fresh one so tests never collide on the global default.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Validation runs by result (valid, invalid, error).",
		}, []string{"result"}),
		diagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported, by kind and severity.",
		}, []string{"kind", "severity"}),
		rowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_validated_total",
			Help:      "Data rows validated across all tables.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of validation runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Validation runs currently in progress.",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limiter_rejections_total",
			Help:      "Runs that could not get a slot, by reason.",
		}, []string{"reason"}),
	}
}

// RunStarted marks a run as in progress.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunFinished records a completed run. result is "valid", "invalid" or
// "error".
func (c *Collector) RunFinished(result string, rows int, d time.Duration) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.runsTotal.WithLabelValues(result).Inc()
	c.rowsTotal.Add(float64(rows))
	c.runDuration.Observe(d.Seconds())
}

// Diagnostic counts one reported diagnostic.
func (c *Collector) Diagnostic(kind, severity string) {
	if c == nil {
		return
	}
	c.diagnostics.WithLabelValues(kind, severity).Inc()
}

// Rejected counts a run turned away by the concurrency limiter.
func (c *Collector) Rejected(reason string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(reason).Inc()
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
