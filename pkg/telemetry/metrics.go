package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the compile and plan pipeline.
// A zero-config disabled instance is a safe no-op.
type Metrics struct {
	enabled bool

	compilesTotal   *prometheus.CounterVec
	compileDuration prometheus.Histogram
	plansTotal      *prometheus.CounterVec
	planDuration    prometheus.Histogram
	planNodes       prometheus.Histogram
	errorsByKind    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When enabled is false every
// recording method is a no-op.
func NewMetrics(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}
	if !enabled {
		return m
	}

	m.registry = prometheus.NewRegistry()
	m.compilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simflow",
			Name:      "compiles_total",
			Help:      "Total project compilations",
		},
		[]string{"status"},
	)
	m.compileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "simflow",
			Name:      "compile_duration_seconds",
			Help:      "Duration of project compilation",
			Buckets:   prometheus.DefBuckets,
		},
	)
	m.plansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simflow",
			Name:      "plans_total",
			Help:      "Total plans produced",
		},
		[]string{"status"},
	)
	m.planDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "simflow",
			Name:      "plan_duration_seconds",
			Help:      "Duration of planning",
			Buckets:   prometheus.DefBuckets,
		},
	)
	m.planNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "simflow",
			Name:      "plan_nodes",
			Help:      "Scenario nodes per plan",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)
	m.errorsByKind = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simflow",
			Name:      "errors_total",
			Help:      "Errors by kind",
		},
		[]string{"kind"},
	)

	m.registry.MustRegister(
		m.compilesTotal, m.compileDuration,
		m.plansTotal, m.planDuration, m.planNodes,
		m.errorsByKind,
	)
	return m
}

// RecordCompile records one compilation attempt.
func (m *Metrics) RecordCompile(d time.Duration, err error) {
	if !m.enabled {
		return
	}
	m.compilesTotal.WithLabelValues(status(err)).Inc()
	m.compileDuration.Observe(d.Seconds())
}

// RecordPlan records one planning attempt.
func (m *Metrics) RecordPlan(d time.Duration, nodes int, err error) {
	if !m.enabled {
		return
	}
	m.plansTotal.WithLabelValues(status(err)).Inc()
	m.planDuration.Observe(d.Seconds())
	if err == nil {
		m.planNodes.Observe(float64(nodes))
	}
}

// RecordError counts an error by kind label.
func (m *Metrics) RecordError(kind string) {
	if !m.enabled {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Handler returns an HTTP handler exposing the registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
