package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. Failed detection rounds are
// swallowed by the dispatcher on purpose, so these counters are the only
// place that failure rate is visible.
type Metrics struct {
	FramesCaptured   atomic.Uint64
	SourceReconnects atomic.Uint64
	DispatchRounds   atomic.Uint64
	DispatchFailures atomic.Uint64
	ResultsCommitted atomic.Uint64
	SnapshotsServed  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floodwatch_frames_captured_total",
			Help: "Total frames read from the video source",
		},
		func() float64 { return float64(m.FramesCaptured.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floodwatch_source_reconnects_total",
			Help: "Total reconnect attempts after losing the video source",
		},
		func() float64 { return float64(m.SourceReconnects.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floodwatch_dispatch_rounds_total",
			Help: "Total frames dispatched to the detection service",
		},
		func() float64 { return float64(m.DispatchRounds.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floodwatch_dispatch_failures_total",
			Help: "Total failed detection rounds (previous result kept)",
		},
		func() float64 { return float64(m.DispatchFailures.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floodwatch_results_committed_total",
			Help: "Total detection results committed to the result slot",
		},
		func() float64 { return float64(m.ResultsCommitted.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "floodwatch_snapshots_served_total",
			Help: "Total annotated snapshots served over HTTP",
		},
		func() float64 { return float64(m.SnapshotsServed.Load()) },
	))
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
