// Package metrics provides Prometheus metrics export for the suggestion
// streams.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter exports suggestion stream metrics in Prometheus format. A nil
// *Exporter is valid and records nothing, so callers never need to guard
// instrumentation sites.
type Exporter struct {
	registry *prometheus.Registry

	settles        *prometheus.CounterVec
	staleDrops     *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	cycleLatency   *prometheus.HistogramVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}
}

// NewExporter creates a new suggestion metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.settles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindvault",
			Subsystem: "suggest",
			Name:      "settles_total",
			Help:      "Settle cycles started per stream",
		},
		[]string{"stream"},
	)
	e.staleDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindvault",
			Subsystem: "suggest",
			Name:      "stale_drops_total",
			Help:      "In-flight results dropped because a newer cycle superseded them",
		},
		[]string{"stream"},
	)
	e.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindvault",
			Subsystem: "suggest",
			Name:      "provider_errors_total",
			Help:      "Provider call failures per stream",
		},
		[]string{"stream"},
	)
	e.cycleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mindvault",
			Subsystem: "suggest",
			Name:      "cycle_latency_seconds",
			Help:      "Settle-to-publish latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"stream"},
	)

	registry.MustRegister(e.settles, e.staleDrops, e.providerErrors, e.cycleLatency)
	return e
}

// Registry returns the underlying Prometheus registry, or nil for a nil
// exporter.
func (e *Exporter) Registry() *prometheus.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// RecordSettle records a settle cycle starting on a stream.
func (e *Exporter) RecordSettle(stream string) {
	if e == nil {
		return
	}
	e.settles.WithLabelValues(stream).Inc()
}

// RecordStaleDrop records an in-flight result dropped as superseded.
func (e *Exporter) RecordStaleDrop(stream string) {
	if e == nil {
		return
	}
	e.staleDrops.WithLabelValues(stream).Inc()
}

// RecordProviderError records a provider call failure.
func (e *Exporter) RecordProviderError(stream string) {
	if e == nil {
		return
	}
	e.providerErrors.WithLabelValues(stream).Inc()
}

// RecordCycleLatency records a completed cycle's settle-to-publish latency.
func (e *Exporter) RecordCycleLatency(stream string, d time.Duration) {
	if e == nil {
		return
	}
	e.cycleLatency.WithLabelValues(stream).Observe(d.Seconds())
}
