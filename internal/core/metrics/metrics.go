// Package metrics exposes the sorting pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for parcels_sorted_total.
const (
	OutcomeTarget    = "target"
	OutcomeException = "exception"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeLost      = "lost"
)

// Collector owns the sorter's Prometheus metrics and their registry.
// A dedicated registry keeps parallel tests and several collectors independent.
type Collector struct {
	registry *prometheus.Registry

	parcelsDetected prometheus.Counter
	parcelsSorted   *prometheus.CounterVec
	overload        *prometheus.CounterVec
	pathSwitches    *prometheus.CounterVec
	doubleFallback  prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	sortLatency     prometheus.Histogram
	inFlight        prometheus.Gauge
	congestionLevel prometheus.Gauge
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		parcelsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sorter_parcels_detected_total",
			Help: "Total number of parcels entering the pipeline",
		}),
		parcelsSorted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorter_parcels_sorted_total",
			Help: "Parcels by terminal outcome",
		}, []string{"outcome"}),
		overload: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorter_overload_decisions_total",
			Help: "Overload policy verdicts that were not ContinueNormal",
		}, []string{"reason_code", "action"}),
		pathSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorter_path_switches_total",
			Help: "Switches from a running path to a backup or rerouted path",
		}, []string{"reason"}),
		doubleFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sorter_double_fallback_total",
			Help: "Parcels for which even the exception chute path failed",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorter_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		}, []string{"topic"}),
		sortLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sorter_sort_latency_seconds",
			Help:    "Detection to terminal outcome latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sorter_parcels_in_flight",
			Help: "Parcels currently inside the pipeline",
		}),
		congestionLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sorter_congestion_level",
			Help: "Last detected congestion level (0 normal, 1 warning, 2 severe)",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		c.parcelsDetected,
		c.parcelsSorted,
		c.overload,
		c.pathSwitches,
		c.doubleFallback,
		c.eventsDropped,
		c.sortLatency,
		c.inFlight,
		c.congestionLevel,
	)

	return c
}

// Registry returns the underlying registry (for tests and custom exporters).
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the /metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordDetected counts a parcel entering the pipeline.
func (c *Collector) RecordDetected() {
	c.parcelsDetected.Inc()
}

// RecordSorted counts a terminal outcome and its latency.
func (c *Collector) RecordSorted(outcome string, latency time.Duration) {
	c.parcelsSorted.WithLabelValues(outcome).Inc()
	c.sortLatency.Observe(latency.Seconds())
}

// RecordOverload counts a non-trivial overload verdict.
func (c *Collector) RecordOverload(reasonCode, action string) {
	c.overload.WithLabelValues(reasonCode, action).Inc()
}

// RecordPathSwitch counts a path switch.
func (c *Collector) RecordPathSwitch(reason string) {
	c.pathSwitches.WithLabelValues(reason).Inc()
}

// RecordDoubleFallback counts an unreachable exception chute.
func (c *Collector) RecordDoubleFallback() {
	c.doubleFallback.Inc()
}

// RecordEventDropped counts an event lost to a full subscriber buffer.
func (c *Collector) RecordEventDropped(topic string) {
	c.eventsDropped.WithLabelValues(topic).Inc()
}

// SetInFlight updates the in-flight gauge.
func (c *Collector) SetInFlight(n int) {
	c.inFlight.Set(float64(n))
}

// SetCongestionLevel updates the congestion gauge.
func (c *Collector) SetCongestionLevel(level int) {
	c.congestionLevel.Set(float64(level))
}
