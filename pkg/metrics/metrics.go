// Package metrics exposes Prometheus instrumentation for outage detection.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector bundles the detection metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Detections         *prometheus.CounterVec
	DetectionDurations *prometheus.HistogramVec
	SourceFailures     *prometheus.CounterVec

	Nodes         prometheus.Gauge
	OfflineNodes  prometheus.Gauge
	AffectedZones prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	detections, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outage_detections_total",
		Help: "Detection runs, labeled by strategy and result.",
	}, []string{"strategy", "result"}), "outage_detections_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outage_detection_duration_seconds",
		Help:    "Detection latency in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"strategy"}), "outage_detection_duration_seconds")
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outage_source_failures_total",
		Help: "Node provider failures, labeled by provider.",
	}, []string{"provider"}), "outage_source_failures_total")
	if err != nil {
		return nil, err
	}

	nodes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outage_nodes",
		Help: "Nodes in the current snapshot.",
	}), "outage_nodes")
	if err != nil {
		return nil, err
	}
	offline, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outage_offline_nodes",
		Help: "Offline nodes in the current snapshot.",
	}), "outage_offline_nodes")
	if err != nil {
		return nil, err
	}
	zones, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outage_affected_zones",
		Help: "Affected zones in the current snapshot.",
	}), "outage_affected_zones")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		Detections:         detections,
		DetectionDurations: durations,
		SourceFailures:     failures,
		Nodes:              nodes,
		OfflineNodes:       offline,
		AffectedZones:      zones,
	}, nil
}

// ObserveDetection records one detection run.
func (c *Collector) ObserveDetection(strategy string, took time.Duration, err error) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.Detections.WithLabelValues(strategy, result).Inc()
	c.DetectionDurations.WithLabelValues(strategy).Observe(took.Seconds())
}

// SetSnapshot updates the snapshot gauges.
func (c *Collector) SetSnapshot(nodes, offline, zones int) {
	if c == nil {
		return
	}
	c.Nodes.Set(float64(nodes))
	c.OfflineNodes.Set(float64(offline))
	c.AffectedZones.Set(float64(zones))
}

// SourceFailure counts a failed provider.
func (c *Collector) SourceFailure(provider string) {
	if c == nil {
		return
	}
	c.SourceFailures.WithLabelValues(provider).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		var zero T
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return zero, err
	}
	return c, nil
}
