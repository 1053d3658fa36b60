// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package metrics implements the engine's observable-metrics surface:
// counters, histograms, and gauges emitted by the orchestrator and its
// collaborators, with a Prometheus-backed sink as the concrete binding
// (following the prometheus/client_golang usage shared across the
// retrieved rule-engine manifests) and a no-op sink for tests.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the metrics surface consumed by the orchestrator and the
// resolution engine. Implementations must be safe for concurrent use.
type Sink interface {
	Count(name string, labels map[string]string)
	Observe(name string, value float64, labels map[string]string)
	Gauge(name string, value float64, labels map[string]string)
}

// NoopSink discards every metric. It is the default when a caller does
// not wire a concrete Sink: metrics are opt-in, never required.
type NoopSink struct{}

func (NoopSink) Count(string, map[string]string)            {}
func (NoopSink) Observe(string, float64, map[string]string) {}
func (NoopSink) Gauge(string, float64, map[string]string)   {}

// PrometheusSink registers and updates a small set of ad hoc Prometheus
// collectors keyed by metric name, created lazily on first use since the
// orchestrator does not know its full metric vocabulary up front.
type PrometheusSink struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusSink creates a Sink that registers its collectors against
// registerer (typically prometheus.DefaultRegisterer, or a dedicated
// registry in tests).
func NewPrometheusSink(registerer prometheus.Registerer) *PrometheusSink {
	return &PrometheusSink{
		registerer: registerer,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (s *PrometheusSink) Count(name string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cv, ok := s.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesengine_" + name + "_total",
			Help: "rulesengine counter " + name,
		}, labelNames(labels))
		s.registerer.MustRegister(cv)
		s.counters[name] = cv
	}
	cv.With(labels).Inc()
}

func (s *PrometheusSink) Observe(name string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hv, ok := s.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rulesengine_" + name,
			Help:    "rulesengine histogram " + name,
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))
		s.registerer.MustRegister(hv)
		s.histograms[name] = hv
	}
	hv.With(labels).Observe(value)
}

func (s *PrometheusSink) Gauge(name string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gv, ok := s.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rulesengine_" + name,
			Help: "rulesengine gauge " + name,
		}, labelNames(labels))
		s.registerer.MustRegister(gv)
		s.gauges[name] = gv
	}
	gv.With(labels).Set(value)
}
