package ys

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	yserrors "github.com/yaml/yamlscript-go/errors"
)

// Metrics provides Prometheus metrics for runtimes. A nil *Metrics records
// nothing.
type Metrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	isolates     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates collectors under namespace and registers them on a
// private registry served by Handler.
func NewMetrics(namespace string) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of engine calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of engine calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		isolates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "isolates",
				Help:      "Current number of live engine isolates",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.calls, m.callDuration, m.isolates} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCall counts one call of operation. The outcome label is "ok" or the
// error kind.
func (m *Metrics) RecordCall(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(yserrors.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.callDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) isolateCreated() {
	if m == nil {
		return
	}
	m.isolates.Inc()
}

func (m *Metrics) isolateClosed() {
	if m == nil {
		return
	}
	m.isolates.Dec()
}
