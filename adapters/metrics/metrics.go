// Package metrics provides Prometheus metrics collection for docforge.
package metrics

import (
	"context"
	"time"

	"github.com/artpar/docforge/app"
	"github.com/artpar/docforge/core/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for docforge.
type Collector struct {
	// Pipeline metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	WarningsTotal     *prometheus.CounterVec

	// Injector metrics
	Activations  *prometheus.CounterVec
	ActiveBundle *prometheus.GaugeVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads    prometheus.Counter
	ConfigLastReload prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Name:      "executions_total",
				Help:      "Total number of pipeline executions",
			},
			[]string{"bundle", "format", "status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docforge",
				Name:      "execution_duration_seconds",
				Help:      "Pipeline execution duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"format"},
		),
		WarningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Name:      "warnings_total",
				Help:      "Total number of pipeline warnings by kind",
			},
			[]string{"kind"},
		),
		Activations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Name:      "schema_activations_total",
				Help:      "Total number of schema bundle activations",
			},
			[]string{"bundle", "result"},
		),
		ActiveBundle: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "docforge",
				Name:      "active_bundle",
				Help:      "1 for the currently active schema bundle",
			},
			[]string{"bundle"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docforge",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docforge",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// RecordExecution implements app.Recorder.
func (c *Collector) RecordExecution(bundle, format, status string, d time.Duration) {
	c.ExecutionsTotal.WithLabelValues(bundle, format, status).Inc()
	c.ExecutionDuration.WithLabelValues(format).Observe(d.Seconds())
}

// RecordWarning implements app.Recorder.
func (c *Collector) RecordWarning(kind string) {
	c.WarningsTotal.WithLabelValues(kind).Inc()
}

var _ app.Recorder = (*Collector)(nil)

// Subscribe tracks injector and config events published on bus.
func (c *Collector) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.SchemaActivated, func(_ context.Context, e events.Event) error {
		c.Activations.WithLabelValues(e.Subject, "activated").Inc()
		c.ActiveBundle.Reset()
		c.ActiveBundle.WithLabelValues(e.Subject).Set(1)
		return nil
	})
	bus.Subscribe(events.SchemaFailed, func(_ context.Context, e events.Event) error {
		c.Activations.WithLabelValues(e.Subject, "failed").Inc()
		c.ActiveBundle.Reset()
		return nil
	})
	bus.Subscribe(events.SchemaCleared, func(_ context.Context, e events.Event) error {
		if e.Subject == "*" {
			c.ActiveBundle.Reset()
			return nil
		}
		c.ActiveBundle.DeleteLabelValues(e.Subject)
		return nil
	})
	bus.Subscribe(events.ConfigReloaded, func(_ context.Context, _ events.Event) error {
		c.ConfigReloads.Inc()
		c.ConfigLastReload.SetToCurrentTime()
		return nil
	})
}
