// Package metrics exports ledger decisions as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resumeassist/usagegate/pkg/models"
)

// Collector counts decisions by outcome and the units they consumed.
type Collector struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	units     prometheus.Counter
	costs     prometheus.Histogram
}

// New creates a Collector on its own registry, including Go runtime metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usagegate",
			Name:      "decisions_total",
			Help:      "Check-and-consume decisions by outcome.",
		}, []string{"outcome"}),
		units: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usagegate",
			Name:      "units_consumed_total",
			Help:      "Cost units consumed by allowed decisions.",
		}),
		costs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "usagegate",
			Name:      "request_cost",
			Help:      "Requested cost per decision.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
	reg.MustRegister(
		c.decisions, c.units, c.costs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, o := range []models.Outcome{
		models.OutcomeAllowed, models.OutcomeQuotaExceeded,
		models.OutcomeInvalidRequest, models.OutcomeStoreUnavailable,
	} {
		c.decisions.WithLabelValues(string(o))
	}
	return c
}

// Record implements ledger.Recorder.
func (c *Collector) Record(_ context.Context, d models.Decision) error {
	c.decisions.WithLabelValues(string(d.Outcome)).Inc()
	if d.Cost > 0 {
		c.costs.Observe(float64(d.Cost))
	}
	if d.Allowed {
		c.units.Add(float64(d.Cost))
	}
	return nil
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
