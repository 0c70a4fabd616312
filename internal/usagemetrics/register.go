// Package usagemetrics aggregates charge accounting into a dedicated
// prometheus registry and pushes it to an external collector. It is
// separate from the process-level OTLP metrics: this registry carries only
// the billing-relevant counters and never serves a scrape endpoint.
package usagemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	charges   *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	refusals  prometheus.Counter
	degraded  prometheus.Counter
	memoryUse prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vylin_acct_charges_total",
			Help: "Charge decisions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vylin_acct_model_tokens_total",
			Help: "Model tokens consumed by answered requests.",
		}, []string{"kind"}),
		refusals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vylin_acct_refusals_total",
			Help: "Questions refused before charging.",
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vylin_acct_degraded_decisions_total",
			Help: "Charge decisions taken against the fallback store.",
		}),
		memoryUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vylin_acct_memory_bytes",
			Help: "Process memory obtained from the OS.",
		}),
	}
	registry.MustRegister(m.charges, m.tokens, m.refusals, m.degraded, m.memoryUse)
	return m
}
