// Package metrics exposes Prometheus counters for handled requests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	parse    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlcal",
			Name:      "requests_total",
			Help:      "Handled utterances by parsed action and outcome state.",
		}, []string{"action", "state"}),
		parse: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlcal",
			Name:      "parse_failures_total",
			Help:      "Utterances that could not be turned into a command, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.outcomes,
		m.parse,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Outcome counts one executed command.
func (m *Metrics) Outcome(action, state string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(action, state).Inc()
}

// ParseFailure counts one utterance rejected before execution.
func (m *Metrics) ParseFailure(reason string) {
	if m == nil {
		return
	}
	m.parse.WithLabelValues(reason).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
