// Package metrics exports dispatcher counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/andrewgari/starbunk-js-sub002/delivery"
	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/identity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bunkbot"

type Metrics struct {
	registry   *prometheus.Registry
	messages   *prometheus.CounterVec
	plugins    *prometheus.CounterVec
	breakers   *prometheus.GaugeVec
	identity   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

var (
	_ dispatch.Observer = (*Metrics)(nil)
	_ identity.Observer = (*Metrics)(nil)
	_ delivery.Observer = (*Metrics)(nil)
)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by processing outcome.",
		}, []string{"outcome"}),
		plugins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_outcomes_total",
			Help:      "Plugin dispatch outcomes.",
		}, []string{"plugin", "outcome"}),
		breakers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per plugin (0 closed, 1 open, 2 half-open).",
		}, []string{"plugin"}),
		identity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_cache_lookups_total",
			Help:      "Identity cache lookups by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Send attempts by mode and result.",
		}, []string{"mode", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.plugins,
		m.breakers,
		m.identity,
		m.deliveries,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageProcessed(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PluginOutcome(plugin, outcome string) {
	m.plugins.WithLabelValues(plugin, outcome).Inc()
}

func (m *Metrics) BreakerState(plugin string, status dispatch.BreakerStatus) {
	m.breakers.WithLabelValues(plugin).Set(float64(status))
}

func (m *Metrics) IdentityCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.identity.WithLabelValues(result).Inc()
}

func (m *Metrics) Delivery(mode string, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	m.deliveries.WithLabelValues(mode, result).Inc()
}
