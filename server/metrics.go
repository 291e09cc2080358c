package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the server's prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	proxyRequests *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	refunds       prometheus.Counter
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		proxyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sponsorgate_proxy_requests_total",
				Help: "Proxy requests by outcome",
			},
			[]string{"outcome"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sponsorgate_settlements_total",
				Help: "Validation settlements by result",
			},
			[]string{"result"},
		),
		refunds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sponsorgate_refunds_total",
				Help: "Compensating refunds issued after failed payments",
			},
		),
	}
	registry.MustRegister(m.proxyRequests, m.settlements, m.refunds)
	return m
}

func (m *Metrics) ProxyOutcome(outcome string) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Settlement(result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
}

func (m *Metrics) Refund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}
