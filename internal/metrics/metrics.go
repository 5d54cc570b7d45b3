// Package metrics holds the Prometheus counters shared by the gateway and
// the window controllers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "volmix"

type Metrics struct {
	reg *prometheus.Registry

	CommandsDispatched *prometheus.CounterVec
	CommandsFailed     *prometheus.CounterVec
	InboundApplied     *prometheus.CounterVec
	InboundRejected    *prometheus.CounterVec
	InboundIgnored     *prometheus.CounterVec
	IdleHides          *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
}

// New creates a set of counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		CommandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "commands_dispatched_total",
			Help:      "Backend commands dispatched, by operation.",
		}, []string{"op"}),
		CommandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "commands_failed_total",
			Help:      "Backend commands rejected or timed out, by operation.",
		}, []string{"op"}),
		InboundApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "inbound_applied_total",
			Help:      "Inbound session updates applied, by window.",
		}, []string{"window"}),
		InboundRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "inbound_rejected_total",
			Help:      "Malformed inbound session updates discarded, by window.",
		}, []string{"window"}),
		InboundIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "inbound_ignored_total",
			Help:      "Inbound updates for sessions the window does not track.",
		}, []string{"window"}),
		IdleHides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idle",
			Name:      "hides_total",
			Help:      "Windows hidden by the idle timer.",
		}, []string{"window"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Backend events a full subscriber queue missed, by event.",
		}, []string{"event"}),
	}
	reg.MustRegister(
		m.CommandsDispatched,
		m.CommandsFailed,
		m.InboundApplied,
		m.InboundRejected,
		m.InboundIgnored,
		m.IdleHides,
		m.EventsDropped,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) Dispatched(op string) {
	if m != nil {
		m.CommandsDispatched.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Failed(op string) {
	if m != nil {
		m.CommandsFailed.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Applied(window string) {
	if m != nil {
		m.InboundApplied.WithLabelValues(window).Inc()
	}
}

func (m *Metrics) Rejected(window string) {
	if m != nil {
		m.InboundRejected.WithLabelValues(window).Inc()
	}
}

func (m *Metrics) Ignored(window string) {
	if m != nil {
		m.InboundIgnored.WithLabelValues(window).Inc()
	}
}

func (m *Metrics) Hidden(window string) {
	if m != nil {
		m.IdleHides.WithLabelValues(window).Inc()
	}
}

func (m *Metrics) Dropped(event string, subscribers int) {
	if m != nil {
		m.EventsDropped.WithLabelValues(event).Add(float64(subscribers))
	}
}
