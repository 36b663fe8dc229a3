// Package metrics exposes the coordinator's Prometheus collectors.
// All methods are safe on a nil *Metrics so tests can skip wiring them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callhub"

type Metrics struct {
	events      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	tasks       *prometheus.CounterVec
	push        *prometheus.CounterVec
	onlineUsers prometheus.Gauge
	activeCalls prometheus.Gauge
	connections prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Inbound signaling events handled, by type.",
		}, []string{"type"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Inbound events dropped, by reason.",
		}, []string{"reason"}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_total",
			Help: "Background tasks, by name and result.",
		}, []string{"name", "result"}),
		push: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_results_total",
			Help: "Per-token push outcomes.",
		}, []string{"result"}),
		onlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online_users",
			Help: "Users holding at least one connection.",
		}),
		activeCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_calls",
			Help: "Calls in CALLING or IN_CALL state.",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Open signaling connections.",
		}),
	}
}

func (m *Metrics) Event(typ string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Task(name, result string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(name, result).Inc()
}

func (m *Metrics) Push(result string) {
	if m == nil {
		return
	}
	m.push.WithLabelValues(result).Inc()
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.activeCalls.Set(float64(n))
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
