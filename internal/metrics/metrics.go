// Package metrics exposes engine counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	alertsFired      *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	transitionErrors *prometheus.CounterVec
	workerTimeouts   prometheus.Counter
	pushesReceived   prometheus.Counter
	storedGauge      prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paddledesk",
			Name:      "alerts_fired_total",
			Help:      "Alerts raised, by condition.",
		}, []string{"condition"}),
		alertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paddledesk",
			Name:      "alerts_suppressed_total",
			Help:      "Alert checks skipped, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paddledesk",
			Name:      "status_transitions_total",
			Help:      "Booking status transitions requested successfully, by target status.",
		}, []string{"status"}),
		transitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paddledesk",
			Name:      "status_transition_errors_total",
			Help:      "Booking status transition requests that failed, by target status.",
		}, []string{"status"}),
		workerTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paddledesk",
			Name:      "worker_round_trip_timeouts_total",
			Help:      "Worker round trips abandoned after the timeout.",
		}),
		pushesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paddledesk",
			Name:      "pushes_received_total",
			Help:      "Push messages accepted by the worker.",
		}),
		storedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paddledesk",
			Name:      "worker_notifications_stored",
			Help:      "Notifications currently held by the worker.",
		}),
	}

	m.registry.MustRegister(
		m.alertsFired,
		m.alertsSuppressed,
		m.transitions,
		m.transitionErrors,
		m.workerTimeouts,
		m.pushesReceived,
		m.storedGauge,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AlertFired(condition string) {
	if m != nil {
		m.alertsFired.WithLabelValues(condition).Inc()
	}
}

func (m *Metrics) AlertSuppressed(reason string) {
	if m != nil {
		m.alertsSuppressed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Transition(status string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.transitionErrors.WithLabelValues(status).Inc()
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) WorkerTimeout() {
	if m != nil {
		m.workerTimeouts.Inc()
	}
}

func (m *Metrics) PushReceived() {
	if m != nil {
		m.pushesReceived.Inc()
	}
}

func (m *Metrics) SetStored(n int) {
	if m != nil {
		m.storedGauge.Set(float64(n))
	}
}
