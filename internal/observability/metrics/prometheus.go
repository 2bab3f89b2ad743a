// Package metrics provides Prometheus metrics for the prescription composer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	DraftSaves             prometheus.Counter
	DraftPersistFailures   prometheus.Counter
	StepTransitions        *prometheus.CounterVec
	ValidationFailures     *prometheus.CounterVec
	PrescriptionsFinalized prometheus.Counter
	PrescriptionsDeleted   prometheus.Counter
	Exports                *prometheus.CounterVec
	ExportFailures         *prometheus.CounterVec
	ExportDuration         *prometheus.HistogramVec
	ActiveRenders          prometheus.Gauge
	OutboxPending          prometheus.Gauge
	KafkaMessagesProduced  prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates metrics registered with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DraftSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxpad_draft_saves_total",
			Help: "Total draft write-through attempts",
		}),
		DraftPersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxpad_draft_persist_failures_total",
			Help: "Total draft writes that failed to reach durable storage",
		}),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxpad_wizard_step_transitions_total",
			Help: "Wizard step transitions by direction",
		}, []string{"direction"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxpad_validation_failures_total",
			Help: "Validation failures by wizard step",
		}, []string{"step"}),
		PrescriptionsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxpad_prescriptions_finalized_total",
			Help: "Total prescriptions finalized",
		}),
		PrescriptionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxpad_prescriptions_deleted_total",
			Help: "Total prescriptions deleted",
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxpad_exports_total",
			Help: "Successful document exports by format",
		}, []string{"format"}),
		ExportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxpad_export_failures_total",
			Help: "Failed document exports by cause",
		}, []string{"cause"}),
		ExportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxpad_export_duration_seconds",
			Help:    "Document export duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
		ActiveRenders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxpad_active_renders",
			Help: "Renders currently holding a browser process",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.DraftSaves,
		m.DraftPersistFailures,
		m.StepTransitions,
		m.ValidationFailures,
		m.PrescriptionsFinalized,
		m.PrescriptionsDeleted,
		m.Exports,
		m.ExportFailures,
		m.ExportDuration,
		m.ActiveRenders,
		m.OutboxPending,
		m.KafkaMessagesProduced,
		m.CircuitBreakerState,
	)

	return m
}

// DraftSaved records a draft write-through and whether it failed
func (m *Metrics) DraftSaved(failed bool) {
	if m == nil {
		return
	}
	m.DraftSaves.Inc()
	if failed {
		m.DraftPersistFailures.Inc()
	}
}

// StepChanged records a wizard step transition ("next" or "back")
func (m *Metrics) StepChanged(direction string) {
	if m == nil {
		return
	}
	m.StepTransitions.WithLabelValues(direction).Inc()
}

// ValidationFailed records a rejected step transition
func (m *Metrics) ValidationFailed(step string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(step).Inc()
}

// Finalized records a finalized prescription
func (m *Metrics) Finalized() {
	if m == nil {
		return
	}
	m.PrescriptionsFinalized.Inc()
}

// Deleted records a deleted prescription
func (m *Metrics) Deleted() {
	if m == nil {
		return
	}
	m.PrescriptionsDeleted.Inc()
}

// ExportDone records an export outcome. cause is empty on success.
func (m *Metrics) ExportDone(format, cause string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExportDuration.WithLabelValues(format).Observe(elapsed.Seconds())
	if cause != "" {
		m.ExportFailures.WithLabelValues(cause).Inc()
		return
	}
	m.Exports.WithLabelValues(format).Inc()
}

// RenderStarted increments the active render gauge and returns its release
func (m *Metrics) RenderStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveRenders.Inc()
	return m.ActiveRenders.Dec
}

// BreakerState records a circuit breaker state change
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// MessageProduced records a message published to Kafka
func (m *Metrics) MessageProduced() {
	if m == nil {
		return
	}
	m.KafkaMessagesProduced.Inc()
}

// SetOutboxPending records the current outbox backlog
func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
