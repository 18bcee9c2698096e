// Package metrics provides Prometheus metrics for chatguard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for chatguard.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Guard-rail metrics
	VerdictsTotal *prometheus.CounterVec

	// Durable store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Reaper metrics
	SweepsTotal  *prometheus.CounterVec
	DeletedTotal *prometheus.CounterVec

	// Session metrics
	ActiveSessions prometheus.Gauge
}

// New creates all collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		VerdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatguard_guardrail_verdicts_total",
				Help: "Total number of guard-rail verdicts by deciding check and result",
			},
			[]string{"check", "result"},
		),
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatguard_store_operations_total",
				Help: "Total number of durable store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatguard_store_operation_duration_seconds",
				Help:    "Duration of durable store operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		SweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatguard_reaper_sweeps_total",
				Help: "Total number of reaper sweeps by status",
			},
			[]string{"status"},
		),
		DeletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatguard_reaper_deleted_total",
				Help: "Total number of rows evicted by the reaper",
			},
			[]string{"kind"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatguard_active_sessions",
				Help: "Number of sessions seen by the last count",
			},
		),
	}
}

// RecordVerdict records the outcome of a guard-rail evaluation.
func (m *Metrics) RecordVerdict(check string, valid bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if valid {
		result = "accepted"
	}
	m.VerdictsTotal.WithLabelValues(check, result).Inc()
}

// RecordStoreOperation records a durable store operation.
func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSweep records a reaper sweep and the rows it removed.
func (m *Metrics) RecordSweep(err error, sessions, messages, shadow int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SweepsTotal.WithLabelValues(status).Inc()
	m.DeletedTotal.WithLabelValues("sessions").Add(float64(sessions))
	m.DeletedTotal.WithLabelValues("messages").Add(float64(messages))
	m.DeletedTotal.WithLabelValues("shadow").Add(float64(shadow))
}

// SetActiveSessions updates the active session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
