// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Orchestrator metrics
	LaunchOperations  *prometheus.CounterVec
	LaunchTransitions *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Mixing collaborator metrics
	MixerCalls        *prometheus.CounterVec
	DepositStepDowns  prometheus.Counter
	DepositedLamports prometheus.Counter
	WithdrawnLamports prometheus.Counter

	// Transaction metrics
	TxSubmissions    *prometheus.CounterVec
	TxConfirmLatency prometheus.Histogram

	// Venue metrics
	VenueCalls *prometheus.CounterVec

	// Network metrics
	RPCCallLatency *prometheus.HistogramVec

	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestsRejected *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stealth_launch"
	}

	return &Metrics{
		// Orchestrator metrics
		LaunchOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "operations_total",
			Help:      "Total orchestrator operations by name and outcome",
		}, []string{"operation", "outcome"}),
		LaunchTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "transitions_total",
			Help:      "Total status transitions by target status",
		}, []string{"to_status"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "operation_duration_seconds",
			Help:      "Orchestrator operation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"operation"}),

		// Mixing collaborator metrics
		MixerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "calls_total",
			Help:      "Total mixing collaborator calls by method and outcome",
		}, []string{"method", "outcome"}),
		DepositStepDowns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "deposit_step_downs_total",
			Help:      "Total deposit attempts that required a step-down",
		}),
		DepositedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "deposited_lamports_total",
			Help:      "Total lamports deposited into the mixing pool",
		}),
		WithdrawnLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mixer",
			Name:      "withdrawn_lamports_total",
			Help:      "Total lamports withdrawn from the mixing pool",
		}),

		// Transaction metrics
		TxSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tx_submissions_total",
			Help:      "Total transaction executions by outcome",
		}, []string{"outcome"}),
		TxConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tx_confirm_latency_seconds",
			Help:      "Time from submission to finalized commitment",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90, 120},
		}),

		// Venue metrics
		VenueCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "calls_total",
			Help:      "Total venue portal calls by action and outcome",
		}, []string{"action", "outcome"}),

		// Network metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status class",
		}, []string{"route", "status"}),
		RequestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_rejected_total",
			Help:      "Total HTTP requests rejected before handling",
		}, []string{"route", "reason"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOperation records an orchestrator operation outcome. Nil-safe so the
// orchestrator can run without metrics in tests.
func (m *Metrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.LaunchOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordTransition records a status transition.
func (m *Metrics) RecordTransition(toStatus string) {
	if m == nil {
		return
	}
	m.LaunchTransitions.WithLabelValues(toStatus).Inc()
}

// RecordMixerCall records a mixing collaborator call outcome.
func (m *Metrics) RecordMixerCall(method, outcome string) {
	if m == nil {
		return
	}
	m.MixerCalls.WithLabelValues(method, outcome).Inc()
}

// RecordTxSubmission records a transaction execution outcome.
func (m *Metrics) RecordTxSubmission(outcome string) {
	if m == nil {
		return
	}
	m.TxSubmissions.WithLabelValues(outcome).Inc()
}

// RecordDepositStepDown records one deposit attempt that had to step down.
func (m *Metrics) RecordDepositStepDown() {
	if m == nil {
		return
	}
	m.DepositStepDowns.Inc()
}

// RecordDepositedLamports accumulates lamports accepted by the mixing pool.
func (m *Metrics) RecordDepositedLamports(lamports uint64) {
	if m == nil {
		return
	}
	m.DepositedLamports.Add(float64(lamports))
}

// RecordWithdrawnLamports accumulates lamports withdrawn from the pool.
func (m *Metrics) RecordWithdrawnLamports(lamports uint64) {
	if m == nil {
		return
	}
	m.WithdrawnLamports.Add(float64(lamports))
}

// RecordVenueCall records a venue portal call outcome.
func (m *Metrics) RecordVenueCall(action, outcome string) {
	if m == nil {
		return
	}
	m.VenueCalls.WithLabelValues(action, outcome).Inc()
}

// ObserveTxConfirm records the submit-to-finalized latency.
func (m *Metrics) ObserveTxConfirm(seconds float64) {
	if m == nil {
		return
	}
	m.TxConfirmLatency.Observe(seconds)
}

// ObserveRPCCall records one RPC round trip.
func (m *Metrics) ObserveRPCCall(method string, seconds float64) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
