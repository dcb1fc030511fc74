package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Ledger metrics
	CommissionsTotal      *prometheus.CounterVec
	CommissionAmountCents *prometheus.CounterVec

	// Payout metrics
	PayoutTransitions      *prometheus.CounterVec
	PayoutAmount           *prometheus.HistogramVec
	ReservationConflicts   prometheus.Counter
	RuleViolations         *prometheus.CounterVec
	ReconciliationsFlagged prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
	ScheduledJobRuns         *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		CommissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commissions_total",
				Help:      "Total number of commission ledger operations by action",
			},
			[]string{"action"},
		),
		CommissionAmountCents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commission_amount_cents_total",
				Help:      "Platform commission recorded, in minor units",
			},
			[]string{"currency"},
		),
		PayoutTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payout_transitions_total",
				Help:      "Total number of payout status transitions by target status",
			},
			[]string{"status"},
		),
		PayoutAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payout_amount_dollars",
				Help:      "Requested payout amounts",
				Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"method"},
		),
		ReservationConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payout_reservation_conflicts_total",
				Help:      "Payout requests rejected because a commission was already reserved",
			},
		),
		RuleViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_violations_total",
				Help:      "Business rule violations by code",
			},
			[]string{"code"},
		),
		ReconciliationsFlagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payout_reconciliations_flagged_total",
				Help:      "Payouts flagged for manual reconciliation",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being served",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
		ScheduledJobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_job_runs_total",
				Help:      "Scheduled job runs by job and outcome",
			},
			[]string{"job", "status"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.CommissionsTotal,
		m.CommissionAmountCents,
		m.PayoutTransitions,
		m.PayoutAmount,
		m.ReservationConflicts,
		m.RuleViolations,
		m.ReconciliationsFlagged,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPInFlight,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
		m.ScheduledJobRuns,
	)

	return m
}

// The helpers below are safe on a nil *Metrics so services can run without
// a registry in tests.

func (m *Metrics) CommissionRecorded(action string) {
	if m == nil {
		return
	}
	m.CommissionsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) CommissionAmount(currency string, cents int64) {
	if m == nil {
		return
	}
	m.CommissionAmountCents.WithLabelValues(currency).Add(float64(cents))
}

func (m *Metrics) PayoutTransition(status string) {
	if m == nil {
		return
	}
	m.PayoutTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) PayoutRequested(method string, cents int64) {
	if m == nil {
		return
	}
	m.PayoutTransitions.WithLabelValues("requested").Inc()
	m.PayoutAmount.WithLabelValues(method).Observe(float64(cents) / 100)
}

func (m *Metrics) ReservationConflict() {
	if m == nil {
		return
	}
	m.ReservationConflicts.Inc()
}

func (m *Metrics) RuleViolation(code string) {
	if m == nil {
		return
	}
	m.RuleViolations.WithLabelValues(code).Inc()
}

func (m *Metrics) ReconciliationFlagged() {
	if m == nil {
		return
	}
	m.ReconciliationsFlagged.Inc()
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ScheduledJobRuns.WithLabelValues(job, status).Inc()
}

func (m *Metrics) MessageProcessed(stream, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
	m.WorkerProcessingDuration.WithLabelValues(stream).Observe(elapsed.Seconds())
}

// BreakerState records a circuit breaker state as 0 closed, 1 half-open, 2 open.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	m.CircuitBreakerRequests.WithLabelValues(name, "state_change").Inc()
}
