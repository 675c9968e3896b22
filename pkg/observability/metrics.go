package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the grantor service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	PhaseDuration      *prometheus.HistogramVec
	PhaseFailuresTotal *prometheus.CounterVec

	// Rollback metrics
	RollbackActionsTotal  *prometheus.CounterVec
	RollbackPartialsTotal prometheus.Counter

	// Conflict metrics
	ConflictsDetectedTotal *prometheus.CounterVec

	// History store metrics
	HistoryOperationsTotal   *prometheus.CounterVec
	HistoryOperationDuration *prometheus.HistogramVec

	// Business metrics
	GrantsActive      prometheus.Gauge
	AssignmentsActive prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_operations_total",
				Help: "Total assignment operations by kind and terminal status",
			},
			[]string{"kind", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantor_operation_duration_seconds",
				Help:    "End-to-end assignment operation duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantor_phase_duration_seconds",
				Help:    "Workflow phase duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 120, 300},
			},
			[]string{"phase"},
		),
		PhaseFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_phase_failures_total",
				Help: "Workflow phase failures by phase and error code",
			},
			[]string{"phase", "code"},
		),
		RollbackActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_rollback_actions_total",
				Help: "Rollback compensation actions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RollbackPartialsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grantor_rollback_partial_failures_total",
				Help: "Rollback passes that left at least one compensation unapplied",
			},
		),
		ConflictsDetectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_conflicts_detected_total",
				Help: "Assignment conflicts detected by kind",
			},
			[]string{"kind"},
		),
		HistoryOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grantor_history_operations_total",
				Help: "History store operations by method and result",
			},
			[]string{"method", "result"},
		),
		HistoryOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grantor_history_operation_duration_seconds",
				Help:    "History store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		GrantsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantor_grants_active",
				Help: "Access grant groups currently known",
			},
		),
		AssignmentsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grantor_assignments_active",
				Help: "Account assignments currently active",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OperationsTotal,
		m.OperationDuration,
		m.PhaseDuration,
		m.PhaseFailuresTotal,
		m.RollbackActionsTotal,
		m.RollbackPartialsTotal,
		m.ConflictsDetectedTotal,
		m.HistoryOperationsTotal,
		m.HistoryOperationDuration,
		m.GrantsActive,
		m.AssignmentsActive,
	)

	return m
}

// ObservePhase records the duration of one workflow phase.
func (m *Metrics) ObservePhase(phase string, start time.Time) {
	m.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// ObserveOperation records a terminal operation outcome.
func (m *Metrics) ObserveOperation(kind, status string, start time.Time) {
	m.OperationsTotal.WithLabelValues(kind, status).Inc()
	m.OperationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus scrape handler for the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
