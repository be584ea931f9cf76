// Package metrics exposes Prometheus collectors for the session
// controller's propose/apply/verify loop. Grounded on
// mercator-hq-jupiter's pkg/limits/metrics.go: one struct of
// promauto-registered collectors, one recording method per event.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for a patch-and-prove session.
type Metrics struct {
	attemptsTotal     *prometheus.CounterVec
	sessionOutcomes   *prometheus.CounterVec
	attemptsUsed      prometheus.Histogram
	verifyDuration    *prometheus.HistogramVec
	policyChecks      *prometheus.CounterVec
	attestationEvents *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered against
// the default Prometheus registry.
func New() *Metrics {
	return &Metrics{
		attemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchprove_attempts_total",
				Help: "Total number of propose/apply/verify attempts made across all sessions.",
			},
			[]string{"result"},
		),
		sessionOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchprove_sessions_total",
				Help: "Total number of completed sessions by outcome.",
			},
			[]string{"outcome"},
		),
		attemptsUsed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "patchprove_attempts_used",
				Help:    "Number of attempts consumed per session before success or exhaustion.",
				Buckets: prometheus.LinearBuckets(0, 1, 10),
			},
		),
		verifyDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patchprove_verify_duration_seconds",
				Help:    "Duration of verification command runs in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			},
			[]string{"target"},
		),
		policyChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchprove_policy_checks_total",
				Help: "Total number of policy command/path checks performed.",
			},
			[]string{"kind", "result"},
		),
		attestationEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patchprove_attestation_events_total",
				Help: "Total number of attestation create/verify operations by result.",
			},
			[]string{"operation", "result"},
		),
	}
}

// RecordAttempt records the outcome of a single propose/apply/verify attempt.
func (m *Metrics) RecordAttempt(succeeded bool) {
	result := "failure"
	if succeeded {
		result = "success"
	}
	m.attemptsTotal.WithLabelValues(result).Inc()
}

// RecordSessionOutcome records the final outcome of a session and how many
// attempts it consumed.
func (m *Metrics) RecordSessionOutcome(success bool, attemptsUsed int) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.sessionOutcomes.WithLabelValues(outcome).Inc()
	m.attemptsUsed.Observe(float64(attemptsUsed))
}

// RecordVerifyDuration records how long a verification target took to run.
func (m *Metrics) RecordVerifyDuration(target string, seconds float64) {
	m.verifyDuration.WithLabelValues(target).Observe(seconds)
}

// RecordPolicyCheck records an allow/deny decision made by the policy engine.
func (m *Metrics) RecordPolicyCheck(kind string, allowed bool) {
	result := "allow"
	if !allowed {
		result = "deny"
	}
	m.policyChecks.WithLabelValues(kind, result).Inc()
}

// RecordAttestation records the result of creating or verifying an
// attestation statement.
func (m *Metrics) RecordAttestation(operation string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.attestationEvents.WithLabelValues(operation, result).Inc()
}

// Handler returns the HTTP handler that serves metrics in the Prometheus
// text exposition format, suitable for mounting under --metrics-addr.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a blocking HTTP server exposing /metrics on addr. Intended
// to be run in its own goroutine by the CLI when --metrics-addr is set.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}
