// Package metrics declares the Prometheus collectors exported by sec360.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sec360_submissions_total",
		Help: "Total code submissions by duplicate marker",
	}, []string{"duplicate"})

	riskScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sec360_risk_score",
		Help:    "Final risk score of scored submissions",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	flagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sec360_flags_total",
		Help: "Detected flags by category and tier",
	}, []string{"category", "tier"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sec360_sessions_active",
		Help: "Number of currently active sessions",
	})

	sessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sec360_sessions_finalized_total",
		Help: "Sessions closed by terminal status",
	}, []string{"status"})

	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sec360_persist_failures_total",
		Help: "Record writes that exhausted their retries",
	})

	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sec360_pending_records",
		Help: "Records queued for a later flush",
	})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sec360_scan_duration_seconds",
		Help:    "Duration of detection plus scoring for one submission",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

// ObserveSubmission records one scored submission.
func ObserveSubmission(duplicate bool, score int, seconds float64) {
	submissionsTotal.WithLabelValues(strconv.FormatBool(duplicate)).Inc()
	riskScore.Observe(float64(score))
	scanDuration.Observe(seconds)
}

// ObserveFlag counts one detected flag.
func ObserveFlag(category, tier string) {
	flagsTotal.WithLabelValues(category, tier).Inc()
}

// SetActiveSessions sets the active session gauge.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// SessionFinalized counts a session closed with status.
func SessionFinalized(status string) {
	sessionsFinalized.WithLabelValues(status).Inc()
}

// PersistFailed counts a record write that exhausted its retries.
func PersistFailed() {
	persistFailures.Inc()
}

// SetPendingRecords sets the pending record gauge.
func SetPendingRecords(n int) {
	pendingRecords.Set(float64(n))
}
