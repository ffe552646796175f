package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileTotal,
		deadLetterTotal,
		inconsistentStateTotal,
		sessionsExpiredTotal,
	)
}

var (
	// outcome: confirmed|failed|still_pending|short_circuit|superseded
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_events_total",
			Help: "Reconciliation passes by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	deadLetterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_dead_letters_total",
			Help: "Unmatched provider events parked for retry, by provider.",
		},
		[]string{"provider"},
	)

	inconsistentStateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_inconsistent_state_total",
			Help: "Paid-but-not-activated faults requiring retry, by provider.",
		},
		[]string{"provider"},
	)

	sessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_sessions_expired_total",
			Help: "Pending sessions transitioned to expired by the sweep.",
		},
	)
)

func IncReconcile(provider, outcome string) {
	reconcileTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncDeadLetter(provider string) {
	deadLetterTotal.WithLabelValues(norm(provider)).Inc()
}

func IncInconsistentState(provider string) {
	inconsistentStateTotal.WithLabelValues(norm(provider)).Inc()
}

func AddSessionsExpired(n int) {
	sessionsExpiredTotal.Add(float64(n))
}
