package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookRequests,
		webhookDuration,
	)
}

var (
	// result: ok|unauthorized|bad_payload|unmatched|error
	webhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Inbound provider webhook requests by provider and result.",
		},
		[]string{"provider", "result"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Duration of webhook handlers in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)
)

func IncWebhook(provider, result string) {
	webhookRequests.WithLabelValues(norm(provider), norm(result)).Inc()
}

func ObserveWebhookDuration(provider string, seconds float64) {
	webhookDuration.WithLabelValues(norm(provider)).Observe(seconds)
}
