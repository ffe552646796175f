package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		duplicatesPurgedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by provider and status (initiated/paid/failed/create_failed/expired).",
		},
		[]string{"provider", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total monetary value of confirmed payments in minor units, by currency.",
		},
		[]string{"currency"},
	)

	duplicatesPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_duplicates_purged_total",
			Help: "Ledger rows deleted by the duplicate purge sweep.",
		},
	)
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func AddDuplicatesPurged(n int64) {
	duplicatesPurgedTotal.Add(float64(n))
}
