package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentsRevenuePeriod,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (created/paid/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of settled payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	paymentsRevenuePeriod = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payments_revenue_period",
			Help: "Settled payment volume since the start of the current period (day/month), minor units.",
		},
		[]string{"period"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func SetPeriodRevenue(period string, amount int64) {
	paymentsRevenuePeriod.WithLabelValues(norm(period)).Set(float64(amount))
}
