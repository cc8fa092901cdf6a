package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		commissionsTotal,
		commissionAmountTotal,
		payoutsTotal,
		payoutAmountTotal,
	)
}

var (
	commissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_commissions_total",
			Help: "Commission status changes (pending/approved/revoked).",
		},
		[]string{"status"},
	)

	commissionAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_commission_amount_total",
			Help: "Commission value recorded in minor units, by status.",
		},
		[]string{"status"},
	)

	payoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_payouts_total",
			Help: "Payout status changes (pending/paid/rejected).",
		},
		[]string{"status"},
	)

	payoutAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_payout_amount_total",
			Help: "Payout value in minor units, by status.",
		},
		[]string{"status"},
	)
)

func IncCommission(status string, amount int64) {
	commissionsTotal.WithLabelValues(norm(status)).Inc()
	if amount > 0 {
		commissionAmountTotal.WithLabelValues(norm(status)).Add(float64(amount))
	}
}

func IncPayout(status string, amount int64) {
	payoutsTotal.WithLabelValues(norm(status)).Inc()
	if amount > 0 {
		payoutAmountTotal.WithLabelValues(norm(status)).Add(float64(amount))
	}
}
