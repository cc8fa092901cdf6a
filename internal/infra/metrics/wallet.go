package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		walletTransactionsTotal,
		walletVolumeTotal,
	)
}

var (
	walletTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Wallet ledger entries by direction (credit/debit).",
		},
		[]string{"direction"},
	)

	walletVolumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_volume_total",
			Help: "Total amount moved through wallets in minor units, by direction.",
		},
		[]string{"direction"},
	)
)

func IncWalletTransaction(direction string, amount int64) {
	walletTransactionsTotal.WithLabelValues(norm(direction)).Inc()
	walletVolumeTotal.WithLabelValues(norm(direction)).Add(float64(amount))
}
