package sched

import (
	"context"
	"time"

	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"
	"billing-ops-platform/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// PaymentReconciler scans for payments that stayed in created long past any
// plausible checkout and marks them failed. This covers abandoned checkouts
// and lost webhook deliveries; settlement is conditional on the created
// status, so anything reconciled here can no longer be double-settled.
// Each pass also samples the settled-revenue gauges for the current periods.
type PaymentReconciler struct {
	payments   repository.PaymentRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a created payment must be to give up on
	log        *zerolog.Logger
}

func NewPaymentReconciler(payments repository.PaymentRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{payments: payments, interval: interval, staleAfter: staleAfter, log: &compLog}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale payments failed")
		return
	}
	for _, p := range stale {
		if err := w.payments.MarkFailed(ctx, repository.NoTX, p.ID); err != nil {
			w.log.Error().Err(err).Str("payment_id", p.ID).Msg("reconcile failed")
			continue
		}
		metrics.IncPayment(string(model.PaymentStatusFailed))
		w.log.Info().Str("payment_id", p.ID).Str("charge_type", string(p.ChargeType)).
			Msg("stale payment marked failed")
	}

	for _, period := range []string{"day", "month"} {
		sum, err := w.payments.SumPaidByPeriod(ctx, repository.NoTX, period)
		if err != nil {
			w.log.Error().Err(err).Str("period", period).Msg("revenue sample failed")
			continue
		}
		metrics.SetPeriodRevenue(period, sum)
	}
}
