package sched

import (
	"context"
	"time"

	"billing-ops-platform/internal/usecase"

	"github.com/rs/zerolog"
)

// CommissionWorker approves pending commissions that survived the hold period
// without a refund.
type CommissionWorker struct {
	interval time.Duration
	commUC   usecase.CommissionUseCase
	log      *zerolog.Logger
}

func NewCommissionWorker(interval time.Duration, commUC usecase.CommissionUseCase, logger *zerolog.Logger) *CommissionWorker {
	compLog := logger.With().Str("component", "CommissionWorker").Logger()
	return &CommissionWorker{
		interval: interval,
		commUC:   commUC,
		log:      &compLog,
	}
}

func (w *CommissionWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting commission worker")
	// Run once on startup, then on every tick
	w.runCheck(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping commission worker")
			return ctx.Err()
		case <-ticker.C:
			w.runCheck(ctx)
		}
	}
}

func (w *CommissionWorker) runCheck(ctx context.Context) {
	n, err := w.commUC.MaturePending(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("commission maturation failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("commissions matured to approved")
	}
}
