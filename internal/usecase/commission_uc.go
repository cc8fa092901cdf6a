// File: internal/usecase/commission_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billing-ops-platform/internal/config"
	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"
	"billing-ops-platform/internal/infra/metrics"
)

// Compile-time check
var _ CommissionUseCase = (*commissionUC)(nil)

type CommissionUseCase interface {
	// RecordPurchase creates the commission for a qualifying purchase, at
	// most once per linked purchase entity. Replays return the existing row.
	RecordPurchase(ctx context.Context, affiliateID, referredUserID string, purchaseType model.PurchaseType, entityID string, amount int64) (*model.AffiliateCommission, error)
	Approve(ctx context.Context, commissionID string) error
	// Revoke pulls back a pending or approved commission, e.g. on refund.
	Revoke(ctx context.Context, commissionID string, refund bool) error
	Cancel(ctx context.Context, commissionID string) error
	// MaturePending approves pending commissions older than the hold period.
	MaturePending(ctx context.Context) (int, error)

	// RequestPayout batches all approved, non-refunded commissions for the
	// affiliate, oldest first, into a pending payout. The batch is stamped on
	// the commissions so later approvals never pull in newer earnings.
	RequestPayout(ctx context.Context, affiliateID string) (*model.AffiliatePayout, error)
	// ApprovePayout settles a payout: exactly the commissions assigned at
	// request time become paid and the affiliate wallet is credited exactly
	// once per payout.
	ApprovePayout(ctx context.Context, payoutID string) (*model.AffiliatePayout, error)
	RejectPayout(ctx context.Context, payoutID string) error
	Payouts(ctx context.Context, affiliateID string, offset, limit int) ([]*model.AffiliatePayout, error)
	Commissions(ctx context.Context, affiliateID string, offset, limit int) ([]*model.AffiliateCommission, error)
}

type commissionUC struct {
	commissions repository.CommissionRepository
	payouts     repository.PayoutRepository
	wallet      WalletUseCase
	tm          repository.TransactionManager
	cfg         config.AffiliateConfig
	log         *zerolog.Logger
}

func NewCommissionUseCase(
	commissions repository.CommissionRepository,
	payouts repository.PayoutRepository,
	wallet WalletUseCase,
	tm repository.TransactionManager,
	cfg config.AffiliateConfig,
	logger *zerolog.Logger,
) *commissionUC {
	l := logger.With().Str("component", "CommissionUC").Logger()
	return &commissionUC{commissions: commissions, payouts: payouts, wallet: wallet, tm: tm, cfg: cfg, log: &l}
}

// resolveRate picks the affiliate-specific override for the purchase type when
// configured, else the global default. No rate configured means no commission.
func (u *commissionUC) resolveRate(affiliateID string, purchaseType model.PurchaseType) (float64, bool) {
	if overrides, ok := u.cfg.Overrides[affiliateID]; ok {
		if rate, ok := overrides[string(purchaseType)]; ok {
			return rate, true
		}
	}
	rate, ok := u.cfg.DefaultRates[string(purchaseType)]
	return rate, ok
}

func (u *commissionUC) RecordPurchase(ctx context.Context, affiliateID, referredUserID string, purchaseType model.PurchaseType, entityID string, amount int64) (*model.AffiliateCommission, error) {
	rate, ok := u.resolveRate(affiliateID, purchaseType)
	if !ok || rate == 0 {
		return nil, nil
	}
	c, err := model.NewAffiliateCommission(uuid.NewString(), affiliateID, referredUserID, purchaseType, entityID, amount, rate)
	if err != nil {
		return nil, err
	}
	existing, created, err := u.commissions.Save(ctx, repository.NoTX, c)
	if err != nil {
		return nil, err
	}
	if !created {
		return existing, nil
	}
	metrics.IncCommission(string(model.CommissionStatusPending), c.Amount)
	u.log.Info().Str("affiliate_id", affiliateID).Str("purchase", string(purchaseType)).
		Str("entity_id", entityID).Int64("amount", c.Amount).Msg("commission recorded")
	return c, nil
}

func (u *commissionUC) Approve(ctx context.Context, commissionID string) error {
	applied, err := u.commissions.UpdateStatusFrom(ctx, repository.NoTX, commissionID,
		[]model.CommissionStatus{model.CommissionStatusPending}, model.CommissionStatusApproved)
	if err != nil {
		return err
	}
	if !applied {
		return domain.ErrInvalidTransition
	}
	metrics.IncCommission(string(model.CommissionStatusApproved), 0)
	return nil
}

func (u *commissionUC) Revoke(ctx context.Context, commissionID string, refund bool) error {
	applied, err := u.commissions.UpdateStatusFrom(ctx, repository.NoTX, commissionID,
		[]model.CommissionStatus{model.CommissionStatusPending, model.CommissionStatusApproved}, model.CommissionStatusRevoked)
	if err != nil {
		return err
	}
	if !applied {
		return domain.ErrInvalidTransition
	}
	if refund {
		if err := u.commissions.MarkRefunded(ctx, repository.NoTX, commissionID); err != nil {
			return err
		}
	}
	metrics.IncCommission(string(model.CommissionStatusRevoked), 0)
	return nil
}

func (u *commissionUC) Cancel(ctx context.Context, commissionID string) error {
	applied, err := u.commissions.UpdateStatusFrom(ctx, repository.NoTX, commissionID,
		[]model.CommissionStatus{model.CommissionStatusPending, model.CommissionStatusApproved}, model.CommissionStatusCancelled)
	if err != nil {
		return err
	}
	if !applied {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (u *commissionUC) MaturePending(ctx context.Context) (int, error) {
	if u.cfg.HoldDays <= 0 {
		return 0, nil
	}
	pending, err := u.commissions.ListPendingOlderThan(ctx, repository.NoTX, u.cfg.HoldDays, 200)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, c := range pending {
		if c.Refunded {
			continue
		}
		applied, err := u.commissions.UpdateStatusFrom(ctx, repository.NoTX, c.ID,
			[]model.CommissionStatus{model.CommissionStatusPending}, model.CommissionStatusApproved)
		if err != nil {
			u.log.Error().Err(err).Str("commission_id", c.ID).Msg("maturing commission failed")
			continue
		}
		if applied {
			n++
		}
	}
	return n, nil
}

func (u *commissionUC) RequestPayout(ctx context.Context, affiliateID string) (*model.AffiliatePayout, error) {
	if affiliateID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if existing, err := u.payouts.FindPendingByAffiliate(ctx, repository.NoTX, affiliateID); err == nil && !existing.IsZero() {
		return nil, domain.ErrPayoutAlreadyPending
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	eligible, err := u.commissions.ListApprovedUnpaid(ctx, repository.NoTX, affiliateID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	var total int64
	for _, c := range eligible {
		total += c.Amount
	}
	if total < u.cfg.MinPayout {
		return nil, fmt.Errorf("%w: %d < %d", domain.ErrBelowMinimumPayout, total, u.cfg.MinPayout)
	}

	payout, err := model.NewAffiliatePayout(uuid.NewString(), affiliateID, total)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(eligible))
	for i, c := range eligible {
		ids[i] = c.ID
	}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.payouts.Save(ctx, tx, payout); err != nil {
			return err
		}
		return u.commissions.AssignToPayout(ctx, tx, payout.ID, ids)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncPayout(string(model.PayoutStatusPending), total)
	u.log.Info().Str("affiliate_id", affiliateID).Int64("amount", total).Msg("payout requested")
	return payout, nil
}

func (u *commissionUC) ApprovePayout(ctx context.Context, payoutID string) (*model.AffiliatePayout, error) {
	payout, err := u.payouts.FindByID(ctx, repository.NoTX, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == model.PayoutStatusPaid {
		return payout, nil // replayed approval
	}

	if payout.Status == model.PayoutStatusPending {
		if err := payout.Transition(model.PayoutStatusApproved); err != nil {
			return nil, err
		}
		if err := u.payouts.Update(ctx, repository.NoTX, payout); err != nil {
			return nil, err
		}
	}
	if payout.Status != model.PayoutStatusApproved {
		return nil, domain.ErrInvalidTransition
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		batch, err := u.commissions.ListByPayout(ctx, tx, payout.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		for _, c := range batch {
			if c.Status == model.CommissionStatusPaid {
				continue // retried approval
			}
			if _, err := u.commissions.UpdateStatusFrom(ctx, tx, c.ID,
				[]model.CommissionStatus{model.CommissionStatusApproved}, model.CommissionStatusPaid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The wallet reference is derived from the payout id, so a retried
	// approval can never double-credit.
	t, err := u.wallet.Credit(ctx, payout.AffiliateID, payout.Amount, "affiliate_payout", "payout:"+payout.ID, map[string]interface{}{
		"payout_id": payout.ID,
	})
	if err != nil {
		return nil, err
	}

	payout.WalletTransactionID = &t.ID
	if err := payout.Transition(model.PayoutStatusPaid); err != nil {
		return nil, err
	}
	if err := u.payouts.Update(ctx, repository.NoTX, payout); err != nil {
		return nil, err
	}
	metrics.IncPayout(string(model.PayoutStatusPaid), payout.Amount)
	u.log.Info().Str("payout_id", payout.ID).Int64("amount", payout.Amount).Msg("payout settled")
	return payout, nil
}

func (u *commissionUC) RejectPayout(ctx context.Context, payoutID string) error {
	payout, err := u.payouts.FindByID(ctx, repository.NoTX, payoutID)
	if err != nil {
		return err
	}
	if err := payout.Transition(model.PayoutStatusRejected); err != nil {
		return err
	}
	// releasing the batch lets the same commissions enter a future payout
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.payouts.Update(ctx, tx, payout); err != nil {
			return err
		}
		return u.commissions.ClearPayout(ctx, tx, payout.ID)
	})
	if err != nil {
		return err
	}
	metrics.IncPayout(string(model.PayoutStatusRejected), 0)
	return nil
}

func (u *commissionUC) Payouts(ctx context.Context, affiliateID string, offset, limit int) ([]*model.AffiliatePayout, error) {
	if limit <= 0 {
		limit = 50
	}
	return u.payouts.ListByAffiliate(ctx, repository.NoTX, affiliateID, offset, limit)
}

func (u *commissionUC) Commissions(ctx context.Context, affiliateID string, offset, limit int) ([]*model.AffiliateCommission, error) {
	if limit <= 0 {
		limit = 50
	}
	return u.commissions.ListByAffiliate(ctx, repository.NoTX, affiliateID, offset, limit)
}
