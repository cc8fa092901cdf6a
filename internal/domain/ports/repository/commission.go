package repository

import (
	"context"

	"billing-ops-platform/internal/domain/model"
)

type CommissionRepository interface {
	// Save inserts the commission unless one already exists for the same
	// linked purchase entity; in that case the existing row is returned and
	// created=false.
	Save(ctx context.Context, qx Tx, c *model.AffiliateCommission) (existing *model.AffiliateCommission, created bool, err error)
	FindByID(ctx context.Context, qx Tx, id string) (*model.AffiliateCommission, error)
	FindByPurchaseEntity(ctx context.Context, qx Tx, purchaseType model.PurchaseType, entityID string) (*model.AffiliateCommission, error)
	// UpdateStatusFrom moves the row to next only while it is still in one of
	// the expected statuses; reports whether the transition happened.
	UpdateStatusFrom(ctx context.Context, qx Tx, id string, from []model.CommissionStatus, next model.CommissionStatus) (bool, error)
	MarkRefunded(ctx context.Context, qx Tx, id string) error
	// AssignToPayout stamps the payout id on the given commissions, freezing
	// the batch a payout request covers.
	AssignToPayout(ctx context.Context, qx Tx, payoutID string, commissionIDs []string) error
	// ClearPayout detaches all commissions from a payout so they can enter a
	// future one; used when a payout request is rejected.
	ClearPayout(ctx context.Context, qx Tx, payoutID string) error
	// ListByPayout returns the commissions assigned to a payout, oldest first.
	ListByPayout(ctx context.Context, qx Tx, payoutID string) ([]*model.AffiliateCommission, error)
	// ListApprovedUnpaid returns approved, non-refunded commissions for the
	// affiliate that are not yet assigned to a payout, oldest first.
	ListApprovedUnpaid(ctx context.Context, qx Tx, affiliateID string) ([]*model.AffiliateCommission, error)
	ListPendingOlderThan(ctx context.Context, qx Tx, olderThanDays int, limit int) ([]*model.AffiliateCommission, error)
	ListByAffiliate(ctx context.Context, qx Tx, affiliateID string, offset, limit int) ([]*model.AffiliateCommission, error)
}

type PayoutRepository interface {
	// Save inserts the payout; a pending payout already existing for the
	// affiliate surfaces as domain.ErrPayoutAlreadyPending.
	Save(ctx context.Context, qx Tx, p *model.AffiliatePayout) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.AffiliatePayout, error)
	FindPendingByAffiliate(ctx context.Context, qx Tx, affiliateID string) (*model.AffiliatePayout, error)
	Update(ctx context.Context, qx Tx, p *model.AffiliatePayout) error
	ListByAffiliate(ctx context.Context, qx Tx, affiliateID string, offset, limit int) ([]*model.AffiliatePayout, error)
}
