package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"
)

var _ repository.CommissionRepository = (*commissionRepo)(nil)

type commissionRepo struct{ pool *pgxpool.Pool }

func NewCommissionRepo(pool *pgxpool.Pool) *commissionRepo {
	return &commissionRepo{pool: pool}
}

const commissionCols = `id, affiliate_id, referred_user_id, purchase_type, subscription_id, service_order_id, store_order_id, purchase_amount, rate, amount, status, refunded, payout_id, created_at, updated_at`

// Save relies on the unique index over the linked purchase entity: a second
// commission for the same purchase is not inserted and the existing row is
// returned instead.
func (r *commissionRepo) Save(ctx context.Context, tx repository.Tx, c *model.AffiliateCommission) (*model.AffiliateCommission, bool, error) {
	const q = `
INSERT INTO affiliate_commissions (
  id, affiliate_id, referred_user_id, purchase_type, subscription_id, service_order_id, store_order_id, purchase_amount, rate, amount, status, refunded, payout_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (purchase_type, COALESCE(subscription_id, service_order_id, store_order_id)) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, c.ID, c.AffiliateID, c.ReferredUserID, c.PurchaseType, c.SubscriptionID, c.ServiceOrderID, c.StoreOrderID, c.PurchaseAmount, c.Rate, c.Amount, c.Status, c.Refunded, c.PayoutID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, false, err
		}
		return nil, false, domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		existing, err := r.FindByPurchaseEntity(ctx, tx, c.PurchaseType, c.PurchaseEntityID())
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return c, true, nil
}

func (r *commissionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AffiliateCommission, error) {
	q := `SELECT ` + commissionCols + ` FROM affiliate_commissions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *commissionRepo) FindByPurchaseEntity(ctx context.Context, tx repository.Tx, purchaseType model.PurchaseType, entityID string) (*model.AffiliateCommission, error) {
	const q = `SELECT ` + commissionCols + ` FROM affiliate_commissions WHERE purchase_type=$1 AND COALESCE(subscription_id, service_order_id, store_order_id)=$2 LIMIT 1;`
	return r.findOne(ctx, tx, q, purchaseType, entityID)
}

func (r *commissionRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.AffiliateCommission, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	c, err := scanCommission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func scanCommission(row pgx.Row) (*model.AffiliateCommission, error) {
	c := &model.AffiliateCommission{}
	if err := row.Scan(&c.ID, &c.AffiliateID, &c.ReferredUserID, &c.PurchaseType, &c.SubscriptionID, &c.ServiceOrderID, &c.StoreOrderID, &c.PurchaseAmount, &c.Rate, &c.Amount, &c.Status, &c.Refunded, &c.PayoutID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateStatusFrom moves the row to next only while its status is still one of
// from; the conditional WHERE serializes racing admin actions.
func (r *commissionRepo) UpdateStatusFrom(ctx context.Context, tx repository.Tx, id string, from []model.CommissionStatus, next model.CommissionStatus) (bool, error) {
	if len(from) == 0 {
		return false, domain.ErrInvalidArgument
	}
	placeholders := make([]string, len(from))
	args := []interface{}{id, string(next)}
	for i, s := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, string(s))
	}
	q := `UPDATE affiliate_commissions SET status=$2, updated_at=NOW() WHERE id=$1 AND status IN (` + strings.Join(placeholders, ",") + `);`

	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *commissionRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE affiliate_commissions SET refunded=TRUE, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *commissionRepo) AssignToPayout(ctx context.Context, tx repository.Tx, payoutID string, commissionIDs []string) error {
	if payoutID == "" || len(commissionIDs) == 0 {
		return domain.ErrInvalidArgument
	}
	const q = `UPDATE affiliate_commissions SET payout_id=$1, updated_at=NOW() WHERE id = ANY($2) AND payout_id IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, payoutID, commissionIDs)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if int(cmd.RowsAffected()) != len(commissionIDs) {
		// a commission was claimed by a concurrent payout request
		return domain.ErrConcurrentModification
	}
	return nil
}

func (r *commissionRepo) ClearPayout(ctx context.Context, tx repository.Tx, payoutID string) error {
	const q = `UPDATE affiliate_commissions SET payout_id=NULL, updated_at=NOW() WHERE payout_id=$1 AND status <> 'paid';`
	_, err := execSQL(ctx, r.pool, tx, q, payoutID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *commissionRepo) ListByPayout(ctx context.Context, tx repository.Tx, payoutID string) ([]*model.AffiliateCommission, error) {
	const q = `SELECT ` + commissionCols + ` FROM affiliate_commissions WHERE payout_id=$1 ORDER BY created_at ASC;`
	return r.list(ctx, tx, q, payoutID)
}

func (r *commissionRepo) ListApprovedUnpaid(ctx context.Context, tx repository.Tx, affiliateID string) ([]*model.AffiliateCommission, error) {
	const q = `SELECT ` + commissionCols + ` FROM affiliate_commissions WHERE affiliate_id=$1 AND status='approved' AND refunded=FALSE AND payout_id IS NULL ORDER BY created_at ASC;`
	return r.list(ctx, tx, q, affiliateID)
}

func (r *commissionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThanDays int, limit int) ([]*model.AffiliateCommission, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + commissionCols + ` FROM affiliate_commissions WHERE status='pending' AND refunded=FALSE AND created_at < NOW() - ($1 * INTERVAL '1 day') ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThanDays, limit)
}

func (r *commissionRepo) ListByAffiliate(ctx context.Context, tx repository.Tx, affiliateID string, offset, limit int) ([]*model.AffiliateCommission, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + commissionCols + ` FROM affiliate_commissions WHERE affiliate_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	return r.list(ctx, tx, q, affiliateID, offset, limit)
}

func (r *commissionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.AffiliateCommission, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.AffiliateCommission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	return out, nil
}
