package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"
)

var _ repository.PayoutRepository = (*payoutRepo)(nil)

type payoutRepo struct{ pool *pgxpool.Pool }

func NewPayoutRepo(pool *pgxpool.Pool) *payoutRepo {
	return &payoutRepo{pool: pool}
}

const payoutCols = `id, affiliate_id, amount, status, requested_at, approved_at, paid_at, rejected_at, wallet_transaction_id`

// Save inserts a new payout. A partial unique index on (affiliate_id) WHERE
// status='pending' enforces one open request per affiliate.
func (r *payoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.AffiliatePayout) error {
	const q = `
INSERT INTO affiliate_payouts (
  id, affiliate_id, amount, status, requested_at, approved_at, paid_at, rejected_at, wallet_transaction_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.AffiliateID, p.Amount, p.Status, p.RequestedAt, p.ApprovedAt, p.PaidAt, p.RejectedAt, p.WalletTransactionID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPayoutAlreadyPending
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *payoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AffiliatePayout, error) {
	q := `SELECT ` + payoutCols + ` FROM affiliate_payouts WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *payoutRepo) FindPendingByAffiliate(ctx context.Context, tx repository.Tx, affiliateID string) (*model.AffiliatePayout, error) {
	const q = `SELECT ` + payoutCols + ` FROM affiliate_payouts WHERE affiliate_id=$1 AND status='pending' LIMIT 1;`
	return r.findOne(ctx, tx, q, affiliateID)
}

func (r *payoutRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.AffiliatePayout, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func scanPayout(row pgx.Row) (*model.AffiliatePayout, error) {
	p := &model.AffiliatePayout{}
	if err := row.Scan(&p.ID, &p.AffiliateID, &p.Amount, &p.Status, &p.RequestedAt, &p.ApprovedAt, &p.PaidAt, &p.RejectedAt, &p.WalletTransactionID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *payoutRepo) Update(ctx context.Context, tx repository.Tx, p *model.AffiliatePayout) error {
	const q = `UPDATE affiliate_payouts SET amount=$2, status=$3, approved_at=$4, paid_at=$5, rejected_at=$6, wallet_transaction_id=$7 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Amount, p.Status, p.ApprovedAt, p.PaidAt, p.RejectedAt, p.WalletTransactionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *payoutRepo) ListByAffiliate(ctx context.Context, tx repository.Tx, affiliateID string, offset, limit int) ([]*model.AffiliatePayout, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + payoutCols + ` FROM affiliate_payouts WHERE affiliate_id=$1 ORDER BY requested_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, affiliateID, offset, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.AffiliatePayout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}
