package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentCols = `id, user_id, plan_code, order_id, external_sub_id, token_sub_id, external_payment_id, charge_type, status, amount, currency, meta, subscription_id, created_at, updated_at, paid_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, plan_code, order_id, external_sub_id, token_sub_id, external_payment_id, charge_type, status, amount, currency, meta, subscription_id, created_at, updated_at, paid_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (id) DO UPDATE SET
  status=$9, external_payment_id=$7, meta=$12, subscription_id=$13, updated_at=$15, paid_at=$16;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, nullStr(p.PlanCode), nullStr(p.OrderID), nullStr(p.ExternalSubID), nullStr(p.TokenSubID), nullStr(p.ExternalPaymentID), p.ChargeType, p.Status, p.Amount, p.Currency, p.Meta, p.SubscriptionID, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByExternalPaymentID(ctx context.Context, tx repository.Tx, externalPaymentID string) (*model.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE external_payment_id=$1 LIMIT 1;`
	return r.findOne(ctx, tx, q, externalPaymentID)
}

func (r *paymentRepo) FindByExternalSubID(ctx context.Context, tx repository.Tx, externalSubID string) (*model.Payment, error) {
	// token charges are looked up by either of their subscription handles
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE external_sub_id=$1 OR token_sub_id=$1 ORDER BY created_at DESC LIMIT 1;`
	return r.findOne(ctx, tx, q, externalSubID)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE order_id=$1 LIMIT 1;`
	return r.findOne(ctx, tx, q, orderID)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var planCode, orderID, extSubID, tokenSubID, extPaymentID *string
	if err := row.Scan(&p.ID, &p.UserID, &planCode, &orderID, &extSubID, &tokenSubID, &extPaymentID, &p.ChargeType, &p.Status, &p.Amount, &p.Currency, &p.Meta, &p.SubscriptionID, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return nil, err
	}
	p.PlanCode = deref(planCode)
	p.OrderID = deref(orderID)
	p.ExternalSubID = deref(extSubID)
	p.TokenSubID = deref(tokenSubID)
	p.ExternalPaymentID = deref(extPaymentID)
	return p, nil
}

// MarkPaid settles the row only while it is still 'created'. The conditional
// WHERE is what makes concurrent verify/webhook deliveries exactly-once.
func (r *paymentRepo) MarkPaid(ctx context.Context, tx repository.Tx, id, externalPaymentID string, paidAt time.Time) (bool, error) {
	const q = `
    UPDATE payments
       SET status = 'paid',
           external_payment_id = $2,
           paid_at = $3,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'created';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, externalPaymentID, paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE payments SET status='failed', updated_at=NOW() WHERE id=$1 AND status='created';`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) LinkSubscription(ctx context.Context, tx repository.Tx, id, subscriptionID string) error {
	const q = `UPDATE payments SET subscription_id=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, subscriptionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE status='created' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) SumPaidByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payments WHERE status='paid' AND paid_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
