package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionCols = `id, user_id, plan_code, external_sub_id, token_sub_id, token_payment_id, status, start_at, trial_ends_at, end_at, amount_paid, history, created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	history, err := json.Marshal(sub.History)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_code, external_sub_id, token_sub_id, token_payment_id, status, start_at, trial_ends_at, end_at, amount_paid, history, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (id) DO UPDATE SET
  token_payment_id=$6, status=$7, trial_ends_at=$9, end_at=$10, amount_paid=$11, history=$12, updated_at=$14;`

	_, err = execSQL(ctx, r.pool, tx, q, sub.ID, sub.UserID, sub.PlanCode, nullStr(sub.ExternalSubID), nullStr(sub.TokenSubID), nullStr(sub.TokenPaymentID), sub.Status, sub.StartAt, sub.TrialEndsAt, sub.EndAt, sub.AmountPaid, history, sub.CreatedAt, sub.UpdatedAt)
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

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindByExternalSubID(ctx context.Context, tx repository.Tx, externalSubID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE external_sub_id=$1 OR token_sub_id=$1 ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, externalSubID)
}

func (r *subscriptionRepo) FindCurrentByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE user_id=$1 AND status IN ('trialing','active','manually_granted') ORDER BY created_at DESC LIMIT 1;`
	return r.findOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var extSubID, tokenSubID, tokenPaymentID *string
	var history []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanCode, &extSubID, &tokenSubID, &tokenPaymentID, &s.Status, &s.StartAt, &s.TrialEndsAt, &s.EndAt, &s.AmountPaid, &history, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ExternalSubID = deref(extSubID)
	s.TokenSubID = deref(tokenSubID)
	s.TokenPaymentID = deref(tokenPaymentID)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.History); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (r *subscriptionRepo) ListOverdue(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	// a trialing subscription with no settlement is overdue once the trial
	// window closes; everything else goes by end_at (NULL means lifetime)
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions
 WHERE status IN ('trialing','active','manually_granted')
   AND ((end_at IS NOT NULL AND end_at < $1) OR (status='trialing' AND trial_ends_at < $1))
 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status model.SubscriptionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = count
	}
	return out, nil
}
