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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userCols = `id, email, plan, plan_expires_at, products_remaining, affiliate_code, referred_by, registered_at, updated_at`

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, email, plan, plan_expires_at, products_remaining, affiliate_code, referred_by, registered_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  email=$2, plan=$3, plan_expires_at=$4, products_remaining=$5, affiliate_code=$6, referred_by=$7, updated_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Email, nullStr(u.Plan), u.PlanExpiresAt, u.ProductsRemaining, nullStr(u.AffiliateCode), nullStr(u.ReferredBy), u.RegisteredAt, u.UpdatedAt)
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

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := `SELECT ` + userCols + ` FROM users WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *userRepo) FindByAffiliateCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE affiliate_code=$1 LIMIT 1;`
	return r.findOne(ctx, tx, q, code)
}

func (r *userRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	var plan, affiliateCode, referredBy *string
	if err := row.Scan(&u.ID, &u.Email, &plan, &u.PlanExpiresAt, &u.ProductsRemaining, &affiliateCode, &referredBy, &u.RegisteredAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	u.Plan = deref(plan)
	u.AffiliateCode = deref(affiliateCode)
	u.ReferredBy = deref(referredBy)
	return u, nil
}

func (r *userRepo) UpdateEntitlement(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `UPDATE users SET plan=$2, plan_expires_at=$3, products_remaining=$4, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, nullStr(u.Plan), u.PlanExpiresAt, u.ProductsRemaining)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
