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

var _ repository.WalletRepository = (*walletRepo)(nil)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

func (r *walletRepo) Create(ctx context.Context, tx repository.Tx, w *model.Wallet) error {
	const q = `INSERT INTO wallets (id, user_id, balance, currency, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.UserID, w.Balance, w.Currency, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		// unique owner index: one wallet per user
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

func (r *walletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	const q = `SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets WHERE user_id=$1;`
	return r.findOne(ctx, tx, q, userID)
}

func (r *walletRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Wallet, error) {
	q := `SELECT id, user_id, balance, currency, created_at, updated_at FROM wallets WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *walletRepo) findOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Wallet, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	w := &model.Wallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

// ApplyDelta is the single balance mutation path. The WHERE guard keeps the
// balance non-negative and makes concurrent writers serialize on the row; the
// RETURNING value is the balance actually written.
func (r *walletRepo) ApplyDelta(ctx context.Context, tx repository.Tx, walletID string, delta int64) (int64, bool, error) {
	const q = `
    UPDATE wallets
       SET balance = balance + $2,
           updated_at = NOW()
     WHERE id = $1
       AND balance + $2 >= 0
 RETURNING balance;`

	row, err := pickRow(ctx, r.pool, tx, q, walletID, delta)
	if err != nil {
		return 0, false, err
	}
	var after int64
	if err := row.Scan(&after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil // guard failed; no row updated
		}
		return 0, false, domain.ErrReadDatabaseRow
	}
	return after, true, nil
}

func (r *walletRepo) SaveTransaction(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (
  id, wallet_id, user_id, direction, amount, reason, reference_id, balance_before, balance_after, meta, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.WalletID, t.UserID, t.Direction, t.Amount, t.Reason, t.ReferenceID, t.BalanceBefore, t.BalanceAfter, t.Meta, t.CreatedAt)
	if err != nil {
		// unique reference index: one ledger entry per external reference
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

const walletTxCols = `id, wallet_id, user_id, direction, amount, reason, reference_id, balance_before, balance_after, meta, created_at`

func (r *walletRepo) FindTransactionByReference(ctx context.Context, tx repository.Tx, referenceID string) (*model.WalletTransaction, error) {
	const q = `SELECT ` + walletTxCols + ` FROM wallet_transactions WHERE reference_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, referenceID)
	if err != nil {
		return nil, err
	}
	t, err := scanWalletTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *walletRepo) ListTransactionsByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + walletTxCols + ` FROM wallet_transactions WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WalletTransaction
	for rows.Next() {
		t, err := scanWalletTx(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, nil
}

func scanWalletTx(row pgx.Row) (*model.WalletTransaction, error) {
	t := &model.WalletTransaction{}
	if err := row.Scan(&t.ID, &t.WalletID, &t.UserID, &t.Direction, &t.Amount, &t.Reason, &t.ReferenceID, &t.BalanceBefore, &t.BalanceAfter, &t.Meta, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}
