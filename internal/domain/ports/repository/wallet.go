package repository

import (
	"context"

	"billing-ops-platform/internal/domain/model"
)

// WalletRepository is the port for wallets and their append-only ledger.
type WalletRepository interface {
	Create(ctx context.Context, qx Tx, w *model.Wallet) error
	FindByUser(ctx context.Context, qx Tx, userID string) (*model.Wallet, error)
	FindByID(ctx context.Context, qx Tx, id string) (*model.Wallet, error)
	// ApplyDelta performs the conditional balance mutation: the delta is added
	// only if the resulting balance stays non-negative, guarding against lost
	// updates between concurrent mutations. It returns the balance actually
	// written; applied=false means the guard failed (insufficient balance or
	// a concurrent writer won).
	ApplyDelta(ctx context.Context, qx Tx, walletID string, delta int64) (balanceAfter int64, applied bool, err error)

	SaveTransaction(ctx context.Context, qx Tx, t *model.WalletTransaction) error
	FindTransactionByReference(ctx context.Context, qx Tx, referenceID string) (*model.WalletTransaction, error)
	ListTransactionsByUser(ctx context.Context, qx Tx, userID string, offset, limit int) ([]*model.WalletTransaction, error)
}
