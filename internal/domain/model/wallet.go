package model

import (
	"time"

	"billing-ops-platform/internal/domain"
)

// Wallet holds a user's balance in minor currency units. Exactly one wallet
// exists per user, created lazily on first access. Balance is never negative.
type Wallet struct {
	ID        string // UUID
	UserID    string // UUID
	Balance   int64  // minor units, >= 0
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *Wallet) IsZero() bool { return w == nil || w.ID == "" }

func NewWallet(id, userID, currency string) (*Wallet, error) {
	if id == "" || userID == "" || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Wallet{ID: id, UserID: userID, Balance: 0, Currency: currency, CreatedAt: now, UpdatedAt: now}, nil
}

type TxDirection string

const (
	TxDirectionCredit TxDirection = "credit"
	TxDirectionDebit  TxDirection = "debit"
)

// WalletTransaction is an immutable ledger entry. The pair
// (BalanceBefore, BalanceAfter) is computed from the value actually written,
// and balance_after = balance_before +/- amount exactly. ReferenceID is the
// idempotency key: at most one transaction exists per reference.
type WalletTransaction struct {
	ID            string // UUID
	WalletID      string
	UserID        string
	Direction     TxDirection
	Amount        int64 // unsigned magnitude, > 0
	Reason        string
	ReferenceID   *string // unique when present
	BalanceBefore int64
	BalanceAfter  int64
	Meta          map[string]interface{}
	CreatedAt     time.Time
}

// SignedAmount returns the delta this entry applied to the balance.
func (t *WalletTransaction) SignedAmount() int64 {
	if t.Direction == TxDirectionDebit {
		return -t.Amount
	}
	return t.Amount
}
