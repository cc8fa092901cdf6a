// File: internal/usecase/wallet_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billing-ops-platform/internal/config"
	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/domain/ports/repository"
	"billing-ops-platform/internal/infra/metrics"
)

// topupReceiptPrefix tags gateway orders created for wallet topups so the
// webhook path can route payment.captured events to the wallet.
const topupReceiptPrefix = "wallet_topup:"

// RateLimiter guards request-path operations that create gateway objects.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Compile-time check
var _ WalletUseCase = (*walletUC)(nil)

type WalletUseCase interface {
	// GetOrCreate returns the user's wallet, creating a zero-balance one on
	// first access.
	GetOrCreate(ctx context.Context, userID string) (*model.Wallet, error)
	// Credit applies a positive balance change, idempotent on referenceID.
	Credit(ctx context.Context, userID string, amount int64, reason, referenceID string, meta map[string]interface{}) (*model.WalletTransaction, error)
	// Debit applies a negative balance change, idempotent on referenceID;
	// fails with ErrInsufficientBalance when the balance cannot cover it.
	Debit(ctx context.Context, userID string, amount int64, reason, referenceID string, meta map[string]interface{}) (*model.WalletTransaction, error)
	// CreateTopupOrder opens a gateway order for a wallet topup within the
	// configured bounds.
	CreateTopupOrder(ctx context.Context, userID string, amount int64) (*adapter.GatewayOrder, error)
	// VerifyTopup settles a topup after the user returns from checkout:
	// signature and receipt are validated, then the wallet is credited keyed
	// on the external payment id.
	VerifyTopup(ctx context.Context, userID, orderID, paymentID, signature string) (*model.WalletTransaction, error)
	Transactions(ctx context.Context, userID string, offset, limit int) ([]*model.WalletTransaction, error)
}

type walletUC struct {
	wallets  repository.WalletRepository
	payments repository.PaymentRepository
	gateway  adapter.PaymentGateway
	tm       repository.TransactionManager
	limiter  RateLimiter
	bounds   config.WalletConfig
	ccy      string
	log      *zerolog.Logger
}

func NewWalletUseCase(
	wallets repository.WalletRepository,
	payments repository.PaymentRepository,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	limiter RateLimiter,
	bounds config.WalletConfig,
	currency string,
	logger *zerolog.Logger,
) *walletUC {
	l := logger.With().Str("component", "WalletUC").Logger()
	return &walletUC{wallets: wallets, payments: payments, gateway: gateway, tm: tm, limiter: limiter, bounds: bounds, ccy: currency, log: &l}
}

func (u *walletUC) GetOrCreate(ctx context.Context, userID string) (*model.Wallet, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	w, err := u.wallets.FindByUser(ctx, repository.NoTX, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	nw, err := model.NewWallet(uuid.NewString(), userID, u.ccy)
	if err != nil {
		return nil, err
	}
	if err := u.wallets.Create(ctx, repository.NoTX, nw); err != nil {
		// lost a creation race: the unique owner index kicked in, re-read
		if errors.Is(err, domain.ErrAlreadyExists) {
			return u.wallets.FindByUser(ctx, repository.NoTX, userID)
		}
		return nil, err
	}
	return nw, nil
}

func (u *walletUC) Credit(ctx context.Context, userID string, amount int64, reason, referenceID string, meta map[string]interface{}) (*model.WalletTransaction, error) {
	return u.apply(ctx, userID, model.TxDirectionCredit, amount, reason, referenceID, meta)
}

func (u *walletUC) Debit(ctx context.Context, userID string, amount int64, reason, referenceID string, meta map[string]interface{}) (*model.WalletTransaction, error) {
	return u.apply(ctx, userID, model.TxDirectionDebit, amount, reason, referenceID, meta)
}

// apply performs the single atomic unit the ledger requires: conditional
// balance mutation plus exactly one transaction row, both inside one DB
// transaction. balanceBefore/After are derived from the value the conditional
// update actually wrote, never from a separately cached read.
func (u *walletUC) apply(ctx context.Context, userID string, dir model.TxDirection, amount int64, reason, referenceID string, meta map[string]interface{}) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	// idempotency fast path: an existing entry for this reference is the
	// effect, returned unchanged
	if referenceID != "" {
		if existing, err := u.wallets.FindTransactionByReference(ctx, repository.NoTX, referenceID); err == nil {
			return existing, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	w, err := u.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	delta := amount
	if dir == model.TxDirectionDebit {
		delta = -amount
	}

	var out *model.WalletTransaction
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// re-check the idempotency key inside the transaction; a concurrent
		// delivery may have landed between the fast path and here
		if referenceID != "" {
			if existing, err := u.wallets.FindTransactionByReference(ctx, tx, referenceID); err == nil {
				out = existing
				return nil
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		after, applied, err := u.wallets.ApplyDelta(ctx, tx, w.ID, delta)
		if err != nil {
			return err
		}
		if !applied {
			if dir == model.TxDirectionDebit {
				// decide which guard failed: balance too low is a business
				// outcome, a raced row version is transient
				cur, ferr := u.wallets.FindByID(ctx, tx, w.ID)
				if ferr == nil && cur.Balance < amount {
					return domain.ErrInsufficientBalance
				}
			}
			return domain.ErrConcurrentModification
		}

		t := &model.WalletTransaction{
			ID:            uuid.NewString(),
			WalletID:      w.ID,
			UserID:        userID,
			Direction:     dir,
			Amount:        amount,
			Reason:        reason,
			BalanceBefore: after - delta,
			BalanceAfter:  after,
			Meta:          meta,
			CreatedAt:     time.Now(),
		}
		if referenceID != "" {
			t.ReferenceID = &referenceID
		}
		if err := u.wallets.SaveTransaction(ctx, tx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		// a concurrent delivery can win the unique-reference race after our
		// in-tx recheck; the row it wrote is this call's result
		if errors.Is(err, domain.ErrAlreadyExists) && referenceID != "" {
			return u.wallets.FindTransactionByReference(ctx, repository.NoTX, referenceID)
		}
		return nil, err
	}
	metrics.IncWalletTransaction(string(dir), out.Amount)
	return out, nil
}

func (u *walletUC) CreateTopupOrder(ctx context.Context, userID string, amount int64) (*adapter.GatewayOrder, error) {
	if amount < u.bounds.MinTopup || amount > u.bounds.MaxTopup {
		return nil, fmt.Errorf("%w: topup amount %d outside [%d,%d]", domain.ErrValidation, amount, u.bounds.MinTopup, u.bounds.MaxTopup)
	}
	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, "topup:"+userID, 5, time.Minute)
		if err != nil {
			u.log.Warn().Err(err).Msg("rate limiter unavailable, allowing topup")
		} else if !ok {
			return nil, fmt.Errorf("%w: too many topup attempts", domain.ErrValidation)
		}
	}
	receipt := topupReceiptPrefix + uuid.NewString()
	order, err := u.gateway.CreateOrder(ctx, amount, u.ccy, receipt)
	if err != nil {
		return nil, err
	}

	// the Payment row is what later maps the gateway order back to its user,
	// whether settlement arrives via VerifyTopup or via webhook
	now := time.Now()
	p := &model.Payment{
		ID:         uuid.NewString(),
		UserID:     userID,
		OrderID:    order.ID,
		ChargeType: model.ChargeTypeTopup,
		Status:     model.PaymentStatusCreated,
		Amount:     amount,
		Currency:   u.ccy,
		Meta:       map[string]interface{}{"receipt": receipt},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}

	u.log.Info().Str("user_id", userID).Str("order_id", order.ID).Int64("amount", amount).Msg("topup order created")
	return order, nil
}

func (u *walletUC) VerifyTopup(ctx context.Context, userID, orderID, paymentID, signature string) (*model.WalletTransaction, error) {
	if orderID == "" || paymentID == "" {
		return nil, domain.ErrValidation
	}
	if !u.gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		return nil, domain.ErrSignatureInvalid
	}
	order, err := u.gateway.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !IsTopupReceipt(order.Receipt) {
		return nil, domain.ErrValidation
	}
	if order.Amount < u.bounds.MinTopup || order.Amount > u.bounds.MaxTopup {
		return nil, domain.ErrAmountMismatch
	}
	p, err := u.payments.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID || order.Amount != p.Amount {
		return nil, domain.ErrAmountMismatch
	}
	if _, err := u.payments.MarkPaid(ctx, repository.NoTX, p.ID, paymentID, time.Now()); err != nil {
		return nil, err
	}
	return u.Credit(ctx, userID, order.Amount, "wallet_topup", paymentID, map[string]interface{}{
		"order_id": orderID,
		"receipt":  order.Receipt,
	})
}

func (u *walletUC) Transactions(ctx context.Context, userID string, offset, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return u.wallets.ListTransactionsByUser(ctx, repository.NoTX, userID, offset, limit)
}

// IsTopupReceipt reports whether a gateway order receipt tags a wallet topup.
func IsTopupReceipt(receipt string) bool {
	return strings.HasPrefix(receipt, topupReceiptPrefix)
}
