package repository

import (
	"context"
	"time"

	"billing-ops-platform/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Payment) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Payment, error)
	// FindByExternalPaymentID resolves the settled payment for a gateway
	// payment id, if any. Used as the replay-protection lookup.
	FindByExternalPaymentID(ctx context.Context, qx Tx, externalPaymentID string) (*model.Payment, error)
	// FindByExternalSubID returns the payment row keyed to a gateway
	// subscription id (main or token).
	FindByExternalSubID(ctx context.Context, qx Tx, externalSubID string) (*model.Payment, error)
	FindByOrderID(ctx context.Context, qx Tx, orderID string) (*model.Payment, error)
	// MarkPaid atomically settles the payment: it succeeds only while the row
	// is still in 'created', recording the external payment id. The boolean
	// reports whether this call performed the transition.
	MarkPaid(ctx context.Context, qx Tx, id, externalPaymentID string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, qx Tx, id string) error
	LinkSubscription(ctx context.Context, qx Tx, id, subscriptionID string) error
	// ListPendingOlderThan feeds the reconciler: created-status payments whose
	// settlement never arrived.
	ListPendingOlderThan(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	SumPaidByPeriod(ctx context.Context, qx Tx, period string) (int64, error)
}
