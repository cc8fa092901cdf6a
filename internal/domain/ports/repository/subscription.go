package repository

import (
	"context"
	"time"

	"billing-ops-platform/internal/domain/model"
)

// SubscriptionRepository is the port for subscription lifecycle rows.
type SubscriptionRepository interface {
	Save(ctx context.Context, qx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Subscription, error)
	// FindByExternalSubID matches on either the main or the token gateway
	// subscription id; webhook payloads may carry either.
	FindByExternalSubID(ctx context.Context, qx Tx, externalSubID string) (*model.Subscription, error)
	FindCurrentByUser(ctx context.Context, qx Tx, userID string) (*model.Subscription, error)
	// ListOverdue returns non-terminal subscriptions whose end (or trial end,
	// when no settlement ever arrived) passed before the cutoff.
	ListOverdue(ctx context.Context, qx Tx, cutoff time.Time, limit int) ([]*model.Subscription, error)
	CountByStatus(ctx context.Context, qx Tx) (map[model.SubscriptionStatus]int, error)
}
