package repository

import (
	"context"

	"billing-ops-platform/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, qx Tx, u *model.User) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.User, error)
	FindByAffiliateCode(ctx context.Context, qx Tx, code string) (*model.User, error)
	// UpdateEntitlement persists only the entitlement fields (plan, expiry,
	// remaining product quota).
	UpdateEntitlement(ctx context.Context, qx Tx, u *model.User) error
}
