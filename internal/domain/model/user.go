package model

import (
	"time"

	"billing-ops-platform/internal/domain"

	"github.com/google/uuid"
)

// User carries the entitlement derived from subscription state: which plan the
// user currently has access to and until when. Account/auth fields live in the
// external identity layer; we only keep what billing needs.
type User struct {
	ID                string
	Email             string
	Plan              string     // plan code; empty means no entitlement
	PlanExpiresAt     *time.Time // nil means lifetime / no expiry while Plan set
	ProductsRemaining int
	AffiliateCode     string // set when the user participates in the affiliate program
	ReferredBy        string // affiliate user id that referred this user, if any
	RegisteredAt      time.Time
	UpdatedAt         time.Time
}

func NewUser(id, email string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{ID: id, Email: email, RegisteredAt: now, UpdatedAt: now}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// GrantEntitlement sets the user's current plan and expiry.
func (u *User) GrantEntitlement(planCode string, expiresAt *time.Time, productLimit int) {
	u.Plan = planCode
	u.PlanExpiresAt = expiresAt
	u.ProductsRemaining = productLimit
	u.UpdatedAt = time.Now()
}

// RevokeEntitlement clears the entitlement if the user is still on planCode.
// A user who already switched plans keeps their newer grant.
func (u *User) RevokeEntitlement(planCode string) bool {
	if u.Plan != planCode {
		return false
	}
	u.Plan = ""
	u.PlanExpiresAt = nil
	u.ProductsRemaining = 0
	u.UpdatedAt = time.Now()
	return true
}
