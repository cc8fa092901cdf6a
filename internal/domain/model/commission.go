package model

import (
	"time"

	"billing-ops-platform/internal/domain"
)

type PurchaseType string

const (
	PurchaseTypeSubscription PurchaseType = "subscription"
	PurchaseTypeServiceOrder PurchaseType = "service_order"
	PurchaseTypeStoreOrder   PurchaseType = "store_order"
)

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusApproved  CommissionStatus = "approved"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusRevoked   CommissionStatus = "revoked"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

var commissionTransitions = map[CommissionStatus][]CommissionStatus{
	CommissionStatusPending:   {CommissionStatusApproved, CommissionStatusRevoked, CommissionStatusCancelled},
	CommissionStatusApproved:  {CommissionStatusPaid, CommissionStatusRevoked, CommissionStatusCancelled},
	CommissionStatusPaid:      {},
	CommissionStatusRevoked:   {},
	CommissionStatusCancelled: {},
}

// AffiliateCommission is earned once per qualifying purchase. Exactly one of
// the linked entity ids is populated, matching PurchaseType; uniqueness on
// that reference guarantees at most one commission per purchase.
type AffiliateCommission struct {
	ID             string // UUID
	AffiliateID    string // UUID of the referring user
	ReferredUserID string
	PurchaseType   PurchaseType
	SubscriptionID *string
	ServiceOrderID *string
	StoreOrderID   *string
	PurchaseAmount int64   // minor units
	Rate           float64 // 0..1
	Amount         int64   // minor units, immutable once created
	Status         CommissionStatus
	Refunded       bool
	PayoutID       *string // set when the commission is batched into a payout request
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c *AffiliateCommission) IsZero() bool { return c == nil || c.ID == "" }

func (c *AffiliateCommission) CanTransition(next CommissionStatus) bool {
	for _, s := range commissionTransitions[c.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (c *AffiliateCommission) Transition(next CommissionStatus) error {
	if !c.CanTransition(next) {
		return domain.ErrInvalidTransition
	}
	c.Status = next
	c.UpdatedAt = time.Now()
	return nil
}

// PurchaseEntityID returns the populated linked entity id for this commission.
func (c *AffiliateCommission) PurchaseEntityID() string {
	switch c.PurchaseType {
	case PurchaseTypeSubscription:
		if c.SubscriptionID != nil {
			return *c.SubscriptionID
		}
	case PurchaseTypeServiceOrder:
		if c.ServiceOrderID != nil {
			return *c.ServiceOrderID
		}
	case PurchaseTypeStoreOrder:
		if c.StoreOrderID != nil {
			return *c.StoreOrderID
		}
	}
	return ""
}

// NewAffiliateCommission validates and constructs a pending commission.
func NewAffiliateCommission(id, affiliateID, referredUserID string, purchaseType PurchaseType, entityID string, purchaseAmount int64, rate float64) (*AffiliateCommission, error) {
	if id == "" || affiliateID == "" || referredUserID == "" || entityID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if purchaseAmount <= 0 || rate < 0 || rate > 1 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	c := &AffiliateCommission{
		ID:             id,
		AffiliateID:    affiliateID,
		ReferredUserID: referredUserID,
		PurchaseType:   purchaseType,
		PurchaseAmount: purchaseAmount,
		Rate:           rate,
		Amount:         int64(float64(purchaseAmount) * rate),
		Status:         CommissionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch purchaseType {
	case PurchaseTypeSubscription:
		c.SubscriptionID = &entityID
	case PurchaseTypeServiceOrder:
		c.ServiceOrderID = &entityID
	case PurchaseTypeStoreOrder:
		c.StoreOrderID = &entityID
	default:
		return nil, domain.ErrInvalidArgument
	}
	return c, nil
}
