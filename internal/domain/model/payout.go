package model

import (
	"time"

	"billing-ops-platform/internal/domain"
)

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusRejected PayoutStatus = "rejected"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:  {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved: {PayoutStatusPaid},
	PayoutStatusPaid:     {},
	PayoutStatusRejected: {},
}

// AffiliatePayout is one payout request batch. Only one pending payout may
// exist per affiliate at a time.
type AffiliatePayout struct {
	ID                  string // UUID
	AffiliateID         string
	Amount              int64 // minor units
	Status              PayoutStatus
	RequestedAt         time.Time
	ApprovedAt          *time.Time
	PaidAt              *time.Time
	RejectedAt          *time.Time
	WalletTransactionID *string // set once the wallet credit lands
}

func (p *AffiliatePayout) IsZero() bool { return p == nil || p.ID == "" }

func (p *AffiliatePayout) CanTransition(next PayoutStatus) bool {
	for _, s := range payoutTransitions[p.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (p *AffiliatePayout) Transition(next PayoutStatus) error {
	if !p.CanTransition(next) {
		return domain.ErrInvalidTransition
	}
	now := time.Now()
	p.Status = next
	switch next {
	case PayoutStatusApproved:
		p.ApprovedAt = &now
	case PayoutStatusPaid:
		p.PaidAt = &now
	case PayoutStatusRejected:
		p.RejectedAt = &now
	}
	return nil
}

func NewAffiliatePayout(id, affiliateID string, amount int64) (*AffiliatePayout, error) {
	if id == "" || affiliateID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &AffiliatePayout{
		ID:          id,
		AffiliateID: affiliateID,
		Amount:      amount,
		Status:      PayoutStatusPending,
		RequestedAt: time.Now(),
	}, nil
}
