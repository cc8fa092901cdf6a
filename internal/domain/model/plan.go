package model

import (
	"time"

	"billing-ops-platform/internal/domain"
)

// Plan is a purchasable subscription plan. Plans are loaded from configuration
// at startup and validated there; GatewayPlanID is the provisioned plan id on
// the payment gateway side.
type Plan struct {
	Code          string
	Name          string
	GatewayPlanID string
	Price         int64 // minor currency units
	Currency      string
	DurationDays  int
	TrialDays     int
	ProductLimit  int // 0 means unlimited
	Lifetime      bool
}

func (p *Plan) IsZero() bool { return p == nil || p.Code == "" }

// HasTrial reports whether a new subscription on this plan starts in trial.
func (p *Plan) HasTrial() bool { return p.TrialDays > 0 }

// EndDateFrom computes the billing-period end for a charge observed at t.
// Lifetime plans never expire.
func (p *Plan) EndDateFrom(t time.Time) *time.Time {
	if p.Lifetime {
		return nil
	}
	end := t.Add(time.Duration(p.DurationDays) * 24 * time.Hour)
	return &end
}

// NewPlan validates and constructs a plan entry.
func NewPlan(code, name, gatewayPlanID string, price int64, currency string, durationDays, trialDays int) (*Plan, error) {
	if code == "" || name == "" || price <= 0 || currency == "" || durationDays <= 0 || trialDays < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		Code:          code,
		Name:          name,
		GatewayPlanID: gatewayPlanID,
		Price:         price,
		Currency:      currency,
		DurationDays:  durationDays,
		TrialDays:     trialDays,
	}, nil
}
