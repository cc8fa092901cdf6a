// File: internal/usecase/plans.go
package usecase

import (
	"fmt"

	"billing-ops-platform/internal/config"
	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
)

// PlanTable is the validated, immutable plan catalog handed to the state
// machine at construction. It is built once from config; request paths never
// touch ambient configuration.
type PlanTable struct {
	plans        map[string]*model.Plan
	tokenPlanID  string
	tokenAmount  int64
	trialCharges int
	currency     string
}

// NewPlanTable converts the billing config section into domain plans.
// LoadConfig already validated the entries; this keeps a second guard so a
// PlanTable can never be built from an unchecked map.
func NewPlanTable(cfg config.BillingConfig) (*PlanTable, error) {
	if cfg.TokenPlanID == "" || cfg.TokenAmount <= 0 {
		return nil, fmt.Errorf("%w: token plan not provisioned", domain.ErrConfiguration)
	}
	plans := make(map[string]*model.Plan, len(cfg.Plans))
	for code, pc := range cfg.Plans {
		p := &model.Plan{
			Code:          code,
			Name:          pc.Name,
			GatewayPlanID: pc.GatewayPlanID,
			Price:         pc.Price,
			Currency:      cfg.Currency,
			DurationDays:  pc.DurationDays,
			TrialDays:     pc.TrialDays,
			ProductLimit:  pc.ProductLimit,
			Lifetime:      pc.Lifetime,
		}
		if p.GatewayPlanID == "" || p.Price <= 0 {
			return nil, fmt.Errorf("%w: plan %q not provisioned", domain.ErrConfiguration, code)
		}
		plans[code] = p
	}
	trialCharges := cfg.TrialCharges
	if trialCharges <= 0 {
		trialCharges = 1
	}
	return &PlanTable{
		plans:        plans,
		tokenPlanID:  cfg.TokenPlanID,
		tokenAmount:  cfg.TokenAmount,
		trialCharges: trialCharges,
		currency:     cfg.Currency,
	}, nil
}

// Resolve returns the plan for code, or ErrInvalidPlan for unknown codes.
func (t *PlanTable) Resolve(code string) (*model.Plan, error) {
	p, ok := t.plans[code]
	if !ok {
		return nil, domain.ErrInvalidPlan
	}
	return p, nil
}

func (t *PlanTable) TokenPlanID() string { return t.tokenPlanID }
func (t *PlanTable) TokenAmount() int64  { return t.tokenAmount }
func (t *PlanTable) TrialCharges() int   { return t.trialCharges }
func (t *PlanTable) Currency() string    { return t.currency }
