package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory gateway for tests and dev wiring. It
// remembers what it creates and verifies every signature.
type NoopGateway struct {
	mu     sync.Mutex
	seq    int64
	subs   map[string]*adapter.GatewaySubscription
	orders map[string]*adapter.GatewayOrder
	plans  map[string]*adapter.GatewayPlan
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{
		subs:   make(map[string]*adapter.GatewaySubscription),
		orders: make(map[string]*adapter.GatewayOrder),
		plans:  make(map[string]*adapter.GatewayPlan),
	}
}

func (g *NoopGateway) Name() string { return "noop" }

// RegisterPlan seeds a plan so FetchPlan and CreateSubscription can resolve it.
func (g *NoopGateway) RegisterPlan(p adapter.GatewayPlan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := p
	g.plans[p.ID] = &cp
}

func (g *NoopGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop_%d", prefix, g.seq)
}

func (g *NoopGateway) CreateSubscription(ctx context.Context, planID string, startAt time.Time, totalCount int, addons []adapter.SubscriptionAddon) (*adapter.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.plans[planID]; !ok {
		return nil, fmt.Errorf("noop gateway: plan %s: %w", planID, domain.ErrNotFound)
	}
	sub := &adapter.GatewaySubscription{
		ID:         g.next("sub"),
		PlanID:     planID,
		Status:     "created",
		StartAt:    startAt,
		TotalCount: totalCount,
	}
	sub.ShortURL = "https://example.test/checkout/" + sub.ID
	g.subs[sub.ID] = sub
	out := *sub
	return &out, nil
}

func (g *NoopGateway) GetSubscription(ctx context.Context, id string) (*adapter.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subs[id]
	if !ok {
		return nil, fmt.Errorf("noop gateway: subscription %s: %w", id, domain.ErrNotFound)
	}
	out := *sub
	return &out, nil
}

func (g *NoopGateway) GetPayment(ctx context.Context, id string) (*adapter.GatewayPayment, error) {
	return nil, fmt.Errorf("noop gateway: payment %s: %w", id, domain.ErrNotFound)
}

func (g *NoopGateway) GetOrder(ctx context.Context, id string) (*adapter.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ord, ok := g.orders[id]
	if !ok {
		return nil, fmt.Errorf("noop gateway: order %s: %w", id, domain.ErrNotFound)
	}
	out := *ord
	return &out, nil
}

func (g *NoopGateway) FetchPlan(ctx context.Context, id string) (*adapter.GatewayPlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.plans[id]
	if !ok {
		return nil, fmt.Errorf("noop gateway: plan %s: %w", id, domain.ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (g *NoopGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*adapter.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ord := &adapter.GatewayOrder{
		ID:       g.next("order"),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	g.orders[ord.ID] = ord
	out := *ord
	return &out, nil
}

func (g *NoopGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return signature != ""
}

func (g *NoopGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature != ""
}
