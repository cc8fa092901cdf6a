package adapter

import (
	"context"
	"time"
)

// GatewaySubscription is the provider-side recurring-billing object.
type GatewaySubscription struct {
	ID         string
	PlanID     string
	Status     string
	StartAt    time.Time
	TotalCount int
	ShortURL   string
}

// GatewayPayment is a provider charge as reported by the gateway API or a
// webhook payload. SubscriptionID may be empty for addon-based charges even
// when the payment did settle against a subscription.
type GatewayPayment struct {
	ID             string
	OrderID        string
	SubscriptionID string
	Amount         int64 // minor units
	Currency       string
	Status         string
	Method         string
	NotesReceipt   string // receipt tag carried through order notes, if any
}

type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

type GatewayPlan struct {
	ID       string
	Amount   int64
	Currency string
	Period   string
}

// SubscriptionAddon is an upfront charge item attached at subscription
// creation. Used to override the gateway's default authorization amount with
// the fixed token amount.
type SubscriptionAddon struct {
	Name     string
	Amount   int64
	Currency string
}

// PaymentGateway is the hex port for the external payment provider. All
// signature verification is pure HMAC comparison against a shared secret and
// must reject empty signatures. No retries here; callers decide retry policy,
// and calls run under the caller-supplied deadline.
type PaymentGateway interface {
	Name() string

	CreateSubscription(ctx context.Context, planID string, startAt time.Time, totalCount int, addons []SubscriptionAddon) (*GatewaySubscription, error)
	GetSubscription(ctx context.Context, id string) (*GatewaySubscription, error)
	GetPayment(ctx context.Context, id string) (*GatewayPayment, error)
	GetOrder(ctx context.Context, id string) (*GatewayOrder, error)
	FetchPlan(ctx context.Context, id string) (*GatewayPlan, error)
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error)

	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}
