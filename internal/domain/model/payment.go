package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created" // charge attempt recorded, awaiting settlement
	PaymentStatusPaid    PaymentStatus = "paid"    // settled at gateway; financial effects applied
	PaymentStatusFailed  PaymentStatus = "failed"  // gateway reported failure
)

type ChargeType string

const (
	ChargeTypeToken        ChargeType = "token_charge"        // small upfront mandate-authorization charge
	ChargeTypeSubscription ChargeType = "subscription_charge" // real plan price after trial / on renewal
	ChargeTypeTopup        ChargeType = "wallet_topup"        // order-based wallet balance topup
)

// Payment records one gateway charge attempt. At most one Payment per external
// payment id may ever reach paid; later observations of the same id are no-ops.
type Payment struct {
	ID                string // UUID
	UserID            string // UUID
	PlanCode          string
	OrderID           string // external order id, if order-based
	ExternalSubID     string // external subscription id the charge belongs to (main)
	TokenSubID        string // external token-subscription id, for trial flows
	ExternalPaymentID string // gateway payment id; set when settled; idempotency key
	ChargeType        ChargeType
	Status            PaymentStatus
	Amount            int64 // minor units
	Currency          string
	Meta              map[string]interface{}
	SubscriptionID    *string // internal Subscription row, once resolved
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
}

// paymentTransitions is the closed transition table for Payment.Status.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:    {},
	PaymentStatusFailed:  {},
}

// CanTransition reports whether moving from the current status to next is allowed.
func (p *Payment) CanTransition(next PaymentStatus) bool {
	for _, s := range paymentTransitions[p.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (p *Payment) IsZero() bool { return p == nil || p.ID == "" }
