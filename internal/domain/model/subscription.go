package model

import (
	"time"

	"billing-ops-platform/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrialing        SubscriptionStatus = "trialing"
	SubscriptionStatusActive          SubscriptionStatus = "active"
	SubscriptionStatusCancelled       SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired         SubscriptionStatus = "expired"
	SubscriptionStatusManuallyGranted SubscriptionStatus = "manually_granted"
)

// subscriptionTransitions is the closed transition table. Terminal states
// (cancelled, expired) never transition back; renewal is active -> active.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrialing:        {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusActive:          {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusManuallyGranted: {SubscriptionStatusExpired, SubscriptionStatusCancelled},
	SubscriptionStatusCancelled:       {},
	SubscriptionStatusExpired:         {},
}

// HistoryEntry is one append-only lifecycle log record on a subscription.
type HistoryEntry struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Subscription is one user subscription lifecycle instance.
type Subscription struct {
	ID             string // UUID
	UserID         string // UUID
	PlanCode       string
	ExternalSubID  string // main gateway subscription (the one billed after trial)
	TokenSubID     string // short-lived token subscription used for the upfront charge
	TokenPaymentID string // external payment id of the verified token charge
	Status         SubscriptionStatus
	StartAt        time.Time
	TrialEndsAt    *time.Time
	EndAt          *time.Time // nil means non-expiring / lifetime
	AmountPaid     int64
	History        []HistoryEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Subscription) IsZero() bool { return s == nil || s.ID == "" }

// CanTransition reports whether the status change is present in the table.
func (s *Subscription) CanTransition(next SubscriptionStatus) bool {
	for _, st := range subscriptionTransitions[s.Status] {
		if st == next {
			return true
		}
	}
	return false
}

// Transition applies a status change and appends a history entry, or rejects
// moves not in the table.
func (s *Subscription) Transition(next SubscriptionStatus, note string) error {
	if !s.CanTransition(next) {
		return domain.ErrInvalidTransition
	}
	s.Status = next
	s.AppendHistory(string(next), note)
	return nil
}

// AppendHistory records an action on the subscription's append-only log.
func (s *Subscription) AppendHistory(action, note string) {
	now := time.Now()
	s.History = append(s.History, HistoryEntry{Action: action, At: now, Note: note})
	s.UpdatedAt = now
}

// InTrial reports whether the subscription is still inside its trial window at t.
func (s *Subscription) InTrial(t time.Time) bool {
	return s.TrialEndsAt != nil && t.Before(*s.TrialEndsAt)
}

// NewSubscription creates a subscription for a user on the given plan. It
// starts trialing when the plan has a trial period, otherwise active.
func NewSubscription(id, userID string, plan *Plan, externalSubID, tokenSubID string) (*Subscription, error) {
	if id == "" || userID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	s := &Subscription{
		ID:            id,
		UserID:        userID,
		PlanCode:      plan.Code,
		ExternalSubID: externalSubID,
		TokenSubID:    tokenSubID,
		StartAt:       now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.HasTrial() {
		trialEnd := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
		s.TrialEndsAt = &trialEnd
		s.Status = SubscriptionStatusTrialing
		s.AppendHistory("created", "trial started")
	} else {
		s.EndAt = plan.EndDateFrom(now)
		s.Status = SubscriptionStatusActive
		s.AppendHistory("created", "subscription active")
	}
	return s, nil
}
