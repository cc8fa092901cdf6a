// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/domain/ports/repository"
	"billing-ops-platform/internal/infra/metrics"
)

// Locker serializes a user-initiated verify racing a webhook for the same
// external payment id. Lock failure degrades to optimistic processing: the
// conditional MarkPaid keeps the effect exactly-once either way.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// mainChargeCount is the totalCount passed for the main gateway subscription.
// The gateway requires a finite charge count; ten years of monthly-equivalent
// charges is effectively unbounded for our plans.
const mainChargeCount = 120

// TrialCheckout is returned to the client after a trial subscription is set up.
type TrialCheckout struct {
	SubscriptionID string     `json:"subscriptionId"`
	ExternalSubID  string     `json:"externalSubscriptionId"`
	TokenSubID     string     `json:"tokenSubscriptionId"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	TrialDays      int        `json:"trialDays"`
	TrialEndsAt    *time.Time `json:"trialEndsAt"`
	CheckoutURL    string     `json:"checkoutUrl,omitempty"`
}

// VerifyRequest carries the client-side result of a token charge checkout.
type VerifyRequest struct {
	PaymentID      string
	Signature      string
	PlanCode       string
	OrderID        string // order-based flows only
	SubscriptionID string // external subscription id, subscription-based flows
}

// PlanStatus is the entitlement view exposed to the client.
type PlanStatus struct {
	Plan              string                   `json:"plan"`
	PlanExpiresAt     *time.Time               `json:"planExpiresAt"`
	IsLifetime        bool                     `json:"isLifetime"`
	Status            model.SubscriptionStatus `json:"status"`
	IsTrialing        bool                     `json:"isTrialing"`
	TrialEndsAt       *time.Time               `json:"trialEndsAt"`
	ProductsRemaining int                      `json:"productsRemaining"`
	SubscriptionID    string                   `json:"subscriptionId"`
}

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// CreateTrial provisions the token and main gateway subscriptions and
	// persists the trialing Subscription with its created-status Payment.
	CreateTrial(ctx context.Context, userID, planCode string) (*TrialCheckout, error)
	// VerifyPayment settles the token charge. Idempotent on the external
	// payment id: a replay returns success without side effects.
	VerifyPayment(ctx context.Context, userID string, req VerifyRequest) (*PlanStatus, error)
	CurrentPlan(ctx context.Context, userID string) (*PlanStatus, error)
	// GrantManual gives a user a plan without a gateway charge (support/admin
	// path); the subscription is marked manually_granted.
	GrantManual(ctx context.Context, userID, planCode, note string) (*model.Subscription, error)
	// FinishExpired marks overdue subscriptions expired and revokes their
	// entitlement; returns how many were processed.
	FinishExpired(ctx context.Context) (int, error)
}

type subscriptionUC struct {
	payments repository.PaymentRepository
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	gateway  adapter.PaymentGateway
	plans    *PlanTable
	notifier adapter.Notifier
	locker   Locker
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	gateway adapter.PaymentGateway,
	plans *PlanTable,
	notifier adapter.Notifier,
	locker Locker,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		payments: payments,
		subs:     subs,
		users:    users,
		gateway:  gateway,
		plans:    plans,
		notifier: notifier,
		locker:   locker,
		tm:       tm,
		log:      &l,
	}
}

func (u *subscriptionUC) CreateTrial(ctx context.Context, userID, planCode string) (*TrialCheckout, error) {
	plan, err := u.plans.Resolve(planCode)
	if err != nil {
		return nil, err
	}
	if plan.GatewayPlanID == "" || u.plans.TokenPlanID() == "" {
		return nil, fmt.Errorf("%w: gateway plan ids not provisioned for %q", domain.ErrConfiguration, planCode)
	}

	// The token plan must be provisioned at exactly the fixed token amount.
	// A drift here would silently charge the wrong amount, so it is a hard
	// failure instead.
	tokenPlan, err := u.gateway.FetchPlan(ctx, u.plans.TokenPlanID())
	if err != nil {
		return nil, err
	}
	if tokenPlan.Amount != u.plans.TokenAmount() {
		return nil, fmt.Errorf("%w: token plan price %d != configured %d", domain.ErrAmountMismatch, tokenPlan.Amount, u.plans.TokenAmount())
	}

	now := time.Now()
	trialEndsAt := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)

	// Both subscriptions carry an upfront addon equal to the token amount:
	// the gateway's default for future-dated subscriptions authorizes a
	// smaller amount, which must be overridden.
	addons := []adapter.SubscriptionAddon{{
		Name:     "token_charge",
		Amount:   u.plans.TokenAmount(),
		Currency: u.plans.Currency(),
	}}

	tokenSub, err := u.gateway.CreateSubscription(ctx, u.plans.TokenPlanID(), now, u.plans.TrialCharges(), addons)
	if err != nil {
		return nil, err
	}
	mainSub, err := u.gateway.CreateSubscription(ctx, plan.GatewayPlanID, trialEndsAt, mainChargeCount, addons)
	if err != nil {
		return nil, err
	}

	sub, err := model.NewSubscription(uuid.NewString(), userID, plan, mainSub.ID, tokenSub.ID)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{
		ID:            uuid.NewString(),
		UserID:        userID,
		PlanCode:      planCode,
		ExternalSubID: mainSub.ID,
		TokenSubID:    tokenSub.ID,
		ChargeType:    model.ChargeTypeToken,
		Status:        model.PaymentStatusCreated,
		Amount:        u.plans.TokenAmount(),
		Currency:      u.plans.Currency(),
		Meta: map[string]interface{}{
			"subscription_id":       sub.ID,
			"token_subscription_id": tokenSub.ID,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		return u.payments.Save(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPayment(string(model.PaymentStatusCreated))
	u.log.Info().Str("user_id", userID).Str("plan", planCode).
		Str("sub_id", sub.ID).Str("external_sub_id", mainSub.ID).
		Msg("trial subscription created")

	return &TrialCheckout{
		SubscriptionID: sub.ID,
		ExternalSubID:  mainSub.ID,
		TokenSubID:     tokenSub.ID,
		Amount:         u.plans.TokenAmount(),
		Currency:       u.plans.Currency(),
		TrialDays:      plan.TrialDays,
		TrialEndsAt:    sub.TrialEndsAt,
		CheckoutURL:    tokenSub.ShortURL,
	}, nil
}

func (u *subscriptionUC) VerifyPayment(ctx context.Context, userID string, req VerifyRequest) (*PlanStatus, error) {
	if req.PaymentID == "" {
		return nil, domain.ErrValidation
	}

	if u.locker != nil {
		if token, err := u.locker.TryLock(ctx, "payment:"+req.PaymentID, 30*time.Second); err == nil {
			defer func() { _ = u.locker.Unlock(ctx, "payment:"+req.PaymentID, token) }()
		}
	}

	// replay protection: a payment already settled is idempotent success
	if existing, err := u.payments.FindByExternalPaymentID(ctx, repository.NoTX, req.PaymentID); err == nil {
		if existing.Status == model.PaymentStatusPaid {
			return u.CurrentPlan(ctx, userID)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	p, gp, err := u.resolvePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrSubscriptionMismatch
	}
	if p.Status == model.PaymentStatusPaid {
		return u.CurrentPlan(ctx, userID)
	}

	if req.OrderID != "" && !u.gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		return nil, domain.ErrSignatureInvalid
	}

	if gp == nil {
		gp, err = u.gateway.GetPayment(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}
	}
	if gp.Amount != u.plans.TokenAmount() {
		return nil, fmt.Errorf("%w: token charge %d != expected %d", domain.ErrAmountMismatch, gp.Amount, u.plans.TokenAmount())
	}

	if err := u.settleTokenPayment(ctx, p, req.PaymentID); err != nil {
		return nil, err
	}
	return u.CurrentPlan(ctx, userID)
}

// resolvePayment locates the stored Payment record for a verify call and
// checks that the gateway payment actually belongs to one of its known
// subscription ids. Addon-based charges may omit the subscription linkage in
// the gateway response; in that case a Payment record existing for the claimed
// subscription id is accepted as the match. When the subscription path fetches
// the gateway payment it is returned so the caller does not fetch it again;
// the order path returns nil for it.
func (u *subscriptionUC) resolvePayment(ctx context.Context, req VerifyRequest) (*model.Payment, *adapter.GatewayPayment, error) {
	if req.OrderID != "" {
		p, err := u.payments.FindByOrderID(ctx, repository.NoTX, req.OrderID)
		return p, nil, err
	}
	if req.SubscriptionID == "" {
		return nil, nil, domain.ErrValidation
	}
	p, err := u.payments.FindByExternalSubID(ctx, repository.NoTX, req.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrSubscriptionMismatch
		}
		return nil, nil, err
	}

	gp, err := u.gateway.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, nil, err
	}
	if gp.SubscriptionID != "" && gp.SubscriptionID != p.ExternalSubID && gp.SubscriptionID != p.TokenSubID {
		return nil, nil, domain.ErrSubscriptionMismatch
	}
	return p, gp, nil
}

// settleTokenPayment applies the financial effects of a verified token charge:
// payment paid, token reference on the subscription, entitlement through the
// trial window. Each step re-checks its own idempotency key, so a partial run
// followed by a retry converges.
func (u *subscriptionUC) settleTokenPayment(ctx context.Context, p *model.Payment, externalPaymentID string) error {
	var sub *model.Subscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		applied, err := u.payments.MarkPaid(ctx, tx, p.ID, externalPaymentID, time.Now())
		if err != nil {
			return err
		}
		if !applied {
			// another deliverer settled first; nothing left to do
			return nil
		}

		sub, err = u.subs.FindByExternalSubID(ctx, tx, p.ExternalSubID)
		if err != nil {
			return err
		}
		sub.TokenPaymentID = externalPaymentID
		sub.AppendHistory("token_payment_verified", externalPaymentID)
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		if err := u.payments.LinkSubscription(ctx, tx, p.ID, sub.ID); err != nil {
			return err
		}

		plan, err := u.plans.Resolve(sub.PlanCode)
		if err != nil {
			return err
		}
		user, err := u.users.FindByID(ctx, tx, sub.UserID)
		if err != nil {
			return err
		}
		user.GrantEntitlement(sub.PlanCode, sub.TrialEndsAt, plan.ProductLimit)
		return u.users.UpdateEntitlement(ctx, tx, user)
	})
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	metrics.IncPayment(string(model.PaymentStatusPaid))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	u.log.Info().Str("user_id", sub.UserID).Str("sub_id", sub.ID).
		Str("external_payment_id", externalPaymentID).Msg("token payment settled")

	// notification failures never fail the settlement
	if err := u.notifier.Notify(ctx, sub.UserID, "trial_started", map[string]interface{}{
		"plan":          sub.PlanCode,
		"trial_ends_at": sub.TrialEndsAt,
	}); err != nil {
		u.log.Warn().Err(err).Str("user_id", sub.UserID).Msg("trial notification failed")
	}
	return nil
}

func (u *subscriptionUC) CurrentPlan(ctx context.Context, userID string) (*PlanStatus, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	out := &PlanStatus{
		Plan:              user.Plan,
		PlanExpiresAt:     user.PlanExpiresAt,
		IsLifetime:        user.Plan != "" && user.PlanExpiresAt == nil,
		ProductsRemaining: user.ProductsRemaining,
	}
	sub, err := u.subs.FindCurrentByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return out, nil
		}
		return nil, err
	}
	out.Status = sub.Status
	out.IsTrialing = sub.Status == model.SubscriptionStatusTrialing
	out.TrialEndsAt = sub.TrialEndsAt
	out.SubscriptionID = sub.ID
	return out, nil
}

func (u *subscriptionUC) GrantManual(ctx context.Context, userID, planCode, note string) (*model.Subscription, error) {
	plan, err := u.plans.Resolve(planCode)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sub := &model.Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanCode:  planCode,
		Status:    model.SubscriptionStatusManuallyGranted,
		StartAt:   now,
		EndAt:     plan.EndDateFrom(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub.AppendHistory("manually_granted", note)

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		user, err := u.users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		user.GrantEntitlement(planCode, sub.EndAt, plan.ProductLimit)
		return u.users.UpdateEntitlement(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("plan", planCode).Msg("plan granted manually")
	return sub, nil
}

func (u *subscriptionUC) FinishExpired(ctx context.Context) (int, error) {
	overdue, err := u.subs.ListOverdue(ctx, repository.NoTX, time.Now(), 200)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, sub := range overdue {
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			cur, err := u.subs.FindByID(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if !cur.CanTransition(model.SubscriptionStatusExpired) {
				return nil // raced with a webhook; already terminal
			}
			if err := cur.Transition(model.SubscriptionStatusExpired, "billing period elapsed"); err != nil {
				return nil
			}
			if err := u.subs.Save(ctx, tx, cur); err != nil {
				return err
			}
			user, err := u.users.FindByID(ctx, tx, cur.UserID)
			if err != nil {
				return err
			}
			if user.RevokeEntitlement(cur.PlanCode) {
				return u.users.UpdateEntitlement(ctx, tx, user)
			}
			return nil
		})
		if err != nil {
			u.log.Error().Err(err).Str("sub_id", sub.ID).Msg("expiring subscription failed")
			continue
		}
		n++
	}
	return n, nil
}
