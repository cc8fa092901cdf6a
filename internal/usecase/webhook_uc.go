// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
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

// Gateway webhook event names.
const (
	EventPaymentCaptured       = "payment.captured"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionCompleted = "subscription.completed"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// WebhookEvent is a decoded gateway webhook delivery.
type WebhookEvent struct {
	Event        string
	Payment      *adapter.GatewayPayment
	Order        *adapter.GatewayOrder
	Subscription *adapter.GatewaySubscription
}

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookUseCase interface {
	// HandleEvent dispatches a webhook delivery to its handler. It always
	// returns normally: the webhook endpoint acknowledges receipt regardless
	// of internal outcome, so failures are logged, never propagated. Every
	// handler is idempotent under duplicate and out-of-order delivery.
	HandleEvent(ctx context.Context, ev WebhookEvent)
}

type webhookUC struct {
	sm       *subscriptionUC
	wallet   WalletUseCase
	comms    CommissionUseCase
	handlers map[string]func(ctx context.Context, ev WebhookEvent) error
	log      *zerolog.Logger
}

func NewWebhookUseCase(sm *subscriptionUC, wallet WalletUseCase, comms CommissionUseCase, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	u := &webhookUC{sm: sm, wallet: wallet, comms: comms, log: &l}
	u.handlers = map[string]func(ctx context.Context, ev WebhookEvent) error{
		EventPaymentCaptured:       u.handlePaymentCaptured,
		EventPaymentFailed:         u.handlePaymentFailed,
		EventSubscriptionActivated: u.handleSubscriptionActivated,
		EventSubscriptionCharged:   u.handleSubscriptionCharged,
		EventSubscriptionCompleted: u.handleSubscriptionCompleted,
		EventSubscriptionCancelled: u.handleSubscriptionCancelled,
	}
	return u
}

func (u *webhookUC) HandleEvent(ctx context.Context, ev WebhookEvent) {
	h, ok := u.handlers[ev.Event]
	if !ok {
		u.log.Debug().Str("event", ev.Event).Msg("unhandled webhook event")
		metrics.IncWebhookEvent(ev.Event, "ignored")
		return
	}
	if err := h(ctx, ev); err != nil {
		// the gateway is acknowledged anyway to avoid retry storms
		u.log.Error().Err(err).Str("event", ev.Event).Msg("webhook handler failed")
		metrics.IncWebhookEvent(ev.Event, "error")
		return
	}
	metrics.IncWebhookEvent(ev.Event, "ok")
}

// resolvePaymentRecord locates our Payment row for a gateway payment, first by
// order id, then by subscription linkage (main or token).
func (u *webhookUC) resolvePaymentRecord(ctx context.Context, gp *adapter.GatewayPayment) (*model.Payment, error) {
	if gp.OrderID != "" {
		if p, err := u.sm.payments.FindByOrderID(ctx, repository.NoTX, gp.OrderID); err == nil {
			return p, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if gp.SubscriptionID != "" {
		return u.sm.payments.FindByExternalSubID(ctx, repository.NoTX, gp.SubscriptionID)
	}
	return nil, domain.ErrNotFound
}

// orderReceipt returns the receipt tag for the order the payment settled, from
// the event payload if present, else from the gateway.
func (u *webhookUC) orderReceipt(ctx context.Context, ev WebhookEvent) string {
	if ev.Order != nil {
		return ev.Order.Receipt
	}
	if ev.Payment != nil && ev.Payment.NotesReceipt != "" {
		return ev.Payment.NotesReceipt
	}
	if ev.Payment != nil && ev.Payment.OrderID != "" {
		if order, err := u.sm.gateway.GetOrder(ctx, ev.Payment.OrderID); err == nil {
			return order.Receipt
		}
	}
	return ""
}

func (u *webhookUC) handlePaymentCaptured(ctx context.Context, ev WebhookEvent) error {
	gp := ev.Payment
	if gp == nil || gp.ID == "" {
		return domain.ErrValidation
	}

	receipt := u.orderReceipt(ctx, ev)
	if IsTopupReceipt(receipt) {
		return u.settleWalletTopup(ctx, gp)
	}

	p, err := u.resolvePaymentRecord(ctx, gp)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("external_payment_id", gp.ID).Msg("captured payment matches no record, skipping")
			return nil
		}
		return err
	}
	if p.Status == model.PaymentStatusPaid {
		return nil // duplicate delivery
	}

	// amount must equal the recorded expected charge before anything is granted
	if gp.Amount != p.Amount {
		u.log.Warn().Str("payment_id", p.ID).Int64("got", gp.Amount).Int64("want", p.Amount).
			Msg("captured amount mismatch, skipping")
		return nil
	}

	if p.ChargeType == model.ChargeTypeToken {
		return u.sm.settleTokenPayment(ctx, p, gp.ID)
	}

	applied, err := u.sm.payments.MarkPaid(ctx, repository.NoTX, p.ID, gp.ID, time.Now())
	if err != nil {
		return err
	}
	if applied {
		metrics.IncPayment(string(model.PaymentStatusPaid))
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
	}
	return nil
}

// settleWalletTopup credits the wallet for a captured topup order. The credit
// is keyed on the external payment id, so redelivery changes the balance by
// the payment amount exactly once.
func (u *webhookUC) settleWalletTopup(ctx context.Context, gp *adapter.GatewayPayment) error {
	p, err := u.sm.payments.FindByOrderID(ctx, repository.NoTX, gp.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("order_id", gp.OrderID).Msg("topup order matches no record, skipping")
			return nil
		}
		return err
	}
	if gp.Amount != p.Amount {
		u.log.Warn().Str("payment_id", p.ID).Int64("got", gp.Amount).Int64("want", p.Amount).
			Msg("topup amount mismatch, skipping")
		return nil
	}
	if _, err := u.sm.payments.MarkPaid(ctx, repository.NoTX, p.ID, gp.ID, time.Now()); err != nil {
		return err
	}
	_, err = u.wallet.Credit(ctx, p.UserID, gp.Amount, "wallet_topup", gp.ID, map[string]interface{}{
		"order_id": gp.OrderID,
	})
	return err
}

func (u *webhookUC) handlePaymentFailed(ctx context.Context, ev WebhookEvent) error {
	gp := ev.Payment
	if gp == nil {
		return domain.ErrValidation
	}

	// record the failure on a matching unsettled payment row, if any; renewal
	// charges usually have no pre-existing row, only the event linkage
	if p, err := u.resolvePaymentRecord(ctx, gp); err == nil {
		if p.Status == model.PaymentStatusCreated {
			if err := u.sm.payments.MarkFailed(ctx, repository.NoTX, p.ID); err != nil {
				return err
			}
			metrics.IncPayment(string(model.PaymentStatusFailed))
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	extSubID := gp.SubscriptionID
	if ev.Subscription != nil && ev.Subscription.ID != "" {
		extSubID = ev.Subscription.ID
	}
	if extSubID == "" {
		return nil
	}
	sub, err := u.sm.subs.FindByExternalSubID(ctx, repository.NoTX, extSubID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	// inside the trial window the gateway retries the token charge; a failed
	// charge past the trial ends the subscription
	if sub.InTrial(time.Now()) {
		return nil
	}
	return u.expireSubscription(ctx, sub, "renewal charge failed")
}

func (u *webhookUC) handleSubscriptionActivated(ctx context.Context, ev WebhookEvent) error {
	if ev.Subscription == nil {
		return domain.ErrValidation
	}
	sub, err := u.sm.subs.FindByExternalSubID(ctx, repository.NoTX, ev.Subscription.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	now := time.Now()
	if sub.InTrial(now) {
		// still inside the trial window: activation does not end the trial
		if sub.Status != model.SubscriptionStatusTrialing {
			return nil
		}
		sub.AppendHistory("activated", "gateway activation during trial")
		return u.sm.subs.Save(ctx, repository.NoTX, sub)
	}
	if sub.Status == model.SubscriptionStatusActive {
		return nil
	}
	if err := sub.Transition(model.SubscriptionStatusActive, "gateway activation"); err != nil {
		return nil // terminal; out-of-order delivery
	}
	return u.sm.subs.Save(ctx, repository.NoTX, sub)
}

func (u *webhookUC) handleSubscriptionCharged(ctx context.Context, ev WebhookEvent) error {
	if ev.Subscription == nil || ev.Payment == nil {
		return domain.ErrValidation
	}
	sub, err := u.sm.subs.FindByExternalSubID(ctx, repository.NoTX, ev.Subscription.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	plan, err := u.sm.plans.Resolve(sub.PlanCode)
	if err != nil {
		return err
	}
	// amount validation gates the entitlement grant
	if ev.Payment.Amount != plan.Price {
		u.log.Warn().Str("sub_id", sub.ID).Int64("got", ev.Payment.Amount).Int64("want", plan.Price).
			Msg("charged amount mismatch, skipping")
		return nil
	}
	// duplicate delivery: the settlement payment for this external id exists
	if existing, err := u.sm.payments.FindByExternalPaymentID(ctx, repository.NoTX, ev.Payment.ID); err == nil && existing.Status == model.PaymentStatusPaid {
		return nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	now := time.Now()
	endAt := plan.EndDateFrom(now)

	err = u.sm.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := sub.Transition(model.SubscriptionStatusActive, "renewal charge settled"); err != nil {
			return err
		}
		sub.EndAt = endAt
		sub.AmountPaid += ev.Payment.Amount
		if err := u.sm.subs.Save(ctx, tx, sub); err != nil {
			return err
		}

		paidAt := now
		settlement := &model.Payment{
			ID:                uuid.NewString(),
			UserID:            sub.UserID,
			PlanCode:          sub.PlanCode,
			OrderID:           ev.Payment.OrderID,
			ExternalSubID:     sub.ExternalSubID,
			ExternalPaymentID: ev.Payment.ID,
			ChargeType:        model.ChargeTypeSubscription,
			Status:            model.PaymentStatusPaid,
			Amount:            ev.Payment.Amount,
			Currency:          plan.Currency,
			SubscriptionID:    &sub.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
			PaidAt:            &paidAt,
		}
		if err := u.sm.payments.Save(ctx, tx, settlement); err != nil {
			return err
		}

		user, err := u.sm.users.FindByID(ctx, tx, sub.UserID)
		if err != nil {
			return err
		}
		user.GrantEntitlement(sub.PlanCode, endAt, plan.ProductLimit)
		return u.sm.users.UpdateEntitlement(ctx, tx, user)
	})
	if err != nil {
		return err
	}

	metrics.IncPayment(string(model.PaymentStatusPaid))
	metrics.AddPaymentRevenue(plan.Currency, ev.Payment.Amount)

	// affiliate commission for referred purchases; one per subscription
	if user, err := u.sm.users.FindByID(ctx, repository.NoTX, sub.UserID); err == nil && user.ReferredBy != "" {
		if _, err := u.comms.RecordPurchase(ctx, user.ReferredBy, user.ID, model.PurchaseTypeSubscription, sub.ID, ev.Payment.Amount); err != nil {
			u.log.Warn().Err(err).Str("sub_id", sub.ID).Msg("commission recording failed")
		}
	}

	if err := u.sm.notifier.Notify(ctx, sub.UserID, "subscription_charged", map[string]interface{}{
		"plan":   sub.PlanCode,
		"end_at": endAt,
	}); err != nil {
		u.log.Warn().Err(err).Str("user_id", sub.UserID).Msg("charge notification failed")
	}
	return nil
}

func (u *webhookUC) handleSubscriptionCompleted(ctx context.Context, ev WebhookEvent) error {
	if ev.Subscription == nil {
		return domain.ErrValidation
	}
	sub, err := u.sm.subs.FindByExternalSubID(ctx, repository.NoTX, ev.Subscription.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return u.expireSubscription(ctx, sub, "gateway subscription completed")
}

func (u *webhookUC) handleSubscriptionCancelled(ctx context.Context, ev WebhookEvent) error {
	if ev.Subscription == nil {
		return domain.ErrValidation
	}
	sub, err := u.sm.subs.FindByExternalSubID(ctx, repository.NoTX, ev.Subscription.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := sub.Transition(model.SubscriptionStatusCancelled, "cancelled at gateway"); err != nil {
		return nil // already terminal
	}
	if err := u.sm.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}

	// access continues until trial end when the trial is still running;
	// past the trial the entitlement ends immediately
	if !sub.InTrial(time.Now()) {
		if err := u.revokeEntitlement(ctx, sub); err != nil {
			return err
		}
	}
	if err := u.sm.notifier.Notify(ctx, sub.UserID, "subscription_cancelled", map[string]interface{}{
		"plan": sub.PlanCode,
	}); err != nil {
		u.log.Warn().Err(err).Str("user_id", sub.UserID).Msg("cancel notification failed")
	}
	return nil
}

func (u *webhookUC) expireSubscription(ctx context.Context, sub *model.Subscription, note string) error {
	if err := sub.Transition(model.SubscriptionStatusExpired, note); err != nil {
		return nil // already terminal
	}
	if err := u.sm.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	return u.revokeEntitlement(ctx, sub)
}

// revokeEntitlement clears the user's plan only when this subscription's plan
// is still the user's current one.
func (u *webhookUC) revokeEntitlement(ctx context.Context, sub *model.Subscription) error {
	user, err := u.sm.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.RevokeEntitlement(sub.PlanCode) {
		return u.sm.users.UpdateEntitlement(ctx, repository.NoTX, user)
	}
	return nil
}
