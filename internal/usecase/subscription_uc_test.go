// File: internal/usecase/subscription_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"billing-ops-platform/internal/config"
	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/domain/model"
)

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		Currency:    "INR",
		TokenAmount: 500,
		TokenPlanID: "plan_token",
		Plans: map[string]config.PlanConfig{
			"pro": {
				Name:          "Pro",
				GatewayPlanID: "plan_pro",
				Price:         99900,
				DurationDays:  30,
				TrialDays:     7,
				ProductLimit:  25,
			},
			"lifetime": {
				Name:          "Lifetime",
				GatewayPlanID: "plan_lifetime",
				Price:         499900,
				DurationDays:  1,
				Lifetime:      true,
			},
		},
	}
}

type subFixture struct {
	uc       *subscriptionUC
	payments *memPayments
	subs     *memSubs
	users    *memUsers
	gateway  *fakeGateway
	notifier *recordingNotifier
}

func newSubFixture(t *testing.T) *subFixture {
	t.Helper()
	plans, err := NewPlanTable(testBillingConfig())
	if err != nil {
		t.Fatalf("NewPlanTable: %v", err)
	}
	f := &subFixture{
		payments: newMemPayments(),
		subs:     newMemSubs(),
		users:    newMemUsers(),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
	}
	f.gateway.plans["plan_token"] = &adapter.GatewayPlan{ID: "plan_token", Amount: 500, Currency: "INR"}
	f.uc = NewSubscriptionUseCase(f.payments, f.subs, f.users, f.gateway, plans, f.notifier, fakeLocker{}, passTM{}, testLogger())
	return f
}

func (f *subFixture) seedUser(t *testing.T, id string) {
	t.Helper()
	u, err := model.NewUser(id, id+"@example.com")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := f.users.Save(context.Background(), nil, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestCreateTrial(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	checkout, err := f.uc.CreateTrial(ctx, "user-1", "pro")
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if checkout.Amount != 500 || checkout.Currency != "INR" || checkout.TrialDays != 7 {
		t.Fatalf("unexpected checkout: %+v", checkout)
	}
	if checkout.ExternalSubID == "" || checkout.TokenSubID == "" || checkout.ExternalSubID == checkout.TokenSubID {
		t.Fatalf("expected two distinct gateway subscriptions, got %+v", checkout)
	}

	sub, err := f.subs.FindByID(ctx, nil, checkout.SubscriptionID)
	if err != nil {
		t.Fatalf("stored subscription: %v", err)
	}
	if sub.Status != model.SubscriptionStatusTrialing {
		t.Fatalf("subscription status = %s, want trialing", sub.Status)
	}
	if sub.TrialEndsAt == nil {
		t.Fatal("trial end not set")
	}

	p, err := f.payments.FindByExternalSubID(ctx, nil, checkout.ExternalSubID)
	if err != nil {
		t.Fatalf("token payment row: %v", err)
	}
	if p.ChargeType != model.ChargeTypeToken || p.Amount != 500 || p.Status != model.PaymentStatusCreated {
		t.Fatalf("unexpected token payment: %+v", p)
	}

	// the main subscription must not start billing before the trial ends
	if len(f.gateway.createdSubs) != 2 {
		t.Fatalf("created %d gateway subscriptions, want 2", len(f.gateway.createdSubs))
	}
	main := f.gateway.createdSubs[1]
	if !main.StartAt.After(time.Now().Add(6 * 24 * time.Hour)) {
		t.Fatalf("main subscription starts too early: %v", main.StartAt)
	}
}

func TestCreateTrialPassesConfiguredTokenCharges(t *testing.T) {
	cfg := testBillingConfig()
	cfg.TrialCharges = 2
	plans, err := NewPlanTable(cfg)
	if err != nil {
		t.Fatalf("NewPlanTable: %v", err)
	}
	gw := newFakeGateway()
	gw.plans["plan_token"] = &adapter.GatewayPlan{ID: "plan_token", Amount: 500, Currency: "INR"}
	users := newMemUsers()
	uc := NewSubscriptionUseCase(newMemPayments(), newMemSubs(), users, gw, plans, &recordingNotifier{}, fakeLocker{}, passTM{}, testLogger())

	u, err := model.NewUser("user-1", "user-1@example.com")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := users.Save(context.Background(), nil, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if _, err := uc.CreateTrial(context.Background(), "user-1", "pro"); err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	if got := gw.createdSubs[0].TotalCount; got != 2 {
		t.Fatalf("token subscription total count = %d, want 2", got)
	}
	if got := gw.createdSubs[1].TotalCount; got != mainChargeCount {
		t.Fatalf("main subscription total count = %d, want %d", got, mainChargeCount)
	}
}

func TestCreateTrialUnknownPlan(t *testing.T) {
	f := newSubFixture(t)
	if _, err := f.uc.CreateTrial(context.Background(), "user-1", "platinum"); !errors.Is(err, domain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestCreateTrialTokenPlanDrift(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")

	// the provisioned token plan no longer matches the configured amount
	f.gateway.plans["plan_token"].Amount = 600

	if _, err := f.uc.CreateTrial(context.Background(), "user-1", "pro"); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestVerifyPaymentSettlesTokenCharge(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	checkout, err := f.uc.CreateTrial(ctx, "user-1", "pro")
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	f.gateway.payments["pay_1"] = &adapter.GatewayPayment{
		ID:             "pay_1",
		SubscriptionID: checkout.TokenSubID,
		Amount:         500,
		Currency:       "INR",
		Status:         "captured",
	}

	status, err := f.uc.VerifyPayment(ctx, "user-1", VerifyRequest{
		PaymentID:      "pay_1",
		PlanCode:       "pro",
		SubscriptionID: checkout.ExternalSubID,
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if status.Plan != "pro" || !status.IsTrialing {
		t.Fatalf("unexpected plan status: %+v", status)
	}
	if status.ProductsRemaining != 25 {
		t.Fatalf("products remaining = %d, want 25", status.ProductsRemaining)
	}
	if f.gateway.getPaymentCalls != 1 {
		t.Fatalf("gateway payment fetched %d times, want 1", f.gateway.getPaymentCalls)
	}

	sub, err := f.subs.FindByID(ctx, nil, checkout.SubscriptionID)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.TokenPaymentID != "pay_1" {
		t.Fatalf("token payment id not recorded: %+v", sub)
	}

	p, err := f.payments.FindByExternalPaymentID(ctx, nil, "pay_1")
	if err != nil {
		t.Fatalf("settled payment: %v", err)
	}
	if p.Status != model.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", p.Status)
	}
	if p.SubscriptionID == nil || *p.SubscriptionID != sub.ID {
		t.Fatalf("payment not linked to subscription: %+v", p)
	}

	if got := f.notifier.count("trial_started"); got != 1 {
		t.Fatalf("trial_started notifications = %d, want 1", got)
	}
}

func TestVerifyPaymentReplayIsIdempotent(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	checkout, err := f.uc.CreateTrial(ctx, "user-1", "pro")
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	f.gateway.payments["pay_1"] = &adapter.GatewayPayment{
		ID:             "pay_1",
		SubscriptionID: checkout.TokenSubID,
		Amount:         500,
		Status:         "captured",
	}
	req := VerifyRequest{PaymentID: "pay_1", PlanCode: "pro", SubscriptionID: checkout.ExternalSubID}

	if _, err := f.uc.VerifyPayment(ctx, "user-1", req); err != nil {
		t.Fatalf("first VerifyPayment: %v", err)
	}
	if _, err := f.uc.VerifyPayment(ctx, "user-1", req); err != nil {
		t.Fatalf("replayed VerifyPayment: %v", err)
	}

	if got := f.payments.paidCount(); got != 1 {
		t.Fatalf("paid payments = %d, want 1", got)
	}
	if got := f.notifier.count("trial_started"); got != 1 {
		t.Fatalf("trial_started notifications = %d, want 1", got)
	}
}

func TestVerifyPaymentAmountDrift(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	checkout, err := f.uc.CreateTrial(ctx, "user-1", "pro")
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	f.gateway.payments["pay_1"] = &adapter.GatewayPayment{
		ID:             "pay_1",
		SubscriptionID: checkout.TokenSubID,
		Amount:         999, // gateway reports a different charge
		Status:         "captured",
	}

	_, err = f.uc.VerifyPayment(ctx, "user-1", VerifyRequest{
		PaymentID:      "pay_1",
		PlanCode:       "pro",
		SubscriptionID: checkout.ExternalSubID,
	})
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if got := f.payments.paidCount(); got != 0 {
		t.Fatalf("payment settled despite amount drift")
	}
}

func TestVerifyPaymentWrongUser(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	checkout, err := f.uc.CreateTrial(ctx, "user-1", "pro")
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	f.gateway.payments["pay_1"] = &adapter.GatewayPayment{
		ID:             "pay_1",
		SubscriptionID: checkout.TokenSubID,
		Amount:         500,
	}

	_, err = f.uc.VerifyPayment(ctx, "user-2", VerifyRequest{
		PaymentID:      "pay_1",
		SubscriptionID: checkout.ExternalSubID,
	})
	if !errors.Is(err, domain.ErrSubscriptionMismatch) {
		t.Fatalf("expected ErrSubscriptionMismatch, got %v", err)
	}
}

func TestVerifyPaymentForeignSubscription(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	checkout, err := f.uc.CreateTrial(ctx, "user-1", "pro")
	if err != nil {
		t.Fatalf("CreateTrial: %v", err)
	}
	// the gateway says this payment settled against someone else's subscription
	f.gateway.payments["pay_1"] = &adapter.GatewayPayment{
		ID:             "pay_1",
		SubscriptionID: "ext_sub_other",
		Amount:         500,
	}

	_, err = f.uc.VerifyPayment(ctx, "user-1", VerifyRequest{
		PaymentID:      "pay_1",
		SubscriptionID: checkout.ExternalSubID,
	})
	if !errors.Is(err, domain.ErrSubscriptionMismatch) {
		t.Fatalf("expected ErrSubscriptionMismatch, got %v", err)
	}
}

func TestVerifyPaymentMissingIDs(t *testing.T) {
	f := newSubFixture(t)
	ctx := context.Background()

	if _, err := f.uc.VerifyPayment(ctx, "user-1", VerifyRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty payment id: expected ErrValidation, got %v", err)
	}
	if _, err := f.uc.VerifyPayment(ctx, "user-1", VerifyRequest{PaymentID: "pay_1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("no order or subscription id: expected ErrValidation, got %v", err)
	}
}

func TestCurrentPlanWithoutSubscription(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")

	status, err := f.uc.CurrentPlan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CurrentPlan: %v", err)
	}
	if status.Plan != "" || status.IsTrialing || status.SubscriptionID != "" {
		t.Fatalf("expected empty plan status, got %+v", status)
	}
}

func TestGrantManual(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	sub, err := f.uc.GrantManual(ctx, "user-1", "pro", "goodwill after outage")
	if err != nil {
		t.Fatalf("GrantManual: %v", err)
	}
	if sub.Status != model.SubscriptionStatusManuallyGranted {
		t.Fatalf("status = %s, want manually_granted", sub.Status)
	}
	if sub.EndAt == nil {
		t.Fatal("end date not set for a non-lifetime plan")
	}

	user, err := f.users.FindByID(ctx, nil, "user-1")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.Plan != "pro" || user.ProductsRemaining != 25 {
		t.Fatalf("entitlement not granted: %+v", user)
	}
}

func TestGrantManualLifetime(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	sub, err := f.uc.GrantManual(ctx, "user-1", "lifetime", "vip")
	if err != nil {
		t.Fatalf("GrantManual: %v", err)
	}
	if sub.EndAt != nil {
		t.Fatalf("lifetime grant has an end date: %v", sub.EndAt)
	}

	status, err := f.uc.CurrentPlan(ctx, "user-1")
	if err != nil {
		t.Fatalf("CurrentPlan: %v", err)
	}
	if !status.IsLifetime {
		t.Fatalf("expected lifetime status, got %+v", status)
	}
}

func TestFinishExpired(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	sub := &model.Subscription{
		ID:        "sub-1",
		UserID:    "user-1",
		PlanCode:  "pro",
		Status:    model.SubscriptionStatusActive,
		StartAt:   past.Add(-30 * 24 * time.Hour),
		EndAt:     &past,
		CreatedAt: past,
		UpdatedAt: past,
	}
	if err := f.subs.Save(ctx, nil, sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	user, _ := f.users.FindByID(ctx, nil, "user-1")
	user.GrantEntitlement("pro", &past, 25)
	if err := f.users.UpdateEntitlement(ctx, nil, user); err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}

	n, err := f.uc.FinishExpired(ctx)
	if err != nil {
		t.Fatalf("FinishExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d subscriptions, want 1", n)
	}

	got, _ := f.subs.FindByID(ctx, nil, "sub-1")
	if got.Status != model.SubscriptionStatusExpired {
		t.Fatalf("subscription status = %s, want expired", got.Status)
	}
	user, _ = f.users.FindByID(ctx, nil, "user-1")
	if user.Plan != "" {
		t.Fatalf("entitlement not revoked: %+v", user)
	}
}

func TestFinishExpiredSkipsNewerEntitlement(t *testing.T) {
	f := newSubFixture(t)
	f.seedUser(t, "user-1")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	sub := &model.Subscription{
		ID:        "sub-1",
		UserID:    "user-1",
		PlanCode:  "pro",
		Status:    model.SubscriptionStatusActive,
		EndAt:     &past,
		CreatedAt: past,
	}
	if err := f.subs.Save(ctx, nil, sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	// the user already moved to a different plan
	user, _ := f.users.FindByID(ctx, nil, "user-1")
	user.GrantEntitlement("lifetime", nil, 0)
	if err := f.users.UpdateEntitlement(ctx, nil, user); err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}

	if _, err := f.uc.FinishExpired(ctx); err != nil {
		t.Fatalf("FinishExpired: %v", err)
	}
	user, _ = f.users.FindByID(ctx, nil, "user-1")
	if user.Plan != "lifetime" {
		t.Fatalf("newer entitlement was revoked: %+v", user)
	}
}
