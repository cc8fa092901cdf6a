package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

type stubPayments struct {
	mu   sync.Mutex
	rows map[string]*model.Payment

	sumCalls []string
}

func newStubPayments() *stubPayments {
	return &stubPayments{rows: map[string]*model.Payment{}}
}

func (s *stubPayments) Save(_ context.Context, _ repository.Tx, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.rows[p.ID] = &cp
	return nil
}

func (s *stubPayments) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubPayments) FindByExternalPaymentID(context.Context, repository.Tx, string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPayments) FindByExternalSubID(context.Context, repository.Tx, string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPayments) FindByOrderID(context.Context, repository.Tx, string) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPayments) MarkPaid(_ context.Context, _ repository.Tx, id, externalPaymentID string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusCreated {
		return false, nil
	}
	p.Status = model.PaymentStatusPaid
	p.ExternalPaymentID = externalPaymentID
	p.PaidAt = &paidAt
	return true, nil
}

func (s *stubPayments) MarkFailed(_ context.Context, _ repository.Tx, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = model.PaymentStatusFailed
	return nil
}

func (s *stubPayments) LinkSubscription(_ context.Context, _ repository.Tx, id, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (s *stubPayments) ListPendingOlderThan(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Payment
	for _, p := range s.rows {
		if p.Status == model.PaymentStatusCreated && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubPayments) SumPaidByPeriod(_ context.Context, _ repository.Tx, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sumCalls = append(s.sumCalls, period)
	var sum int64
	for _, p := range s.rows {
		if p.Status == model.PaymentStatusPaid {
			sum += p.Amount
		}
	}
	return sum, nil
}

func seedPayment(s *stubPayments, id string, status model.PaymentStatus, age time.Duration) {
	s.rows[id] = &model.Payment{
		ID:         id,
		UserID:     "user-1",
		ChargeType: model.ChargeTypeSubscription,
		Status:     status,
		Amount:     50000,
		Currency:   "INR",
		CreatedAt:  time.Now().Add(-age),
	}
}

func TestReconcilerMarksStaleCreatedPaymentsFailed(t *testing.T) {
	payments := newStubPayments()
	seedPayment(payments, "stale", model.PaymentStatusCreated, 48*time.Hour)
	seedPayment(payments, "fresh", model.PaymentStatusCreated, time.Minute)
	seedPayment(payments, "settled", model.PaymentStatusPaid, 48*time.Hour)

	l := zerolog.Nop()
	w := NewPaymentReconciler(payments, time.Hour, 24*time.Hour, &l)
	w.tick(context.Background())

	got, err := payments.FindByID(context.Background(), repository.NoTX, "stale")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != model.PaymentStatusFailed {
		t.Fatalf("stale payment status = %s, want failed", got.Status)
	}
	for _, id := range []string{"fresh", "settled"} {
		got, err := payments.FindByID(context.Background(), repository.NoTX, id)
		if err != nil {
			t.Fatalf("FindByID(%s): %v", id, err)
		}
		if got.Status == model.PaymentStatusFailed {
			t.Fatalf("payment %s was reconciled, want untouched", id)
		}
	}
}

func TestReconcilerSamplesRevenuePeriods(t *testing.T) {
	payments := newStubPayments()
	seedPayment(payments, "settled", model.PaymentStatusPaid, time.Hour)

	l := zerolog.Nop()
	w := NewPaymentReconciler(payments, time.Hour, 24*time.Hour, &l)
	w.tick(context.Background())

	want := map[string]bool{"day": true, "month": true}
	for _, period := range payments.sumCalls {
		delete(want, period)
	}
	if len(want) != 0 {
		t.Fatalf("revenue not sampled for periods %v (calls: %v)", want, payments.sumCalls)
	}
}
