// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/domain/model"
	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// passTM runs the function directly; the mocks below are already atomic
// enough for single-goroutine tests.
type passTM struct{}

func (passTM) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type fakeLocker struct{}

func (fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "token", nil
}
func (fakeLocker) Unlock(_ context.Context, _, _ string) error { return nil }

type fakeLimiter struct{ denied bool }

func (f *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return !f.denied, nil
}

type notifierCall struct {
	UserID string
	Event  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
}

func (n *recordingNotifier) Notify(_ context.Context, userID, event string, _ map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{UserID: userID, Event: event})
	return nil
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, call := range n.calls {
		if call.Event == event {
			c++
		}
	}
	return c
}

// ===== payment repository =====

type memPayments struct {
	mu   sync.RWMutex
	rows map[string]*model.Payment
}

func newMemPayments() *memPayments { return &memPayments{rows: map[string]*model.Payment{}} }

func (m *memPayments) Save(_ context.Context, _ repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPayments) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.rows[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) FindByExternalPaymentID(_ context.Context, _ repository.Tx, externalPaymentID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.rows {
		if p.ExternalPaymentID == externalPaymentID && externalPaymentID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) FindByExternalSubID(_ context.Context, _ repository.Tx, externalSubID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.rows {
		if externalSubID != "" && (p.ExternalSubID == externalSubID || p.TokenSubID == externalSubID) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) FindByOrderID(_ context.Context, _ repository.Tx, orderID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.rows {
		if p.OrderID == orderID && orderID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) MarkPaid(_ context.Context, _ repository.Tx, id, externalPaymentID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusCreated {
		return false, nil
	}
	p.Status = model.PaymentStatusPaid
	p.ExternalPaymentID = externalPaymentID
	p.PaidAt = &paidAt
	p.UpdatedAt = paidAt
	return true, nil
}

func (m *memPayments) MarkFailed(_ context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == model.PaymentStatusCreated {
		p.Status = model.PaymentStatusFailed
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memPayments) LinkSubscription(_ context.Context, _ repository.Tx, id, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionID = &subscriptionID
	return nil
}

func (m *memPayments) ListPendingOlderThan(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.rows {
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

func (m *memPayments) SumPaidByPeriod(_ context.Context, _ repository.Tx, _ string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, p := range m.rows {
		if p.Status == model.PaymentStatusPaid {
			sum += p.Amount
		}
	}
	return sum, nil
}

// paidCount reports how many rows reached paid; test helper.
func (m *memPayments) paidCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.rows {
		if p.Status == model.PaymentStatusPaid {
			n++
		}
	}
	return n
}

// ===== subscription repository =====

type memSubs struct {
	mu   sync.RWMutex
	rows map[string]*model.Subscription
}

func newMemSubs() *memSubs { return &memSubs{rows: map[string]*model.Subscription{}} }

func cloneSub(s *model.Subscription) *model.Subscription {
	cp := *s
	cp.History = append([]model.HistoryEntry(nil), s.History...)
	return &cp
}

func (m *memSubs) Save(_ context.Context, _ repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sub.ID] = cloneSub(sub)
	return nil
}

func (m *memSubs) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.rows[id]; ok {
		return cloneSub(s), nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSubs) FindByExternalSubID(_ context.Context, _ repository.Tx, externalSubID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.rows {
		if externalSubID != "" && (s.ExternalSubID == externalSubID || s.TokenSubID == externalSubID) {
			return cloneSub(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubs) FindCurrentByUser(_ context.Context, _ repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.Subscription
	for _, s := range m.rows {
		if s.UserID != userID {
			continue
		}
		switch s.Status {
		case model.SubscriptionStatusTrialing, model.SubscriptionStatusActive, model.SubscriptionStatusManuallyGranted:
		default:
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return cloneSub(latest), nil
}

func (m *memSubs) ListOverdue(_ context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.rows {
		if s.Status == model.SubscriptionStatusCancelled || s.Status == model.SubscriptionStatusExpired {
			continue
		}
		overdue := (s.EndAt != nil && s.EndAt.Before(cutoff)) ||
			(s.Status == model.SubscriptionStatusTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.Before(cutoff))
		if overdue {
			out = append(out, cloneSub(s))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memSubs) CountByStatus(_ context.Context, _ repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range m.rows {
		out[s.Status]++
	}
	return out, nil
}

// ===== user repository =====

type memUsers struct {
	mu   sync.RWMutex
	rows map[string]*model.User
}

func newMemUsers() *memUsers { return &memUsers{rows: map[string]*model.User{}} }

func (m *memUsers) Save(_ context.Context, _ repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.rows[u.ID] = &cp
	return nil
}

func (m *memUsers) FindByID(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.rows[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) FindByAffiliateCode(_ context.Context, _ repository.Tx, code string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.rows {
		if u.AffiliateCode == code && code != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) UpdateEntitlement(_ context.Context, _ repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Plan = u.Plan
	cur.PlanExpiresAt = u.PlanExpiresAt
	cur.ProductsRemaining = u.ProductsRemaining
	cur.UpdatedAt = time.Now()
	return nil
}

// ===== wallet repository =====

type memWallets struct {
	mu      sync.Mutex
	wallets map[string]*model.Wallet            // by wallet id
	byUser  map[string]string                   // user id -> wallet id
	txns    map[string]*model.WalletTransaction // by txn id
	byRef   map[string]string                   // reference id -> txn id

	// beforeSaveTxn runs once before the next SaveTransaction takes the lock,
	// to interleave a competing write
	beforeSaveTxn func()
}

func newMemWallets() *memWallets {
	return &memWallets{
		wallets: map[string]*model.Wallet{},
		byUser:  map[string]string{},
		txns:    map[string]*model.WalletTransaction{},
		byRef:   map[string]string{},
	}
}

func (m *memWallets) Create(_ context.Context, _ repository.Tx, w *model.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUser[w.UserID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *w
	m.wallets[w.ID] = &cp
	m.byUser[w.UserID] = w.ID
	return nil
}

func (m *memWallets) FindByUser(_ context.Context, _ repository.Tx, userID string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.wallets[id]
	return &cp, nil
}

func (m *memWallets) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) ApplyDelta(_ context.Context, _ repository.Tx, walletID string, delta int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if w.Balance+delta < 0 {
		return 0, false, nil
	}
	w.Balance += delta
	w.UpdatedAt = time.Now()
	return w.Balance, true, nil
}

func (m *memWallets) takeSaveHook() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	hook := m.beforeSaveTxn
	m.beforeSaveTxn = nil
	return hook
}

func (m *memWallets) SaveTransaction(ctx context.Context, qx repository.Tx, t *model.WalletTransaction) error {
	if hook := m.takeSaveHook(); hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ReferenceID != nil {
		if _, exists := m.byRef[*t.ReferenceID]; exists {
			return domain.ErrAlreadyExists
		}
		m.byRef[*t.ReferenceID] = t.ID
	}
	cp := *t
	m.txns[t.ID] = &cp
	return nil
}

func (m *memWallets) FindTransactionByReference(_ context.Context, _ repository.Tx, referenceID string) (*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[referenceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.txns[id]
	return &cp, nil
}

func (m *memWallets) ListTransactionsByUser(_ context.Context, _ repository.Tx, userID string, offset, limit int) ([]*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WalletTransaction
	for _, t := range m.txns {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memWallets) balanceOf(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	if !ok {
		return 0
	}
	return m.wallets[id].Balance
}

// ===== commission repository =====

type memCommissions struct {
	mu       sync.Mutex
	rows     map[string]*model.AffiliateCommission
	byEntity map[string]string // purchaseType+entityID -> commission id
}

func newMemCommissions() *memCommissions {
	return &memCommissions{rows: map[string]*model.AffiliateCommission{}, byEntity: map[string]string{}}
}

func entityKey(pt model.PurchaseType, entityID string) string {
	return string(pt) + ":" + entityID
}

func (m *memCommissions) Save(_ context.Context, _ repository.Tx, c *model.AffiliateCommission) (*model.AffiliateCommission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityKey(c.PurchaseType, c.PurchaseEntityID())
	if id, exists := m.byEntity[key]; exists {
		cp := *m.rows[id]
		return &cp, false, nil
	}
	cp := *c
	m.rows[c.ID] = &cp
	m.byEntity[key] = c.ID
	return nil, true, nil
}

func (m *memCommissions) FindByID(_ context.Context, _ repository.Tx, id string) (*model.AffiliateCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCommissions) FindByPurchaseEntity(_ context.Context, _ repository.Tx, purchaseType model.PurchaseType, entityID string) (*model.AffiliateCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEntity[entityKey(purchaseType, entityID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.rows[id]
	return &cp, nil
}

func (m *memCommissions) UpdateStatusFrom(_ context.Context, _ repository.Tx, id string, from []model.CommissionStatus, next model.CommissionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = next
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *memCommissions) MarkRefunded(_ context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Refunded = true
	return nil
}

func (m *memCommissions) AssignToPayout(_ context.Context, _ repository.Tx, payoutID string, commissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range commissionIDs {
		c, ok := m.rows[id]
		if !ok {
			return domain.ErrNotFound
		}
		if c.PayoutID != nil {
			return domain.ErrConcurrentModification
		}
	}
	for _, id := range commissionIDs {
		pid := payoutID
		m.rows[id].PayoutID = &pid
	}
	return nil
}

func (m *memCommissions) ClearPayout(_ context.Context, _ repository.Tx, payoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.PayoutID != nil && *c.PayoutID == payoutID && c.Status != model.CommissionStatusPaid {
			c.PayoutID = nil
		}
	}
	return nil
}

func (m *memCommissions) ListByPayout(_ context.Context, _ repository.Tx, payoutID string) ([]*model.AffiliateCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AffiliateCommission
	for _, c := range m.rows {
		if c.PayoutID != nil && *c.PayoutID == payoutID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memCommissions) ListApprovedUnpaid(_ context.Context, _ repository.Tx, affiliateID string) ([]*model.AffiliateCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AffiliateCommission
	for _, c := range m.rows {
		if c.AffiliateID == affiliateID && c.Status == model.CommissionStatusApproved && !c.Refunded && c.PayoutID == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memCommissions) ListPendingOlderThan(_ context.Context, _ repository.Tx, olderThanDays int, limit int) ([]*model.AffiliateCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	var out []*model.AffiliateCommission
	for _, c := range m.rows {
		if c.Status == model.CommissionStatusPending && c.CreatedAt.Before(cutoff) {
			cp := *c
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memCommissions) ListByAffiliate(_ context.Context, _ repository.Tx, affiliateID string, offset, limit int) ([]*model.AffiliateCommission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AffiliateCommission
	for _, c := range m.rows {
		if c.AffiliateID == affiliateID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ===== payout repository =====

type memPayouts struct {
	mu   sync.Mutex
	rows map[string]*model.AffiliatePayout
}

func newMemPayouts() *memPayouts { return &memPayouts{rows: map[string]*model.AffiliatePayout{}} }

func (m *memPayouts) Save(_ context.Context, _ repository.Tx, p *model.AffiliatePayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.AffiliateID == p.AffiliateID && r.Status == model.PayoutStatusPending {
			return domain.ErrPayoutAlreadyPending
		}
	}
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPayouts) FindByID(_ context.Context, _ repository.Tx, id string) (*model.AffiliatePayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayouts) FindPendingByAffiliate(_ context.Context, _ repository.Tx, affiliateID string) (*model.AffiliatePayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.AffiliateID == affiliateID && p.Status == model.PayoutStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayouts) Update(_ context.Context, _ repository.Tx, p *model.AffiliatePayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPayouts) ListByAffiliate(_ context.Context, _ repository.Tx, affiliateID string, offset, limit int) ([]*model.AffiliatePayout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AffiliatePayout
	for _, p := range m.rows {
		if p.AffiliateID == affiliateID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ===== gateway =====

// fakeGateway serves canned gateway objects and counts mutations. Signature
// checks pass unless sigFail/webhookFail are set.
type fakeGateway struct {
	mu          sync.Mutex
	subSeq      int
	orderSeq    int
	plans       map[string]*adapter.GatewayPlan
	payments    map[string]*adapter.GatewayPayment
	orders      map[string]*adapter.GatewayOrder
	createdSubs []*adapter.GatewaySubscription
	sigFail     bool
	webhookFail bool

	getPaymentCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		plans:    map[string]*adapter.GatewayPlan{},
		payments: map[string]*adapter.GatewayPayment{},
		orders:   map[string]*adapter.GatewayOrder{},
	}
}

func (g *fakeGateway) Name() string { return "razorpay" }

func (g *fakeGateway) CreateSubscription(_ context.Context, planID string, startAt time.Time, totalCount int, _ []adapter.SubscriptionAddon) (*adapter.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subSeq++
	sub := &adapter.GatewaySubscription{
		ID:         "ext_sub_" + strconv.Itoa(g.subSeq),
		PlanID:     planID,
		Status:     "created",
		StartAt:    startAt,
		TotalCount: totalCount,
		ShortURL:   "https://rzp.test/checkout",
	}
	g.createdSubs = append(g.createdSubs, sub)
	return sub, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*adapter.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.createdSubs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getPaymentCalls++
	if p, ok := g.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (g *fakeGateway) GetOrder(_ context.Context, id string) (*adapter.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (g *fakeGateway) FetchPlan(_ context.Context, id string) (*adapter.GatewayPlan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.plans[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (*adapter.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderSeq++
	o := &adapter.GatewayOrder{
		ID:       "order_" + strconv.Itoa(g.orderSeq),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	g.orders[o.ID] = o
	return o, nil
}

func (g *fakeGateway) VerifyPaymentSignature(_, _, _ string) bool { return !g.sigFail }
func (g *fakeGateway) VerifyWebhookSignature(_ []byte, _ string) bool {
	return !g.webhookFail
}
