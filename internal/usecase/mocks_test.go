package usecase

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// mockTxManager runs the callback inline; tests assert behavior, not
// transactional isolation.
type mockTxManager struct {
	beginErr error
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	return fn(ctx, struct{}{})
}

// memSessionRepo is a small in-memory implementation used by unit tests.
type memSessionRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.PaymentSession
	createErr error
	markErr   error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: make(map[string]*model.PaymentSession)}
}

func (m *memSessionRepo) Create(ctx context.Context, _ repository.Tx, s *model.PaymentSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSessionRepo) AttachProviderRefs(ctx context.Context, _ repository.Tx, sessionID string, paymentID *int64, preferenceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if paymentID != nil {
		s.PaymentID = paymentID
	}
	if preferenceID != "" {
		s.PreferenceID = &preferenceID
	}
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PaymentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) FindByProviderRef(ctx context.Context, _ repository.Tx, ref string) (*model.PaymentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.store {
		if s.ID == ref {
			cp := *s
			return &cp, nil
		}
		if s.PreferenceID != nil && strings.EqualFold(*s.PreferenceID, ref) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSessionRepo) MarkStatus(ctx context.Context, _ repository.Tx, sessionID string, status model.SessionStatus) (bool, error) {
	if m.markErr != nil {
		return false, m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[sessionID]
	if !ok {
		return false, nil
	}
	if s.Status.Terminal() {
		return false, nil
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *memSessionRepo) ForcePaid(ctx context.Context, _ repository.Tx, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[sessionID]
	if !ok {
		return false, nil
	}
	if s.Status == model.SessionStatusPaid {
		return false, nil
	}
	s.Status = model.SessionStatusPaid
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *memSessionRepo) ListPendingOlderThan(ctx context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PaymentSession
	for _, s := range m.store {
		if s.Status == model.SessionStatusPending && s.CreatedAt.Before(olderThan) {
			cp := *s
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// memLedgerRepo mirrors the storage upsert semantics: unique by
// preference id, paid never downgraded.
type memLedgerRepo struct {
	mu        sync.RWMutex
	byRef     map[string]*model.LedgerEntry
	upsertErr error
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{byRef: make(map[string]*model.LedgerEntry)}
}

func (m *memLedgerRepo) UpsertByReference(ctx context.Context, _ repository.Tx, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byRef[e.PreferenceID]; ok {
		if existing.Status != model.LedgerStatusPaid {
			existing.Status = e.Status
			existing.TransactionDate = e.TransactionDate
		}
		if existing.PaymentID == nil {
			existing.PaymentID = e.PaymentID
		}
		cp := *existing
		return &cp, nil
	}
	cp := *e
	m.byRef[e.PreferenceID] = &cp
	out := cp
	return &out, nil
}

func (m *memLedgerRepo) FindByReference(ctx context.Context, _ repository.Tx, preferenceID string) (*model.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byRef[preferenceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memLedgerRepo) ListDuplicateGroups(ctx context.Context, _ repository.Tx) ([]*model.DuplicateGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct {
		paymentID int64
		userID    string
		amount    int64
		plan      model.Plan
	}
	buckets := make(map[key][]*model.LedgerEntry)
	for _, e := range m.byRef {
		if e.PaymentID == nil {
			continue
		}
		k := key{*e.PaymentID, e.UserID, e.Amount, e.Plan}
		buckets[k] = append(buckets[k], e)
	}

	var groups []*model.DuplicateGroup
	for k, entries := range buckets {
		if len(entries) < 2 {
			continue
		}
		keep := entries[0]
		for _, e := range entries[1:] {
			if e.TransactionDate.Before(keep.TransactionDate) {
				keep = e
			}
		}
		g := &model.DuplicateGroup{
			PaymentID: k.paymentID,
			UserID:    k.userID,
			Amount:    k.amount,
			Plan:      k.plan,
			KeepID:    keep.ID,
		}
		for _, e := range entries {
			if e.ID != keep.ID {
				g.DeleteIDs = append(g.DeleteIDs, e.ID)
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (m *memLedgerRepo) DeleteByIDs(ctx context.Context, _ repository.Tx, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		for ref, e := range m.byRef {
			if e.ID == id {
				delete(m.byRef, ref)
				n++
			}
		}
	}
	return n, nil
}

func (m *memLedgerRepo) SumPaidByPeriod(ctx context.Context, _ repository.Tx, period string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, e := range m.byRef {
		if e.Status == model.LedgerStatusPaid {
			sum += e.Amount
		}
	}
	return sum, nil
}

type memUserRepo struct {
	mu          sync.RWMutex
	store       map[string]*model.User
	activateErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) ActivatePremium(ctx context.Context, _ repository.Tx, userID string, expireDate time.Time, paidAt time.Time) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Premium = true
	u.ExpireDate = &expireDate
	u.PaymentStatus = "paid"
	u.PaymentDate = &paidAt
	return nil
}

func (m *memUserRepo) DowngradeExpired(ctx context.Context, _ repository.Tx, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if u.Premium && u.ExpireDate != nil && u.ExpireDate.Before(time.Now()) {
		u.Premium = false
		u.PaymentStatus = "expired"
	}
	return nil
}

type memCampaignRepo struct {
	mu          sync.RWMutex
	visits      map[string]int64
	conversions map[string]*model.CampaignConversion
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{
		visits:      make(map[string]int64),
		conversions: make(map[string]*model.CampaignConversion),
	}
}

func (m *memCampaignRepo) RecordVisit(ctx context.Context, _ repository.Tx, source, campaign string) error {
	if source == "" || campaign == "" {
		return domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits[source+"|"+campaign]++
	return nil
}

func (m *memCampaignRepo) RecordConversion(ctx context.Context, _ repository.Tx, c *model.CampaignConversion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := c.UserID + "|" + c.Campaign
	if _, ok := m.conversions[k]; ok {
		return false, nil
	}
	cp := *c
	m.conversions[k] = &cp
	return true, nil
}

func (m *memCampaignRepo) FindTracking(ctx context.Context, _ repository.Tx, source, campaign string) (*model.CampaignTracking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.visits[source+"|"+campaign]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.CampaignTracking{Source: source, Campaign: campaign, Visits: v}, nil
}

type memDeadLetterRepo struct {
	mu    sync.RWMutex
	store map[string]*model.DeadLetter
}

func newMemDeadLetterRepo() *memDeadLetterRepo {
	return &memDeadLetterRepo{store: make(map[string]*model.DeadLetter)}
}

func (m *memDeadLetterRepo) Append(ctx context.Context, _ repository.Tx, d *model.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *memDeadLetterRepo) ListRetryable(ctx context.Context, _ repository.Tx, maxAttempts, limit int) ([]*model.DeadLetter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.DeadLetter
	for _, d := range m.store {
		if d.Attempts < maxAttempts {
			cp := *d
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memDeadLetterRepo) MarkAttempt(ctx context.Context, _ repository.Tx, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	return nil
}

func (m *memDeadLetterRepo) Delete(ctx context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func (m *memDeadLetterRepo) Count(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

// mockProvider drives adapter behavior through function fields.
type mockProvider struct {
	name           string
	CreateChargeFn func(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error)
	QueryStatusFn  func(ctx context.Context, reference string) (*model.ProviderEvent, error)
	ParseWebhookFn func(ctx context.Context, r *http.Request, body []byte) (*model.ProviderEvent, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	if m.CreateChargeFn != nil {
		return m.CreateChargeFn(ctx, req)
	}
	ref := "pref-" + req.SessionID
	return &adapter.ChargeResult{Reference: ref, QRPayload: "qr-data"}, nil
}

func (m *mockProvider) QueryStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	if m.QueryStatusFn != nil {
		return m.QueryStatusFn(ctx, reference)
	}
	return &model.ProviderEvent{Provider: m.name, Status: model.StatusPending, Reference: reference}, nil
}

func (m *mockProvider) ParseWebhook(ctx context.Context, r *http.Request, body []byte) (*model.ProviderEvent, error) {
	if m.ParseWebhookFn != nil {
		return m.ParseWebhookFn(ctx, r, body)
	}
	return nil, domain.ErrInvalidArgument
}

type mockRegistry struct {
	providers   map[string]adapter.PaymentProvider
	defaultName string
}

func newMockRegistry(def *mockProvider, extra ...*mockProvider) *mockRegistry {
	m := &mockRegistry{providers: make(map[string]adapter.PaymentProvider), defaultName: def.name}
	m.providers[def.name] = def
	for _, p := range extra {
		m.providers[p.name] = p
	}
	return m
}

func (m *mockRegistry) Get(name string) (adapter.PaymentProvider, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return p, nil
}

func (m *mockRegistry) Default() adapter.PaymentProvider { return m.providers[m.defaultName] }

func (m *mockRegistry) Names() []string {
	var out []string
	for n := range m.providers {
		out = append(out, n)
	}
	return out
}

type mockLocker struct {
	held    map[string]bool
	lockErr error // infrastructure failure to inject from TryLock
	mu      sync.Mutex
}

func newMockLocker() *mockLocker { return &mockLocker{held: make(map[string]bool)} }

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return "", m.lockErr
	}
	if m.held[key] {
		return "", domain.ErrLockHeld
	}
	m.held[key] = true
	return "token", nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockNotifier) NotifyConversion(ctx context.Context, userID, campaign string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, userID+"|"+campaign)
	return m.err
}
