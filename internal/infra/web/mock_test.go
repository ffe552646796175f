package web

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/usecase"
)

// ---- use case stubs ----

type stubCharge struct {
	out    *usecase.ChargeOutput
	err    error
	gotIn  usecase.ChargeInput
	called int
}

func (s *stubCharge) CreateCharge(_ context.Context, in usecase.ChargeInput) (*usecase.ChargeOutput, error) {
	s.called++
	s.gotIn = in
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type stubEngine struct {
	applyOut *usecase.Outcome
	applyErr error
	gotEvent *model.ProviderEvent

	pollSess *model.PaymentSession
	pollErr  error
	gotRef   string

	forceOut *usecase.Outcome
	forceErr error
}

func (s *stubEngine) Apply(_ context.Context, ev *model.ProviderEvent) (*usecase.Outcome, error) {
	s.gotEvent = ev
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return s.applyOut, nil
}

func (s *stubEngine) PollStatus(_ context.Context, reference string) (*model.PaymentSession, error) {
	s.gotRef = reference
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	return s.pollSess, nil
}

func (s *stubEngine) ForceProcess(_ context.Context, _ string) (*usecase.Outcome, error) {
	if s.forceErr != nil {
		return nil, s.forceErr
	}
	return s.forceOut, nil
}

type stubDedup struct {
	groups  []*model.DuplicateGroup
	deleted int64
	err     error
}

func (s *stubDedup) ListDuplicates(context.Context) ([]*model.DuplicateGroup, error) {
	return s.groups, s.err
}
func (s *stubDedup) Purge(context.Context) (int64, error) { return s.deleted, s.err }

type stubStats struct {
	week, month, year int64
	depth             int
	err               error
}

func (s *stubStats) Revenue(context.Context) (int64, int64, int64, error) {
	return s.week, s.month, s.year, s.err
}
func (s *stubStats) DeadLetterDepth(context.Context) (int, error) { return s.depth, s.err }

type stubEntitlement struct {
	user    *model.User
	err     error
	gotUser string
}

func (s *stubEntitlement) Activate(_ context.Context, _ repository.Tx, _ string, plan model.Plan, at time.Time) (time.Time, error) {
	return plan.ExpiryFrom(at), s.err
}

func (s *stubEntitlement) Evaluate(_ context.Context, userID string) (*model.User, error) {
	s.gotUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

// ---- provider stubs ----

type stubProvider struct {
	name     string
	parseEv  *model.ProviderEvent
	parseErr error
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) CreateCharge(context.Context, adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	return nil, nil
}
func (p *stubProvider) QueryStatus(context.Context, string) (*model.ProviderEvent, error) {
	return p.parseEv, p.parseErr
}
func (p *stubProvider) ParseWebhook(context.Context, *http.Request, []byte) (*model.ProviderEvent, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.parseEv, nil
}

type stubRegistry struct{ providers map[string]adapter.PaymentProvider }

func newStubRegistry(ps ...*stubProvider) *stubRegistry {
	m := make(map[string]adapter.PaymentProvider, len(ps))
	for _, p := range ps {
		m[p.name] = p
	}
	return &stubRegistry{providers: m}
}

func (r *stubRegistry) Get(name string) (adapter.PaymentProvider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, domain.ErrUnknownProvider
}

func (r *stubRegistry) Default() adapter.PaymentProvider {
	for _, p := range r.providers {
		return p
	}
	return nil
}

func (r *stubRegistry) Names() []string { return nil }

// ---- server fixture ----

type serverFixture struct {
	charge   *stubCharge
	engine   *stubEngine
	dedup    *stubDedup
	stats    *stubStats
	entitle  *stubEntitlement
	registry *stubRegistry
	auth     *AuthManager
	srv      *Server
	router   http.Handler
}

func newServerFixture(ps ...*stubProvider) *serverFixture {
	log := zerolog.Nop()
	f := &serverFixture{
		charge:   &stubCharge{},
		engine:   &stubEngine{},
		dedup:    &stubDedup{},
		stats:    &stubStats{},
		entitle:  &stubEntitlement{},
		registry: newStubRegistry(ps...),
		auth:     NewAuthManager("test-secret", false, "", time.Hour),
	}
	f.srv = NewServer(f.charge, f.engine, f.dedup, f.stats, f.entitle, f.registry, f.auth, "test-api-key", &log)
	f.router = f.srv.Router()
	return f
}
