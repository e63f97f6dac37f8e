package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	callsvc "garagecall_backend/internal/calls/service"
	"garagecall_backend/internal/sessions/domain"
	"garagecall_backend/internal/sessions/repository"
	"garagecall_backend/internal/sessions/transport"
	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/logger"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[uuid.UUID]*domain.Session{}}
}

func (r *memSessionRepo) Create(_ context.Context, p repository.CreateSessionParams) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &domain.Session{
		ID:          uuid.New(),
		UserID:      p.UserID,
		UserEmail:   p.UserEmail,
		Location:    p.Location,
		Vehicle:     p.Vehicle,
		Description: p.Description,
		PhotoKeys:   p.PhotoKeys,
		Shops:       p.Shops,
		Status:      domain.StatusCreated,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.sessions[s.ID] = s
	return *s, nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, repository.ErrNotFound
	}
	return *s, nil
}

func (r *memSessionRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !domain.CanTransition(from, to) || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (r *memSessionRepo) SetDamageSummary(_ context.Context, id uuid.UUID, summary domain.DamageSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.DamageSummary = &summary
	}
	return nil
}

func (r *memSessionRepo) SetReport(_ context.Context, id uuid.UUID, report domain.Report) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != domain.StatusSummarizing {
		return false, nil
	}
	s.Report = &report
	s.Status = domain.StatusDone
	return true, nil
}

func (r *memSessionRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && !domain.IsTerminal(s.Status) {
		s.Status = domain.StatusFailed
		s.FailureReason = reason
	}
	return nil
}

func (r *memSessionRepo) ListStuckInCalling(context.Context, int) ([]uuid.UUID, error) {
	return nil, nil
}

type stubAnalyzer struct {
	summary domain.DamageSummary
	err     error
	calls   int
}

func (a *stubAnalyzer) Analyze(context.Context, *domain.Session) (domain.DamageSummary, error) {
	a.calls++
	return a.summary, a.err
}

type stubDispatcher struct {
	mu         sync.Mutex
	dispatched []uuid.UUID
}

func (d *stubDispatcher) Dispatch(_ context.Context, session *domain.Session) []callsvc.DispatchOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, session.ID)
	out := make([]callsvc.DispatchOutcome, len(session.Shops))
	for i, shop := range session.Shops {
		out[i] = callsvc.DispatchOutcome{ShopID: shop.ID, Dialed: shop.Phone, Started: true}
	}
	return out
}

type stubEvaluator struct {
	mu        sync.Mutex
	evaluated []uuid.UUID
}

func (e *stubEvaluator) EvaluateCompletion(_ context.Context, id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluated = append(e.evaluated, id)
	return nil
}

type stubEnqueuer struct {
	mu    sync.Mutex
	count int
	err   error
}

func (e *stubEnqueuer) EnqueueProcessSession(context.Context, uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.count++
	return nil
}

type fixture struct {
	svc        *Service
	repo       *memSessionRepo
	analyzer   *stubAnalyzer
	dispatcher *stubDispatcher
	evaluator  *stubEvaluator
	enqueuer   *stubEnqueuer
}

func newFixture() *fixture {
	f := &fixture{
		repo: newMemSessionRepo(),
		analyzer: &stubAnalyzer{summary: domain.DamageSummary{
			Severity: "moderate", DamagedParts: []string{"front bumper"}, SeverityScore: 5, Summary: "Front damage.",
		}},
		dispatcher: &stubDispatcher{},
		evaluator:  &stubEvaluator{},
		enqueuer:   &stubEnqueuer{},
	}
	f.svc = New(f.repo, f.analyzer, f.dispatcher, f.evaluator, f.enqueuer, nil, logger.New("development"))
	return f
}

func createRequest() transport.CreateSessionRequest {
	return transport.CreateSessionRequest{
		Description: "Rear-ended at a stoplight, bumper is hanging off.",
		Vehicle:     &transport.VehicleRequest{Make: "Honda", Model: "Civic", Year: 2021},
		Shops: []transport.ShopRequest{
			{Name: "Precision Auto Body", Phone: "(555) 123-0001"},
			{ID: "downtown", Name: "Downtown Collision", Phone: "+1 555 123 0002"},
		},
	}
}

func TestCreateNormalizesShopsAndAssignsIDs(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	session, err := f.svc.Create(context.Background(), userID, "owner@example.com", createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Status != domain.StatusCreated {
		t.Errorf("status = %s, want CREATED", session.Status)
	}
	if session.Shops[0].ID == "" || session.Shops[1].ID != "downtown" {
		t.Errorf("shop ids = %q, %q", session.Shops[0].ID, session.Shops[1].ID)
	}
	for _, shop := range session.Shops {
		if shop.Phone[0] != '+' {
			t.Errorf("phone %q not normalized to E.164", shop.Phone)
		}
	}
	if session.UserEmail != "owner@example.com" {
		t.Errorf("user email not stored")
	}
}

type stubShopDirectory struct {
	shops []domain.Shop
}

func (d *stubShopDirectory) Shops() []domain.Shop { return d.shops }

func TestCreatePrefillsShopsFromDirectory(t *testing.T) {
	f := newFixture()
	f.svc.SetShopDirectory(&stubShopDirectory{shops: []domain.Shop{
		{ID: "demo-shop-1", Name: "Demo Body Works", Phone: "+15551230009"},
		{ID: "demo-shop-2", Name: "Demo Collision", Phone: "+15551230010"},
	}})

	req := createRequest()
	req.Shops = nil
	session, err := f.svc.Create(context.Background(), uuid.New(), "owner@example.com", req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(session.Shops) != 2 {
		t.Fatalf("expected 2 prefilled shops, got %d", len(session.Shops))
	}
	if session.Shops[0].ID != "demo-shop-1" || session.Shops[1].Name != "Demo Collision" {
		t.Fatalf("unexpected prefilled shops: %+v", session.Shops)
	}
}

func TestCreateWithShopsIgnoresDirectory(t *testing.T) {
	f := newFixture()
	f.svc.SetShopDirectory(&stubShopDirectory{shops: []domain.Shop{
		{ID: "demo-shop-1", Name: "Demo Body Works", Phone: "+15551230009"},
	}})

	session, err := f.svc.Create(context.Background(), uuid.New(), "owner@example.com", createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(session.Shops) != 2 {
		t.Fatalf("expected the request's 2 shops, got %d", len(session.Shops))
	}
	for _, shop := range session.Shops {
		if shop.ID == "demo-shop-1" {
			t.Fatalf("directory shop leaked into an explicit-shops session")
		}
	}
}

func TestCreateRejectsInvalidPhone(t *testing.T) {
	f := newFixture()
	req := createRequest()
	req.Shops[0].Phone = "not-a-number"

	_, err := f.svc.Create(context.Background(), uuid.New(), "", req)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsDuplicateShopIDs(t *testing.T) {
	f := newFixture()
	req := createRequest()
	req.Shops[0].ID = "downtown"

	if _, err := f.svc.Create(context.Background(), uuid.New(), "", req); err == nil {
		t.Fatalf("expected duplicate shop id error")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	session, _ := f.svc.Create(context.Background(), userID, "", createRequest())

	first, err := f.svc.Start(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.Status != domain.StatusAnalyzing {
		t.Errorf("status = %s, want ANALYZING", first.Status)
	}

	second, err := f.svc.Start(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("second start must not error: %v", err)
	}
	if second.Status != domain.StatusAnalyzing {
		t.Errorf("second start status = %s", second.Status)
	}
	if f.enqueuer.count != 1 {
		t.Fatalf("processing enqueued %d times, want exactly 1", f.enqueuer.count)
	}
}

func TestStartEnqueueFailureFailsSession(t *testing.T) {
	f := newFixture()
	f.enqueuer.err = errors.New("redis down")
	userID := uuid.New()
	session, _ := f.svc.Create(context.Background(), userID, "", createRequest())

	if _, err := f.svc.Start(context.Background(), userID, session.ID); err == nil {
		t.Fatalf("expected error when enqueue fails")
	}
	got, _ := f.repo.GetByID(context.Background(), session.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func TestProcessRunsAnalysisThenDispatch(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	session, _ := f.svc.Create(context.Background(), userID, "", createRequest())
	if _, err := f.svc.Start(context.Background(), userID, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.svc.Process(context.Background(), session.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := f.repo.GetByID(context.Background(), session.ID)
	if got.Status != domain.StatusCalling {
		t.Fatalf("status = %s, want CALLING", got.Status)
	}
	if got.DamageSummary == nil || got.DamageSummary.Severity != "moderate" {
		t.Errorf("damage summary not persisted: %+v", got.DamageSummary)
	}
	if len(f.dispatcher.dispatched) != 1 {
		t.Fatalf("dispatch ran %d times, want 1", len(f.dispatcher.dispatched))
	}
	if len(f.evaluator.evaluated) != 1 {
		t.Fatalf("completion evaluated %d times, want 1", len(f.evaluator.evaluated))
	}
}

func TestProcessAnalysisFailureFailsSession(t *testing.T) {
	f := newFixture()
	f.analyzer.err = errors.New("model unavailable")
	userID := uuid.New()
	session, _ := f.svc.Create(context.Background(), userID, "", createRequest())
	_, _ = f.svc.Start(context.Background(), userID, session.ID)

	if err := f.svc.Process(context.Background(), session.ID); err != nil {
		t.Fatalf("analysis failure must not bubble up for retry: %v", err)
	}
	got, _ := f.repo.GetByID(context.Background(), session.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if len(f.dispatcher.dispatched) != 0 {
		t.Fatalf("no calls may be dispatched after failed analysis")
	}
}

func TestProcessRetryInCallingRedispatches(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	session, _ := f.svc.Create(context.Background(), userID, "", createRequest())
	_, _ = f.svc.Start(context.Background(), userID, session.ID)
	_ = f.svc.Process(context.Background(), session.ID)

	// Retried job re-enters in CALLING; analysis must not run again.
	if err := f.svc.Process(context.Background(), session.ID); err != nil {
		t.Fatalf("process retry: %v", err)
	}
	if f.analyzer.calls != 1 {
		t.Fatalf("analysis ran %d times, want 1", f.analyzer.calls)
	}
	if len(f.dispatcher.dispatched) != 2 {
		t.Fatalf("dispatch should rerun on retry (dispatcher dedupes per shop)")
	}
}

func TestGetHidesOtherUsersSessions(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	session, _ := f.svc.Create(context.Background(), owner, "", createRequest())

	_, err := f.svc.Get(context.Background(), uuid.New(), session.ID)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("foreign session must read as not found, got %v", err)
	}
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Get(context.Background(), uuid.New(), uuid.New())
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("unknown session must read as not found, got %v", err)
	}
}

func TestGetReportOnlyWhenDone(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	session, _ := f.svc.Create(context.Background(), userID, "", createRequest())

	_, err := f.svc.GetReport(context.Background(), userID, session.ID)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict before DONE, got %v", err)
	}

	// Drive the session to DONE through the repo the way the pipeline does.
	f.repo.mu.Lock()
	f.repo.sessions[session.ID].Status = domain.StatusSummarizing
	f.repo.mu.Unlock()
	if _, err := f.repo.SetReport(context.Background(), session.ID, domain.Report{QuotesObtained: 1}); err != nil {
		t.Fatalf("set report: %v", err)
	}

	report, err := f.svc.GetReport(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if report.QuotesObtained != 1 {
		t.Errorf("report = %+v", report)
	}
}
