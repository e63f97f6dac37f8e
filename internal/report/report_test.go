package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	calldomain "garagecall_backend/internal/calls/domain"
	callrepo "garagecall_backend/internal/calls/repository"
	"garagecall_backend/internal/sessions/domain"
	sessionrepo "garagecall_backend/internal/sessions/repository"
	"garagecall_backend/platform/logger"
)

func TestRankOrdersByValue(t *testing.T) {
	quotes := []domain.ShopQuote{
		{ShopID: "failed", CallFailed: true},
		{ShopID: "expensive", QuoteProvided: true, PriceEstimateLow: 2000, PriceEstimateHigh: 2400},
		{ShopID: "no-quote"},
		{ShopID: "cheap", QuoteProvided: true, PriceEstimateLow: 800, PriceEstimateHigh: 1200},
	}

	ranked := Rank(quotes)

	want := []string{"cheap", "expensive", "no-quote", "failed"}
	for i, id := range want {
		if ranked[i].ShopID != id {
			t.Fatalf("rank[%d] = %s, want %s (full: %+v)", i, ranked[i].ShopID, id, ranked)
		}
	}
	// Rank must not mutate its input.
	if quotes[0].ShopID != "failed" {
		t.Errorf("input slice was reordered")
	}
}

func TestRankKeepsSessionOrderOnTies(t *testing.T) {
	quotes := []domain.ShopQuote{
		{ShopID: "a", QuoteProvided: true, PriceEstimateLow: 1000, PriceEstimateHigh: 1000},
		{ShopID: "b", QuoteProvided: true, PriceEstimateLow: 1000, PriceEstimateHigh: 1000},
	}
	ranked := Rank(quotes)
	if ranked[0].ShopID != "a" || ranked[1].ShopID != "b" {
		t.Fatalf("tie broke session order: %+v", ranked)
	}
}

func TestBuildQuotesCoversEveryShop(t *testing.T) {
	session := &domain.Session{
		ID: uuid.New(),
		Shops: []domain.Shop{
			{ID: "shop-a", Name: "Precision Auto Body"},
			{ID: "shop-b", Name: "Downtown Collision"},
			{ID: "shop-c", Name: "Eastside Garage"},
		},
	}
	calls := []calldomain.Call{
		{
			SessionID: session.ID, ShopID: "shop-a", Status: calldomain.StatusCompleted,
			Extraction: &calldomain.Extraction{QuoteProvided: true, PriceEstimateLow: 900, PriceEstimateHigh: 1100, Timeframe: "1 week"},
		},
		{SessionID: session.ID, ShopID: "shop-b", Status: calldomain.StatusFailed, EndedReason: "no answer"},
		// shop-c has no record at all
	}

	quotes := BuildQuotes(session, calls)

	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want one per shop", len(quotes))
	}
	if !quotes[0].QuoteProvided || quotes[0].Timeframe != "1 week" {
		t.Errorf("shop-a quote not populated: %+v", quotes[0])
	}
	if !quotes[1].CallFailed || quotes[1].Notes != "no answer" {
		t.Errorf("shop-b should be failed with reason: %+v", quotes[1])
	}
	if !quotes[2].CallFailed {
		t.Errorf("shop without a call record must appear failed: %+v", quotes[2])
	}
}

// ----- synthesizer -----

type stubSessionRepo struct {
	mu      sync.Mutex
	session domain.Session
}

func (r *stubSessionRepo) Create(context.Context, sessionrepo.CreateSessionParams) (domain.Session, error) {
	return domain.Session{}, errors.New("not implemented")
}

func (r *stubSessionRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.ID != id {
		return domain.Session{}, errors.New("no such session")
	}
	return r.session, nil
}

func (r *stubSessionRepo) ListByUser(context.Context, uuid.UUID) ([]domain.Session, error) {
	return nil, errors.New("not implemented")
}

func (r *stubSessionRepo) TransitionStatus(_ context.Context, _ uuid.UUID, from, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Status != from {
		return false, nil
	}
	r.session.Status = to
	return true, nil
}

func (r *stubSessionRepo) SetDamageSummary(context.Context, uuid.UUID, domain.DamageSummary) error {
	return nil
}

func (r *stubSessionRepo) SetReport(_ context.Context, _ uuid.UUID, report domain.Report) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Status != domain.StatusSummarizing {
		return false, nil
	}
	r.session.Report = &report
	r.session.Status = domain.StatusDone
	return true, nil
}

func (r *stubSessionRepo) MarkFailed(_ context.Context, _ uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !domain.IsTerminal(r.session.Status) {
		r.session.Status = domain.StatusFailed
		r.session.FailureReason = reason
	}
	return nil
}

func (r *stubSessionRepo) ListStuckInCalling(context.Context, int) ([]uuid.UUID, error) {
	return nil, nil
}

type stubCallRepo struct {
	calls []calldomain.Call
}

func (r *stubCallRepo) Create(context.Context, callrepo.CreateCallParams) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *stubCallRepo) MarkInProgress(context.Context, uuid.UUID, string, string) error {
	return errors.New("not implemented")
}
func (r *stubCallRepo) MarkCompleted(context.Context, callrepo.CompleteCallParams) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *stubCallRepo) MarkFailed(context.Context, uuid.UUID, string, string) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *stubCallRepo) Get(context.Context, uuid.UUID, string) (calldomain.Call, error) {
	return calldomain.Call{}, errors.New("not implemented")
}
func (r *stubCallRepo) ListBySession(context.Context, uuid.UUID) ([]calldomain.Call, error) {
	return r.calls, nil
}
func (r *stubCallRepo) CountNonTerminal(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func summarizingSession() domain.Session {
	return domain.Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		UserEmail: "owner@example.com",
		Shops: []domain.Shop{
			{ID: "shop-a", Name: "Precision Auto Body"},
			{ID: "shop-b", Name: "Downtown Collision"},
		},
		DamageSummary: &domain.DamageSummary{Severity: "moderate", Summary: "Front bumper damage."},
		Status:        domain.StatusSummarizing,
	}
}

func testSynthesizer(sessions *stubSessionRepo, calls *stubCallRepo, recommend recommendFunc) *Synthesizer {
	return &Synthesizer{
		sessionRepo: sessions,
		callRepo:    calls,
		log:         logger.New("development"),
		recommend:   recommend,
	}
}

func TestSynthesizeWritesReportAndCompletesSession(t *testing.T) {
	sessions := &stubSessionRepo{session: summarizingSession()}
	calls := &stubCallRepo{calls: []calldomain.Call{
		{
			SessionID: sessions.session.ID, ShopID: "shop-a", Status: calldomain.StatusCompleted,
			Extraction: &calldomain.Extraction{QuoteProvided: true, PriceEstimateLow: 800, PriceEstimateHigh: 1200},
		},
		{SessionID: sessions.session.ID, ShopID: "shop-b", Status: calldomain.StatusFailed, EndedReason: "busy"},
	}}

	s := testSynthesizer(sessions, calls, func(_ context.Context, _ *domain.Session, ranked []domain.ShopQuote) (string, error) {
		if ranked[0].ShopID != "shop-a" {
			t.Errorf("recommend got unranked quotes: %+v", ranked)
		}
		return "Precision Auto Body offers the best value.", nil
	})

	if err := s.Synthesize(context.Background(), sessions.session.ID); err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	got := sessions.session
	if got.Status != domain.StatusDone {
		t.Fatalf("status = %s, want DONE", got.Status)
	}
	if got.Report == nil || got.Report.QuotesObtained != 1 {
		t.Fatalf("report = %+v", got.Report)
	}
	if !strings.Contains(got.Report.Recommendation, "Precision Auto Body") {
		t.Errorf("recommendation = %q", got.Report.Recommendation)
	}
}

func TestSynthesizeNoQuotesStillCompletes(t *testing.T) {
	sessions := &stubSessionRepo{session: summarizingSession()}
	calls := &stubCallRepo{calls: []calldomain.Call{
		{SessionID: sessions.session.ID, ShopID: "shop-a", Status: calldomain.StatusFailed},
		{SessionID: sessions.session.ID, ShopID: "shop-b", Status: calldomain.StatusFailed},
	}}

	modelCalled := false
	s := testSynthesizer(sessions, calls, func(context.Context, *domain.Session, []domain.ShopQuote) (string, error) {
		modelCalled = true
		return "", nil
	})

	if err := s.Synthesize(context.Background(), sessions.session.ID); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if modelCalled {
		t.Errorf("no-quotes report must not call the model")
	}
	got := sessions.session
	if got.Status != domain.StatusDone {
		t.Fatalf("status = %s, want DONE", got.Status)
	}
	if got.Report.QuotesObtained != 0 || !strings.Contains(got.Report.Recommendation, "No price quotes") {
		t.Errorf("report = %+v", got.Report)
	}
}

func TestSynthesizeIsNoOpWhenAlreadyDone(t *testing.T) {
	done := summarizingSession()
	done.Status = domain.StatusDone
	done.Report = &domain.Report{QuotesObtained: 2}
	sessions := &stubSessionRepo{session: done}

	s := testSynthesizer(sessions, &stubCallRepo{}, func(context.Context, *domain.Session, []domain.ShopQuote) (string, error) {
		t.Fatal("finished session must not be re-synthesized")
		return "", nil
	})

	if err := s.Synthesize(context.Background(), done.ID); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if sessions.session.Report.QuotesObtained != 2 {
		t.Errorf("existing report was overwritten")
	}
}

func TestSynthesizeModelFailureFailsSession(t *testing.T) {
	sessions := &stubSessionRepo{session: summarizingSession()}
	calls := &stubCallRepo{calls: []calldomain.Call{
		{
			SessionID: sessions.session.ID, ShopID: "shop-a", Status: calldomain.StatusCompleted,
			Extraction: &calldomain.Extraction{QuoteProvided: true, PriceEstimateLow: 500},
		},
	}}

	s := testSynthesizer(sessions, calls, func(context.Context, *domain.Session, []domain.ShopQuote) (string, error) {
		return "", errors.New("model unavailable")
	})

	if err := s.Synthesize(context.Background(), sessions.session.ID); err == nil {
		t.Fatalf("expected model failure to propagate")
	}
	if sessions.session.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", sessions.session.Status)
	}
}
