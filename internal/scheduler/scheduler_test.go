package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	calldomain "garagecall_backend/internal/calls/domain"
	callrepo "garagecall_backend/internal/calls/repository"
	sessiondomain "garagecall_backend/internal/sessions/domain"
	sessionrepo "garagecall_backend/internal/sessions/repository"
	"garagecall_backend/platform/logger"
)

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@redis.internal:6380/2", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.Addr != "redis.internal:6380" {
		t.Errorf("addr = %s", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Errorf("password not carried over")
	}
	if opt.DB != 2 {
		t.Errorf("db = %d", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Errorf("plain redis:// must not get a TLS config")
	}
}

func TestRedisClientOptTLSInsecure(t *testing.T) {
	opt, err := redisClientOpt("rediss://redis.internal:6380", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Errorf("expected insecure TLS config, got %+v", opt.TLSConfig)
	}
}

func TestRedisClientOptRejectsGarbage(t *testing.T) {
	if _, err := redisClientOpt("not-a-url", false); err == nil {
		t.Fatalf("expected error for invalid redis url")
	}
}

// ----- stuck session sweep -----

type sweepSessionRepo struct {
	stuck []uuid.UUID
}

func (r *sweepSessionRepo) Create(context.Context, sessionrepo.CreateSessionParams) (sessiondomain.Session, error) {
	return sessiondomain.Session{}, errors.New("not implemented")
}
func (r *sweepSessionRepo) GetByID(context.Context, uuid.UUID) (sessiondomain.Session, error) {
	return sessiondomain.Session{}, errors.New("not implemented")
}
func (r *sweepSessionRepo) ListByUser(context.Context, uuid.UUID) ([]sessiondomain.Session, error) {
	return nil, errors.New("not implemented")
}
func (r *sweepSessionRepo) TransitionStatus(context.Context, uuid.UUID, sessiondomain.Status, sessiondomain.Status) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *sweepSessionRepo) SetDamageSummary(context.Context, uuid.UUID, sessiondomain.DamageSummary) error {
	return errors.New("not implemented")
}
func (r *sweepSessionRepo) SetReport(context.Context, uuid.UUID, sessiondomain.Report) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *sweepSessionRepo) MarkFailed(context.Context, uuid.UUID, string) error {
	return errors.New("not implemented")
}
func (r *sweepSessionRepo) ListStuckInCalling(context.Context, int) ([]uuid.UUID, error) {
	return r.stuck, nil
}

type sweepCallRepo struct {
	mu    sync.Mutex
	calls map[uuid.UUID][]calldomain.Call
}

func (r *sweepCallRepo) Create(context.Context, callrepo.CreateCallParams) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *sweepCallRepo) MarkInProgress(context.Context, uuid.UUID, string, string) error {
	return errors.New("not implemented")
}
func (r *sweepCallRepo) MarkCompleted(context.Context, callrepo.CompleteCallParams) (bool, error) {
	return false, errors.New("not implemented")
}

func (r *sweepCallRepo) MarkFailed(_ context.Context, sessionID uuid.UUID, shopID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls[sessionID] {
		if c.ShopID != shopID {
			continue
		}
		if c.Status.IsTerminal() {
			return false, nil
		}
		r.calls[sessionID][i].Status = calldomain.StatusFailed
		r.calls[sessionID][i].EndedReason = reason
		return true, nil
	}
	return false, errors.New("no such call")
}

func (r *sweepCallRepo) Get(context.Context, uuid.UUID, string) (calldomain.Call, error) {
	return calldomain.Call{}, errors.New("not implemented")
}

func (r *sweepCallRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]calldomain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calldomain.Call, len(r.calls[sessionID]))
	copy(out, r.calls[sessionID])
	return out, nil
}

func (r *sweepCallRepo) CountNonTerminal(context.Context, uuid.UUID) (int, error) {
	return 0, errors.New("not implemented")
}

type recordingEvaluator struct {
	mu        sync.Mutex
	evaluated []uuid.UUID
}

func (e *recordingEvaluator) EvaluateCompletion(_ context.Context, sessionID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluated = append(e.evaluated, sessionID)
	return nil
}

func TestSweepFailsHungCallsAndReevaluates(t *testing.T) {
	sessionID := uuid.New()
	callRepo := &sweepCallRepo{calls: map[uuid.UUID][]calldomain.Call{
		sessionID: {
			{SessionID: sessionID, ShopID: "shop-a", Status: calldomain.StatusCompleted},
			{SessionID: sessionID, ShopID: "shop-b", Status: calldomain.StatusInProgress},
			{SessionID: sessionID, ShopID: "shop-c", Status: calldomain.StatusPending},
		},
	}}
	evaluator := &recordingEvaluator{}
	sweep := NewStuckSessionSweep(
		&sweepSessionRepo{stuck: []uuid.UUID{sessionID}},
		callRepo, evaluator, logger.New("development"), time.Minute, time.Hour)

	sweep.Sweep(context.Background())

	calls, _ := callRepo.ListBySession(context.Background(), sessionID)
	for _, c := range calls {
		if c.ShopID == "shop-a" {
			if c.Status != calldomain.StatusCompleted {
				t.Errorf("sweep must not touch terminal calls")
			}
			continue
		}
		if c.Status != calldomain.StatusFailed || c.EndedReason != stuckCallReason {
			t.Errorf("%s: status = %s, reason = %q", c.ShopID, c.Status, c.EndedReason)
		}
	}
	if len(evaluator.evaluated) != 1 || evaluator.evaluated[0] != sessionID {
		t.Fatalf("sweep must re-evaluate the session, got %v", evaluator.evaluated)
	}
}

func TestSweepNoStuckSessionsIsQuiet(t *testing.T) {
	evaluator := &recordingEvaluator{}
	sweep := NewStuckSessionSweep(
		&sweepSessionRepo{}, &sweepCallRepo{calls: map[uuid.UUID][]calldomain.Call{}},
		evaluator, logger.New("development"), time.Minute, time.Hour)

	sweep.Sweep(context.Background())

	if len(evaluator.evaluated) != 0 {
		t.Fatalf("nothing to evaluate, got %v", evaluator.evaluated)
	}
}
