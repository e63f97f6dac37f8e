package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	calldomain "garagecall_backend/internal/calls/domain"
	callrepo "garagecall_backend/internal/calls/repository"
	sessionrepo "garagecall_backend/internal/sessions/repository"
	"garagecall_backend/platform/logger"
)

const (
	defaultSweepInterval   = 10 * time.Minute
	defaultStuckSessionAge = 2 * time.Hour
	stuckCallReason        = "timed out waiting for call result"
)

// CompletionEvaluator re-checks whether a session's calls are all terminal
// and advances it if so.
type CompletionEvaluator interface {
	EvaluateCompletion(ctx context.Context, sessionID uuid.UUID) error
}

// StuckSessionSweep periodically finds sessions that sat in CALLING for too
// long, fails their remaining calls, and pushes the session on to report
// synthesis with whatever results did arrive. This covers lost webhook
// deliveries for calls the platform silently abandoned.
type StuckSessionSweep struct {
	sessionRepo sessionrepo.SessionRepository
	callRepo    callrepo.CallRepository
	evaluator   CompletionEvaluator
	log         *logger.Logger
	interval    time.Duration
	maxAge      time.Duration
}

func NewStuckSessionSweep(sessionRepo sessionrepo.SessionRepository, callRepo callrepo.CallRepository, evaluator CompletionEvaluator, log *logger.Logger, interval, maxAge time.Duration) *StuckSessionSweep {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = defaultStuckSessionAge
	}
	return &StuckSessionSweep{
		sessionRepo: sessionRepo,
		callRepo:    callRepo,
		evaluator:   evaluator,
		log:         log,
		interval:    interval,
		maxAge:      maxAge,
	}
}

func (s *StuckSessionSweep) Run(ctx context.Context) {
	if s == nil || s.sessionRepo == nil {
		return
	}

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Exported so the worker entrypoint can trigger it on
// demand as well as on the ticker.
func (s *StuckSessionSweep) Sweep(ctx context.Context) {
	ids, err := s.sessionRepo.ListStuckInCalling(ctx, int(s.maxAge.Minutes()))
	if err != nil {
		s.log.DatabaseError("sessions.list_stuck_in_calling", err)
		return
	}

	for _, id := range ids {
		s.sweepOne(ctx, id)
	}
}

func (s *StuckSessionSweep) sweepOne(ctx context.Context, sessionID uuid.UUID) {
	log := s.log.WithSession(sessionID.String())

	calls, err := s.callRepo.ListBySession(ctx, sessionID)
	if err != nil {
		log.DatabaseError("calls.list_by_session", err)
		return
	}

	failed := 0
	for _, call := range calls {
		if call.Status.IsTerminal() {
			continue
		}
		changed, err := s.callRepo.MarkFailed(ctx, sessionID, call.ShopID, stuckCallReason)
		if err != nil {
			log.DatabaseError("calls.mark_failed", err)
			return
		}
		if changed {
			failed++
		}
	}

	if failed > 0 {
		log.Warn("failed stuck calls for timed-out session", "count", failed)
	}
	if allTerminal(calls) && failed == 0 {
		// Every call was already terminal: the completion trigger was lost.
		log.Warn("re-evaluating session with all calls terminal")
	}

	if err := s.evaluator.EvaluateCompletion(ctx, sessionID); err != nil {
		log.Error("stuck session evaluation failed", "error", err)
	}
}

func allTerminal(calls []calldomain.Call) bool {
	for _, c := range calls {
		if !c.Status.IsTerminal() {
			return false
		}
	}
	return true
}
