package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	calldomain "garagecall_backend/internal/calls/domain"
	"garagecall_backend/internal/calls/repository"
	"garagecall_backend/internal/events"
	sessiondomain "garagecall_backend/internal/sessions/domain"
	sessionrepo "garagecall_backend/internal/sessions/repository"
	"garagecall_backend/platform/logger"
)

// Call lifecycle event types as delivered by the webhook.
const (
	EventCallStarted = "call.started"
	EventCallEnded   = "call.ended"
	EventCallFailed  = "call.failed"
)

// CallEvent is one lifecycle event for an in-flight call, already decoded
// from the webhook payload and correlated to a (session, shop) pair.
type CallEvent struct {
	SessionID      uuid.UUID
	ShopID         string
	ExternalCallID string
	Type           string

	// Terminal payload, present on ended events.
	Transcript  string
	Extraction  *calldomain.Extraction
	CostCents   int
	DurationSec int
	EndedReason string

	// Present on failed events.
	FailureReason string
}

// SynthesisEnqueuer schedules the report-synthesis job for a session.
type SynthesisEnqueuer interface {
	EnqueueSynthesizeReport(ctx context.Context, sessionID uuid.UUID) error
}

// Aggregator folds call lifecycle events into call records and drives the
// session to SUMMARIZING once every call is terminal. All writes go through
// conditional repository updates, so duplicate and out-of-order deliveries
// collapse into no-ops and exactly one caller wins the transition that
// triggers report synthesis.
type Aggregator struct {
	callRepo    repository.CallRepository
	sessionRepo sessionrepo.SessionRepository
	enqueuer    SynthesisEnqueuer
	bus         events.Bus
	log         *logger.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(callRepo repository.CallRepository, sessionRepo sessionrepo.SessionRepository, enqueuer SynthesisEnqueuer, bus events.Bus, log *logger.Logger) *Aggregator {
	return &Aggregator{
		callRepo:    callRepo,
		sessionRepo: sessionRepo,
		enqueuer:    enqueuer,
		bus:         bus,
		log:         log,
	}
}

// OnCallEvent applies one lifecycle event. Events that cannot be correlated
// to a known session and shop are logged and dropped, never retried: the
// webhook has already been acknowledged and retrying cannot make an unknown
// correlation known. A failed lookup is not an unknown correlation; it
// propagates so the delivery is nacked and the platform retries.
func (a *Aggregator) OnCallEvent(ctx context.Context, event CallEvent) error {
	log := a.log.WithSession(event.SessionID.String())

	session, err := a.sessionRepo.GetByID(ctx, event.SessionID)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			log.Warn("dropping call event for unknown session",
				"shop_id", event.ShopID, "event_type", event.Type)
			return nil
		}
		log.DatabaseError("sessions.get_by_id", err)
		return err
	}
	if _, ok := session.ShopByID(event.ShopID); !ok {
		log.Warn("dropping call event for unknown shop",
			"shop_id", event.ShopID, "event_type", event.Type)
		return nil
	}

	switch event.Type {
	case EventCallStarted:
		// Started after ended is absorbed by the terminal-state guard.
		if err := a.callRepo.MarkInProgress(ctx, event.SessionID, event.ShopID, event.ExternalCallID); err != nil {
			log.DatabaseError("calls.mark_in_progress", err)
			return err
		}
		log.CallEvent(event.Type, event.SessionID.String(), event.ShopID, string(calldomain.StatusInProgress))
		return nil

	case EventCallEnded:
		changed, err := a.callRepo.MarkCompleted(ctx, repository.CompleteCallParams{
			SessionID:   event.SessionID,
			ShopID:      event.ShopID,
			Transcript:  event.Transcript,
			Extraction:  event.Extraction,
			CostCents:   event.CostCents,
			DurationSec: event.DurationSec,
			EndedReason: event.EndedReason,
		})
		if err != nil {
			log.DatabaseError("calls.mark_completed", err)
			return err
		}
		return a.afterTerminal(ctx, event, string(calldomain.StatusCompleted), changed)

	case EventCallFailed:
		reason := event.FailureReason
		if reason == "" {
			reason = "call failed"
		}
		changed, err := a.callRepo.MarkFailed(ctx, event.SessionID, event.ShopID, reason)
		if err != nil {
			log.DatabaseError("calls.mark_failed", err)
			return err
		}
		return a.afterTerminal(ctx, event, string(calldomain.StatusFailed), changed)

	default:
		log.Warn("dropping call event of unknown type",
			"shop_id", event.ShopID, "event_type", event.Type)
		return nil
	}
}

func (a *Aggregator) afterTerminal(ctx context.Context, event CallEvent, status string, changed bool) error {
	log := a.log.WithSession(event.SessionID.String())

	if changed {
		log.CallEvent(event.Type, event.SessionID.String(), event.ShopID, status)
		if a.bus != nil {
			a.bus.Publish(ctx, events.CallTerminal{
				BaseEvent: events.NewBaseEvent(),
				SessionID: event.SessionID,
				ShopID:    event.ShopID,
				Status:    status,
			})
		}
	} else {
		log.CallEvent("duplicate."+event.Type, event.SessionID.String(), event.ShopID, status)
	}

	// Evaluate completion even on duplicates; the session-status
	// compare-and-set keeps synthesis single-shot regardless.
	return a.EvaluateCompletion(ctx, event.SessionID)
}

// EvaluateCompletion checks whether every call of the session is terminal
// and, if so, races the CALLING to SUMMARIZING transition. Only the winner
// enqueues report synthesis, which makes the trigger exactly-once across
// concurrent deliveries and across processes. Safe to call at any time.
func (a *Aggregator) EvaluateCompletion(ctx context.Context, sessionID uuid.UUID) error {
	log := a.log.WithSession(sessionID.String())

	pending, err := a.callRepo.CountNonTerminal(ctx, sessionID)
	if err != nil {
		log.DatabaseError("calls.count_non_terminal", err)
		return err
	}
	if pending > 0 {
		return nil
	}

	won, err := a.sessionRepo.TransitionStatus(ctx, sessionID, sessiondomain.StatusCalling, sessiondomain.StatusSummarizing)
	if err != nil {
		log.DatabaseError("sessions.transition_status", err)
		return err
	}
	if !won {
		return nil
	}

	if a.bus != nil {
		a.bus.Publish(ctx, events.SessionSummarizing{
			BaseEvent: events.NewBaseEvent(),
			SessionID: sessionID,
		})
	}

	if err := a.enqueuer.EnqueueSynthesizeReport(ctx, sessionID); err != nil {
		log.Error("failed to enqueue report synthesis", "error", err)
		if ferr := a.sessionRepo.MarkFailed(ctx, sessionID, "failed to schedule report synthesis"); ferr != nil {
			log.DatabaseError("sessions.mark_failed", ferr)
		}
		return err
	}

	log.Info("all calls terminal, report synthesis enqueued")
	return nil
}
