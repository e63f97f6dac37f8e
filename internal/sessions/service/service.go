// Package service implements the quote session workflow: creating sessions,
// starting them, running the analysis-then-dispatch pipeline, and exposing
// session state and reports to the owning user.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	callsvc "garagecall_backend/internal/calls/service"
	"garagecall_backend/internal/events"
	"garagecall_backend/internal/sessions/domain"
	"garagecall_backend/internal/sessions/repository"
	"garagecall_backend/internal/sessions/transport"
	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/logger"
	"garagecall_backend/platform/phone"
)

// DamageAnalyzer produces a structured damage summary for a session.
type DamageAnalyzer interface {
	Analyze(ctx context.Context, session *domain.Session) (domain.DamageSummary, error)
}

// CallDispatcher starts one call per shop for a session in CALLING.
type CallDispatcher interface {
	Dispatch(ctx context.Context, session *domain.Session) []callsvc.DispatchOutcome
}

// CompletionEvaluator checks whether a session's calls are all terminal and
// advances it to SUMMARIZING if so.
type CompletionEvaluator interface {
	EvaluateCompletion(ctx context.Context, sessionID uuid.UUID) error
}

// WorkflowEnqueuer schedules the background processing job for a started
// session.
type WorkflowEnqueuer interface {
	EnqueueProcessSession(ctx context.Context, sessionID uuid.UUID) error
}

// ShopDirectory supplies fallback shops for sessions created without any.
// Wired only in demo mode.
type ShopDirectory interface {
	Shops() []domain.Shop
}

// Service orchestrates the session lifecycle.
type Service struct {
	repo       repository.SessionRepository
	analyzer   DamageAnalyzer
	dispatcher CallDispatcher
	evaluator  CompletionEvaluator
	enqueuer   WorkflowEnqueuer
	shopDir    ShopDirectory
	bus        events.Bus
	log        *logger.Logger
}

// New creates a Service.
func New(repo repository.SessionRepository, analyzer DamageAnalyzer, dispatcher CallDispatcher, evaluator CompletionEvaluator, enqueuer WorkflowEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		enqueuer:   enqueuer,
		bus:        bus,
		log:        log,
	}
}

// SetCompletionEvaluator injects the completion evaluator after
// construction. The evaluator needs the session repository, so the
// composition root wires it in a second step.
func (s *Service) SetCompletionEvaluator(evaluator CompletionEvaluator) {
	s.evaluator = evaluator
}

// SetShopDirectory injects the demo shop directory. Sessions created with
// zero shops are then prefilled from it.
func (s *Service) SetShopDirectory(dir ShopDirectory) {
	s.shopDir = dir
}

// Create validates the request and stores a new session in CREATED.
// Shop phone numbers are normalized to E.164 up front so the safety gate
// and call records operate on canonical numbers.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, userEmail string, req transport.CreateSessionRequest) (domain.Session, error) {
	if len(req.Shops) == 0 && s.shopDir != nil {
		for _, shop := range s.shopDir.Shops() {
			req.Shops = append(req.Shops, transport.ShopRequest{
				ID:      shop.ID,
				Name:    shop.Name,
				Phone:   shop.Phone,
				Address: shop.Address,
			})
		}
	}

	shops := make([]domain.Shop, 0, len(req.Shops))
	seen := make(map[string]bool, len(req.Shops))
	for i, shopReq := range req.Shops {
		if !phone.IsValid(shopReq.Phone) {
			return domain.Session{}, apperr.Validation(
				fmt.Sprintf("shop %q has an invalid phone number", shopReq.Name))
		}
		id := shopReq.ID
		if id == "" {
			id = fmt.Sprintf("shop-%d", i+1)
		}
		if seen[id] {
			return domain.Session{}, apperr.Validation(
				fmt.Sprintf("duplicate shop id %q", id))
		}
		seen[id] = true
		shops = append(shops, domain.Shop{
			ID:      id,
			Name:    shopReq.Name,
			Phone:   phone.NormalizeE164(shopReq.Phone),
			Address: shopReq.Address,
		})
	}

	var vehicle *domain.VehicleInfo
	if req.Vehicle != nil {
		vehicle = &domain.VehicleInfo{
			Make:  req.Vehicle.Make,
			Model: req.Vehicle.Model,
			Year:  req.Vehicle.Year,
			Color: req.Vehicle.Color,
		}
	}

	session, err := s.repo.Create(ctx, repository.CreateSessionParams{
		UserID:      userID,
		UserEmail:   userEmail,
		Location:    req.Location,
		Vehicle:     vehicle,
		Description: req.Description,
		PhotoKeys:   req.PhotoKeys,
		Shops:       shops,
	})
	if err != nil {
		return domain.Session{}, err
	}

	s.log.WithSession(session.ID.String()).Info("session created",
		"user_id", userID.String(), "shops", len(shops))
	if s.bus != nil {
		s.bus.Publish(ctx, events.SessionCreated{
			BaseEvent: events.NewBaseEvent(),
			SessionID: session.ID,
			UserID:    userID,
			ShopCount: len(shops),
		})
	}
	return session, nil
}

// Start kicks off the workflow for a CREATED session. Starting is
// idempotent at the API surface: once the session has left CREATED, Start
// returns the current state instead of an error, so a retried request
// cannot run the workflow twice.
func (s *Service) Start(ctx context.Context, userID, sessionID uuid.UUID) (domain.Session, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	if session.Status != domain.StatusCreated {
		return session, nil
	}

	won, err := s.repo.TransitionStatus(ctx, sessionID, domain.StatusCreated, domain.StatusAnalyzing)
	if err != nil {
		return domain.Session{}, err
	}
	if !won {
		// A concurrent Start got there first.
		return s.getOwned(ctx, userID, sessionID)
	}

	if err := s.enqueuer.EnqueueProcessSession(ctx, sessionID); err != nil {
		s.log.WithSession(sessionID.String()).Error("failed to enqueue session processing", "error", err)
		if ferr := s.repo.MarkFailed(ctx, sessionID, "failed to schedule processing"); ferr != nil {
			s.log.DatabaseError("sessions.mark_failed", ferr)
		}
		return domain.Session{}, apperr.Internal("failed to start session processing")
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.WorkflowStarted{
			BaseEvent: events.NewBaseEvent(),
			SessionID: sessionID,
			UserID:    userID,
		})
	}
	return s.getOwned(ctx, userID, sessionID)
}

// Process is the background workflow: analyze the damage, move to CALLING,
// dispatch the calls, then evaluate completion so zero-call sessions finish
// immediately. A retried job re-enters safely at whatever phase the session
// is in.
func (s *Service) Process(ctx context.Context, sessionID uuid.UUID) error {
	log := s.log.WithSession(sessionID.String())

	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.Status {
	case domain.StatusAnalyzing:
		summary, err := s.analyzer.Analyze(ctx, &session)
		if err != nil {
			log.Error("damage analysis failed", "error", err)
			s.fail(ctx, sessionID, "damage analysis failed")
			return nil
		}
		if err := s.repo.SetDamageSummary(ctx, sessionID, summary); err != nil {
			return err
		}
		session.DamageSummary = &summary
		log.Info("damage analyzed", "severity", summary.Severity, "score", summary.SeverityScore)
		if s.bus != nil {
			s.bus.Publish(ctx, events.DamageAnalyzed{
				BaseEvent: events.NewBaseEvent(),
				SessionID: sessionID,
				Severity:  summary.Severity,
			})
		}

		won, err := s.repo.TransitionStatus(ctx, sessionID, domain.StatusAnalyzing, domain.StatusCalling)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		session.Status = domain.StatusCalling
		return s.dispatchAndEvaluate(ctx, &session)

	case domain.StatusCalling:
		// Retried job after a crash mid-dispatch: the dispatcher skips
		// shops that already have call records.
		return s.dispatchAndEvaluate(ctx, &session)

	default:
		log.Info("skipping processing for session", "status", string(session.Status))
		return nil
	}
}

func (s *Service) dispatchAndEvaluate(ctx context.Context, session *domain.Session) error {
	outcomes := s.dispatcher.Dispatch(ctx, session)

	started := 0
	for _, o := range outcomes {
		if o.Started {
			started++
		}
	}
	s.log.WithSession(session.ID.String()).Info("calls dispatched",
		"shops", len(outcomes), "started", started)

	// Covers both the zero-shop session and the everything-failed dispatch:
	// when no call is pending the session moves straight to SUMMARIZING.
	return s.evaluator.EvaluateCompletion(ctx, session.ID)
}

// Get returns a session owned by the user.
func (s *Service) Get(ctx context.Context, userID, sessionID uuid.UUID) (domain.Session, error) {
	return s.getOwned(ctx, userID, sessionID)
}

// List returns the user's sessions, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return s.repo.ListByUser(ctx, userID)
}

// GetReport returns the final report. Only DONE sessions have one; asking
// earlier yields a conflict so clients can poll on the session status.
func (s *Service) GetReport(ctx context.Context, userID, sessionID uuid.UUID) (domain.Report, error) {
	session, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return domain.Report{}, err
	}
	if session.Status != domain.StatusDone || session.Report == nil {
		return domain.Report{}, apperr.Conflict(
			fmt.Sprintf("report not available: session is %s", session.Status))
	}
	return *session.Report, nil
}

func (s *Service) getOwned(ctx context.Context, userID, sessionID uuid.UUID) (domain.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Session{}, apperr.NotFound("session not found")
		}
		return domain.Session{}, err
	}
	// Ownership failures read as not-found so session ids cannot be probed.
	if session.UserID != userID {
		return domain.Session{}, apperr.NotFound("session not found")
	}
	return session, nil
}

func (s *Service) fail(ctx context.Context, sessionID uuid.UUID, reason string) {
	if err := s.repo.MarkFailed(ctx, sessionID, reason); err != nil {
		s.log.DatabaseError("sessions.mark_failed", err)
		return
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.SessionFailed{
			BaseEvent: events.NewBaseEvent(),
			SessionID: sessionID,
			Reason:    reason,
		})
	}
}
