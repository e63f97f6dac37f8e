package repository

import (
	"context"

	"github.com/google/uuid"

	"garagecall_backend/internal/sessions/domain"
)

// SessionRepository is the store adapter for session records. Status changes
// go through TransitionStatus, a compare-and-set write, so that concurrent
// evaluators (two webhook deliveries racing, or multiple worker instances)
// cannot both advance the same session.
type SessionRepository interface {
	Create(ctx context.Context, params CreateSessionParams) (domain.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)

	// TransitionStatus atomically moves the session from exactly `from` to
	// `to`. Returns false when the session was not in `from` (someone else
	// won, or the transition is stale); the caller must then no-op.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status) (bool, error)

	// SetDamageSummary persists the structured analysis output.
	SetDamageSummary(ctx context.Context, id uuid.UUID, summary domain.DamageSummary) error

	// SetReport persists the final report and moves SUMMARIZING -> DONE in
	// the same conditional write. Returns false if the session had left
	// SUMMARIZING already.
	SetReport(ctx context.Context, id uuid.UUID, report domain.Report) (bool, error)

	// MarkFailed records the failure reason and moves the session to FAILED
	// if it is not already terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// ListStuckInCalling returns ids of sessions sitting in CALLING longer
	// than the given age, for the sweep job to flag.
	ListStuckInCalling(ctx context.Context, olderThanMinutes int) ([]uuid.UUID, error)
}

// CreateSessionParams creates a new session in CREATED.
type CreateSessionParams struct {
	UserID      uuid.UUID
	UserEmail   string
	Location    string
	Vehicle     *domain.VehicleInfo
	Description string
	PhotoKeys   []string
	Shops       []domain.Shop
}
