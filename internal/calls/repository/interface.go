package repository

import (
	"context"

	"github.com/google/uuid"

	"garagecall_backend/internal/calls/domain"
)

// CallRepository is the store adapter for call records keyed by
// (session id, shop id). All writes are conditional so duplicate webhook
// deliveries and stale lifecycle events are absorbed at the storage layer.
type CallRepository interface {
	// Create inserts a PENDING call record if none exists for the key.
	// Returns false when a record was already present (no silent overwrite).
	Create(ctx context.Context, params CreateCallParams) (bool, error)

	// MarkInProgress records the external call id and moves the call to
	// IN_PROGRESS unless it has already reached a terminal state.
	MarkInProgress(ctx context.Context, sessionID uuid.UUID, shopID, externalCallID string) error

	// MarkCompleted moves the call to COMPLETED with its outcome data.
	// Terminal states are sticky: re-delivery no-ops, returns false.
	MarkCompleted(ctx context.Context, params CompleteCallParams) (bool, error)

	// MarkFailed moves the call to FAILED with a reason.
	// Terminal states are sticky: re-delivery no-ops, returns false.
	MarkFailed(ctx context.Context, sessionID uuid.UUID, shopID, reason string) (bool, error)

	// Get returns one call record.
	Get(ctx context.Context, sessionID uuid.UUID, shopID string) (domain.Call, error)

	// ListBySession returns all call records for a session.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Call, error)

	// CountNonTerminal counts this session's calls not yet COMPLETED/FAILED.
	CountNonTerminal(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// CreateCallParams creates a new PENDING call record.
type CreateCallParams struct {
	SessionID    uuid.UUID
	ShopID       string
	ShopName     string
	DialedNumber string
}

// CompleteCallParams carries the terminal outcome of a successful call.
type CompleteCallParams struct {
	SessionID   uuid.UUID
	ShopID      string
	Transcript  string
	Extraction  *domain.Extraction
	CostCents   int
	DurationSec int
	EndedReason string
}
