package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"garagecall_backend/internal/calls/domain"
)

var ErrNotFound = errors.New("call not found")

// Repository is the Postgres-backed CallRepository.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const callColumns = `session_id, shop_id, shop_name, dialed_number, external_call_id,
	status, transcript, extraction, cost_cents, duration_sec, ended_reason, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, params CreateCallParams) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO calls (session_id, shop_id, shop_name, dialed_number, status)
		VALUES ($1, $2, $3, $4, 'PENDING')
		ON CONFLICT (session_id, shop_id) DO NOTHING
	`, params.SessionID, params.ShopID, params.ShopName, params.DialedNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MarkInProgress(ctx context.Context, sessionID uuid.UUID, shopID, externalCallID string) error {
	// Guarded update: a started event arriving after the terminal event for
	// the same call must not revert it out of COMPLETED/FAILED.
	_, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET status = 'IN_PROGRESS',
			external_call_id = COALESCE(NULLIF(external_call_id, ''), $3),
			updated_at = now()
		WHERE session_id = $1 AND shop_id = $2
		  AND status NOT IN ('COMPLETED', 'FAILED')
	`, sessionID, shopID, externalCallID)
	return err
}

func (r *Repository) MarkCompleted(ctx context.Context, params CompleteCallParams) (bool, error) {
	var extraction []byte
	if params.Extraction != nil {
		data, err := json.Marshal(params.Extraction)
		if err != nil {
			return false, err
		}
		extraction = data
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET status = 'COMPLETED',
			transcript = $3,
			extraction = $4,
			cost_cents = $5,
			duration_sec = $6,
			ended_reason = $7,
			updated_at = now()
		WHERE session_id = $1 AND shop_id = $2
		  AND status NOT IN ('COMPLETED', 'FAILED')
	`, params.SessionID, params.ShopID, params.Transcript, extraction,
		params.CostCents, params.DurationSec, params.EndedReason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MarkFailed(ctx context.Context, sessionID uuid.UUID, shopID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET status = 'FAILED', ended_reason = $3, updated_at = now()
		WHERE session_id = $1 AND shop_id = $2
		  AND status NOT IN ('COMPLETED', 'FAILED')
	`, sessionID, shopID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) Get(ctx context.Context, sessionID uuid.UUID, shopID string) (domain.Call, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE session_id = $1 AND shop_id = $2
	`, sessionID, shopID)

	call, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Call{}, ErrNotFound
	}
	return call, err
}

func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Call, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := make([]domain.Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func (r *Repository) CountNonTerminal(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM calls
		WHERE session_id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`, sessionID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (domain.Call, error) {
	var call domain.Call
	var status string
	var transcript, externalCallID, endedReason *string
	var extraction []byte

	err := row.Scan(
		&call.SessionID, &call.ShopID, &call.ShopName, &call.DialedNumber, &externalCallID,
		&status, &transcript, &extraction, &call.CostCents, &call.DurationSec, &endedReason,
		&call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		return domain.Call{}, err
	}

	call.Status = domain.Status(status)
	if externalCallID != nil {
		call.ExternalCallID = *externalCallID
	}
	if transcript != nil {
		call.Transcript = *transcript
	}
	if endedReason != nil {
		call.EndedReason = *endedReason
	}
	if len(extraction) > 0 {
		var parsed domain.Extraction
		if err := json.Unmarshal(extraction, &parsed); err != nil {
			return domain.Call{}, err
		}
		call.Extraction = &parsed
	}
	return call, nil
}
