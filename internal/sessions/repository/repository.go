package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"garagecall_backend/internal/sessions/domain"
)

var ErrNotFound = errors.New("session not found")

// Repository is the Postgres-backed SessionRepository.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, user_id, user_email, location, vehicle, description,
	photo_keys, shops, damage_summary, report, status, failure_reason, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, params CreateSessionParams) (domain.Session, error) {
	vehicle, err := marshalNullable(params.Vehicle)
	if err != nil {
		return domain.Session{}, err
	}
	shops, err := json.Marshal(params.Shops)
	if err != nil {
		return domain.Session{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (user_id, user_email, location, vehicle, description, photo_keys, shops, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'CREATED')
		RETURNING `+sessionColumns+`
	`, params.UserID, params.UserEmail, params.Location, vehicle, params.Description,
		params.PhotoKeys, shops)

	return scanSession(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
	`, id)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	return session, err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, errors.New("illegal session transition " + string(from) + " -> " + string(to))
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) SetDamageSummary(ctx context.Context, id uuid.UUID, summary domain.DamageSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET damage_summary = $2, updated_at = now()
		WHERE id = $1
	`, id, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetReport(ctx context.Context, id uuid.UUID, report domain.Report) (bool, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return false, err
	}

	// Report is written together with the SUMMARIZING -> DONE transition so
	// a non-null report implies status DONE.
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET report = $2, status = 'DONE', updated_at = now()
		WHERE id = $1 AND status = 'SUMMARIZING'
	`, id, data)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET status = 'FAILED', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('DONE', 'FAILED')
	`, id, reason)
	return err
}

func (r *Repository) ListStuckInCalling(ctx context.Context, olderThanMinutes int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM sessions
		WHERE status = 'CALLING'
		  AND updated_at < now() - ($1 || ' minutes')::interval
	`, olderThanMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var session domain.Session
	var status string
	var vehicle, shops, summary, report []byte
	var failureReason *string

	err := row.Scan(
		&session.ID, &session.UserID, &session.UserEmail, &session.Location, &vehicle,
		&session.Description, &session.PhotoKeys, &shops, &summary, &report,
		&status, &failureReason, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}

	session.Status = domain.Status(status)
	if failureReason != nil {
		session.FailureReason = *failureReason
	}
	if len(vehicle) > 0 {
		var v domain.VehicleInfo
		if err := json.Unmarshal(vehicle, &v); err != nil {
			return domain.Session{}, err
		}
		session.Vehicle = &v
	}
	if len(shops) > 0 {
		if err := json.Unmarshal(shops, &session.Shops); err != nil {
			return domain.Session{}, err
		}
	}
	if len(summary) > 0 {
		var s domain.DamageSummary
		if err := json.Unmarshal(summary, &s); err != nil {
			return domain.Session{}, err
		}
		session.DamageSummary = &s
	}
	if len(report) > 0 {
		var rep domain.Report
		if err := json.Unmarshal(report, &rep); err != nil {
			return domain.Session{}, err
		}
		session.Report = &rep
	}
	return session, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch typed := v.(type) {
	case *domain.VehicleInfo:
		if typed == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
