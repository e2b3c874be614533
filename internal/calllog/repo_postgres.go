package calllog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialtrack/internal/contacts"
)

// PostgresRepo implements Repository over database/sql (pgx stdlib driver).
//
// Assumed table:
//
//	call_attempts (
//	    id, contact_id, attempt_no, initial_status, settled_status,
//	    duration, provider_call_ref, recording_url, created_at, settled_at,
//	    UNIQUE (contact_id, attempt_no)
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const attemptColumns = `
id, contact_id, attempt_no, initial_status, settled_status,
duration, provider_call_ref, recording_url, created_at, settled_at
`

func scanAttempt(row interface{ Scan(dest ...any) error }) (CallAttempt, error) {
	var a CallAttempt
	var settled, callRef, recording sql.NullString
	var settledAt sql.NullTime

	if err := row.Scan(
		&a.ID,
		&a.ContactID,
		&a.AttemptNo,
		&a.InitialStatus,
		&settled,
		&a.DurationSeconds,
		&callRef,
		&recording,
		&a.CreatedAt,
		&settledAt,
	); err != nil {
		return CallAttempt{}, err
	}

	a.SettledStatus = contacts.Status(settled.String)
	a.ProviderCallRef = callRef.String
	a.RecordingURL = recording.String
	if settledAt.Valid {
		at := settledAt.Time
		a.SettledAt = &at
	}
	return a, nil
}

func (r *PostgresRepo) Append(ctx context.Context, a CallAttempt) error {
	const q = `
INSERT INTO call_attempts (id, contact_id, attempt_no, initial_status, settled_status,
                           duration, provider_call_ref, recording_url, created_at, settled_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.ContactID, a.AttemptNo, a.InitialStatus, string(a.SettledStatus),
		a.DurationSeconds, a.ProviderCallRef, a.RecordingURL, a.CreatedAt, a.SettledAt,
	)
	return err
}

func (r *PostgresRepo) SetCallRef(ctx context.Context, attemptID, callRef string) error {
	const q = `UPDATE call_attempts SET provider_call_ref = $2 WHERE id = $1`
	return r.exec(ctx, q, attemptID, callRef)
}

func (r *PostgresRepo) SettleByCallRef(ctx context.Context, callRef string, status contacts.Status, durationSeconds int, recordingURL string, at time.Time) (CallAttempt, bool, error) {
	const q = `
UPDATE call_attempts
SET settled_status = $2,
    duration = CASE WHEN $3 > 0 THEN $3 ELSE duration END,
    recording_url = CASE WHEN $4 <> '' THEN $4 ELSE recording_url END,
    settled_at = COALESCE(settled_at, $5)
WHERE provider_call_ref = $1
RETURNING ` + attemptColumns
	a, err := scanAttempt(r.db.QueryRowContext(ctx, q, callRef, status, durationSeconds, recordingURL, at))
	if errors.Is(err, sql.ErrNoRows) {
		return CallAttempt{}, false, nil
	}
	if err != nil {
		return CallAttempt{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) SettleByID(ctx context.Context, attemptID string, status contacts.Status, at time.Time) error {
	const q = `
UPDATE call_attempts
SET settled_status = $2,
    settled_at = COALESCE(settled_at, $3)
WHERE id = $1
`
	return r.exec(ctx, q, attemptID, status, at)
}

func (r *PostgresRepo) ListByContact(ctx context.Context, contactID string) ([]CallAttempt, error) {
	const q = `SELECT ` + attemptColumns + ` FROM call_attempts WHERE contact_id = $1 ORDER BY attempt_no`
	rows, err := r.db.QueryContext(ctx, q, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
