package contacts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo implements Repository over database/sql (pgx stdlib driver).
//
// Assumed table:
//
//	contacts (
//	    id, phone, name, status, attempts, duration, provider_call_ref,
//	    agent_notes, status_override, remark, store, created_at, updated_at
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const contactColumns = `
id, phone, name, status, attempts, duration, provider_call_ref,
agent_notes, status_override, remark, store, created_at, updated_at
`

func scanContact(row interface{ Scan(dest ...any) error }) (Contact, error) {
	var c Contact
	var duration sql.NullInt64
	var callRef, override, remark, store sql.NullString

	if err := row.Scan(
		&c.ID,
		&c.Phone,
		&c.Name,
		&c.Status,
		&c.Attempts,
		&duration,
		&callRef,
		&c.AgentNotes,
		&override,
		&remark,
		&store,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Contact{}, err
	}

	if duration.Valid {
		d := int(duration.Int64)
		c.DurationSeconds = &d
	}
	if callRef.Valid && callRef.String != "" {
		ref := callRef.String
		c.ProviderCallRef = &ref
	}
	c.StatusOverride = override.String
	c.Remark = Remark(remark.String)
	c.Store = store.String
	return c, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Contact, error) {
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	c, err := scanContact(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Contact, error) {
	const q = `SELECT ` + contactColumns + ` FROM contacts ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) BeginAttempt(ctx context.Context, id string, at time.Time) (Contact, error) {
	const q = `
UPDATE contacts
SET attempts = attempts + 1,
    status = $2,
    provider_call_ref = NULL,
    updated_at = $3
WHERE id = $1
RETURNING ` + contactColumns
	c, err := scanContact(r.db.QueryRowContext(ctx, q, id, StatusInProgress, at))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) SetProviderCallRef(ctx context.Context, id, callRef string, at time.Time) error {
	const q = `UPDATE contacts SET provider_call_ref = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, callRef, at)
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status Status, at time.Time) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	const q = `UPDATE contacts SET status = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, status, at)
}

func (r *PostgresRepo) SettleByCallRef(ctx context.Context, callRef string, status Status, durationSeconds int, at time.Time) (Contact, bool, error) {
	if !status.Valid() {
		return Contact{}, false, ErrInvalidStatus
	}
	// duration is written only when positive; a zero or failed resolution
	// must not clobber a previously resolved value.
	const q = `
UPDATE contacts
SET status = $2,
    duration = CASE WHEN $3 > 0 THEN $3 ELSE duration END,
    updated_at = $4
WHERE provider_call_ref = $1
RETURNING ` + contactColumns
	c, err := scanContact(r.db.QueryRowContext(ctx, q, callRef, status, durationSeconds, at))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepo) ResetForRetry(ctx context.Context, id string, at time.Time) (Contact, error) {
	// Attempts is intentionally preserved: the counter is monotonic.
	const q = `
UPDATE contacts
SET status = $2,
    provider_call_ref = NULL,
    updated_at = $3
WHERE id = $1
RETURNING ` + contactColumns
	c, err := scanContact(r.db.QueryRowContext(ctx, q, id, StatusNotCalled, at))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) SetOverride(ctx context.Context, id, override string, at time.Time) error {
	const q = `UPDATE contacts SET status_override = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, override, at)
}

func (r *PostgresRepo) SetRemark(ctx context.Context, id string, remark Remark, at time.Time) error {
	const q = `UPDATE contacts SET remark = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, string(remark), at)
}

func (r *PostgresRepo) SetStoreTag(ctx context.Context, id, store string, at time.Time) error {
	const q = `UPDATE contacts SET store = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, store, at)
}

func (r *PostgresRepo) SetNotes(ctx context.Context, id, notes string, at time.Time) error {
	const q = `UPDATE contacts SET agent_notes = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, q, id, notes, at)
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
