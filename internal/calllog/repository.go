package calllog

import (
	"context"
	"errors"
	"time"

	"dialtrack/internal/contacts"
)

var ErrNotFound = errors.New("calllog: not found")

// Repository persists call attempts.
//
// Append-only plus a single settle per provider call ref; repeated settles
// with the same signal must converge to the same row state.
type Repository interface {
	Append(ctx context.Context, a CallAttempt) error

	// SetCallRef backfills the provider's opaque id once the provider has
	// accepted the call.
	SetCallRef(ctx context.Context, attemptID, callRef string) error

	// SettleByCallRef applies the terminal outcome to the attempt owning
	// callRef. durationSeconds <= 0 leaves the stored duration untouched.
	// Returns false when no attempt matches.
	SettleByCallRef(ctx context.Context, callRef string, status contacts.Status, durationSeconds int, recordingURL string, at time.Time) (CallAttempt, bool, error)

	// SettleByID settles an attempt that never obtained a call ref
	// (provider rejection or transport failure at initiation).
	SettleByID(ctx context.Context, attemptID string, status contacts.Status, at time.Time) error

	ListByContact(ctx context.Context, contactID string) ([]CallAttempt, error)
}
