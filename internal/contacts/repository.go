package contacts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("contacts: not found")
	ErrInvalidStatus = errors.New("contacts: invalid status")
)

// Repository is the persistence contract for contacts.
//
// Both the webhook path and the poller path write through SettleByCallRef;
// the store treats repeated settles for the same provider_call_ref as
// idempotent last-write-wins, since both writers derive from the same
// upstream truth.
type Repository interface {
	Get(ctx context.Context, id string) (Contact, error)
	List(ctx context.Context) ([]Contact, error)

	// BeginAttempt increments the attempts counter, moves status to
	// In Progress and clears the previous provider call ref. It is the
	// only operation allowed to increase Attempts.
	BeginAttempt(ctx context.Context, id string, at time.Time) (Contact, error)

	// SetProviderCallRef records the provider's opaque id once the
	// provider has accepted the call.
	SetProviderCallRef(ctx context.Context, id, callRef string, at time.Time) error

	SetStatus(ctx context.Context, id string, status Status, at time.Time) error

	// SettleByCallRef applies a terminal signal to whichever contact owns
	// callRef. durationSeconds <= 0 leaves the stored duration untouched
	// (never overwrite a good value with zero). Returns false when no
	// contact matches the ref.
	SettleByCallRef(ctx context.Context, callRef string, status Status, durationSeconds int, at time.Time) (Contact, bool, error)

	// ResetForRetry moves a contact back to Not Called and clears the call
	// ref so a fresh attempt cycle can start. Attempts is preserved.
	ResetForRetry(ctx context.Context, id string, at time.Time) (Contact, error)

	// SetOverride stores the backing-store copy of a manual status
	// override. Empty clears it.
	SetOverride(ctx context.Context, id, override string, at time.Time) error

	SetRemark(ctx context.Context, id string, remark Remark, at time.Time) error
	SetStoreTag(ctx context.Context, id, store string, at time.Time) error

	// SetNotes replaces the whole agent-notes blob. Line-level editing
	// rules live in internal/calllog, not here.
	SetNotes(ctx context.Context, id, notes string, at time.Time) error
}
