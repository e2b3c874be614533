package calllog

import (
	"context"
	"sort"
	"sync"
	"time"

	"dialtrack/internal/contacts"
)

// MemoryRepo is an in-memory Repository useful for tests and local runs.
type MemoryRepo struct {
	mu       sync.Mutex
	attempts []CallAttempt
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, a CallAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *MemoryRepo) SetCallRef(ctx context.Context, attemptID, callRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.attempts {
		if r.attempts[i].ID == attemptID {
			r.attempts[i].ProviderCallRef = callRef
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) SettleByCallRef(ctx context.Context, callRef string, status contacts.Status, durationSeconds int, recordingURL string, at time.Time) (CallAttempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.attempts {
		if r.attempts[i].ProviderCallRef == callRef && callRef != "" {
			a := &r.attempts[i]
			a.SettledStatus = status
			if durationSeconds > 0 {
				a.DurationSeconds = durationSeconds
			}
			if recordingURL != "" {
				a.RecordingURL = recordingURL
			}
			if a.SettledAt == nil {
				t := at
				a.SettledAt = &t
			}
			return *a, true, nil
		}
	}
	return CallAttempt{}, false, nil
}

func (r *MemoryRepo) SettleByID(ctx context.Context, attemptID string, status contacts.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.attempts {
		if r.attempts[i].ID == attemptID {
			a := &r.attempts[i]
			a.SettledStatus = status
			if a.SettledAt == nil {
				t := at
				a.SettledAt = &t
			}
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) ListByContact(ctx context.Context, contactID string) ([]CallAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallAttempt
	for _, a := range r.attempts {
		if a.ContactID == contactID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNo < out[j].AttemptNo })
	return out, nil
}
