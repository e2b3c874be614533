package override

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dialtrack/internal/contacts"
)

// ErrInvalidOverride rejects an override that is not a member of the
// closed status set.
var ErrInvalidOverride = errors.New("override: invalid status")

// BackendSyncer is the best-effort write-back to the backing store so
// other viewers of the contact see the same effective status. Failures are
// logged and swallowed; the local override stays authoritative regardless.
//
// contacts.Repository satisfies this.
type BackendSyncer interface {
	SetOverride(ctx context.Context, contactID, override string, at time.Time) error
}

// Resolver layers manually asserted statuses over provider-reported ones.
//
// Reconciliation is one-directional: reads always prefer the local
// override; writes to the backend are fire-and-forget outbound events and
// are never read back to re-derive local state. All mutation of the local
// map goes through a single locked update path so a merge-on-fetch and a
// user edit firing together cannot lose an update.
type Resolver struct {
	store   Store
	backend BackendSyncer
	log     *slog.Logger
	clock   func() time.Time

	mu    sync.Mutex
	local map[string]string
}

func NewResolver(store Store, backend BackendSyncer, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:   store,
		backend: backend,
		log:     log,
		clock:   time.Now,
		local:   make(map[string]string),
	}
}

// Hydrate loads the durable override map into memory. Call once at
// startup so overrides survive a process restart.
func (r *Resolver) Hydrate(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	m, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	r.replace(m)
	return nil
}

// StartWatch keeps the local map converged with saves made by other
// sessions. Blocks until ctx is cancelled; run it on its own goroutine.
func (r *Resolver) StartWatch(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Watch(ctx, r.replace)
}

// SetOverride installs (or, with empty status, clears) a manual override.
//
// Clearing is local-plus-durable only: it stops shadowing the server
// status and deliberately pushes nothing to the backend.
func (r *Resolver) SetOverride(ctx context.Context, contactID, status string) error {
	if contactID == "" {
		return ErrInvalidOverride
	}
	if status != "" && !contacts.Status(status).Valid() {
		return ErrInvalidOverride
	}

	snapshot := r.update(func(m map[string]string) {
		if status == "" {
			delete(m, contactID)
		} else {
			m[contactID] = status
		}
	})

	if r.store != nil {
		// The durable copy is best-effort: if redis is down, the local map
		// still serves this session and the save is retried on next edit.
		if err := r.store.Save(ctx, snapshot); err != nil {
			r.log.Warn("override persist failed", "contact_id", contactID, "err", err)
		}
	}

	if status != "" {
		r.syncBackend(contactID, status)
	}
	return nil
}

// Override returns the active override for a contact, if any.
func (r *Resolver) Override(contactID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.local[contactID]
	return v, ok && v != ""
}

// EffectiveStatus is the status a viewer should see: the override when one
// is active, otherwise the contact's own provider-derived status.
func (r *Resolver) EffectiveStatus(c contacts.Contact) contacts.Status {
	if v, ok := r.Override(c.ID); ok {
		return contacts.Status(v)
	}
	return c.Status
}

// Apply merges overrides into freshly fetched contacts. Whenever the
// stored server status disagrees with an active override, a best-effort
// sync is fired so other viewers converge; the returned slice already
// carries the effective statuses.
func (r *Resolver) Apply(ctx context.Context, cs []contacts.Contact) []contacts.Contact {
	out := make([]contacts.Contact, len(cs))
	for i, c := range cs {
		out[i] = r.ApplyOne(ctx, c)
	}
	return out
}

// ApplyOne is Apply for a single contact.
func (r *Resolver) ApplyOne(ctx context.Context, c contacts.Contact) contacts.Contact {
	v, ok := r.Override(c.ID)
	if !ok {
		return c
	}
	if string(c.Status) != v || c.StatusOverride != v {
		r.syncBackend(c.ID, v)
	}
	c.Status = contacts.Status(v)
	c.StatusOverride = v
	return c
}

// syncBackend pushes the override to the backing store without blocking
// the caller. Failures are logged and dropped; reads never depend on the
// backend copy.
func (r *Resolver) syncBackend(contactID, status string) {
	if r.backend == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.backend.SetOverride(ctx, contactID, status, r.clock().UTC()); err != nil {
			r.log.Warn("override backend sync failed", "contact_id", contactID, "err", err)
		}
	}()
}

// update runs fn against the local map under the lock and returns a copy
// safe to hand to the store.
func (r *Resolver) update(fn func(map[string]string)) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.local)
	out := make(map[string]string, len(r.local))
	for k, v := range r.local {
		out[k] = v
	}
	return out
}

func (r *Resolver) replace(m map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		m = map[string]string{}
	}
	r.local = m
}
