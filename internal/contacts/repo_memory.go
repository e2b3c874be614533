package contacts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests and local runs.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	contacts map[string]Contact
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{contacts: make(map[string]Contact)}
}

// Put seeds or replaces a contact. Test helper.
func (r *MemoryRepo) Put(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Status == "" {
		c.Status = StatusNotCalled
	}
	r.contacts[c.ID] = c
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) BeginAttempt(ctx context.Context, id string, at time.Time) (Contact, error) {
	return r.update(id, func(c *Contact) error {
		c.Attempts++
		c.Status = StatusInProgress
		c.ProviderCallRef = nil
		c.UpdatedAt = at
		return nil
	})
}

func (r *MemoryRepo) SetProviderCallRef(ctx context.Context, id, callRef string, at time.Time) error {
	_, err := r.update(id, func(c *Contact) error {
		ref := callRef
		c.ProviderCallRef = &ref
		c.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status Status, at time.Time) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	_, err := r.update(id, func(c *Contact) error {
		c.Status = status
		c.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryRepo) SettleByCallRef(ctx context.Context, callRef string, status Status, durationSeconds int, at time.Time) (Contact, bool, error) {
	if !status.Valid() {
		return Contact{}, false, ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.contacts {
		if c.ProviderCallRef != nil && *c.ProviderCallRef == callRef {
			c.Status = status
			if durationSeconds > 0 {
				d := durationSeconds
				c.DurationSeconds = &d
			}
			c.UpdatedAt = at
			r.contacts[id] = c
			return c, true, nil
		}
	}
	return Contact{}, false, nil
}

func (r *MemoryRepo) ResetForRetry(ctx context.Context, id string, at time.Time) (Contact, error) {
	return r.update(id, func(c *Contact) error {
		c.Status = StatusNotCalled
		c.ProviderCallRef = nil
		c.UpdatedAt = at
		return nil
	})
}

func (r *MemoryRepo) SetOverride(ctx context.Context, id, override string, at time.Time) error {
	_, err := r.update(id, func(c *Contact) error {
		c.StatusOverride = override
		c.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryRepo) SetRemark(ctx context.Context, id string, remark Remark, at time.Time) error {
	_, err := r.update(id, func(c *Contact) error {
		c.Remark = remark
		c.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryRepo) SetStoreTag(ctx context.Context, id, store string, at time.Time) error {
	_, err := r.update(id, func(c *Contact) error {
		c.Store = store
		c.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryRepo) SetNotes(ctx context.Context, id, notes string, at time.Time) error {
	_, err := r.update(id, func(c *Contact) error {
		c.AgentNotes = notes
		c.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryRepo) update(id string, fn func(*Contact) error) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	if err := fn(&c); err != nil {
		return Contact{}, err
	}
	r.contacts[id] = c
	return c, nil
}
