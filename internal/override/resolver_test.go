package override

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dialtrack/internal/contacts"
)

type memSyncer struct {
	mu     sync.Mutex
	pushes []string
	err    error
	signal chan struct{}
}

func newMemSyncer() *memSyncer {
	return &memSyncer{signal: make(chan struct{}, 16)}
}

func (s *memSyncer) SetOverride(ctx context.Context, contactID, override string, at time.Time) error {
	s.mu.Lock()
	s.pushes = append(s.pushes, contactID+"="+override)
	s.mu.Unlock()
	s.signal <- struct{}{}
	return s.err
}

func (s *memSyncer) waitPush(t *testing.T) {
	t.Helper()
	select {
	case <-s.signal:
	case <-time.After(time.Second):
		t.Fatalf("expected a backend push")
	}
}

func (s *memSyncer) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushes)
}

func TestOverridePrecedence(t *testing.T) {
	r := NewResolver(nil, nil, nil)

	c := contacts.Contact{ID: "c1", Status: contacts.StatusCompleted}
	if got := r.EffectiveStatus(c); got != contacts.StatusCompleted {
		t.Fatalf("expected server status without override, got %q", got)
	}

	if err := r.SetOverride(context.Background(), "c1", "Busy"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// The override shadows any subsequent server-reported status.
	for _, server := range []contacts.Status{contacts.StatusCompleted, contacts.StatusFailed, contacts.StatusInProgress} {
		c.Status = server
		if got := r.EffectiveStatus(c); got != contacts.StatusBusy {
			t.Fatalf("expected Busy over %q, got %q", server, got)
		}
	}

	if err := r.SetOverride(context.Background(), "c1", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	c.Status = contacts.StatusFailed
	if got := r.EffectiveStatus(c); got != contacts.StatusFailed {
		t.Fatalf("expected server status after clear, got %q", got)
	}
}

func TestSetOverride_RejectsUnknownStatus(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	if err := r.SetOverride(context.Background(), "c1", "Voicemail"); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride, got %v", err)
	}
	if err := r.SetOverride(context.Background(), "", "Busy"); !errors.Is(err, ErrInvalidOverride) {
		t.Fatalf("expected ErrInvalidOverride for empty contact, got %v", err)
	}
}

func TestApplyOne_SyncsDivergentServerStatus(t *testing.T) {
	syncer := newMemSyncer()
	r := NewResolver(nil, syncer, nil)

	if err := r.SetOverride(context.Background(), "c1", "Busy"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	syncer.waitPush(t) // SetOverride itself pushes once

	got := r.ApplyOne(context.Background(), contacts.Contact{ID: "c1", Status: contacts.StatusCompleted})
	if got.Status != contacts.StatusBusy {
		t.Fatalf("expected effective Busy, got %q", got.Status)
	}
	syncer.waitPush(t)

	// Already-converged contacts trigger no further pushes.
	before := syncer.pushCount()
	_ = r.ApplyOne(context.Background(), contacts.Contact{
		ID:             "c1",
		Status:         contacts.StatusBusy,
		StatusOverride: "Busy",
	})
	time.Sleep(20 * time.Millisecond)
	if syncer.pushCount() != before {
		t.Fatalf("expected no push for converged contact")
	}
}

func TestApplyOne_SyncFailureIsSwallowed(t *testing.T) {
	syncer := newMemSyncer()
	syncer.err = errors.New("backend down")
	r := NewResolver(nil, syncer, nil)

	if err := r.SetOverride(context.Background(), "c1", "Busy"); err != nil {
		t.Fatalf("expected sync failure swallowed, got %v", err)
	}
	syncer.waitPush(t)

	// Local copy stays authoritative.
	if got := r.EffectiveStatus(contacts.Contact{ID: "c1", Status: contacts.StatusCompleted}); got != contacts.StatusBusy {
		t.Fatalf("expected Busy, got %q", got)
	}
}

func TestClearOverride_DoesNotPushToBackend(t *testing.T) {
	syncer := newMemSyncer()
	r := NewResolver(nil, syncer, nil)

	if err := r.SetOverride(context.Background(), "c1", "Busy"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	syncer.waitPush(t)

	before := syncer.pushCount()
	if err := r.SetOverride(context.Background(), "c1", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if syncer.pushCount() != before {
		t.Fatalf("clear pushed to backend")
	}
}

func TestConcurrentEditsSerialize(t *testing.T) {
	r := NewResolver(nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.SetOverride(context.Background(), "c1", "Busy")
		}()
		go func() {
			defer wg.Done()
			_ = r.ApplyOne(context.Background(), contacts.Contact{ID: "c1", Status: contacts.StatusCompleted})
		}()
	}
	wg.Wait()

	if v, ok := r.Override("c1"); !ok || v != "Busy" {
		t.Fatalf("expected Busy override to survive concurrent traffic, got %q/%v", v, ok)
	}
}
