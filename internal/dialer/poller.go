package dialer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dialtrack/internal/contacts"
)

// Snapshot is the poller's view of a contact at one tick, pushed to the
// registered observer so consumers never poll the store themselves.
type Snapshot struct {
	ContactID       string
	Status          contacts.Status
	Attempts        int
	DurationSeconds int
	ObservedAt      time.Time
}

// ContactFetcher is the slice of the store the poller reads.
type ContactFetcher interface {
	Get(ctx context.Context, id string) (contacts.Contact, error)
}

type session struct {
	cancel context.CancelFunc
}

// SessionManager owns every live polling session, one at most per contact.
// Start and Stop are its only mutators; nothing else may touch the session
// map.
type SessionManager struct {
	fetch    ContactFetcher
	interval time.Duration
	log      *slog.Logger
	clock    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionManager(fetch ContactFetcher, interval time.Duration, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		fetch:    fetch,
		interval: interval,
		log:      log,
		clock:    time.Now,
		sessions: make(map[string]*session),
	}
}

// Start begins polling the contact at the fixed interval until a terminal
// status is fetched or Stop is called. A session already live for the same
// contact is cancelled before the new timer is installed, so exactly one
// timer exists per contact.
//
// There is no maximum poll count: if the provider never reports a terminal
// state the loop runs until explicitly stopped. Known limitation.
func (m *SessionManager) Start(contactID string, onUpdate func(Snapshot)) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel}

	m.mu.Lock()
	if prev, ok := m.sessions[contactID]; ok {
		prev.cancel()
	}
	m.sessions[contactID] = s
	m.mu.Unlock()

	go m.poll(ctx, s, contactID, onUpdate)
}

// Reserve atomically claims the contact's session slot before any work
// happens on its behalf, closing the gap between the duplicate-call check
// and Start. It fails while a session is live or another reservation is
// pending. Start fulfills the reservation; a caller whose initiation fails
// must Stop the contact to free it.
func (m *SessionManager) Reserve(contactID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[contactID]; ok {
		return false
	}
	m.sessions[contactID] = &session{cancel: func() {}}
	return true
}

// Stop cancels the live session for the contact, if any.
func (m *SessionManager) Stop(contactID string) {
	m.mu.Lock()
	s, ok := m.sessions[contactID]
	if ok {
		delete(m.sessions, contactID)
	}
	m.mu.Unlock()
	if ok {
		s.cancel()
	}
}

// Active reports whether a polling session is live for the contact.
func (m *SessionManager) Active(contactID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[contactID]
	return ok
}

// Shutdown cancels every live session. Used on process shutdown.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
}

func (m *SessionManager) poll(ctx context.Context, s *session, contactID string, onUpdate func(Snapshot)) {
	defer m.release(contactID, s)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchCtx, cancel := context.WithTimeout(ctx, m.interval)
			c, err := m.fetch.Get(fetchCtx, contactID)
			cancel()
			if err != nil {
				// Transient store errors do not end the session; the call
				// is still live and the next tick retries.
				m.log.Warn("poll fetch failed", "contact_id", contactID, "err", err)
				continue
			}

			snap := Snapshot{
				ContactID:  contactID,
				Status:     c.Status,
				Attempts:   c.Attempts,
				ObservedAt: m.clock().UTC(),
			}
			if c.DurationSeconds != nil {
				snap.DurationSeconds = *c.DurationSeconds
			}
			if onUpdate != nil {
				onUpdate(snap)
			}

			if c.Status.IsTerminal() {
				return
			}
		}
	}
}

// release drops the session map entry, but only if it still belongs to this
// session; a replacement started meanwhile must not be evicted.
func (m *SessionManager) release(contactID string, s *session) {
	m.mu.Lock()
	if cur, ok := m.sessions[contactID]; ok && cur == s {
		delete(m.sessions, contactID)
	}
	m.mu.Unlock()
	s.cancel()
}
