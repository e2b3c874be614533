package dialer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dialtrack/internal/calllog"
	"dialtrack/internal/contacts"
	"dialtrack/internal/provider"

	"github.com/google/uuid"
)

// ErrAlreadyInProgress rejects a second live call for the same contact.
// Rejected outright rather than silently ignored so an agent can tell a
// duplicate click from a fresh call.
var ErrAlreadyInProgress = errors.New("dialer: call already in progress")

// ReportFetcher pulls a settlement report from the provider's query API.
// Optional; used only to backfill a missing duration after completion.
type ReportFetcher interface {
	FetchReport(ctx context.Context, callRef string) (provider.CallReport, error)
}

// Service orchestrates the outbound-call lifecycle: initiation, the polling
// session, and settlement from either the webhook or the backfill path.
type Service struct {
	contacts contacts.Repository
	attempts calllog.Repository
	placer   provider.CallPlacer
	sessions *SessionManager

	// slots is optional cross-process duplicate-call protection.
	slots DialSlots
	// reports is optional duration backfill.
	reports ReportFetcher

	// OnStatusChange, when set, receives every snapshot the poller
	// observes. Wired by the API layer; may be nil.
	OnStatusChange func(Snapshot)

	log   *slog.Logger
	clock func() time.Time

	mu         sync.Mutex
	slotOwners map[string]string
}

func NewService(repo contacts.Repository, attempts calllog.Repository, placer provider.CallPlacer, sessions *SessionManager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		contacts:   repo,
		attempts:   attempts,
		placer:     placer,
		sessions:   sessions,
		log:        log,
		clock:      time.Now,
		slotOwners: make(map[string]string),
	}
}

// WithDialSlots enables the redis-backed cross-process call slot.
func (s *Service) WithDialSlots(slots DialSlots) *Service {
	s.slots = slots
	return s
}

// WithReportFetcher enables duration backfill via the provider query API.
func (s *Service) WithReportFetcher(r ReportFetcher) *Service {
	s.reports = r
	return s
}

// Now returns the service clock reading. Handlers use it so repository
// timestamps line up with attempt timestamps in tests.
func (s *Service) Now() time.Time {
	return s.clock().UTC()
}

// InitiateCall starts a provider call for the contact.
//
// Gates, in order, before any state mutation: the contact must exist and no
// call session may be live for it. The session slot is reserved atomically
// before the first write, so two concurrent initiations for the same
// contact can never both pass the gate regardless of how long the provider
// round-trip takes. On accept it increments attempts, appends an
// In Progress call-log row, places the provider call, then starts the
// polling session. Provider rejection and transport failure both settle
// the fresh attempt as Failed with no automatic retry.
func (s *Service) InitiateCall(ctx context.Context, contactID string) (calllog.CallAttempt, error) {
	c, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return calllog.CallAttempt{}, err
	}

	if !s.sessions.Reserve(contactID) {
		return calllog.CallAttempt{}, ErrAlreadyInProgress
	}
	// Every failure path below must free the reservation; StartPolling
	// fulfills it on success.

	owner := uuid.NewString()
	if s.slots != nil {
		ok, err := s.slots.Acquire(ctx, contactID, owner)
		if err != nil {
			// The slot is a secondary guard; a redis outage must not block
			// dialing while the in-process gate still holds.
			s.log.Warn("dial slot acquire failed", "contact_id", contactID, "err", err)
		} else if !ok {
			s.sessions.Stop(contactID)
			return calllog.CallAttempt{}, ErrAlreadyInProgress
		} else {
			s.rememberOwner(contactID, owner)
		}
	}

	now := s.clock().UTC()
	c, err = s.contacts.BeginAttempt(ctx, contactID, now)
	if err != nil {
		s.abortInitiation(context.WithoutCancel(ctx), contactID)
		return calllog.CallAttempt{}, err
	}

	attempt := calllog.CallAttempt{
		ID:            uuid.NewString(),
		ContactID:     contactID,
		AttemptNo:     c.Attempts,
		InitialStatus: contacts.StatusInProgress,
		CreatedAt:     now,
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		s.abortInitiation(context.WithoutCancel(ctx), contactID)
		return calllog.CallAttempt{}, err
	}

	res, err := s.placer.PlaceCall(ctx, provider.PlaceCallRequest{
		ContactID: contactID,
		Phone:     c.Phone,
		Name:      c.Name,
	})
	if err != nil {
		attempt = s.settleFailedInitiation(context.WithoutCancel(ctx), attempt)
		return attempt, err
	}

	if res.CallRef != "" {
		attempt.ProviderCallRef = res.CallRef
		if err := s.contacts.SetProviderCallRef(ctx, contactID, res.CallRef, s.clock().UTC()); err != nil {
			s.log.Error("store call ref failed", "contact_id", contactID, "err", err)
		}
		if err := s.attempts.SetCallRef(ctx, attempt.ID, res.CallRef); err != nil {
			s.log.Error("store attempt call ref failed", "attempt_id", attempt.ID, "err", err)
		}
	}

	s.StartPolling(contactID)
	return attempt, nil
}

// StartPolling begins (or restarts) the status polling session for the
// contact. The session ends only when a terminal status is fetched or
// StopPolling is called.
func (s *Service) StartPolling(contactID string) {
	backfilled := false
	s.sessions.Start(contactID, func(snap Snapshot) {
		if s.OnStatusChange != nil {
			s.OnStatusChange(snap)
		}
		if !snap.Status.IsTerminal() {
			return
		}
		if snap.Status == contacts.StatusCompleted && snap.DurationSeconds == 0 && !backfilled {
			backfilled = true
			s.backfillDuration(snap.ContactID)
		}
		s.releaseSlot(context.Background(), snap.ContactID)
	})
}

// StopPolling cancels the contact's polling session without touching any
// stored state.
func (s *Service) StopPolling(contactID string) {
	s.sessions.Stop(contactID)
	s.releaseSlot(context.Background(), contactID)
}

// CallInProgress reports whether a live session exists for the contact.
func (s *Service) CallInProgress(contactID string) bool {
	return s.sessions.Active(contactID)
}

// SettleCall applies a provider-reported outcome to both the call-log row
// and the contact owning callRef. Idempotent: both writes are last-write-
// wins keyed on the ref, so a webhook replay or a webhook/poller race
// converges to the same state.
//
// The contact's status tracks every report, but the call-log row is only
// stamped by terminal ones: an in-flight report such as Ringing must not
// mark the attempt settled.
func (s *Service) SettleCall(ctx context.Context, callRef string, status contacts.Status, durationSeconds int, recordingURL string) error {
	if callRef == "" {
		return provider.ErrUnknownCallRef
	}

	now := s.clock().UTC()

	var foundAttempt bool
	if status.IsTerminal() {
		var err error
		_, foundAttempt, err = s.attempts.SettleByCallRef(ctx, callRef, status, durationSeconds, recordingURL, now)
		if err != nil {
			return err
		}
	}

	c, foundContact, err := s.contacts.SettleByCallRef(ctx, callRef, status, durationSeconds, now)
	if err != nil {
		return err
	}

	if !foundAttempt && !foundContact {
		return provider.ErrUnknownCallRef
	}

	if foundContact && status.IsTerminal() {
		s.releaseSlot(context.WithoutCancel(ctx), c.ID)
	}
	return nil
}

// Attempts lists the contact's call log.
func (s *Service) Attempts(ctx context.Context, contactID string) ([]calllog.CallAttempt, error) {
	if _, err := s.contacts.Get(ctx, contactID); err != nil {
		return nil, err
	}
	return s.attempts.ListByContact(ctx, contactID)
}

// abortInitiation frees the session reservation and the dial slot after an
// initiation that failed before reaching the provider.
func (s *Service) abortInitiation(ctx context.Context, contactID string) {
	s.sessions.Stop(contactID)
	s.releaseSlot(ctx, contactID)
}

func (s *Service) settleFailedInitiation(ctx context.Context, attempt calllog.CallAttempt) calllog.CallAttempt {
	now := s.clock().UTC()
	if err := s.contacts.SetStatus(ctx, attempt.ContactID, contacts.StatusFailed, now); err != nil {
		s.log.Error("mark contact failed", "contact_id", attempt.ContactID, "err", err)
	}
	if err := s.attempts.SettleByID(ctx, attempt.ID, contacts.StatusFailed, now); err != nil {
		s.log.Error("mark attempt failed", "attempt_id", attempt.ID, "err", err)
	}
	attempt.SettledStatus = contacts.StatusFailed
	attempt.SettledAt = &now
	s.abortInitiation(ctx, attempt.ContactID)
	return attempt
}

// backfillDuration queries the provider for the final report when a call
// completed but the real-time report carried no usable duration.
func (s *Service) backfillDuration(contactID string) {
	if s.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c, err := s.contacts.Get(ctx, contactID)
	if err != nil || c.ProviderCallRef == nil {
		return
	}
	report, err := s.reports.FetchReport(ctx, *c.ProviderCallRef)
	if err != nil {
		s.log.Warn("duration backfill fetch failed", "contact_id", contactID, "err", err)
		return
	}
	if d := provider.ResolveDuration(report); d > 0 {
		if err := s.SettleCall(ctx, *c.ProviderCallRef, contacts.StatusCompleted, d, report.RecordingURL); err != nil {
			s.log.Warn("duration backfill settle failed", "contact_id", contactID, "err", err)
		}
	}
}

func (s *Service) rememberOwner(contactID, owner string) {
	s.mu.Lock()
	s.slotOwners[contactID] = owner
	s.mu.Unlock()
}

func (s *Service) releaseSlot(ctx context.Context, contactID string) {
	if s.slots == nil {
		return
	}
	s.mu.Lock()
	owner, ok := s.slotOwners[contactID]
	if ok {
		delete(s.slotOwners, contactID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.slots.Release(ctx, contactID, owner); err != nil {
		s.log.Warn("dial slot release failed", "contact_id", contactID, "err", err)
	}
}
