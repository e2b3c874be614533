package calllog

import (
	"time"

	"dialtrack/internal/contacts"
)

// CallAttempt is one immutable record per initiated call.
//
// Created exactly once at initiation, updated exactly once when a terminal
// signal or duration backfill arrives for its provider call ref. Never
// deleted except by explicit admin action.
type CallAttempt struct {
	ID        string `json:"id" db:"id"`
	ContactID string `json:"contact_id" db:"contact_id"`

	// AttemptNo is 1-based and unique per contact.
	AttemptNo int `json:"attempt_no" db:"attempt_no"`

	// InitialStatus is the status at creation time (always In Progress in
	// the current flow, kept explicit for audit value).
	InitialStatus contacts.Status `json:"initial_status" db:"initial_status"`

	// SettledStatus is empty until a terminal signal arrives.
	SettledStatus contacts.Status `json:"settled_status,omitempty" db:"settled_status"`

	DurationSeconds int    `json:"duration" db:"duration"`
	ProviderCallRef string `json:"provider_call_ref,omitempty" db:"provider_call_ref"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}

// Settled reports whether a terminal signal has been applied.
func (a CallAttempt) Settled() bool { return a.SettledStatus != "" }
