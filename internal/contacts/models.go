package contacts

import (
	"strings"
	"time"
)

// Contact is one callable person and the single source of truth for their
// current call state.
//
// Invariants:
// - Attempts only increases, and only when a new call is initiated.
// - Status reflects the most recently observed provider signal; a manual
//   override shadows it at read time but is never written here by the poller.
type Contact struct {
	ID    string `json:"id" db:"id"`
	Phone string `json:"phone" db:"phone"`
	Name  string `json:"name" db:"name"`

	Status   Status `json:"status" db:"status"`
	Attempts int    `json:"attempts" db:"attempts"`

	// DurationSeconds is nil until the duration resolver produces a
	// positive value for the last completed call.
	DurationSeconds *int `json:"duration,omitempty" db:"duration"`

	// ProviderCallRef is the provider's opaque id for the last initiated call.
	ProviderCallRef *string `json:"provider_call_ref,omitempty" db:"provider_call_ref"`

	// AgentNotes is a newline-delimited free-text log. See internal/calllog.
	AgentNotes string `json:"agent_notes" db:"agent_notes"`

	// StatusOverride is the backing store's copy of a manual override.
	// Empty means "use provider status".
	StatusOverride string `json:"status_override,omitempty" db:"status_override"`

	Remark Remark `json:"remark" db:"remark"`
	Store  string `json:"store" db:"store"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Status is the closed set of call states shared by the initiator, the
// poller, the webhook handler and the override resolver. The literals are
// wire values and must not drift between components.
type Status string

const (
	StatusNotCalled   Status = "Not Called"
	StatusInitiated   Status = "Initiated"
	StatusInProgress  Status = "In Progress"
	StatusRinging     Status = "Ringing"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
	StatusHangup      Status = "Hangup"
	StatusBusy        Status = "Busy"
	StatusNoAnswer    Status = "No Answer"
	StatusSwitchedOff Status = "Switched Off"
	StatusCancelled   Status = "Cancelled"
	StatusNotConnect  Status = "Not Connect"
)

// IsTerminal reports whether no further automatic state change is expected.
// The poller stops the instant it observes a terminal status.
//
// Ringing and Not Connect are deliberately non-terminal: the provider can
// still move them before settling the call.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusHangup, StatusBusy,
		StatusNoAnswer, StatusSwitchedOff, StatusCancelled:
		return true
	case StatusNotCalled, StatusInitiated, StatusInProgress, StatusRinging, StatusNotConnect:
		return false
	default:
		return false
	}
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusNotCalled, StatusInitiated, StatusInProgress, StatusRinging,
		StatusCompleted, StatusFailed, StatusHangup, StatusBusy,
		StatusNoAnswer, StatusSwitchedOff, StatusCancelled, StatusNotConnect:
		return true
	default:
		return false
	}
}

// ParseStatus maps a provider-reported status string onto the closed enum.
// Providers vary in casing and separators ("no_answer", "No Answer", "NOANSWER").
func ParseStatus(raw string) (Status, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "-", " ")
	key = strings.Join(strings.Fields(key), " ")

	switch key {
	case "not called", "notcalled":
		return StatusNotCalled, true
	case "initiated":
		return StatusInitiated, true
	case "in progress", "inprogress":
		return StatusInProgress, true
	case "ringing":
		return StatusRinging, true
	case "completed", "complete":
		return StatusCompleted, true
	case "failed", "failure":
		return StatusFailed, true
	case "hangup", "hang up":
		return StatusHangup, true
	case "busy":
		return StatusBusy, true
	case "no answer", "noanswer":
		return StatusNoAnswer, true
	case "switched off", "switchedoff":
		return StatusSwitchedOff, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	case "not connect", "notconnect", "not connected":
		return StatusNotConnect, true
	default:
		return "", false
	}
}

// Remark is the agent's tri-state classification of a contact.
type Remark string

const (
	RemarkNone   Remark = ""
	RemarkAccept Remark = "accept"
	RemarkReject Remark = "reject"
)

func (r Remark) Valid() bool {
	switch r {
	case RemarkNone, RemarkAccept, RemarkReject:
		return true
	default:
		return false
	}
}
