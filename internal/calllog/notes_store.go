package calllog

import (
	"context"
	"time"

	"dialtrack/internal/contacts"
)

// contactNotesStore adapts the contacts repository to the recorder's
// NotesStore contract.
type contactNotesStore struct {
	repo contacts.Repository
}

// NewContactNotesStore exposes a contact's agent_notes blob to the recorder.
func NewContactNotesStore(repo contacts.Repository) NotesStore {
	return &contactNotesStore{repo: repo}
}

func (s *contactNotesStore) GetNotes(ctx context.Context, contactID string) (string, error) {
	c, err := s.repo.Get(ctx, contactID)
	if err != nil {
		return "", err
	}
	return c.AgentNotes, nil
}

func (s *contactNotesStore) SetNotes(ctx context.Context, contactID, blob string, at time.Time) error {
	return s.repo.SetNotes(ctx, contactID, blob, at)
}
