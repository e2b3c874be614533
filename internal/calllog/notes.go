package calllog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyNote     = errors.New("calllog: note text is empty")
	ErrInvalidLine   = errors.New("calllog: note line index out of range")
	ErrProtectedLine = errors.New("calllog: line is not editable")
)

// noteTimeLayout is the bracketed timestamp prefix format for agent lines.
const noteTimeLayout = "2006-01-02 15:04:05"

// provenancePrefix marks the line the bulk import job writes into a fresh
// contact's notes. It is hidden from rendering and protected from edit and
// delete, but the recorder never strips it from the stored blob.
const provenancePrefix = "## imported:"

// NotesStore is the slice of contact persistence the recorder needs.
type NotesStore interface {
	GetNotes(ctx context.Context, contactID string) (string, error)
	SetNotes(ctx context.Context, contactID, blob string, at time.Time) error
}

// Recorder manages the newline-delimited agent-notes blob per contact.
//
// Lines are addressed by their parsed index within the blob. Edits and
// deletes mutate only the targeted line; untouched lines are carried over
// verbatim, timestamp prefixes included.
type Recorder struct {
	store NotesStore
	clock func() time.Time
}

func NewRecorder(store NotesStore) *Recorder {
	return &Recorder{store: store, clock: time.Now}
}

// Note is one visible agent-entered line.
type Note struct {
	// LineIndex is the position within the raw blob, usable as an
	// EditNote/DeleteNote target.
	LineIndex int    `json:"line_index"`
	Text      string `json:"text"`
}

// AppendNote adds a timestamped line to the end of the blob.
func (r *Recorder) AppendNote(ctx context.Context, contactID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyNote
	}

	blob, err := r.store.GetNotes(ctx, contactID)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("[%s] %s", r.clock().UTC().Format(noteTimeLayout), text)
	if strings.TrimSpace(blob) == "" {
		blob = line
	} else {
		blob = strings.TrimRight(blob, " \t\n") + "\n" + line
	}
	return r.store.SetNotes(ctx, contactID, blob, r.clock().UTC())
}

// EditNote rewrites the text of one line, preserving its timestamp prefix
// when present. All other lines are left byte-for-byte intact.
func (r *Recorder) EditNote(ctx context.Context, contactID string, lineIndex int, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyNote
	}

	lines, err := r.loadLines(ctx, contactID, lineIndex)
	if err != nil {
		return err
	}

	if prefix, _, ok := splitTimestampPrefix(lines[lineIndex]); ok {
		lines[lineIndex] = prefix + text
	} else {
		lines[lineIndex] = text
	}
	return r.storeLines(ctx, contactID, lines)
}

// DeleteNote removes one line. Remaining lines keep their relative order;
// indices of later lines shift down by one, matching a fresh re-parse.
func (r *Recorder) DeleteNote(ctx context.Context, contactID string, lineIndex int) error {
	lines, err := r.loadLines(ctx, contactID, lineIndex)
	if err != nil {
		return err
	}

	lines = append(lines[:lineIndex], lines[lineIndex+1:]...)
	return r.storeLines(ctx, contactID, lines)
}

// ReplaceAll swaps the entire blob. Used by the whole-blob REST variant;
// line rules do not apply here beyond rejecting an all-whitespace result
// when the previous blob was non-empty.
func (r *Recorder) ReplaceAll(ctx context.Context, contactID, blob string) error {
	trimmed := strings.TrimRight(blob, " \t\n")
	if strings.TrimSpace(trimmed) == "" {
		prev, err := r.store.GetNotes(ctx, contactID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(prev) != "" {
			return ErrEmptyNote
		}
	}
	return r.store.SetNotes(ctx, contactID, trimmed, r.clock().UTC())
}

// VisibleNotes parses the blob and returns agent-facing lines. The
// provenance marker and blank lines are filtered at read time only; their
// indices remain reserved so edit targets stay stable.
func (r *Recorder) VisibleNotes(ctx context.Context, contactID string) ([]Note, error) {
	blob, err := r.store.GetNotes(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return ParseVisibleNotes(blob), nil
}

// ParseVisibleNotes is the pure read-time filter over a notes blob.
func ParseVisibleNotes(blob string) []Note {
	if strings.TrimSpace(blob) == "" {
		return nil
	}
	var out []Note
	for i, line := range strings.Split(blob, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isProvenanceLine(line) {
			continue
		}
		out = append(out, Note{LineIndex: i, Text: line})
	}
	return out
}

func (r *Recorder) loadLines(ctx context.Context, contactID string, lineIndex int) ([]string, error) {
	blob, err := r.store.GetNotes(ctx, contactID)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(blob, "\n")
	if lineIndex < 0 || lineIndex >= len(lines) {
		return nil, ErrInvalidLine
	}
	if isProvenanceLine(lines[lineIndex]) {
		return nil, ErrProtectedLine
	}
	return lines, nil
}

func (r *Recorder) storeLines(ctx context.Context, contactID string, lines []string) error {
	blob := strings.TrimRight(strings.Join(lines, "\n"), " \t\n")
	return r.store.SetNotes(ctx, contactID, blob, r.clock().UTC())
}

func isProvenanceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), provenancePrefix)
}

// splitTimestampPrefix splits "[2024-01-02 10:00:00] text" into its prefix
// (including the trailing space) and the text.
func splitTimestampPrefix(line string) (prefix, text string, ok bool) {
	if !strings.HasPrefix(line, "[") {
		return "", line, false
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return "", line, false
	}
	stamp := line[1:end]
	if _, err := time.Parse(noteTimeLayout, stamp); err != nil {
		return "", line, false
	}
	return line[:end+2], line[end+2:], true
}
