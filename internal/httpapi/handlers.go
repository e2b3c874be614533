package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"dialtrack/internal/calllog"
	"dialtrack/internal/contacts"
	"dialtrack/internal/dialer"
	"dialtrack/internal/override"
	"dialtrack/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Contacts  contacts.Repository
	Dialer    *dialer.Service
	Overrides *override.Resolver
	Notes     *calllog.Recorder
}

// --- Calls ---

// StartCall fires an outbound call for a contact. The response always
// carries a success flag plus a human-readable message so the caller can
// render provider rejections and transport failures differently.
func (h Handlers) StartCall(c *gin.Context) {
	id := c.Param("id")
	attempt, err := h.Dialer.InitiateCall(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    "call initiated",
			"attempt_no": attempt.AttemptNo,
		})
	case errors.Is(err, contacts.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "contact not found"})
	case errors.Is(err, dialer.ErrAlreadyInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "a call for this contact is already in progress",
		})
	case errors.Is(err, provider.ErrRejected):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, provider.ErrTransport):
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "call could not be placed, please retry"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call initiation failed"})
	}
}

func (h Handlers) ListAttempts(c *gin.Context) {
	attempts, err := h.Dialer.Attempts(c.Request.Context(), c.Param("id"))
	if h.writeRepoErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// --- Contacts ---

// ListContacts returns every contact with its effective status, i.e. with
// active manual overrides already applied.
func (h Handlers) ListContacts(c *gin.Context) {
	cs, err := h.Contacts.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "contact lookup failed"})
		return
	}
	if h.Overrides != nil {
		cs = h.Overrides.Apply(c.Request.Context(), cs)
	}
	c.JSON(http.StatusOK, gin.H{"contacts": cs})
}

func (h Handlers) GetContact(c *gin.Context) {
	ct, err := h.Contacts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "contact lookup failed"})
		return
	}
	if h.Overrides != nil {
		ct = h.Overrides.ApplyOne(c.Request.Context(), ct)
	}
	c.JSON(http.StatusOK, ct)
}

type updateContactRequest struct {
	Status   *string `json:"status"`
	Remark   *string `json:"remark"`
	Store    *string `json:"store"`
	Attempts *int    `json:"attempts"`
}

// UpdateContact applies a partial edit. Setting status to "Not Called"
// resets the contact for a fresh attempt cycle; the attempts field is
// accepted for compatibility but the counter is never lowered.
func (h Handlers) UpdateContact(c *gin.Context) {
	id := c.Param("id")
	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	now := h.Dialer.Now()

	if req.Status != nil {
		st, ok := contacts.ParseStatus(*req.Status)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		var err error
		if st == contacts.StatusNotCalled {
			_, err = h.Contacts.ResetForRetry(ctx, id, now)
		} else {
			err = h.Contacts.SetStatus(ctx, id, st, now)
		}
		if h.writeRepoErr(c, err) {
			return
		}
	}
	if req.Remark != nil {
		rm := contacts.Remark(strings.ToLower(*req.Remark))
		if !rm.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid remark"})
			return
		}
		if h.writeRepoErr(c, h.Contacts.SetRemark(ctx, id, rm, now)) {
			return
		}
	}
	if req.Store != nil {
		if h.writeRepoErr(c, h.Contacts.SetStoreTag(ctx, id, *req.Store, now)) {
			return
		}
	}

	ct, err := h.Contacts.Get(ctx, id)
	if h.writeRepoErr(c, err) {
		return
	}
	if h.Overrides != nil {
		ct = h.Overrides.ApplyOne(ctx, ct)
	}
	c.JSON(http.StatusOK, ct)
}

type overrideRequest struct {
	Status string `json:"status"`
}

// SetStatusOverride installs or clears (empty status) a manual override.
func (h Handlers) SetStatusOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	status := req.Status
	if status != "" {
		st, ok := contacts.ParseStatus(status)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = string(st)
	}
	if err := h.Overrides.SetOverride(c.Request.Context(), c.Param("id"), status); err != nil {
		if errors.Is(err, override.ErrInvalidOverride) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "override update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- Notes ---

type noteRequest struct {
	Note  string  `json:"note"`
	Notes *string `json:"notes"`
}

// AddNote appends a timestamped note line, or replaces the whole visible
// blob when the request carries a "notes" field instead.
func (h Handlers) AddNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	var err error
	if req.Notes != nil {
		err = h.Notes.ReplaceAll(ctx, id, *req.Notes)
	} else {
		err = h.Notes.AppendNote(ctx, id, req.Note)
	}
	if h.writeNotesErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) ListNotes(c *gin.Context) {
	notes, err := h.Notes.VisibleNotes(c.Request.Context(), c.Param("id"))
	if h.writeNotesErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

func (h Handlers) EditNote(c *gin.Context) {
	line, ok := noteLine(c)
	if !ok {
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if h.writeNotesErr(c, h.Notes.EditNote(c.Request.Context(), c.Param("id"), line, req.Note)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) DeleteNote(c *gin.Context) {
	line, ok := noteLine(c)
	if !ok {
		return
	}
	if h.writeNotesErr(c, h.Notes.DeleteNote(c.Request.Context(), c.Param("id"), line)) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- Contact detail workflow ---

// MarkForRetry resets the contact to Not Called and records why.
func (h Handlers) MarkForRetry(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	ct, err := h.Contacts.ResetForRetry(ctx, id, h.Dialer.Now())
	if h.writeRepoErr(c, err) {
		return
	}
	note := req.Note
	if note == "" {
		note = "Marked for retry"
	}
	if err := h.Notes.AppendNote(ctx, id, note); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "note append failed"})
		return
	}
	c.JSON(http.StatusOK, ct)
}

// Resolve marks the contact accepted and records why.
func (h Handlers) Resolve(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()
	now := h.Dialer.Now()

	if h.writeRepoErr(c, h.Contacts.SetRemark(ctx, id, contacts.RemarkAccept, now)) {
		return
	}
	note := req.Note
	if note == "" {
		note = "Resolved"
	}
	if err := h.Notes.AppendNote(ctx, id, note); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "note append failed"})
		return
	}
	ct, err := h.Contacts.Get(ctx, id)
	if h.writeRepoErr(c, err) {
		return
	}
	c.JSON(http.StatusOK, ct)
}

// --- helpers ---

// writeRepoErr writes the HTTP response for a contacts repository error and
// reports whether a response was written.
func (h Handlers) writeRepoErr(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, contacts.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "contact not found"})
	case errors.Is(err, contacts.ErrInvalidStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "contact update failed"})
	}
	return true
}

func (h Handlers) writeNotesErr(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, contacts.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "contact not found"})
	case errors.Is(err, calllog.ErrEmptyNote):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "note text required"})
	case errors.Is(err, calllog.ErrInvalidLine):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "note line out of range"})
	case errors.Is(err, calllog.ErrProtectedLine):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "line is not editable"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "note update failed"})
	}
	return true
}

func noteLine(c *gin.Context) (int, bool) {
	line, err := strconv.Atoi(c.Param("line"))
	if err != nil || line < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid line index"})
		return 0, false
	}
	return line, true
}
