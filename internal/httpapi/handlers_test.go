package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dialtrack/internal/calllog"
	"dialtrack/internal/contacts"
	"dialtrack/internal/dialer"
	"dialtrack/internal/override"
	"dialtrack/internal/provider"
	"dialtrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

type fakePlacer struct {
	result provider.PlaceCallResult
	err    error
	calls  int
}

func (f *fakePlacer) PlaceCall(ctx context.Context, req provider.PlaceCallRequest) (provider.PlaceCallResult, error) {
	f.calls++
	return f.result, f.err
}

type fixture struct {
	repo     *contacts.MemoryRepo
	handlers Handlers
	router   *gin.Engine
}

func newFixture(t *testing.T, placer provider.CallPlacer) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("test")
	repo := contacts.NewMemoryRepo()
	attempts := calllog.NewMemoryRepo()
	sessions := dialer.NewSessionManager(repo, time.Hour, log)
	t.Cleanup(sessions.Shutdown)

	svc := dialer.NewService(repo, attempts, placer, sessions, log)
	resolver := override.NewResolver(nil, repo, log)
	notes := calllog.NewRecorder(calllog.NewContactNotesStore(repo))

	h := Handlers{Contacts: repo, Dialer: svc, Overrides: resolver, Notes: notes}

	r := gin.New()
	r.POST("/v1/contacts/:id/call", h.StartCall)
	r.GET("/v1/contacts", h.ListContacts)
	r.GET("/v1/contacts/:id", h.GetContact)
	r.PUT("/v1/contacts/:id", h.UpdateContact)
	r.PUT("/v1/contacts/:id/status-override", h.SetStatusOverride)
	r.GET("/v1/contact-detail/:id/attempts", h.ListAttempts)
	r.GET("/v1/contact-detail/:id/notes", h.ListNotes)
	r.POST("/v1/contact-detail/:id/note", h.AddNote)
	r.PUT("/v1/contact-detail/:id/note/:line", h.EditNote)
	r.DELETE("/v1/contact-detail/:id/note/:line", h.DeleteNote)
	r.POST("/v1/contact-detail/:id/retry", h.MarkForRetry)
	r.POST("/v1/contact-detail/:id/resolve", h.Resolve)

	return &fixture{repo: repo, handlers: h, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func seed(f *fixture, id string, status contacts.Status) {
	f.repo.Put(contacts.Contact{ID: id, Phone: "+15550001111", Name: "Test", Status: status})
}

func TestStartCallSuccess(t *testing.T) {
	placer := &fakePlacer{result: provider.PlaceCallResult{Success: true, CallRef: "ref-1"}}
	f := newFixture(t, placer)
	seed(f, "c1", contacts.StatusNotCalled)

	w := f.do(t, http.MethodPost, "/v1/contacts/c1/call", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success   bool `json:"success"`
		AttemptNo int  `json:"attempt_no"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.AttemptNo != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if placer.calls != 1 {
		t.Fatalf("placer calls = %d", placer.calls)
	}
}

func TestStartCallUnknownContact(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	w := f.do(t, http.MethodPost, "/v1/contacts/nope/call", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStartCallDuplicateConflict(t *testing.T) {
	placer := &fakePlacer{result: provider.PlaceCallResult{Success: true, CallRef: "ref-1"}}
	f := newFixture(t, placer)
	seed(f, "c1", contacts.StatusNotCalled)

	if w := f.do(t, http.MethodPost, "/v1/contacts/c1/call", nil); w.Code != http.StatusOK {
		t.Fatalf("first call status = %d", w.Code)
	}
	w := f.do(t, http.MethodPost, "/v1/contacts/c1/call", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second call status = %d, want 409", w.Code)
	}
}

func TestStartCallProviderRejection(t *testing.T) {
	placer := &fakePlacer{err: provider.ErrRejected}
	f := newFixture(t, placer)
	seed(f, "c1", contacts.StatusNotCalled)

	w := f.do(t, http.MethodPost, "/v1/contacts/c1/call", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success {
		t.Fatal("rejected call reported success")
	}
	// The attempt still counts and the contact settles Failed.
	ct, err := f.repo.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ct.Status != contacts.StatusFailed || ct.Attempts != 1 {
		t.Fatalf("contact after rejection = %s attempts=%d", ct.Status, ct.Attempts)
	}
}

func TestGetContactAppliesOverride(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusFailed)

	w := f.do(t, http.MethodPut, "/v1/contacts/c1/status-override", gin.H{"status": "Completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("override status = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/contacts/c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var ct contacts.Contact
	if err := json.Unmarshal(w.Body.Bytes(), &ct); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ct.Status != contacts.StatusCompleted {
		t.Fatalf("effective status = %s, want Completed", ct.Status)
	}
}

func TestSetStatusOverrideRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusFailed)

	w := f.do(t, http.MethodPut, "/v1/contacts/c1/status-override", gin.H{"status": "Teleported"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateContactResetNeverLowersAttempts(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	f.repo.Put(contacts.Contact{ID: "c1", Phone: "+15550001111", Status: contacts.StatusFailed, Attempts: 3})

	w := f.do(t, http.MethodPut, "/v1/contacts/c1", gin.H{"status": "Not Called", "attempts": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	ct, err := f.repo.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ct.Status != contacts.StatusNotCalled {
		t.Fatalf("status = %s, want Not Called", ct.Status)
	}
	if ct.Attempts != 3 {
		t.Fatalf("attempts = %d, reset must not lower the counter", ct.Attempts)
	}
}

func TestUpdateContactInvalidStatus(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusNotCalled)

	w := f.do(t, http.MethodPut, "/v1/contacts/c1", gin.H{"status": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateContactRemarkAndStore(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusCompleted)

	w := f.do(t, http.MethodPut, "/v1/contacts/c1", gin.H{"remark": "accept", "store": "downtown"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	ct, _ := f.repo.Get(context.Background(), "c1")
	if ct.Remark != contacts.RemarkAccept || ct.Store != "downtown" {
		t.Fatalf("remark=%q store=%q", ct.Remark, ct.Store)
	}
}

func TestNoteLifecycle(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusCompleted)

	if w := f.do(t, http.MethodPost, "/v1/contact-detail/c1/note", gin.H{"note": "first"}); w.Code != http.StatusOK {
		t.Fatalf("add status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/v1/contact-detail/c1/note", gin.H{"note": "second"}); w.Code != http.StatusOK {
		t.Fatalf("add status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPut, "/v1/contact-detail/c1/note/1", gin.H{"note": "second, amended"}); w.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodDelete, "/v1/contact-detail/c1/note/0", nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/v1/contact-detail/c1/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp struct {
		Notes []calllog.Note `json:"notes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Notes) != 1 || !strings.Contains(resp.Notes[0].Text, "amended") {
		t.Fatalf("notes = %+v", resp.Notes)
	}
}

func TestAddNoteRejectsEmpty(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusCompleted)

	w := f.do(t, http.MethodPost, "/v1/contact-detail/c1/note", gin.H{"note": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestEditNoteOutOfRange(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusCompleted)

	w := f.do(t, http.MethodPut, "/v1/contact-detail/c1/note/5", gin.H{"note": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestMarkForRetryResetsAndRecordsNote(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	f.repo.Put(contacts.Contact{ID: "c1", Phone: "+15550001111", Status: contacts.StatusNoAnswer, Attempts: 2})

	w := f.do(t, http.MethodPost, "/v1/contact-detail/c1/retry", gin.H{"note": "line busy all day"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	ct, _ := f.repo.Get(context.Background(), "c1")
	if ct.Status != contacts.StatusNotCalled || ct.Attempts != 2 {
		t.Fatalf("status=%s attempts=%d", ct.Status, ct.Attempts)
	}
	if !strings.Contains(ct.AgentNotes, "line busy all day") {
		t.Fatalf("notes = %q", ct.AgentNotes)
	}
}

func TestResolveSetsRemarkAccept(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "c1", contacts.StatusCompleted)

	w := f.do(t, http.MethodPost, "/v1/contact-detail/c1/resolve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	ct, _ := f.repo.Get(context.Background(), "c1")
	if ct.Remark != contacts.RemarkAccept {
		t.Fatalf("remark = %q, want accept", ct.Remark)
	}
}

func TestListAttemptsUnknownContact(t *testing.T) {
	f := newFixture(t, &fakePlacer{})

	w := f.do(t, http.MethodGet, "/v1/contact-detail/nope/attempts", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListContactsAppliesOverrides(t *testing.T) {
	f := newFixture(t, &fakePlacer{})
	seed(f, "a", contacts.StatusFailed)
	seed(f, "b", contacts.StatusBusy)
	if err := f.handlers.Overrides.SetOverride(context.Background(), "a", "Completed"); err != nil {
		t.Fatalf("set override: %v", err)
	}

	w := f.do(t, http.MethodGet, "/v1/contacts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Contacts []contacts.Contact `json:"contacts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	byID := map[string]contacts.Status{}
	for _, c := range resp.Contacts {
		byID[c.ID] = c.Status
	}
	if byID["a"] != contacts.StatusCompleted || byID["b"] != contacts.StatusBusy {
		t.Fatalf("effective statuses = %v", byID)
	}
}
