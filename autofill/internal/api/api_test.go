package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/infilloai/infillo-sub001/autofill"
	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

type fakeEngine struct {
	state   autofill.State
	blocked bool
	session *suggest.DetectionSession
	rescans int
	started int
	stopped int
}

func (f *fakeEngine) State() autofill.State { return f.state }
func (f *fakeEngine) OriginBlocked() bool   { return f.blocked }

func (f *fakeEngine) Start(context.Context) error {
	f.started++
	f.state = autofill.StateActive
	return nil
}

func (f *fakeEngine) Stop() {
	f.stopped++
	f.state = autofill.StateInactive
}

func (f *fakeEngine) Rescan() bool {
	if f.state != autofill.StateActive {
		return false
	}
	f.rescans++
	return true
}

func (f *fakeEngine) Current() *suggest.DetectionSession { return f.session }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus_WithSession(t *testing.T) {
	e := &fakeEngine{
		state: autofill.StateActive,
		session: &suggest.DetectionSession{
			FormID: "form-1",
			Status: suggest.StatusSuccess,
			Fields: []suggest.FieldDescriptor{{Handle: "af-1", Name: "email"}},
			Suggestions: map[string][]suggest.SuggestionEntry{
				"email": {{Value: "ana@example.com"}},
			},
		},
	}
	h := NewHandler(e, testLogger())

	rec := doRequest(t, h, "GET", "/status")
	if rec.Code != 200 {
		t.Fatalf("status code: got %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "active" {
		t.Errorf("state: got %q, want active", resp.State)
	}
	if resp.Session == nil || resp.Session.FormID != "form-1" || resp.Session.Suggested != 1 {
		t.Errorf("session: got %+v", resp.Session)
	}
}

func TestStatus_NoSession(t *testing.T) {
	e := &fakeEngine{state: autofill.StateInactive}
	h := NewHandler(e, testLogger())

	rec := doRequest(t, h, "GET", "/status")
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "inactive" || resp.Session != nil {
		t.Errorf("got state %q session %+v", resp.State, resp.Session)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	e := &fakeEngine{state: autofill.StateInactive}
	h := NewHandler(e, testLogger())

	if rec := doRequest(t, h, "POST", "/start"); rec.Code != 200 {
		t.Fatalf("start: got %d, want 200", rec.Code)
	}
	if e.started != 1 {
		t.Errorf("started calls: got %d, want 1", e.started)
	}

	if rec := doRequest(t, h, "POST", "/rescan"); rec.Code != 202 {
		t.Fatalf("rescan: got %d, want 202", rec.Code)
	}
	if e.rescans != 1 {
		t.Errorf("rescan calls: got %d, want 1", e.rescans)
	}

	if rec := doRequest(t, h, "POST", "/stop"); rec.Code != 200 {
		t.Fatalf("stop: got %d, want 200", rec.Code)
	}

	// Inactive engine: rescan is refused.
	if rec := doRequest(t, h, "POST", "/rescan"); rec.Code != 409 {
		t.Fatalf("rescan while inactive: got %d, want 409", rec.Code)
	}
}
