package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trackpoint/trackpoint/internal/model"
)

type fakeSessionStore struct {
	sessions []*model.Session
	active   int64
	err      error

	gotLimit int
	gotSince time.Time
}

func (f *fakeSessionStore) GetSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	f.gotLimit = limit
	return f.sessions, f.err
}

func (f *fakeSessionStore) CountSessionsSince(ctx context.Context, since time.Time) (int64, error) {
	f.gotSince = since
	if f.err != nil {
		return 0, f.err
	}
	return f.active, nil
}

func listSessions(t *testing.T, h *SessionsHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	return rec
}

func TestSessionsHandler_List(t *testing.T) {
	store := &fakeSessionStore{
		sessions: []*model.Session{
			{SessionID: "sess_1736510400000_abc123def", UserID: "user_1736510400000_abc123def"},
			{SessionID: "sess_1736510500000_def456ghi", UserID: "user_1736510500000_def456ghi"},
		},
		active: 1,
	}
	h := NewSessionsHandler(store, slog.Default())

	rec := listSessions(t, h, "/api/sessions?limit=25")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if store.gotLimit != 25 {
		t.Errorf("limit = %d, want 25", store.gotLimit)
	}

	var response struct {
		Sessions    []*model.Session `json:"sessions"`
		Total       int              `json:"total"`
		ActiveCount int64            `json:"activeCount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 2 || len(response.Sessions) != 2 {
		t.Errorf("total = %d, sessions = %d, want 2", response.Total, len(response.Sessions))
	}
	if response.ActiveCount != 1 {
		t.Errorf("activeCount = %d, want 1", response.ActiveCount)
	}
}

func TestSessionsHandler_List_ActiveWindow(t *testing.T) {
	store := &fakeSessionStore{}
	h := NewSessionsHandler(store, slog.Default())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	rec := listSessions(t, h, "/api/sessions")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if want := now.Add(-activeSessionWindow); !store.gotSince.Equal(want) {
		t.Errorf("since = %v, want %v", store.gotSince, want)
	}
}

func TestSessionsHandler_List_EmptyIsArray(t *testing.T) {
	h := NewSessionsHandler(&fakeSessionStore{}, slog.Default())

	rec := listSessions(t, h, "/api/sessions")

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	sessions, ok := response["sessions"].([]any)
	if !ok {
		t.Fatalf("sessions = %T, want JSON array", response["sessions"])
	}
	if len(sessions) != 0 {
		t.Errorf("sessions length = %d, want 0", len(sessions))
	}
}

func TestSessionsHandler_List_StoreError(t *testing.T) {
	store := &fakeSessionStore{err: errors.New("connection refused")}
	h := NewSessionsHandler(store, slog.Default())

	rec := listSessions(t, h, "/api/sessions")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["error"] != "Failed to retrieve sessions" {
		t.Errorf("error = %v", response["error"])
	}
}
