package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/trackpoint/trackpoint/internal/middleware"
	"github.com/trackpoint/trackpoint/internal/model"
)

// activeSessionWindow is how far back a session's last_seen_at may be for it
// to count as active.
const activeSessionWindow = 30 * time.Minute

// SessionStore exposes the read side of the session dimension.
type SessionStore interface {
	GetSessions(ctx context.Context, limit int) ([]*model.Session, error)
	CountSessionsSince(ctx context.Context, since time.Time) (int64, error)
}

// SessionsHandler serves the /api/sessions endpoint.
type SessionsHandler struct {
	store  SessionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(store SessionStore, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		store:  store,
		logger: logger.With("component", "handler.sessions"),
		now:    time.Now,
	}
}

// List returns known sessions, most recently active first, plus the count of
// sessions active inside the last half hour.
// GET /api/sessions?limit=100
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	limit := intParam(r.URL.Query().Get("limit"), 100)

	sessions, err := h.store.GetSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("session listing failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Failed to retrieve sessions",
			"requestId": requestID,
		})
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}

	active, err := h.store.CountSessionsSince(r.Context(), h.now().Add(-activeSessionWindow))
	if err != nil {
		h.logger.Error("active session count failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Failed to retrieve sessions",
			"requestId": requestID,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":    sessions,
		"total":       len(sessions),
		"activeCount": active,
		"limit":       limit,
	})
}
