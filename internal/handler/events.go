package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trackpoint/trackpoint/internal/ingest"
	"github.com/trackpoint/trackpoint/internal/metrics"
	"github.com/trackpoint/trackpoint/internal/middleware"
	"github.com/trackpoint/trackpoint/internal/model"
)

// clearConfirmation is the exact phrase DELETE /api/events requires.
const clearConfirmation = "DELETE_ALL_EVENTS"

// EventProcessor runs one payload through the ingestion pipeline.
type EventProcessor interface {
	Process(ctx context.Context, event *model.Event, meta ingest.RequestMeta) (model.StoredEvent, error)
}

// EventStore exposes the read and admin side of the event repository.
type EventStore interface {
	GetEvents(ctx context.Context, filter model.EventFilter, limit, offset int) ([]*model.RawEventRecord, int64, error)
	GetEventSummary(ctx context.Context, interval string, since time.Time) ([]model.SummaryBucket, error)
	ClearAll(ctx context.Context) (int64, error)
}

// EventsHandler serves the /api/events endpoints.
type EventsHandler struct {
	pipeline     EventProcessor
	store        EventStore
	metrics      metrics.Recorder
	logger       *slog.Logger
	isProduction bool
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(pipeline EventProcessor, store EventStore, rec metrics.Recorder, logger *slog.Logger, isProduction bool) *EventsHandler {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &EventsHandler{
		pipeline:     pipeline,
		store:        store,
		metrics:      rec,
		logger:       logger.With("component", "handler.events"),
		isProduction: isProduction,
	}
}

// Collect ingests one tracking event.
// POST /api/events
func (h *EventsHandler) Collect(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	event, err := decodeEvent(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "Invalid JSON payload",
			"requestId": requestID,
		})
		return
	}

	meta := ingest.RequestMeta{
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: requestID,
	}

	stored, err := h.pipeline.Process(r.Context(), event, meta)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":     "Event validation failed",
				"details":   verr.Errors,
				"requestId": requestID,
			})
			return
		}

		h.logger.Error("event ingestion failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Failed to store event",
			"requestId": requestID,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"eventId":   stored.ID,
		"requestId": requestID,
		"timestamp": stored.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// List returns stored events, filtered and paginated.
// GET /api/events
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	limit := intParam(query.Get("limit"), 100)
	offset := intParam(query.Get("offset"), 0)

	filter := model.EventFilter{
		EventType:    query.Get("event_type"),
		SessionID:    query.Get("session_id"),
		UserID:       query.Get("user_id"),
		TrackingMode: query.Get("tracking_mode"),
	}
	if start := query.Get("start_date"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			filter.StartDate = t
		}
	}
	if end := query.Get("end_date"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			filter.EndDate = t
		}
	}

	events, total, err := h.store.GetEvents(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("event listing failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Failed to retrieve events",
			"requestId": requestID,
		})
		return
	}
	if events == nil {
		events = []*model.RawEventRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"filters": map[string]string{
			"event_type":    filter.EventType,
			"session_id":    filter.SessionID,
			"user_id":       filter.UserID,
			"tracking_mode": filter.TrackingMode,
		},
	})
}

// Summary returns time-bucketed event counts.
// GET /api/events/summary?period=24h&group_by=hour
func (h *EventsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	groupBy := query.Get("group_by")
	if groupBy == "" {
		groupBy = "hour"
	}
	since := time.Now().Add(-parsePeriod(query.Get("period")))

	buckets, err := h.store.GetEventSummary(r.Context(), groupBy, since)
	if err != nil {
		h.logger.Error("event summary failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Failed to summarize events",
			"requestId": requestID,
		})
		return
	}
	if buckets == nil {
		buckets = []model.SummaryBucket{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": buckets,
		"groupBy": groupBy,
		"since":   since.UTC().Format(time.RFC3339),
	})
}

// Clear deletes all stored events. Requires an explicit confirmation phrase
// and is refused outright in production.
// DELETE /api/events
func (h *EventsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if h.isProduction {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":     "Event deletion is disabled in production",
			"requestId": requestID,
		})
		return
	}

	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Confirm != clearConfirmation {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     `Confirmation required. Send {"confirm": "` + clearConfirmation + `"}`,
			"requestId": requestID,
		})
		return
	}

	deleted, err := h.store.ClearAll(r.Context())
	if err != nil {
		h.logger.Error("event clear failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "Failed to clear events",
			"requestId": requestID,
		})
		return
	}

	h.metrics.IncEventsCleared(deleted)
	h.logger.Warn("all events cleared", "deleted_count", deleted, "request_id", requestID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "All events cleared",
		"deletedCount": deleted,
		"requestId":    requestID,
	})
}

// decodeEvent reads the request body into an open event payload.
func decodeEvent(r *http.Request) (*model.Event, error) {
	defer r.Body.Close()

	var event model.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// clientIP extracts the requester's IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// parsePeriod maps a period query value to a lookback duration.
func parsePeriod(period string) time.Duration {
	switch period {
	case "1h":
		return time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	case "", "24h":
		return 24 * time.Hour
	}
	if d, err := time.ParseDuration(period); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}
