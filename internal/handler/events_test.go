package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trackpoint/trackpoint/internal/ingest"
	"github.com/trackpoint/trackpoint/internal/metrics"
	"github.com/trackpoint/trackpoint/internal/model"
)

type fakePipeline struct {
	stored model.StoredEvent
	err    error
	meta   ingest.RequestMeta
	event  *model.Event
}

func (f *fakePipeline) Process(ctx context.Context, event *model.Event, meta ingest.RequestMeta) (model.StoredEvent, error) {
	f.event = event
	f.meta = meta
	if f.err != nil {
		return model.StoredEvent{}, f.err
	}
	return f.stored, nil
}

type fakeEventStore struct {
	events  []*model.RawEventRecord
	total   int64
	buckets []model.SummaryBucket
	deleted int64
	err     error

	gotFilter   model.EventFilter
	gotLimit    int
	gotOffset   int
	gotInterval string
}

func (f *fakeEventStore) GetEvents(ctx context.Context, filter model.EventFilter, limit, offset int) ([]*model.RawEventRecord, int64, error) {
	f.gotFilter = filter
	f.gotLimit = limit
	f.gotOffset = offset
	return f.events, f.total, f.err
}

func (f *fakeEventStore) GetEventSummary(ctx context.Context, interval string, since time.Time) ([]model.SummaryBucket, error) {
	f.gotInterval = interval
	return f.buckets, f.err
}

func (f *fakeEventStore) ClearAll(ctx context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func newEventsHandler(pipeline EventProcessor, store EventStore, isProduction bool) *EventsHandler {
	return NewEventsHandler(pipeline, store, metrics.NewNoop(), slog.Default(), isProduction)
}

func postEvent(t *testing.T, h *EventsHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec := httptest.NewRecorder()
	h.Collect(rec, req)
	return rec
}

func TestEventsHandler_Collect_Created(t *testing.T) {
	pipeline := &fakePipeline{stored: model.StoredEvent{ID: "01HV0TEST", CreatedAt: time.Now()}}
	h := newEventsHandler(pipeline, &fakeEventStore{}, false)

	rec := postEvent(t, h, []byte(`{"event_type":"ad_view","session_id":"s1"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["success"] != true {
		t.Error("expected success true")
	}
	if response["eventId"] != "01HV0TEST" {
		t.Errorf("eventId = %v", response["eventId"])
	}

	if pipeline.meta.ClientIP != "203.0.113.7" {
		t.Errorf("pipeline received client ip %q", pipeline.meta.ClientIP)
	}
	if pipeline.event.Type() != "ad_view" {
		t.Errorf("pipeline received event type %q", pipeline.event.Type())
	}
}

func TestEventsHandler_Collect_ValidationError(t *testing.T) {
	pipeline := &fakePipeline{err: &ingest.ValidationError{Errors: []string{"Missing required field: session_id"}}}
	h := newEventsHandler(pipeline, &fakeEventStore{}, false)

	rec := postEvent(t, h, []byte(`{"event_type":"ad_view"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var response struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Details) != 1 {
		t.Errorf("details = %v", response.Details)
	}
}

func TestEventsHandler_Collect_MalformedJSON(t *testing.T) {
	h := newEventsHandler(&fakePipeline{}, &fakeEventStore{}, false)

	rec := postEvent(t, h, []byte(`{not json`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestEventsHandler_Collect_StorageError(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("connection refused")}
	h := newEventsHandler(pipeline, &fakeEventStore{}, false)

	rec := postEvent(t, h, []byte(`{"event_type":"ad_view"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestEventsHandler_List(t *testing.T) {
	store := &fakeEventStore{
		events: []*model.RawEventRecord{{ID: "01HV0A", EventType: "ad_view"}},
		total:  42,
	}
	h := newEventsHandler(&fakePipeline{}, store, false)

	req := httptest.NewRequest(http.MethodGet,
		"/api/events?limit=10&offset=20&event_type=ad_click&tracking_mode=cookie", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if store.gotLimit != 10 || store.gotOffset != 20 {
		t.Errorf("limit/offset = %d/%d", store.gotLimit, store.gotOffset)
	}
	if store.gotFilter.EventType != "ad_click" || store.gotFilter.TrackingMode != "cookie" {
		t.Errorf("filter = %+v", store.gotFilter)
	}

	var response struct {
		Events []json.RawMessage `json:"events"`
		Total  int64             `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 42 || len(response.Events) != 1 {
		t.Errorf("total=%d events=%d", response.Total, len(response.Events))
	}
}

func TestEventsHandler_List_EmptyIsArray(t *testing.T) {
	h := newEventsHandler(&fakePipeline{}, &fakeEventStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if !bytes.Contains(rec.Body.Bytes(), []byte(`"events":[]`)) {
		t.Errorf("empty listing should render [], got %s", rec.Body.String())
	}
}

func TestEventsHandler_Summary(t *testing.T) {
	store := &fakeEventStore{buckets: []model.SummaryBucket{{EventType: "ad_view", EventCount: 7}}}
	h := newEventsHandler(&fakePipeline{}, store, false)

	req := httptest.NewRequest(http.MethodGet, "/api/events/summary?period=7d&group_by=day", nil)
	rec := httptest.NewRecorder()
	h.Summary(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if store.gotInterval != "day" {
		t.Errorf("interval = %q", store.gotInterval)
	}
}

func TestEventsHandler_Clear_RequiresConfirmation(t *testing.T) {
	h := newEventsHandler(&fakePipeline{}, &fakeEventStore{deleted: 5}, false)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"no body", "", http.StatusBadRequest},
		{"wrong phrase", `{"confirm":"yes please"}`, http.StatusBadRequest},
		{"exact phrase", `{"confirm":"DELETE_ALL_EVENTS"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/events", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			h.Clear(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestEventsHandler_Clear_ForbiddenInProduction(t *testing.T) {
	store := &fakeEventStore{deleted: 5}
	h := newEventsHandler(&fakePipeline{}, store, true)

	req := httptest.NewRequest(http.MethodDelete, "/api/events",
		bytes.NewBufferString(`{"confirm":"DELETE_ALL_EVENTS"}`))
	rec := httptest.NewRecorder()
	h.Clear(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestEventsHandler_Clear_ReportsDeletedCount(t *testing.T) {
	h := newEventsHandler(&fakePipeline{}, &fakeEventStore{deleted: 17}, false)

	req := httptest.NewRequest(http.MethodDelete, "/api/events",
		bytes.NewBufferString(`{"confirm":"DELETE_ALL_EVENTS"}`))
	rec := httptest.NewRecorder()
	h.Clear(rec, req)

	var response struct {
		Success      bool  `json:"success"`
		DeletedCount int64 `json:"deletedCount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.Success || response.DeletedCount != 17 {
		t.Errorf("response = %+v", response)
	}
}
