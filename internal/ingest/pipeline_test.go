package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/trackpoint/trackpoint/internal/metrics"
	"github.com/trackpoint/trackpoint/internal/model"
	"github.com/trackpoint/trackpoint/internal/validator"
)

type fakeStore struct {
	inserted []*model.Event
	err      error
}

func (s *fakeStore) InsertRawEvent(ctx context.Context, event *model.Event) (model.StoredEvent, error) {
	if s.err != nil {
		return model.StoredEvent{}, s.err
	}
	s.inserted = append(s.inserted, event)
	return model.StoredEvent{ID: "01HV0TEST", CreatedAt: time.Now()}, nil
}

type fakeWriter struct {
	written []*model.Event
	err     error
}

func (w *fakeWriter) Write(ctx context.Context, stored model.StoredEvent, event *model.Event) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, event)
	return nil
}

func validPayload(eventType string) *model.Event {
	return model.NewEvent(map[string]any{
		"event_type":    eventType,
		"session_id":    "sess_1736510400000_abc123def",
		"user_id":       "user_1736510400000_abc123def",
		"tracking_mode": "cookie",
		"timestamp":     float64(time.Now().UnixMilli()),
		"page_url":      "https://example.com/landing",
	})
}

func newTestPipeline(store *fakeStore, writers map[string]SecondaryWriter) *Pipeline {
	v := validator.New(validator.EmptyPlan(), slog.Default())
	return New(v, store, writers, metrics.NewInMemory(), slog.Default())
}

func TestProcessStoresValidEvent(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, nil)

	stored, err := p.Process(context.Background(), validPayload("ad_view"), RequestMeta{
		ClientIP:  "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if stored.ID == "" {
		t.Fatal("Process() returned empty stored id")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d raw events, want 1", len(store.inserted))
	}

	enriched := store.inserted[0]
	if _, ok := enriched.Number("server_timestamp"); !ok {
		t.Error("enrichment missing server_timestamp")
	}
	if enriched.String("client_ip") != "203.0.113.7" {
		t.Errorf("client_ip = %q", enriched.String("client_ip"))
	}
	if enriched.String("request_id") != "req-1" {
		t.Errorf("request_id = %q", enriched.String("request_id"))
	}
}

func TestProcessRejectsInvalidEvent(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, nil)

	event := validPayload("ad_view")
	delete(event.Fields, "session_id")

	_, err := p.Process(context.Background(), event, RequestMeta{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Process() error = %v, want *ValidationError", err)
	}
	if len(verr.Errors) == 0 {
		t.Fatal("ValidationError carries no messages")
	}
	if len(store.inserted) != 0 {
		t.Error("rejected event must not reach the store")
	}
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, nil)

	event := validPayload("ad_view")
	if _, err := p.Process(context.Background(), event, RequestMeta{ClientIP: "203.0.113.7"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if _, ok := event.Fields["server_timestamp"]; ok {
		t.Error("enrichment leaked into the caller's event")
	}
}

func TestProcessStoreFailureNotAcknowledged(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	p := newTestPipeline(store, nil)

	_, err := p.Process(context.Background(), validPayload("ad_view"), RequestMeta{})
	if err == nil {
		t.Fatal("Process() must fail when the raw store fails")
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Error("store failure must not look like a validation error")
	}
}

func TestProcessDispatchesByEventType(t *testing.T) {
	store := &fakeStore{}
	adWriter := &fakeWriter{}
	vitalsWriter := &fakeWriter{}
	errorWriter := &fakeWriter{}
	sessionWriter := &fakeWriter{}
	p := newTestPipeline(store, Writers(adWriter, vitalsWriter, errorWriter, sessionWriter))
	ctx := context.Background()

	for _, eventType := range []string{"ad_view", "ad_click", "ad_close", "web_vitals", "purchase"} {
		if _, err := p.Process(ctx, validPayload(eventType), RequestMeta{}); err != nil {
			t.Fatalf("Process(%s) error = %v", eventType, err)
		}
	}

	if len(adWriter.written) != 2 {
		t.Errorf("ad writer received %d events, want 2 (ad_close is raw-only)", len(adWriter.written))
	}
	for _, event := range adWriter.written {
		if event.Type() == model.EventAdClose {
			t.Error("ad_close must not reach the ad writer")
		}
	}
	if len(vitalsWriter.written) != 1 {
		t.Errorf("vitals writer received %d events, want 1", len(vitalsWriter.written))
	}
	if len(store.inserted) != 5 {
		t.Errorf("raw store received %d events, want 5 (ad_close and purchase have no writer)", len(store.inserted))
	}
}

func TestProcessSwallowsWriterFailure(t *testing.T) {
	store := &fakeStore{}
	failing := &fakeWriter{err: errors.New("table missing")}
	p := newTestPipeline(store, map[string]SecondaryWriter{
		model.EventAdView: failing,
	})

	stored, err := p.Process(context.Background(), validPayload("ad_view"), RequestMeta{})
	if err != nil {
		t.Fatalf("Process() error = %v, writer failure must not fail ingestion", err)
	}
	if stored.ID == "" {
		t.Error("event must still be acknowledged after writer failure")
	}
	if len(store.inserted) != 1 {
		t.Error("raw row must exist despite writer failure")
	}
}

func TestProcessOverridesClientSentServerFields(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(store, nil)

	event := validPayload("ad_view")
	event.Fields["client_ip"] = "1.2.3.4"
	event.Fields["server_timestamp"] = float64(1)

	if _, err := p.Process(context.Background(), event, RequestMeta{ClientIP: "203.0.113.7"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	enriched := store.inserted[0]
	if enriched.String("client_ip") != "203.0.113.7" {
		t.Errorf("client_ip = %q, want server-observed value", enriched.String("client_ip"))
	}
	if ts, _ := enriched.Number("server_timestamp"); ts == 1 {
		t.Error("client-sent server_timestamp must be overwritten")
	}
}
