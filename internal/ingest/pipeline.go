// Package ingest implements the server-side event pipeline: validate the
// incoming payload, enrich it with server-observed metadata, persist it to
// the raw event store, then project it into the matching secondary table.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/trackpoint/trackpoint/internal/metrics"
	"github.com/trackpoint/trackpoint/internal/model"
	"github.com/trackpoint/trackpoint/internal/validator"
)

// RawEventStore is the durability boundary. Once InsertRawEvent returns, the
// event is received and the client may be acknowledged.
type RawEventStore interface {
	InsertRawEvent(ctx context.Context, event *model.Event) (model.StoredEvent, error)
}

// SecondaryWriter projects a stored event into one derived table. Writer
// failures never fail ingestion.
type SecondaryWriter interface {
	Write(ctx context.Context, stored model.StoredEvent, event *model.Event) error
}

// ValidationError carries the accumulated validation failures for a rejected
// payload.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "event validation failed: " + strings.Join(e.Errors, "; ")
}

// RequestMeta is what the server observed about the delivering HTTP request.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	RequestID string
}

// Writers builds the canonical event-type dispatch table: ad_view and
// ad_click feed the ad writer, web_vitals and error their own projections,
// page_load the session dimension. Every other type, ad_close included,
// stops at events_raw.
func Writers(ad, vitals, errs, sessions SecondaryWriter) map[string]SecondaryWriter {
	return map[string]SecondaryWriter{
		model.EventAdView:    ad,
		model.EventAdClick:   ad,
		model.EventWebVitals: vitals,
		model.EventError:     errs,
		model.EventPageLoad:  sessions,
	}
}

// Pipeline runs one event from payload to storage.
type Pipeline struct {
	validator *validator.Validator
	store     RawEventStore
	writers   map[string]SecondaryWriter
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an ingestion pipeline. Writers map event types to the
// secondary table each one feeds; types without a writer stop at events_raw.
func New(v *validator.Validator, store RawEventStore, writers map[string]SecondaryWriter, rec metrics.Recorder, logger *slog.Logger) *Pipeline {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Pipeline{
		validator: v,
		store:     store,
		writers:   writers,
		metrics:   rec,
		logger:    logger.With("component", "ingest"),
		now:       time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (p *Pipeline) SetNow(now func() time.Time) {
	p.now = now
}

// Process validates, enriches and stores one event. A *ValidationError means
// the payload was rejected before storage; any other error means the event
// could not be persisted and the client must not be acknowledged. Secondary
// projection failures are logged and swallowed: the raw row already exists
// and can be replayed.
func (p *Pipeline) Process(ctx context.Context, event *model.Event, meta RequestMeta) (model.StoredEvent, error) {
	start := p.now()
	p.metrics.IncEventReceived()

	result := p.validator.Validate(event)
	if !result.IsValid {
		p.metrics.IncEventRejected()
		p.logger.Warn("event rejected",
			"event_type", eventType(event),
			"errors", result.Errors,
			"request_id", meta.RequestID,
		)
		return model.StoredEvent{}, &ValidationError{Errors: result.Errors}
	}

	enriched := p.enrich(event, meta)

	stored, err := p.store.InsertRawEvent(ctx, enriched)
	if err != nil {
		return model.StoredEvent{}, fmt.Errorf("store raw event: %w", err)
	}
	p.metrics.IncEventStored()

	p.project(ctx, stored, enriched, meta)

	p.metrics.ObserveIngestDuration(p.now().Sub(start))
	p.logger.Info("event ingested",
		"event_id", stored.ID,
		"event_type", enriched.Type(),
		"session_id", enriched.SessionID(),
		"request_id", meta.RequestID,
	)
	return stored, nil
}

// enrich sanitizes the payload and stamps the server-observed fields onto a
// copy. Client-sent values for these fields are overwritten.
func (p *Pipeline) enrich(event *model.Event, meta RequestMeta) *model.Event {
	enriched := validator.Sanitize(event)
	enriched.Fields["server_timestamp"] = p.now().UnixMilli()
	if meta.ClientIP != "" {
		enriched.Fields["client_ip"] = meta.ClientIP
	}
	if meta.UserAgent != "" {
		enriched.Fields["user_agent"] = meta.UserAgent
	}
	if meta.RequestID != "" {
		enriched.Fields["request_id"] = meta.RequestID
	}
	return enriched
}

// project hands the stored event to its secondary writer, if it has one.
func (p *Pipeline) project(ctx context.Context, stored model.StoredEvent, event *model.Event, meta RequestMeta) {
	writer, ok := p.writers[event.Type()]
	if !ok {
		return
	}

	if err := writer.Write(ctx, stored, event); err != nil {
		p.metrics.IncSecondaryWrite("failed")
		p.logger.Error("secondary write failed",
			"event_id", stored.ID,
			"event_type", event.Type(),
			"request_id", meta.RequestID,
			"error", err,
		)
		return
	}
	p.metrics.IncSecondaryWrite("success")
}

func eventType(event *model.Event) string {
	if event == nil {
		return ""
	}
	return event.Type()
}
