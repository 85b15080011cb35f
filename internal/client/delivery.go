package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Delivery timeouts.
const (
	clientTimeout         = 10 * time.Second
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 5 * time.Second
	responseHeaderTimeout = 5 * time.Second
	probeTimeout          = 5 * time.Second
)

// Status is the outcome of one tracking call. Delivery never fails the
// caller: the failure-handling path cannot itself produce an error, so a
// failed send can never recursively generate another tracking event.
type Status int

const (
	// StatusDelivered means the backend acknowledged the event.
	StatusDelivered Status = iota
	// StatusQueued means the event is awaiting redelivery in the durable
	// failed-event queue.
	StatusQueued
)

func (s Status) String() string {
	if s == StatusDelivered {
		return "delivered"
	}
	return "queued"
}

// Result reports what happened to one tracked event.
type Result struct {
	Status  Status
	Payload map[string]any
}

// Config assembles a delivery client. EventsURL and HealthURL are the
// collection and liveness endpoints; everything else has working defaults.
type Config struct {
	EventsURL string
	HealthURL string
	PageURL   string

	Store    Store
	Identity *Identity
	Logger   *slog.Logger

	HTTPClient       *http.Client
	Now              func() time.Time
	FailureThreshold int
	ProbeInterval    time.Duration
}

// Client delivers events to the collection API. It owns the breaker state,
// the failed-event queue and the data layer for one page lifetime.
type Client struct {
	eventsURL string
	healthURL string
	pageURL   string

	http      *http.Client
	store     Store
	identity  *Identity
	logger    *slog.Logger
	now       func() time.Time
	tracker   *healthTracker
	queue     *FailedQueue
	dataLayer *DataLayer
	startedAt time.Time
}

// New creates a delivery client. The caller owns its lifecycle: construct at
// page/session start, call Close-equivalents (TrackUnload) at teardown.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client.delivery")

	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	return &Client{
		eventsURL: cfg.EventsURL,
		healthURL: cfg.HealthURL,
		pageURL:   cfg.PageURL,
		http:      httpClient,
		store:     store,
		identity:  cfg.Identity,
		logger:    logger,
		now:       now,
		tracker:   newHealthTracker(cfg.FailureThreshold, cfg.ProbeInterval, now),
		queue:     NewFailedQueue(store, logger),
		dataLayer: NewDataLayer(),
		startedAt: now(),
	}
}

// NewHTTPClient creates an HTTP client configured for event delivery. It
// does not follow redirects.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// DataLayer exposes the audit log of generated events.
func (c *Client) DataLayer() *DataLayer {
	return c.dataLayer
}

// Queue exposes the failed-event queue.
func (c *Client) Queue() *FailedQueue {
	return c.queue
}

// BreakerState returns "healthy" or "unhealthy", for diagnostics.
func (c *Client) BreakerState() string {
	return c.tracker.State()
}

// Identity returns the identity provider attached to this client.
func (c *Client) Identity() *Identity {
	return c.identity
}

// SetCCPAOptOut records the visitor's opt-out preference. Every subsequent
// payload is stamped with it.
func (c *Client) SetCCPAOptOut(ctx context.Context, optedOut bool) {
	if err := c.store.Set(ctx, keyCCPAOptOut, fmt.Sprintf("%t", optedOut), 0); err != nil {
		c.logger.Warn("failed to persist ccpa preference", "error", err)
	}
}

// Track builds the canonical payload for one event, appends it to the data
// layer, and attempts delivery. Delivery failures queue the event for the
// next page load's retry pass and are never surfaced as errors.
func (c *Client) Track(ctx context.Context, eventType string, data map[string]any) Result {
	payload := c.buildPayload(ctx, eventType, data)

	// Audit record first, independent of delivery outcome.
	c.dataLayer.Push(payload)

	if !c.tracker.Healthy() {
		if !c.probe(ctx) {
			c.logger.Warn("backend unhealthy, queueing event", "event_type", eventType)
			c.enqueue(ctx, eventType, data)
			return Result{Status: StatusQueued, Payload: payload}
		}
	}

	if err := c.post(ctx, c.eventsURL, payload); err != nil {
		c.tracker.RecordFailure()
		c.logger.Warn("event delivery failed",
			"event_type", eventType,
			"breaker_state", c.tracker.State(),
			"error", err,
		)
		c.enqueue(ctx, eventType, data)
		return Result{Status: StatusQueued, Payload: payload}
	}

	c.tracker.RecordSuccess()
	c.logger.Debug("event delivered", "event_type", eventType)
	return Result{Status: StatusDelivered, Payload: payload}
}

// RetryFailed resends every queued event, strictly sequentially and in
// original order. The first failure aborts the remaining pass; the queue is
// cleared only after a fully successful pass.
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	events, err := c.queue.Events(ctx)
	if err != nil {
		return 0, fmt.Errorf("load failed events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for i, queued := range events {
		payload := c.buildPayload(ctx, queued.EventType, queued.EventData)
		if err := c.post(ctx, c.eventsURL, payload); err != nil {
			c.tracker.RecordFailure()
			return i, fmt.Errorf("retry %s: %w", queued.EventType, err)
		}
		c.tracker.RecordSuccess()
	}

	if err := c.queue.Clear(ctx); err != nil {
		return len(events), fmt.Errorf("clear queue: %w", err)
	}
	c.logger.Info("retried failed events", "count", len(events))
	return len(events), nil
}

// TrackUnload fires a single best-effort page_unload event carrying the
// session duration. It bypasses the breaker and the queue entirely; after
// teardown there is no retry.
func (c *Client) TrackUnload(ctx context.Context) {
	payload := c.buildPayload(ctx, "page_unload", map[string]any{
		"session_duration": c.now().Sub(c.startedAt).Milliseconds(),
	})

	if err := c.post(ctx, c.eventsURL, payload); err != nil {
		c.logger.Debug("unload event lost", "error", err)
	}
}

// probe performs a rate-limited health check against the liveness endpoint.
// Returns true when the backend recovered and delivery may proceed.
func (c *Client) probe(ctx context.Context) bool {
	if !c.tracker.ProbeDue() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("health probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("health probe unhealthy", "http_status", resp.StatusCode)
		return false
	}

	c.tracker.RecordSuccess()
	c.logger.Info("backend recovered, breaker closed")
	return true
}

// buildPayload assembles the canonical event record: identity triple, fresh
// timestamp, page URL, CCPA flag, then the event-specific fields.
func (c *Client) buildPayload(ctx context.Context, eventType string, data map[string]any) map[string]any {
	payload := map[string]any{
		"event_type": eventType,
		"timestamp":  c.now().UnixMilli(),
		"page_url":   c.pageURL,
	}

	if c.identity != nil {
		payload["session_id"] = c.identity.SessionID()
		payload["user_id"] = c.identity.UserID()
		payload["tracking_mode"] = c.identity.Mode()
	}

	if optOut, ok, err := c.store.Get(ctx, keyCCPAOptOut); err == nil && ok {
		payload["ccpa_opt_out"] = optOut == "true"
	}

	for key, value := range data {
		payload[key] = value
	}
	return payload
}

func (c *Client) enqueue(ctx context.Context, eventType string, data map[string]any) {
	c.queue.Enqueue(ctx, QueuedEvent{
		EventType: eventType,
		EventData: data,
		Timestamp: c.now().UnixMilli(),
	})
}

func (c *Client) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return nil
}
