package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// MaxQueuedEvents bounds the failed-event queue. The oldest entries are
// dropped first when the bound is hit, mirroring storage-quota pressure on
// a real device.
const MaxQueuedEvents = 10

// QueuedEvent is one undelivered event awaiting redelivery.
type QueuedEvent struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
	Timestamp int64          `json:"timestamp"`
}

// FailedQueue is the ordered, bounded, durable list of undelivered events.
// It is created lazily on first enqueue and cleared as a whole after a fully
// successful retry pass.
type FailedQueue struct {
	store  Store
	logger *slog.Logger
}

// NewFailedQueue creates a queue persisted in the given store.
func NewFailedQueue(store Store, logger *slog.Logger) *FailedQueue {
	return &FailedQueue{
		store:  store,
		logger: logger.With("component", "client.queue"),
	}
}

// Enqueue appends an event, evicting the oldest entries beyond capacity.
// A store that refuses the write drops the queue entirely rather than
// failing the caller, the same quota fallback the tracker applies.
func (q *FailedQueue) Enqueue(ctx context.Context, event QueuedEvent) {
	events, err := q.Events(ctx)
	if err != nil {
		q.logger.Warn("failed to load queue, starting fresh", "error", err)
		events = nil
	}

	if len(events) >= MaxQueuedEvents {
		events = events[len(events)-(MaxQueuedEvents-1):]
	}
	events = append(events, event)

	if err := q.save(ctx, events); err != nil {
		q.logger.Warn("failed to persist queue, clearing", "error", err)
		if err := q.store.Remove(ctx, keyFailedEvents); err != nil {
			q.logger.Warn("failed to clear queue", "error", err)
		}
	}
}

// Events returns the queued events in original order.
func (q *FailedQueue) Events(ctx context.Context) ([]QueuedEvent, error) {
	raw, ok, err := q.store.Get(ctx, keyFailedEvents)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var events []QueuedEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return events, nil
}

// Len returns the number of queued events.
func (q *FailedQueue) Len(ctx context.Context) int {
	events, err := q.Events(ctx)
	if err != nil {
		return 0
	}
	return len(events)
}

// Clear removes the queue entirely.
func (q *FailedQueue) Clear(ctx context.Context) error {
	return q.store.Remove(ctx, keyFailedEvents)
}

func (q *FailedQueue) save(ctx context.Context, events []QueuedEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	return q.store.Set(ctx, keyFailedEvents, string(data), 0)
}
