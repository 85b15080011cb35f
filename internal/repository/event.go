package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trackpoint/trackpoint/internal/model"
)

// Summary bucket granularities accepted by GetEventSummary. The interval is
// interpolated into date_trunc, so it is allow-listed, never taken verbatim.
var summaryIntervals = map[string]bool{
	"minute": true,
	"hour":   true,
	"day":    true,
}

// EventRepository provides database access for raw tracking events. An event
// counts as received once it has a row in events_raw; everything derived from
// it lives in the secondary tables.
type EventRepository struct {
	repo *Repository
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(repo *Repository) *EventRepository {
	return &EventRepository{repo: repo}
}

// InsertRawEvent persists one enriched event into events_raw and returns the
// assigned durable identity. The full payload is stored verbatim as JSONB
// alongside the promoted columns.
func (r *EventRepository) InsertRawEvent(ctx context.Context, event *model.Event) (model.StoredEvent, error) {
	payload, err := json.Marshal(event.Fields)
	if err != nil {
		return model.StoredEvent{}, fmt.Errorf("encode event payload: %w", err)
	}

	ts, _ := event.Timestamp()
	serverTS, _ := event.Number("server_timestamp")

	query := `
		INSERT INTO events_raw (
			id, event_type, session_id, user_id, tracking_mode,
			timestamp, server_timestamp, page_url, client_ip, user_agent,
			request_id, event_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	id := ulid.Make().String()
	var createdAt time.Time
	err = r.repo.pool.QueryRow(ctx, query,
		id,
		event.Type(),
		event.SessionID(),
		event.UserID(),
		event.TrackingMode(),
		int64(ts),
		int64(serverTS),
		event.PageURL(),
		nullableString(event.String("client_ip")),
		nullableString(event.String("user_agent")),
		nullableString(event.String("request_id")),
		payload,
	).Scan(&createdAt)
	if err != nil {
		return model.StoredEvent{}, fmt.Errorf("insert raw event: %w", err)
	}

	return model.StoredEvent{ID: id, CreatedAt: createdAt}, nil
}

// GetEvents lists stored events matching the filter, newest first, with the
// total match count for pagination.
func (r *EventRepository) GetEvents(ctx context.Context, filter model.EventFilter, limit, offset int) ([]*model.RawEventRecord, int64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where, args := buildEventFilter(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM events_raw" + where
	if err := r.repo.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, event_type, session_id, user_id, tracking_mode,
			   timestamp, server_timestamp, page_url,
			   COALESCE(client_ip, ''), COALESCE(user_agent, ''),
			   COALESCE(request_id, ''), event_data, created_at
		FROM events_raw%s
		ORDER BY server_timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []*model.RawEventRecord
	for rows.Next() {
		var record model.RawEventRecord
		var payload []byte
		err := rows.Scan(
			&record.ID,
			&record.EventType,
			&record.SessionID,
			&record.UserID,
			&record.TrackingMode,
			&record.Timestamp,
			&record.ServerTimestamp,
			&record.PageURL,
			&record.ClientIP,
			&record.UserAgent,
			&record.RequestID,
			&payload,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &record.EventData)
		}
		records = append(records, &record)
	}

	return records, total, rows.Err()
}

// GetEventSummary aggregates event counts into time buckets of the given
// granularity, split by event type and tracking mode.
func (r *EventRepository) GetEventSummary(ctx context.Context, interval string, since time.Time) ([]model.SummaryBucket, error) {
	if !summaryIntervals[interval] {
		interval = "hour"
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', created_at) AS time_bucket,
			   event_type,
			   tracking_mode,
			   COUNT(*) AS event_count,
			   COUNT(DISTINCT session_id) AS unique_sessions,
			   COUNT(DISTINCT user_id) AS unique_users
		FROM events_raw
		WHERE created_at >= $1
		GROUP BY time_bucket, event_type, tracking_mode
		ORDER BY time_bucket DESC, event_type
	`, interval)

	rows, err := r.repo.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query event summary: %w", err)
	}
	defer rows.Close()

	var buckets []model.SummaryBucket
	for rows.Next() {
		var bucket model.SummaryBucket
		err := rows.Scan(
			&bucket.TimeBucket,
			&bucket.EventType,
			&bucket.TrackingMode,
			&bucket.EventCount,
			&bucket.UniqueSessions,
			&bucket.UniqueUsers,
		)
		if err != nil {
			return nil, fmt.Errorf("scan summary bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}

	return buckets, rows.Err()
}

// ClearAll deletes every stored event and all derived rows in one
// transaction. Either every table is emptied or none is.
func (r *EventRepository) ClearAll(ctx context.Context) (int64, error) {
	tx, err := r.repo.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin clear transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"ad_events", "web_vitals_raw", "error_events", "sessions_dim"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	tag, err := tx.Exec(ctx, "DELETE FROM events_raw")
	if err != nil {
		return 0, fmt.Errorf("clear events_raw: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit clear transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildEventFilter renders the WHERE clause and positional args for a filter.
func buildEventFilter(filter model.EventFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.TrackingMode != "" {
		add("tracking_mode = $%d", filter.TrackingMode)
	}
	if !filter.StartDate.IsZero() {
		add("created_at >= $%d", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		add("created_at <= $%d", filter.EndDate)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
