package model

import "time"

// StoredEvent is the durable identifier assigned when a raw event is
// persisted. Once InsertRawEvent returns one of these, the event is
// considered received.
type StoredEvent struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// RawEventRecord is one row of events_raw, as returned by the listing API.
type RawEventRecord struct {
	ID              string         `json:"id"`
	EventType       string         `json:"event_type"`
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id"`
	TrackingMode    string         `json:"tracking_mode"`
	Timestamp       int64          `json:"timestamp"`
	ServerTimestamp int64          `json:"server_timestamp"`
	PageURL         string         `json:"page_url"`
	ClientIP        string         `json:"client_ip,omitempty"`
	UserAgent       string         `json:"user_agent,omitempty"`
	RequestID       string         `json:"request_id,omitempty"`
	EventData       map[string]any `json:"event_data"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EventFilter narrows event listing queries. Zero values mean "no filter".
type EventFilter struct {
	EventType    string
	SessionID    string
	UserID       string
	TrackingMode string
	StartDate    time.Time
	EndDate      time.Time
}

// SummaryBucket is one row of the time-bucketed event summary.
type SummaryBucket struct {
	TimeBucket     time.Time `json:"time_bucket"`
	EventType      string    `json:"event_type"`
	TrackingMode   string    `json:"tracking_mode"`
	EventCount     int64     `json:"event_count"`
	UniqueSessions int64     `json:"unique_sessions"`
	UniqueUsers    int64     `json:"unique_users"`
}

// Session is the derived per-session dimension row, upserted on
// page_load-class events with last-write-wins semantics.
type Session struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	TrackingMode   string    `json:"tracking_mode"`
	FirstPageURL   string    `json:"first_page_url"`
	UserAgent      string    `json:"user_agent,omitempty"`
	ViewportWidth  *float64  `json:"viewport_width,omitempty"`
	ViewportHeight *float64  `json:"viewport_height,omitempty"`
	ScreenWidth    *float64  `json:"screen_width,omitempty"`
	ScreenHeight   *float64  `json:"screen_height,omitempty"`
	Language       string    `json:"language,omitempty"`
	TimezoneOffset *float64  `json:"timezone_offset,omitempty"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}
