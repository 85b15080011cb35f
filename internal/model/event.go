// Package model defines domain entities for the application.
package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Tracking modes describe which identity strategy produced a user id.
const (
	TrackingModeCookie     = "cookie"
	TrackingModeCookieless = "cookieless"
)

// Known event types. The set is open; unknown types are accepted and stored
// as raw events without a secondary record.
const (
	EventAdView     = "ad_view"
	EventAdClick    = "ad_click"
	EventAdClose    = "ad_close"
	EventPurchase   = "purchase"
	EventWebVitals  = "web_vitals"
	EventError      = "error"
	EventPageLoad   = "page_load"
	EventPageUnload = "page_unload"
)

// Event is the canonical unit of data: a flat JSON object carrying the
// required identity fields plus an open, event-type-specific set of extras.
// The full original payload is kept verbatim in Fields and is never mutated
// after creation.
type Event struct {
	Fields map[string]any
}

// NewEvent wraps a payload map as an Event.
func NewEvent(fields map[string]any) *Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Event{Fields: fields}
}

// ParseEvent decodes a JSON object into an Event.
func ParseEvent(data []byte) (*Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return NewEvent(fields), nil
}

// MarshalJSON serializes the full payload verbatim.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields)
}

// UnmarshalJSON decodes a JSON object into the payload map.
func (e *Event) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &e.Fields)
}

// Has reports whether the field is present with a non-empty value.
// Empty strings, zero numbers, false and null all count as missing,
// matching the tracker's required-field semantics.
func (e *Event) Has(key string) bool {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	case json.Number:
		return t.String() != "" && t.String() != "0"
	default:
		return true
	}
}

// String returns the field as a string, or "" when absent or another type.
func (e *Event) String(key string) string {
	if s, ok := e.Fields[key].(string); ok {
		return s
	}
	return ""
}

// Number coerces the field to a float64. Strings that parse as numbers are
// accepted, the same coercion the tracker applies before sending.
func (e *Event) Number(key string) (float64, bool) {
	switch v := e.Fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the field as a bool and whether it was a bool.
func (e *Event) Bool(key string) (bool, bool) {
	b, ok := e.Fields[key].(bool)
	return b, ok
}

// Convenience accessors for the required top-level fields.

func (e *Event) Type() string         { return e.String("event_type") }
func (e *Event) SessionID() string    { return e.String("session_id") }
func (e *Event) UserID() string       { return e.String("user_id") }
func (e *Event) TrackingMode() string { return e.String("tracking_mode") }
func (e *Event) PageURL() string      { return e.String("page_url") }

// Timestamp returns the client-observed epoch milliseconds.
func (e *Event) Timestamp() (float64, bool) {
	return e.Number("timestamp")
}

// Time converts the client timestamp to a time.Time, or the zero value.
func (e *Event) Time() time.Time {
	ms, ok := e.Timestamp()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}
