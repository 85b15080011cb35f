package validator

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/trackpoint/trackpoint/internal/model"
)

// Timestamp acceptance window around server time.
const (
	MaxFutureSkew = 24 * time.Hour
	MaxPastSkew   = 30 * 24 * time.Hour
)

// Per-field maximum lengths.
var maxFieldLengths = map[string]int{
	"event_type": 100,
	"session_id": 255,
	"user_id":    255,
	"page_url":   2048,
	"user_agent": 1024,
	"ad_name":    255,
}

// requiredFields are the top-level fields every event must carry.
var requiredFields = []string{
	"event_type",
	"session_id",
	"user_id",
	"tracking_mode",
	"timestamp",
	"page_url",
}

// Result is the outcome of validating one event. IsValid is true iff the
// error list is empty; all violations are reported in one pass so the caller
// can surface every problem in a single round trip.
type Result struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Validator checks inbound raw events against required-field, type, range
// and tracking-plan rules. It is safe for concurrent use.
type Validator struct {
	plan   *TrackingPlan
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Validator with the given plan. A nil plan behaves as the
// empty (permissive) plan.
func New(plan *TrackingPlan, logger *slog.Logger) *Validator {
	if plan == nil {
		plan = EmptyPlan()
	}
	return &Validator{
		plan:   plan,
		logger: logger.With("component", "validator"),
		now:    time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (v *Validator) SetNow(now func() time.Time) {
	v.now = now
}

// PlanStats reports the loaded tracking plan summary.
func (v *Validator) PlanStats() PlanStats {
	return v.plan.Stats()
}

// Validate runs all checks in order and accumulates every violation. The
// input event is never modified.
func (v *Validator) Validate(event *model.Event) Result {
	if event == nil || len(event.Fields) == 0 {
		return Result{IsValid: false, Errors: []string{"Event data is required"}}
	}

	var errors []string

	for _, field := range requiredFields {
		if !event.Has(field) {
			errors = append(errors, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	if event.Has("timestamp") {
		errors = append(errors, v.checkTimestamp(event)...)
	}

	if mode := event.TrackingMode(); mode != "" &&
		mode != model.TrackingModeCookie && mode != model.TrackingModeCookieless {
		errors = append(errors, `Invalid tracking_mode. Must be "cookie" or "cookieless"`)
	}

	if pageURL := event.PageURL(); pageURL != "" && !isAbsoluteURL(pageURL) {
		errors = append(errors, "Invalid page_url format")
	}

	errors = append(errors, v.checkPlan(event)...)

	for field, maxLen := range maxFieldLengths {
		if s := event.String(field); len(s) > maxLen {
			errors = append(errors, fmt.Sprintf("Field %s exceeds maximum length of %d", field, maxLen))
		}
	}

	return Result{IsValid: len(errors) == 0, Errors: errors}
}

// checkTimestamp coerces the timestamp to a number and bounds it to a
// reasonable window around server time.
func (v *Validator) checkTimestamp(event *model.Event) []string {
	ts, ok := event.Timestamp()
	if !ok || ts <= 0 {
		return []string{"Invalid timestamp format"}
	}

	now := v.now().UnixMilli()
	if int64(ts) > now+MaxFutureSkew.Milliseconds() || int64(ts) < now-MaxPastSkew.Milliseconds() {
		return []string{"Timestamp outside reasonable range"}
	}
	return nil
}

// checkPlan validates the event against its tracking-plan entry. Unknown
// event types are accepted with a warning; the plan is advisory.
func (v *Validator) checkPlan(event *model.Event) []string {
	eventType := event.Type()
	if eventType == "" {
		return nil
	}

	spec, known := v.plan.Events[eventType]
	if !known {
		if len(v.plan.Events) > 0 {
			v.logger.Warn("unknown event type", "event_type", eventType)
		}
		return nil
	}

	params := make([]string, 0, len(spec.Parameters))
	for param := range spec.Parameters {
		params = append(params, param)
	}
	sort.Strings(params)

	var errors []string
	for _, param := range params {
		cfg := spec.Parameters[param]
		value, present := event.Fields[param]
		if cfg.Required && (!present || value == nil) {
			errors = append(errors, fmt.Sprintf("Missing required parameter for %s: %s", eventType, param))
		}
		if !present || value == nil {
			continue
		}

		if len(cfg.Enum) > 0 {
			if s, ok := value.(string); ok && !contains(cfg.Enum, s) {
				errors = append(errors, fmt.Sprintf("Invalid value for %s. Must be one of: %s",
					param, strings.Join(cfg.Enum, ", ")))
			}
		}

		errors = append(errors, checkParamType(param, value, cfg.Type)...)
	}
	return errors
}

func checkParamType(param string, value any, expected string) []string {
	switch expected {
	case "string":
		if _, ok := value.(string); !ok {
			return []string{fmt.Sprintf("Parameter %s must be a string", param)}
		}
	case "number":
		switch value.(type) {
		case float64, int, int64:
		default:
			return []string{fmt.Sprintf("Parameter %s must be a number", param)}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []string{fmt.Sprintf("Parameter %s must be a boolean", param)}
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
