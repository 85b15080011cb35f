package validator

import (
	"strconv"
	"strings"

	"github.com/trackpoint/trackpoint/internal/model"
)

// numericFields are payload fields coerced to numbers before storage when a
// client sent them as strings.
var numericFields = []string{
	"timestamp",
	"viewport_percentage",
	"click_x",
	"click_y",
	"metric_value",
	"ad_view_timestamp",
	"time_to_close_ms",
}

// Sanitize returns a cleaned copy of the event for storage: string values
// trimmed, known numeric fields coerced, null values dropped. The input
// event is left untouched.
func Sanitize(event *model.Event) *model.Event {
	fields := make(map[string]any, len(event.Fields))

	for key, value := range event.Fields {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			fields[key] = strings.TrimSpace(s)
			continue
		}
		fields[key] = value
	}

	for _, field := range numericFields {
		value, ok := fields[field]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				fields[field] = n
			}
		}
	}

	return model.NewEvent(fields)
}
