package model

// Typed views over the open event payload. Each known event type gets a
// variant with its own field set; anything else falls back to the raw map.
// Extraction is lossy by design: absent or mistyped values come back as nil
// pointers so secondary writers can store SQL NULLs.

// AdInteraction carries the ad-specific subset of an ad_view or ad_click
// event.
type AdInteraction struct {
	AdID               string
	AdType             string
	ViewportPercentage *float64
	ClickX             *float64
	ClickY             *float64
}

// AdInteraction extracts the ad fields from the payload.
func (e *Event) AdInteraction() AdInteraction {
	return AdInteraction{
		AdID:               e.String("ad_id"),
		AdType:             e.String("ad_type"),
		ViewportPercentage: e.optionalNumber("viewport_percentage"),
		ClickX:             e.optionalNumber("click_x"),
		ClickY:             e.optionalNumber("click_y"),
	}
}

// WebVitalsSample carries one web-vitals measurement.
type WebVitalsSample struct {
	MetricName   string
	MetricValue  *float64
	MetricRating string
}

// WebVitals extracts the metric fields from the payload.
func (e *Event) WebVitals() WebVitalsSample {
	return WebVitalsSample{
		MetricName:   e.String("metric_name"),
		MetricValue:  e.optionalNumber("metric_value"),
		MetricRating: e.String("metric_rating"),
	}
}

// ErrorDetail carries the error-specific subset of an error event.
type ErrorDetail struct {
	Message  string
	Stack    string
	Filename string
	Line     *float64
	Column   *float64
}

// ErrorDetail extracts the error fields from the payload.
func (e *Event) ErrorDetail() ErrorDetail {
	return ErrorDetail{
		Message:  e.String("error_message"),
		Stack:    e.String("error_stack"),
		Filename: e.String("error_filename"),
		Line:     e.optionalNumber("error_line"),
		Column:   e.optionalNumber("error_column"),
	}
}

// SessionAttrs carries the device metadata a page_load event contributes to
// the session dimension.
type SessionAttrs struct {
	UserAgent      string
	ViewportWidth  *float64
	ViewportHeight *float64
	ScreenWidth    *float64
	ScreenHeight   *float64
	Language       string
	TimezoneOffset *float64
}

// SessionAttrs extracts the device fields from the payload.
func (e *Event) SessionAttrs() SessionAttrs {
	return SessionAttrs{
		UserAgent:      e.String("user_agent"),
		ViewportWidth:  e.optionalNumber("viewport_width"),
		ViewportHeight: e.optionalNumber("viewport_height"),
		ScreenWidth:    e.optionalNumber("screen_width"),
		ScreenHeight:   e.optionalNumber("screen_height"),
		Language:       e.String("language"),
		TimezoneOffset: e.optionalNumber("timezone_offset"),
	}
}

func (e *Event) optionalNumber(key string) *float64 {
	if _, ok := e.Fields[key]; !ok {
		return nil
	}
	n, ok := e.Number(key)
	if !ok {
		return nil
	}
	return &n
}
