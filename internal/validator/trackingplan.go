// Package validator rejects structurally invalid or schema-violating events
// before persistence. It reports problems, it never mutates meaning.
package validator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// ParamSpec describes one declared parameter of an event type.
type ParamSpec struct {
	Required bool     `json:"required"`
	Type     string   `json:"type"` // "string", "number" or "boolean"
	Enum     []string `json:"enum,omitempty"`
}

// EventSpec describes the expected parameters of one event type.
type EventSpec struct {
	Description string               `json:"description,omitempty"`
	Parameters  map[string]ParamSpec `json:"parameters,omitempty"`
}

// TrackingPlan is the externally supplied validation schema: a mapping from
// event type to its declared parameters. The plan is advisory, not a closed
// world; event types it does not mention are accepted with a warning.
type TrackingPlan struct {
	Version string               `json:"version,omitempty"`
	Events  map[string]EventSpec `json:"-"`
}

// planFile mirrors the on-disk layout of the tracking plan.
type planFile struct {
	Version      string `json:"version"`
	TrackingPlan struct {
		Events map[string]EventSpec `json:"events"`
	} `json:"trackingPlan"`
}

// EmptyPlan returns a plan with no declared events. All schema-driven checks
// pass vacuously against it.
func EmptyPlan() *TrackingPlan {
	return &TrackingPlan{Events: make(map[string]EventSpec)}
}

// LoadTrackingPlan reads the plan from a JSON file. A missing or malformed
// file degrades to the empty plan; startup never fails on the tracking plan.
func LoadTrackingPlan(path string, logger *slog.Logger) *TrackingPlan {
	plan, err := readTrackingPlan(path)
	if err != nil {
		logger.Warn("failed to load tracking plan, using permissive fallback",
			"path", path,
			"error", err,
		)
		return EmptyPlan()
	}

	logger.Info("tracking plan loaded",
		"path", path,
		"version", plan.Version,
		"event_types", len(plan.Events),
	)
	return plan
}

func readTrackingPlan(path string) (*TrackingPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tracking plan: %w", err)
	}

	var file planFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tracking plan: %w", err)
	}

	events := file.TrackingPlan.Events
	if events == nil {
		events = make(map[string]EventSpec)
	}

	return &TrackingPlan{Version: file.Version, Events: events}, nil
}

// PlanStats summarizes the loaded plan for health reporting.
type PlanStats struct {
	Loaded     bool   `json:"loaded"`
	EventTypes int    `json:"event_types"`
	Version    string `json:"version"`
}

// Stats returns summary information about the plan.
func (p *TrackingPlan) Stats() PlanStats {
	version := p.Version
	if version == "" {
		version = "unknown"
	}
	return PlanStats{
		Loaded:     len(p.Events) > 0,
		EventTypes: len(p.Events),
		Version:    version,
	}
}
