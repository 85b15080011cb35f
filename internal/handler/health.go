package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/trackpoint/trackpoint/internal/validator"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PlanReporter reports the loaded tracking plan summary.
type PlanReporter interface {
	PlanStats() validator.PlanStats
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db        HealthChecker
	cache     HealthChecker
	plan      PlanReporter
	startedAt time.Time
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for db, cache or plan if they are not yet initialized.
func NewHealthHandler(db, cache HealthChecker, plan PlanReporter) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		plan:      plan,
		startedAt: time.Now(),
	}
}

// HealthResponse represents the full health check response.
type HealthResponse struct {
	Status         string            `json:"status"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Services       map[string]string `json:"services"`
	TrackingPlan   any               `json:"tracking_plan,omitempty"`
	ResponseTimeMs float64           `json:"response_time_ms"`
}

// ProbeResponse represents a liveness/readiness probe response.
type ProbeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health is the detailed health endpoint the delivery client probes before
// resuming sends. It reports per-service status and degrades to 503 when a
// dependency is down.
//
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services, healthy := h.checkServices(ctx)

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:         status,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		Services:       services,
		ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if h.plan != nil {
		response.TrackingPlan = h.plan.PlanStats()
	}

	writeJSON(w, statusCode, response)
}

// Live is a liveness probe endpoint.
// It returns 200 if the server is running.
// No dependency checks - this is for Kubernetes liveness probes.
//
// GET /api/health/live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: "ok"})
}

// Ready is a readiness probe endpoint.
// It checks all dependencies and returns 200 only if all are healthy.
// For Kubernetes readiness probes - removes pod from LB if failing.
//
// GET /api/health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.checkServices(ctx)

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ProbeResponse{Status: status, Checks: checks})
}

func (h *HealthHandler) checkServices(ctx context.Context) (map[string]string, bool) {
	services := make(map[string]string)
	healthy := true

	// Check PostgreSQL
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			services["postgres"] = "error: " + err.Error()
			healthy = false
		} else {
			services["postgres"] = "ok"
		}
	} else {
		services["postgres"] = "not configured"
	}

	// Check Redis
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			services["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			services["redis"] = "ok"
		}
	} else {
		services["redis"] = "not configured"
	}

	return services, healthy
}
