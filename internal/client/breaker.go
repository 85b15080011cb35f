package client

import (
	"sync"
	"time"
)

// Breaker state machine:
// HEALTHY -> (N consecutive failures >= threshold) -> UNHEALTHY
// UNHEALTHY -> (health probe succeeds) -> HEALTHY
const (
	StateHealthy   = "healthy"
	StateUnhealthy = "unhealthy"
)

// Default breaker tuning.
const (
	DefaultFailureThreshold = 3
	DefaultProbeInterval    = 30 * time.Second
)

// healthTracker is the failure-count circuit breaker shared by all delivery
// paths. Probes are rate-limited to at most one per interval while the
// backend is considered unhealthy.
type healthTracker struct {
	mu        sync.Mutex
	failures  int
	healthy   bool
	threshold int
	interval  time.Duration
	lastProbe time.Time
	now       func() time.Time
}

func newHealthTracker(threshold int, interval time.Duration, now func() time.Time) *healthTracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if now == nil {
		now = time.Now
	}
	return &healthTracker{
		healthy:   true,
		threshold: threshold,
		interval:  interval,
		now:       now,
	}
}

// RecordSuccess resets the failure counter and restores HEALTHY.
func (t *healthTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = 0
	t.healthy = true
}

// RecordFailure counts one consecutive failure, flipping to UNHEALTHY at the
// threshold.
func (t *healthTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	if t.failures >= t.threshold {
		t.healthy = false
	}
}

// Healthy reports whether delivery should be attempted directly.
func (t *healthTracker) Healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.healthy
}

// State returns the breaker state as a string, for logging and tests.
func (t *healthTracker) State() string {
	if t.Healthy() {
		return StateHealthy
	}
	return StateUnhealthy
}

// ProbeDue reports whether an unhealthy breaker may probe now, and stamps
// the probe time when it is. At most one probe per interval fires.
func (t *healthTracker) ProbeDue() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.healthy {
		return false
	}
	now := t.now()
	if !t.lastProbe.IsZero() && now.Sub(t.lastProbe) < t.interval {
		return false
	}
	t.lastProbe = now
	return true
}
