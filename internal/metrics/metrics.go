// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Ingestion metrics
	IncEventReceived()
	IncEventRejected()
	IncEventStored()
	ObserveIngestDuration(duration time.Duration)

	// Secondary write metrics
	IncSecondaryWrite(status string) // status: "success" or "failed"

	// Admin metrics
	IncEventsCleared(count int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
