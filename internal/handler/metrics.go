package handler

import (
	"fmt"
	"net/http"

	"github.com/trackpoint/trackpoint/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "trackpoint_events_received_total %d\n", snap.EventsReceived)
	writeMetric(w, "trackpoint_events_rejected_total %d\n", snap.EventsRejected)
	writeMetric(w, "trackpoint_events_stored_total %d\n", snap.EventsStored)
	writeMetric(w, "trackpoint_ingest_duration_seconds_count %d\n", snap.IngestDurationCount)
	writeMetric(w, "trackpoint_ingest_duration_seconds_sum %.6f\n", float64(snap.IngestDurationTotalNs)/1e9)

	writeMetric(w, "trackpoint_secondary_writes_total{status=\"success\"} %d\n", snap.SecondaryWritesOK)
	writeMetric(w, "trackpoint_secondary_writes_total{status=\"failed\"} %d\n", snap.SecondaryWritesFailed)

	writeMetric(w, "trackpoint_events_cleared_total %d\n", snap.EventsCleared)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
