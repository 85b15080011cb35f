package metrics

import "time"

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

// NewNoop returns a Recorder that does nothing.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncEventReceived() {}

func (n *NoopRecorder) IncEventRejected() {}

func (n *NoopRecorder) IncEventStored() {}

func (n *NoopRecorder) ObserveIngestDuration(duration time.Duration) {}

func (n *NoopRecorder) IncSecondaryWrite(status string) {}

func (n *NoopRecorder) IncEventsCleared(count int64) {}
