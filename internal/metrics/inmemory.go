package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	EventsReceived        uint64
	EventsRejected        uint64
	EventsStored          uint64
	IngestDurationCount   uint64
	IngestDurationTotalNs int64
	SecondaryWritesOK     uint64
	SecondaryWritesFailed uint64
	EventsCleared         uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	eventsReceived        uint64
	eventsRejected        uint64
	eventsStored          uint64
	ingestDurationCount   uint64
	ingestDurationTotalNs int64
	secondaryWritesOK     uint64
	secondaryWritesFailed uint64
	eventsCleared         uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		EventsReceived:        atomic.LoadUint64(&m.eventsReceived),
		EventsRejected:        atomic.LoadUint64(&m.eventsRejected),
		EventsStored:          atomic.LoadUint64(&m.eventsStored),
		IngestDurationCount:   atomic.LoadUint64(&m.ingestDurationCount),
		IngestDurationTotalNs: atomic.LoadInt64(&m.ingestDurationTotalNs),
		SecondaryWritesOK:     atomic.LoadUint64(&m.secondaryWritesOK),
		SecondaryWritesFailed: atomic.LoadUint64(&m.secondaryWritesFailed),
		EventsCleared:         atomic.LoadUint64(&m.eventsCleared),
	}
}

// IncEventReceived increments the received counter.
func (m *InMemoryRecorder) IncEventReceived() {
	atomic.AddUint64(&m.eventsReceived, 1)
}

// IncEventRejected increments the validation rejection counter.
func (m *InMemoryRecorder) IncEventRejected() {
	atomic.AddUint64(&m.eventsRejected, 1)
}

// IncEventStored increments the stored counter.
func (m *InMemoryRecorder) IncEventStored() {
	atomic.AddUint64(&m.eventsStored, 1)
}

// ObserveIngestDuration records one ingestion duration.
func (m *InMemoryRecorder) ObserveIngestDuration(duration time.Duration) {
	atomic.AddUint64(&m.ingestDurationCount, 1)
	atomic.AddInt64(&m.ingestDurationTotalNs, duration.Nanoseconds())
}

// IncSecondaryWrite counts one secondary-table write by outcome.
func (m *InMemoryRecorder) IncSecondaryWrite(status string) {
	if status == "success" {
		atomic.AddUint64(&m.secondaryWritesOK, 1)
		return
	}
	atomic.AddUint64(&m.secondaryWritesFailed, 1)
}

// IncEventsCleared counts events removed by an admin clear.
func (m *InMemoryRecorder) IncEventsCleared(count int64) {
	if count > 0 {
		atomic.AddUint64(&m.eventsCleared, uint64(count))
	}
}
