package client

import "sync"

// DataLayer is the in-process audit log of generated events, appended to
// unconditionally before any network attempt. It records "this event was
// generated", not "this event reached the server".
type DataLayer struct {
	mu      sync.Mutex
	entries []map[string]any
}

// NewDataLayer creates an empty data layer.
func NewDataLayer() *DataLayer {
	return &DataLayer{}
}

// Push appends one canonical event record.
func (d *DataLayer) Push(entry map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
}

// Events returns a copy of the recorded entries in append order.
func (d *DataLayer) Events() []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]map[string]any, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of recorded entries.
func (d *DataLayer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
