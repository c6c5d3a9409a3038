// Package tradelog is the autotrade journal: a bounded ring of log entries,
// newest first.
package tradelog

import (
	"sync"
	"time"

	"fx-autotrader/internal/model"

	"github.com/google/uuid"
)

const DefaultCapacity = 100

type Ring struct {
	mu       sync.RWMutex
	entries  []model.LogEntry // newest first
	capacity int
	now      func() time.Time
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity, now: time.Now}
}

// SetClock replaces the timestamp source.
func (r *Ring) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Append stamps the entry with an id and time when missing and evicts the
// oldest entry beyond capacity.
func (r *Ring) Append(e model.LogEntry) model.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	r.entries = append([]model.LogEntry{e}, r.entries...)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[:r.capacity]
	}
	return e
}

// Entries returns a copy, newest first.
func (r *Ring) Entries() []model.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.LogEntry(nil), r.entries...)
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Restore replaces the contents with persisted entries (newest first).
func (r *Ring) Restore(entries []model.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entries) > r.capacity {
		entries = entries[:r.capacity]
	}
	r.entries = append([]model.LogEntry(nil), entries...)
}

// Count returns how many retained entries carry action.
func (r *Ring) Count(action model.LogAction) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}
