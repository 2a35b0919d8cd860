package domain

import (
	"sync"
	"time"
)

// LogEntry is one human-readable tracker event.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Logbook is an append-only, chronologically ordered list of entries that is
// safe to read while a tracker appends to it.
type Logbook struct {
	mu      sync.RWMutex
	entries []LogEntry
	now     func() time.Time
}

// NewLogbook returns an empty logbook stamping entries with now, or
// time.Now when now is nil.
func NewLogbook(now func() time.Time) *Logbook {
	if now == nil {
		now = time.Now
	}
	return &Logbook{now: now}
}

// Append records message at the current time.
func (l *Logbook) Append(message string) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now == nil {
		l.now = time.Now
	}
	entry := LogEntry{Time: l.now(), Message: message}
	l.entries = append(l.entries, entry)
	return entry
}

// Entries returns a copy of the recorded entries.
func (l *Logbook) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Logbook) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
