// Package audit keeps the ordered record of every orchestration decision for
// a session. The trail is append-only: entries are never mutated after
// append, and only the oldest are trimmed once the cap is exceeded.
package audit

import (
	"strings"
	"sync"
)

const (
	// DefaultMaxEntries bounds trail growth in long-running sessions.
	DefaultMaxEntries = 500

	// ObservationLimit is the character budget for a stored observation.
	ObservationLimit = 800
)

// Entry is one immutable audit record.
type Entry struct {
	Task        string `yaml:"task" json:"task"`
	Action      string `yaml:"action" json:"action"`
	Rationale   string `yaml:"rationale" json:"rationale"`
	Observation string `yaml:"observation" json:"observation"`
}

// Trail is a bounded, append-only list of entries.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewTrail creates a trail; max defaults to DefaultMaxEntries when <= 0.
func NewTrail(max int) *Trail {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Trail{max: max}
}

// Append records an entry, truncating the observation to its budget, and
// returns the entry as stored.
func (t *Trail) Append(e Entry) Entry {
	e.Observation = Truncate(e.Observation, ObservationLimit)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	if over := len(t.entries) - t.max; over > 0 {
		t.entries = append(t.entries[:0:0], t.entries[over:]...)
	}
	return e
}

// Entries returns a copy of the trail in append order.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the current entry count.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Restore replaces the trail contents, used when reloading a persisted
// session. Entries beyond the cap are trimmed oldest-first.
func (t *Trail) Restore(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if over := len(entries) - t.max; over > 0 {
		entries = entries[over:]
	}
	t.entries = append([]Entry(nil), entries...)
}

// Truncate shortens s to limit characters, marking the cut.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + " …(truncated)"
}
