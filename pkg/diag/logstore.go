// logstore.go implements the bounded, time-ordered log buffer.

package diag

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxLogEntries is the LogStore capacity when none is configured.
const DefaultMaxLogEntries = 1000

// LogFilter selects entries from the LogStore. Zero fields match everything.
type LogFilter struct {
	// Levels restricts entries to these levels.
	Levels []Level

	// Module matches the entry module exactly.
	Module string

	// Search is a case-insensitive substring of the message or module.
	Search string

	// Since drops entries recorded before this instant.
	Since time.Time
}

func (f LogFilter) match(e LogEntry) bool {
	if len(f.Levels) > 0 && !newLevelSet(f.Levels).has(e.Level) {
		return false
	}
	if f.Module != "" && e.Module != f.Module {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Message), needle) &&
			!strings.Contains(strings.ToLower(e.Module), needle) {
			return false
		}
	}
	return true
}

// LogStore keeps the most recent log entries in arrival order.
// Safe for concurrent use.
type LogStore struct {
	mu       sync.RWMutex
	entries  *ring[LogEntry]
	accepted levelSet
	bus      *EventBus
	now      func() time.Time
}

// NewLogStore creates a store holding at most maxEntries entries that accepts
// the given levels. Events are published on bus.
func NewLogStore(maxEntries int, levels []Level, bus *EventBus, now func() time.Time) *LogStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLogEntries
	}
	if now == nil {
		now = time.Now
	}
	return &LogStore{
		entries:  newRing[LogEntry](maxEntries),
		accepted: newLevelSet(levels),
		bus:      bus,
		now:      now,
	}
}

// Log appends an entry and returns its ID. When level is not accepted the call
// is a no-op returning "".
func (s *LogStore) Log(level Level, module, message string, data map[string]any) string {
	s.mu.RLock()
	ok := s.accepted.has(level)
	s.mu.RUnlock()
	if !ok {
		return ""
	}
	return s.append(level, module, message, data, "")
}

// logInternal appends regardless of the accepted levels. It is reserved for
// captured panics and unhandled async errors.
func (s *LogStore) logInternal(level Level, module, message string, data map[string]any, stack string) string {
	return s.append(level, module, message, data, stack)
}

func (s *LogStore) append(level Level, module, message string, data map[string]any, stack string) string {
	entry := LogEntry{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Level:     level,
		Message:   message,
		Module:    module,
		Data:      cloneData(data),
		Stack:     stack,
	}

	s.mu.Lock()
	s.entries.Push(entry)
	s.mu.Unlock()

	s.bus.Emit(EventLog, entry.clone())
	return entry.ID
}

// Clear empties the buffer and emits EventLogsCleared.
func (s *LogStore) Clear() {
	s.mu.Lock()
	s.entries.Reset()
	s.mu.Unlock()

	s.bus.Emit(EventLogsCleared, nil)
}

// PurgeOlderThan drops entries recorded before cutoff and returns how many
// were removed.
func (s *LogStore) PurgeOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Retain(func(e LogEntry) bool {
		return !e.Timestamp.Before(cutoff)
	})
}

// Configure replaces the capacity and the accepted levels. Shrinking keeps
// the newest entries.
func (s *LogStore) Configure(maxEntries int, levels []Level) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLogEntries
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Resize(maxEntries)
	s.accepted = newLevelSet(levels)
}

// Accepts reports whether Log would record an entry at level.
func (s *LogStore) Accepts(level Level) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accepted.has(level)
}

// Entries returns a copy of every entry, oldest first.
func (s *LogStore) Entries() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries.Items())
}

// Recent returns a copy of the newest n entries, oldest first.
func (s *LogStore) Recent(n int) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries.Last(n))
}

// Filter returns the entries matching f, oldest first.
func (s *LogStore) Filter(f LogFilter) []LogEntry {
	all := s.Entries()
	out := make([]LogEntry, 0, len(all))
	for _, e := range all {
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (s *LogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// countSince counts entries at level recorded at or after since.
func (s *LogStore) countSince(level Level, since time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries.Items() {
		if e.Level == level && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

// clone returns e with its own copy of Data, so callers can never reach the
// stored entry through a returned one.
func (e LogEntry) clone() LogEntry {
	e.Data = cloneData(e.Data)
	return e
}

func cloneEntries(entries []LogEntry) []LogEntry {
	for i := range entries {
		entries[i] = entries[i].clone()
	}
	return entries
}

// cloneData deep-copies nested maps and slices. Other values are copied
// as-is.
func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneData(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]string:
		return maps.Clone(v)
	case []string:
		return slices.Clone(v)
	}
	return v
}
