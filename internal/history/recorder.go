package history

import (
	"sort"
	"sync"
	"time"

	"sosinternet/internal/models"
)

const (
	defaultStatusCap = 2048
	maxStatusCap     = 100000
	defaultEventCap  = 1000
)

// Recorder keeps the recent connection statuses and watchdog events in memory.
// It satisfies the watchdog sink interface.
type Recorder struct {
	maxStatuses int
	maxEvents   int

	mu       sync.RWMutex
	latest   *models.ConnectionStatus
	statuses []models.ConnectionStatus
	events   []models.Event
}

// CapacityFor sizes the status history so that retention days of checks at
// the given interval fit, plus a small buffer.
func CapacityFor(interval time.Duration, retentionDays int) int {
	if interval <= 0 || retentionDays <= 0 {
		return defaultStatusCap
	}
	slots := int((time.Duration(retentionDays) * 24 * time.Hour) / interval)
	slots += 128
	if slots < defaultStatusCap {
		return defaultStatusCap
	}
	if slots > maxStatusCap {
		return maxStatusCap
	}
	return slots
}

// NewRecorder creates a recorder. Non-positive capacities use the defaults.
func NewRecorder(maxStatuses, maxEvents int) *Recorder {
	if maxStatuses <= 0 {
		maxStatuses = defaultStatusCap
	}
	if maxEvents <= 0 {
		maxEvents = defaultEventCap
	}
	return &Recorder{maxStatuses: maxStatuses, maxEvents: maxEvents}
}

// Emit records an event and, when it carries one, the connection status.
func (r *Recorder) Emit(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	if len(r.events) > r.maxEvents {
		r.events = r.events[len(r.events)-r.maxEvents:]
	}

	if ev.Status == nil {
		return
	}
	status := *ev.Status
	if status.Timestamp.IsZero() {
		status.Timestamp = ev.Time
	}
	r.latest = &status
	r.statuses = append(r.statuses, status)
	if len(r.statuses) > r.maxStatuses {
		r.statuses = r.statuses[len(r.statuses)-r.maxStatuses:]
	}
}

// Latest returns the most recent connection status.
func (r *Recorder) Latest() (models.ConnectionStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return models.ConnectionStatus{}, false
	}
	return *r.latest, true
}

// History returns a copy of every retained status, oldest first.
func (r *Recorder) History() []models.ConnectionStatus {
	return r.HistorySince(time.Time{})
}

// HistorySince returns statuses whose timestamp is >= cutoff.
func (r *Recorder) HistorySince(cutoff time.Time) []models.ConnectionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := 0
	if !cutoff.IsZero() {
		idx = sort.Search(len(r.statuses), func(i int) bool {
			return !r.statuses[i].Timestamp.Before(cutoff)
		})
	}
	if idx >= len(r.statuses) {
		return nil
	}
	out := make([]models.ConnectionStatus, len(r.statuses)-idx)
	copy(out, r.statuses[idx:])
	return out
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns all of them.
func (r *Recorder) Events(limit int) []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if limit > 0 && len(r.events) > limit {
		start = len(r.events) - limit
	}
	if start >= len(r.events) {
		return nil
	}
	out := make([]models.Event, len(r.events)-start)
	copy(out, r.events[start:])
	return out
}
