package failover

import (
	"sync"
	"time"

	"github.com/prilive-com/enflux/source"
)

// DefaultHistorySize bounds the in-memory event log.
const DefaultHistorySize = 200

// Event is one immutable record in the failover log: what happened to one
// candidate during one request walk.
type Event struct {
	Time      time.Time     `json:"time"`
	RequestID string        `json:"requestId"`
	DataType  string        `json:"dataType"`
	SourceID  string        `json:"sourceId"`
	Reason    source.Reason `json:"reason"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// Stats aggregates the event log for the status API.
type Stats struct {
	Total       int `json:"total"`
	Successes   int `json:"successes"`
	RateLimited int `json:"rateLimited"`
	CircuitOpen int `json:"circuitOpen"`
	Timeouts    int `json:"timeouts"`
	Errors      int `json:"errors"`
	Inactive    int `json:"inactive"`
}

// History is the bounded, append-only failover log. Oldest events are
// evicted once capacity is reached; counters cover the log's lifetime.
type History struct {
	mu     sync.RWMutex
	events []Event
	next   int
	filled bool
	stats  Stats
}

// NewHistory creates a history retaining up to capacity events.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{events: make([]Event, 0, capacity)}
}

// Append records an event.
func (h *History) Append(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.events) < cap(h.events) {
		h.events = append(h.events, e)
	} else {
		h.events[h.next] = e
		h.next = (h.next + 1) % len(h.events)
		h.filled = true
	}

	h.stats.Total++
	switch e.Reason {
	case source.ReasonSuccess:
		h.stats.Successes++
	case source.ReasonRateLimited:
		h.stats.RateLimited++
	case source.ReasonCircuitOpen:
		h.stats.CircuitOpen++
	case source.ReasonTimeout:
		h.stats.Timeouts++
	case source.ReasonInactive:
		h.stats.Inactive++
	default:
		h.stats.Errors++
	}
}

// Recent returns up to n events, most recent last.
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ordered := h.ordered()
	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	out := make([]Event, len(ordered))
	copy(out, ordered)
	return out
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Stats returns lifetime counters.
func (h *History) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// Prune drops retained events older than cutoff. Lifetime counters are kept.
func (h *History) Prune(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := make([]Event, 0, cap(h.events))
	for _, e := range h.ordered() {
		if !e.Time.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(h.events) - len(kept)
	h.events = kept
	h.next = 0
	h.filled = false
	return removed
}

// ordered returns retained events oldest-first. Caller holds h.mu.
func (h *History) ordered() []Event {
	if !h.filled {
		return h.events
	}
	out := make([]Event, 0, len(h.events))
	out = append(out, h.events[h.next:]...)
	out = append(out, h.events[:h.next]...)
	return out
}
