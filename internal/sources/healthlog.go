package sources

import (
	"sync"
	"time"
)

const (
	healthLogCapacity = 100
	healthLogMaxAge   = time.Hour
)

// HealthSnapshot is a point-in-time view of an adapter's fitness to serve.
type HealthSnapshot struct {
	Available                bool       `json:"available"`
	LastSuccessfulExtraction *time.Time `json:"lastSuccessfulExtraction,omitempty"`
	RecentFailureRate        float64    `json:"recentFailureRate"`
	EstimatedReliability     float64    `json:"estimatedReliability"`
	StatusMessage            string     `json:"statusMessage,omitempty"`
}

type healthEvent struct {
	at      time.Time
	success bool
}

// HealthLog is a rolling record of extraction outcomes. It keeps at most the
// 100 most recent events and drops anything older than one hour, so failure
// rates reflect current behavior rather than ancient history.
type HealthLog struct {
	mu     sync.Mutex
	events []healthEvent
	now    func() time.Time
}

// NewHealthLog returns an empty log.
func NewHealthLog() *HealthLog {
	return &HealthLog{now: time.Now}
}

// Record appends an extraction outcome.
func (h *HealthLog) Record(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, healthEvent{at: h.now(), success: success})
	h.pruneLocked()
}

// FailureRate returns the fraction of recent events that failed. An empty
// window reads as zero failures.
func (h *HealthLog) FailureRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked()
	if len(h.events) == 0 {
		return 0
	}
	failed := 0
	for _, ev := range h.events {
		if !ev.success {
			failed++
		}
	}
	return float64(failed) / float64(len(h.events))
}

// LastSuccess returns the time of the most recent successful extraction still
// inside the window.
func (h *HealthLog) LastSuccess() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].success {
			return h.events[i].at, true
		}
	}
	return time.Time{}, false
}

// Len reports how many events remain in the window.
func (h *HealthLog) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pruneLocked()
	return len(h.events)
}

// pruneLocked enforces the age and capacity bounds. Caller holds mu.
func (h *HealthLog) pruneLocked() {
	cutoff := h.now().Add(-healthLogMaxAge)
	start := 0
	for start < len(h.events) && h.events[start].at.Before(cutoff) {
		start++
	}
	if over := (len(h.events) - start) - healthLogCapacity; over > 0 {
		start += over
	}
	if start > 0 {
		h.events = append(h.events[:0], h.events[start:]...)
	}
}
