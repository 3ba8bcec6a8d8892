package domain

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity is the number of strikes retained for storm analytics.
const DefaultHistoryCapacity = 2000

// History is a fixed-capacity, thread-safe ring buffer of strikes in
// insertion order. When the buffer is full the oldest strike is evicted.
// History has no notion of "now"; every time comparison is parameterized.
type History struct {
	mu    sync.RWMutex
	items []Strike
	cap   int
	head  int // index of the oldest element
	count int
}

// NewHistory creates a History with the given capacity (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		items: make([]Strike, capacity),
		cap:   capacity,
	}
}

// Record appends a strike, overwriting the oldest one if the buffer is full.
func (h *History) Record(s Strike) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == h.cap {
		h.items[h.head] = s
		h.head = (h.head + 1) % h.cap
		return
	}
	h.items[(h.head+h.count)%h.cap] = s
	h.count++
}

// Since returns all strikes with OccurredAt >= now-window, in insertion order.
func (h *History) Since(now time.Time, window time.Duration) []Strike {
	cutoff := now.Add(-window)
	return h.filter(func(s Strike) bool {
		return !s.OccurredAt.Before(cutoff)
	})
}

// Slice returns all strikes with start <= OccurredAt <= end, in insertion order.
func (h *History) Slice(start, end time.Time) []Strike {
	return h.filter(func(s Strike) bool {
		return !s.OccurredAt.Before(start) && !s.OccurredAt.After(end)
	})
}

// all returns every retained strike, oldest first.
func (h *History) all() []Strike {
	return h.filter(func(Strike) bool { return true })
}

// Len returns the number of strikes currently retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity of the buffer.
func (h *History) Cap() int {
	return h.cap
}

func (h *History) filter(keep func(Strike) bool) []Strike {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Strike
	for i := 0; i < h.count; i++ {
		s := h.items[(h.head+i)%h.cap]
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
