package market

import "sync"

// PriceSnapshot captures every tracked symbol's price at one instant.
type PriceSnapshot struct {
	TimestampMs int64              `json:"timestampMs"`
	Prices      map[string]float64 `json:"prices"`
}

// History is a fixed-capacity ring of price snapshots. Recording past
// capacity evicts the oldest entry; reads return chronological order.
type History struct {
	mu    sync.Mutex
	buf   []PriceSnapshot
	start int
	count int
}

// NewHistory returns a ring holding at most capacity snapshots.
// Non-positive capacities fall back to a single slot.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]PriceSnapshot, capacity)}
}

// Record appends a snapshot, evicting the oldest at capacity.
func (h *History) Record(s PriceSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = s
		h.count++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Snapshots returns the retained snapshots oldest first.
func (h *History) Snapshots() []PriceSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PriceSnapshot, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len reports the number of retained snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Capacity reports the ring's fixed size.
func (h *History) Capacity() int { return len(h.buf) }
