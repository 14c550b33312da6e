package status

import (
	"sync"

	"eventbell/internal/reminder"
)

// History is a bounded ring of run summaries.
type History struct {
	mu    sync.Mutex
	items []reminder.Summary
	size  int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 50
	}
	return &History{size: size}
}

func (h *History) Add(s reminder.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, s)
	if over := len(h.items) - h.size; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
}

// List returns summaries newest first.
func (h *History) List() []reminder.Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]reminder.Summary, len(h.items))
	for i, s := range h.items {
		out[len(h.items)-1-i] = s
	}
	return out
}

func (h *History) Last() (reminder.Summary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return reminder.Summary{}, false
	}
	return h.items[len(h.items)-1], true
}
