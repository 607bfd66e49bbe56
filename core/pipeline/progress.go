package pipeline

import (
	"sync"
	"time"
)

// Event kinds published to progress subscribers.
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventFile     = "file"
	EventDone     = "done"
	EventFailed   = "failed"
)

// Event is one progress update for an upload's running stage.
type Event struct {
	UploadID string    `json:"uploadId"`
	Stage    string    `json:"stage"`
	Kind     string    `json:"kind"`
	Percent  int       `json:"percent,omitempty"`
	File     string    `json:"file,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Time     time.Time `json:"time"`
}

// Hub fans progress events out to per-upload subscribers. Slow subscribers
// lose events rather than block the pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates a progress hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for an upload's events. The returned cancel func must
// be called when done; the channel is closed by it.
func (h *Hub) Subscribe(uploadID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	if h.subs[uploadID] == nil {
		h.subs[uploadID] = make(map[chan Event]struct{})
	}
	h.subs[uploadID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[uploadID]; ok {
			if _, stillThere := set[ch]; stillThere {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, uploadID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers of its upload.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.UploadID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
