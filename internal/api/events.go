package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Live Event Feed ────────────────────────────────────────────────────────
// Committed engine operations are pushed to subscribers over Server-Sent
// Events. Each message is one JSON-encoded domain.Event:
//
//	event: joined
//	data: {"id":"...","type":"joined","challenge_id":1,...}

// EventHub fans engine events out to connected clients.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	dropped uint64
}

// NewEventHub creates a new event broadcast hub.
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[chan []byte]struct{}),
	}
}

// Publish sends an event to all connected clients. It has the signature of
// an engine event sink.
func (h *EventHub) Publish(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, drop message
			h.dropped++
		}
	}
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *EventHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were dropped for slow clients.
func (h *EventHub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// HandleEventsSSE serves the live event feed.
// GET /v1/events
func (h *EventHub) HandleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, unsub := h.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(data, &head)
			if head.Type != "" {
				w.Write([]byte("event: " + head.Type + "\n"))
			}
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
