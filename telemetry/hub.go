package telemetry

import (
	"log/slog"
	"sync"

	"github.com/gogpu/stage/internal/logging"
)

// Listener receives events. Listeners run synchronously on the publishing
// goroutine and must not block.
type Listener func(Event)

// Hub fans events out to listeners. A nil *Hub discards every event.
// Hub is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	log       *slog.Logger
	listeners map[uint64]Listener
	next      uint64
	published uint64
	panics    uint64
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		log:       logging.Component(logger, "telemetry"),
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is idempotent.
func (h *Hub) Subscribe(fn Listener) (unsubscribe func()) {
	if h == nil || fn == nil {
		return func() {}
	}

	h.mu.Lock()
	h.next++
	id := h.next
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers e to every listener. A panicking listener is recovered
// and logged; the remaining listeners still receive the event.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}

	h.mu.Lock()
	h.published++
	snapshot := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		snapshot = append(snapshot, fn)
	}
	h.mu.Unlock()

	for _, fn := range snapshot {
		h.deliver(fn, e)
	}
}

// Len returns the number of subscribed listeners.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Published returns the number of events published.
func (h *Hub) Published() uint64 {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.published
}

func (h *Hub) deliver(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.mu.Lock()
			h.panics++
			h.mu.Unlock()
			h.log.Warn("telemetry listener panicked",
				slog.String("kind", e.Kind.String()),
				slog.Any("panic", r))
		}
	}()
	fn(e)
}
