// Package notify implements the in-process change notifier that keeps
// independent library surfaces in sync without polling.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/quill/internal/models"
)

// Kind is the type of library mutation.
type Kind string

const (
	KindSaved   Kind = "saved"
	KindDeleted Kind = "deleted"
)

// Event describes one committed library mutation.
type Event struct {
	Kind     Kind            `json:"kind"`
	Category models.Category `json:"category"`
	ID       string          `json:"id"`
}

// Callback receives events. It runs on the publishing goroutine.
type Callback func(Event)

type pending struct {
	event   Event
	targets []uint64
}

// Hub fans events out to subscribers.
//
// Delivery model: the first Publish on an idle hub becomes the dispatcher and
// drains the queue; publishes made meanwhile (including from inside a
// callback) are only queued. Each event is delivered to the subscribers that
// were registered when it was published and are still registered when its
// turn comes, exactly once each.
type Hub struct {
	logger *slog.Logger

	mu          sync.Mutex
	nextID      uint64
	subs        map[uint64]Callback
	queue       []pending
	dispatching bool
}

// NewHub creates an empty hub. A nil logger discards callback panics silently.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[uint64]Callback),
	}
}

// Subscribe registers cb and returns a function that removes it.
// The returned function is idempotent and safe to call from inside a callback.
func (h *Hub) Subscribe(cb Callback) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = cb
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers e to the current subscribers. It returns once the queue
// is drained, or immediately when another dispatch is already in progress.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	targets := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		targets = append(targets, id)
	}
	h.queue = append(h.queue, pending{event: e, targets: targets})
	if h.dispatching {
		h.mu.Unlock()
		return
	}
	h.dispatching = true

	for len(h.queue) > 0 {
		p := h.queue[0]
		h.queue = h.queue[1:]
		for _, id := range p.targets {
			cb, ok := h.subs[id]
			if !ok {
				continue
			}
			h.mu.Unlock()
			h.deliver(cb, p.event)
			h.mu.Lock()
		}
	}

	h.dispatching = false
	h.queue = nil
	h.mu.Unlock()
}

func (h *Hub) deliver(cb Callback, e Event) {
	defer func() {
		if r := recover(); r != nil && h.logger != nil {
			h.logger.Error("notify: subscriber panicked",
				slog.String("event", string(e.Kind)),
				slog.String("id", e.ID),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	cb(e)
}
