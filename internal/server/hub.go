package server

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vcsawant/bughouse-sub000/internal/game"
)

// subscriberBuffer is the per-observer send queue depth. An observer that
// falls this far behind starts losing frames rather than stalling the game.
const subscriberBuffer = 32

// Hub fans session events out to websocket observers. Broadcast never
// blocks: each subscriber has a bounded queue and slow subscribers drop
// frames.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	send chan []byte
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Broadcast marshals the event once and queues it to every subscriber.
// Safe to hand directly to Session.BroadcastFn.
func (h *Hub) Broadcast(ev game.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Error("failed marshaling broadcast event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			// Subscriber is not keeping up; drop the frame.
		}
	}
}

// subscribe attaches a new observer and returns its receive queue.
func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.send)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// unsubscribe detaches an observer and closes its queue.
func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
}

// Close detaches all observers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.send)
	}
	h.subs = make(map[*subscriber]struct{})
}
