package realtime

import (
	"context"
	"log"
	"sync"

	"live-shopping-platform/internal/broker"
	"live-shopping-platform/internal/metrics"
	"live-shopping-platform/internal/models"
)

// Hub is the per-session publish/subscribe registry. Publish is invoked
// while the caller holds the session's mutation lock, so events reach each
// subscriber's queue in commit order; the queues themselves are FIFO, so no
// subscriber ever observes event N+1 before N.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Subscriber]struct{}

	relay      broker.Relay
	instanceID string
}

// NewHub creates an empty broadcast hub
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]map[*Subscriber]struct{}),
	}
}

// SetRelay attaches a cross-instance relay. Must be called before any
// publish or subscribe traffic.
func (h *Hub) SetRelay(relay broker.Relay, instanceID string) {
	h.relay = relay
	h.instanceID = instanceID
}

// StartRelay begins consuming events published by other instances
func (h *Hub) StartRelay(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.Subscribe(ctx, func(env broker.Envelope) {
		if env.Instance == h.instanceID {
			return
		}
		h.deliver(env.Event.SessionID, env.Event)
	})
}

// Subscribe registers a subscriber for its session. Subscribing to a session
// that does not exist yet is legal, and re-subscribing the same connection
// is a no-op.
func (h *Hub) Subscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.sessions[sub.SessionID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.sessions[sub.SessionID] = subs
	}
	if _, exists := subs[sub]; exists {
		return
	}
	subs[sub] = struct{}{}
	metrics.ActiveSubscribers.Inc()
	metrics.TotalSubscribers.Inc()
}

// Unsubscribe removes a subscriber from the registry
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	subs, ok := h.sessions[sub.SessionID]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.sessions, sub.SessionID)
	}
	metrics.ActiveSubscribers.Dec()
}

// Publish delivers an event to every current subscriber of the session and
// forwards it to other instances when a relay is attached.
func (h *Hub) Publish(sessionID int64, event models.Event) {
	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	h.deliver(sessionID, event)

	if h.relay != nil {
		env := broker.Envelope{Instance: h.instanceID, Event: event}
		if err := h.relay.Publish(context.Background(), env); err != nil {
			log.Printf("Failed to relay %s event for session %d: %v", event.Type, sessionID, err)
		}
	}
}

func (h *Hub) deliver(sessionID int64, event models.Event) {
	h.mu.RLock()
	var stalled []*Subscriber
	for sub := range h.sessions[sessionID] {
		if !sub.enqueue(event) {
			stalled = append(stalled, sub)
		}
	}
	h.mu.RUnlock()

	// A subscriber that cannot keep up would otherwise stall the session's
	// queue and grow without bound; drop the connection and let the client
	// reconnect for a fresh SYNC.
	for _, sub := range stalled {
		log.Printf("Evicting slow subscriber %s from session %d", sub.ID, sessionID)
		metrics.SubscribersEvicted.Inc()
		h.Unsubscribe(sub)
		sub.Close()
	}
}

// SubscriberCount reports how many subscribers a session currently has
func (h *Hub) SubscriberCount(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
