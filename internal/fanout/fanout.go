// Package fanout implements the Event Fan-out (C8): a publisher delivers a
// domain.Result to every eligible subscriber's outbound buffer using a
// non-blocking try-send, dropping the event for that subscriber alone (and
// counting it) rather than ever blocking the publisher.
package fanout

import (
	"sync"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

// DropCounter receives a notification whenever an event is dropped for a
// full subscriber buffer, so the caller can feed it into the metrics
// aggregator without this package importing it directly.
type DropCounter interface {
	EventDropped(subscriberID string)
}

// Subscription is a single registered listener: its eligibility profile plus
// the bounded channel events are delivered on.
type Subscription struct {
	ID         string
	Subscriber *domain.Subscriber
	events     chan *domain.Result
	closeOnce  sync.Once
}

// Events returns the channel the subscriber should range over.
func (s *Subscription) Events() <-chan *domain.Result {
	return s.events
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.events) })
}

// Hub owns the subscriber registry and performs delivery.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	dropped DropCounter
}

// New builds an empty Hub. dropped may be nil, in which case drop counts are
// silently discarded (used by tests that don't exercise metrics).
func New(dropped DropCounter) *Hub {
	return &Hub{subs: make(map[string]*Subscription), dropped: dropped}
}

// Subscribe registers subscriber with an outbound buffer of size bufferSize
// and returns the Subscription the caller reads from.
func (h *Hub) Subscribe(id string, subscriber *domain.Subscriber, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	sub := &Subscription{ID: id, Subscriber: subscriber, events: make(chan *domain.Result, bufferSize)}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes id from the registry and closes its channel. Safe to
// call more than once for the same id.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers result to every subscriber eligible for kind, per §4.8:
// eligibility requires view_monitoring permission and group membership
// matching kind or the global group. Delivery never blocks: a full buffer
// is a drop, counted per subscriber, and the publish continues to the next
// subscriber. Events from one Publish call are offered to each subscriber
// in the order Publish is called by that goroutine; there is no ordering
// guarantee across concurrent Publish callers.
func (h *Hub) Publish(kind domain.TargetKind, result *domain.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.Subscriber.Eligible(kind) {
			continue
		}
		select {
		case sub.events <- result:
		default:
			if h.dropped != nil {
				h.dropped.EventDropped(sub.ID)
			}
		}
	}
}

// Close tears down every subscription. Intended for worker shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
}

// Count reports the number of registered subscribers, for diagnostics.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
