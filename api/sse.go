// Package api implements the HTTP surface (spec.md §6): webhook ingress,
// SSE egress, and admin routes, using gin the way the teacher's own HTTP
// layer does (gin.Engine, c.JSON/c.SSEvent, route groups).
package api

import (
	"sync"

	"github.com/synapsetrade/core/events"
)

// subscriber is one connected SSE client's outbound channel.
type subscriber chan any

// Broadcaster is the per-user SSE fan-out registry: events.Emitter publishes
// into it, and each connected /stream request drains its own subscriber
// channel. Grounded on the common gin SSE pattern of one buffered channel
// per client registered under a user id.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[int64]map[subscriber]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int64]map[subscriber]struct{})}
}

// Subscribe registers a new client channel for userID and returns it plus
// an unsubscribe func the handler must defer.
func (b *Broadcaster) Subscribe(userID int64) (subscriber, func()) {
	ch := make(subscriber, 32)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[subscriber]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs[userID], ch)
		b.mu.Unlock()
		close(ch)
	}
}

func (b *Broadcaster) publish(userID int64, event any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[userID] {
		select {
		case ch <- event:
		default:
			// Slow consumer: drop rather than block the emitter (spec.md
			// §5 "SSE fan-out never blocks order execution").
		}
	}
}

func (b *Broadcaster) PublishOrderEvent(userID int64, e events.OrderEvent) {
	b.publish(userID, e)
}

func (b *Broadcaster) PublishPositionEvent(userID int64, e events.PositionEvent) {
	b.publish(userID, e)
}

func (b *Broadcaster) PublishBatchEvent(userID int64, e events.OrderBatchEvent) {
	b.publish(userID, e)
}

var _ events.Sink = (*Broadcaster)(nil)
