// Package events provides in-process publish/subscribe of run progress
// events, scoped to a session id. Delivery is best-effort: handlers run
// synchronously in publish order and must not block.
package events

import (
	"sync"
	"time"
)

// Event names emitted by the core.
const (
	AgentStart      = "agent:start"
	AgentPlanning   = "agent:planning"
	AgentPlanReady  = "agent:plan_ready"
	AgentExecuting  = "agent:executing"
	AgentReviewing  = "agent:reviewing"
	AgentReviewDone = "agent:review_done"
	AgentDone       = "agent:done"
	AgentError      = "agent:error"
	ToolExecuted    = "tool:executed"
)

// Event is one progress notification bound to a session.
type Event struct {
	Name      string    `json:"event"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives events for a subscribed session.
type Handler func(Event)

type subscriber struct {
	id      int
	handler Handler
}

// Bus fans events out to session-scoped subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// Subscribe registers a handler for a session's events and returns an
// unsubscribe function.
func (b *Bus) Subscribe(sessionID string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[sessionID] = append(b.subs[sessionID], subscriber{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[sessionID]
		for i, s := range list {
			if s.id == id {
				b.subs[sessionID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
	}
}

// Publish delivers an event to every subscriber of its session, in
// registration order. Handlers are invoked synchronously, so publish
// order is preserved per subscriber.
func (b *Bus) Publish(sessionID, name string, data any) {
	ev := Event{
		Name:      name,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	list := make([]subscriber, len(b.subs[sessionID]))
	copy(list, b.subs[sessionID])
	b.mu.RUnlock()

	for _, s := range list {
		s.handler(ev)
	}
}

// SubscriberCount returns the number of subscribers for a session.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
