package telemetry

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventPollStarted    EventType = "poll.started"
	EventPollAttempt    EventType = "poll.attempt"
	EventPollAccepted   EventType = "poll.accepted"
	EventPollTimeout    EventType = "poll.timeout"
	EventPollFailed     EventType = "poll.failed"
	EventPollCancelled  EventType = "poll.cancelled"
	EventSiteEntered    EventType = "site.entered"
	EventSiteExited     EventType = "site.exited"
	EventLatencyChanged EventType = "site.latency_changed"
)

// DefaultSubscriberChannelSize is the buffer given to each subscriber.
const DefaultSubscriberChannelSize = 64

// Event describes polling telemetry that loggers, metrics and tests consume.
type Event struct {
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	SessionID    string         `json:"sessionId,omitempty"`
	InvocationID string         `json:"invocationId,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// NewInvocationID returns a time-ordered identifier for one finder call.
func NewInvocationID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Event)}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Drop if subscriber can't keep up; a poll loop must never block here.
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch, id := h.SubscribeWithID()
	return ch, func() { h.Unsubscribe(id) }
}

// SubscribeWithID registers a subscriber and returns its channel and ID.
func (h *Hub) SubscribeWithID() (<-chan Event, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, ""
	}
	id := uuid.NewString()
	ch := make(chan Event, DefaultSubscriberChannelSize)
	h.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
