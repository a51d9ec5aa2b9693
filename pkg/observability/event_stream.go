package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SubscribeMessage changes the event types a client receives. An empty list
// with action "subscribe" means every type.
type SubscribeMessage struct {
	Action     string   `json:"action"` // "subscribe" or "unsubscribe"
	EventTypes []string `json:"event_types,omitempty"`
}

// EventStream relays telemetry hub events to websocket clients.
type EventStream struct {
	hub    *telemetry.Hub
	logger *logging.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	upgrader    websocket.Upgrader
}

type subscriber struct {
	conn   *websocket.Conn
	hubID  string
	events <-chan telemetry.Event

	mu         sync.RWMutex
	subscribed bool
	eventTypes map[telemetry.EventType]bool
	writeMu    sync.Mutex
	done       chan struct{}
	closeOnce  sync.Once
}

// NewEventStream creates a stream over hub.
func NewEventStream(hub *telemetry.Hub, logger *logging.Logger) *EventStream {
	return &EventStream{
		hub:         hub,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWebSocket upgrades the request and streams events until either side
// closes. The optional "types" query parameter is a comma separated filter.
func (s *EventStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "telemetry disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(logging.CategoryCLI, "events.upgrade_failed", err.Error(), map[string]any{"remote_addr": r.RemoteAddr})
		return
	}

	events, hubID := s.hub.SubscribeWithID()
	sub := &subscriber{
		conn:       conn,
		hubID:      hubID,
		events:     events,
		subscribed: true,
		eventTypes: parseTypes(r.URL.Query().Get("types")),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug(logging.CategoryCLI, "events.connected", "event stream client connected", map[string]any{"remote_addr": r.RemoteAddr})

	go s.writePump(sub)
	go s.readPump(sub)
}

func parseTypes(raw string) map[telemetry.EventType]bool {
	types := make(map[telemetry.EventType]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types[telemetry.EventType(part)] = true
		}
	}
	return types
}

func (s *EventStream) readPump(sub *subscriber) {
	defer s.remove(sub)

	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg SubscribeMessage
		if err := sub.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn(logging.CategoryCLI, "events.read_failed", err.Error(), nil)
			}
			return
		}
		switch msg.Action {
		case "subscribe":
			sub.mu.Lock()
			sub.subscribed = true
			for _, t := range msg.EventTypes {
				sub.eventTypes[telemetry.EventType(t)] = true
			}
			sub.mu.Unlock()
		case "unsubscribe":
			sub.mu.Lock()
			sub.subscribed = false
			sub.eventTypes = make(map[telemetry.EventType]bool)
			sub.mu.Unlock()
		default:
			s.logger.Warn(logging.CategoryCLI, "events.unknown_action", "unknown event stream action", map[string]any{"action": msg.Action})
		}
	}
}

func (s *EventStream) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.remove(sub)
	}()

	for {
		select {
		case event, ok := <-sub.events:
			if !ok {
				sub.write(websocket.CloseMessage, nil)
				return
			}
			if !sub.wants(event.Type) {
				continue
			}
			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := sub.conn.WriteJSON(event)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := sub.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

func (sub *subscriber) wants(t telemetry.EventType) bool {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	return sub.subscribed && (len(sub.eventTypes) == 0 || sub.eventTypes[t])
}

func (sub *subscriber) write(messageType int, data []byte) error {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sub.conn.WriteMessage(messageType, data)
}

func (s *EventStream) remove(sub *subscriber) {
	sub.closeOnce.Do(func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		close(sub.done)
		s.hub.Unsubscribe(sub.hubID)
		sub.writeMu.Lock()
		sub.conn.Close()
		sub.writeMu.Unlock()
	})
}

// ActiveConnections returns the number of connected clients.
func (s *EventStream) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Shutdown disconnects every client.
func (s *EventStream) Shutdown() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		s.remove(sub)
	}
}
