package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
)

const (
	eventBuffer  = 16
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventHub pushes fired alerts to WebSocket clients. It implements
// alert.Notifier; Notify never blocks the detection loop and drops events
// when the broadcaster falls behind.
type EventHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	events  chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewEventHub creates an EventHub and starts its broadcaster.
func NewEventHub() *EventHub {
	h := &EventHub{
		clients: make(map[*websocket.Conn]bool),
		events:  make(chan []byte, eventBuffer),
		done:    make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// Notify implements alert.Notifier.
func (h *EventHub) Notify(e alert.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode alert event")
		return
	}

	select {
	case h.events <- msg:
	case <-h.done:
	default:
		log.Warn().Str("alert_id", e.ID).Msg("Event feed full, dropping alert")
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Close stops the broadcaster and disconnects every client.
func (h *EventHub) Close() {
	h.once.Do(func() {
		close(h.done)

		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
}

// broadcast sends queued events to all connected clients. Only this
// goroutine writes to the connections.
func (h *EventHub) broadcast() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.events:
			h.mu.RLock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Debug().Err(err).Msg("websocket write failed")
				}
			}
			h.mu.RUnlock()
		}
	}
}
