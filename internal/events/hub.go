// Package events broadcasts entity lifecycle events to connected
// WebSocket clients (the admin dashboard). Dispute message delivery is
// deliberately not pushed; clients poll the thread endpoint.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/tradepost/escrow-engine/internal/metrics"
	"github.com/tradepost/escrow-engine/internal/model"
)

// Event is a JSON message sent to connected clients.
type Event struct {
	Type     string `json:"type"` // "order", "payout", "dispute"
	EntityID string `json:"entity_id"`
	Status   string `json:"status,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// Hub manages WebSocket connections and fans events out to all of them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("event client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all connected clients. Drops the event when
// the buffer is full so money movement never blocks on slow dashboards.
func (h *Hub) Broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// OrderStatus broadcasts an order transition.
func (h *Hub) OrderStatus(orderID string, status model.OrderStatus, amount decimal.Decimal) {
	h.Broadcast(Event{Type: "order", EntityID: orderID, Status: string(status), Amount: amount.String()})
}

// PayoutStatus broadcasts a payout transition.
func (h *Hub) PayoutStatus(payoutID string, status model.PayoutStatus, amount decimal.Decimal) {
	h.Broadcast(Event{Type: "payout", EntityID: payoutID, Status: string(status), Amount: amount.String()})
}

// DisputeStatus broadcasts a dispute transition.
func (h *Hub) DisputeStatus(disputeID string, status model.DisputeStatus) {
	h.Broadcast(Event{Type: "dispute", EntityID: disputeID, Status: string(status)})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
