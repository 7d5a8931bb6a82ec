package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seenimoa/chainpulse/internal/store"
	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; restrict in production
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// WebSocket message types.
const (
	MsgAggregate   = "aggregate"
	MsgSubscribe   = "subscribe"
	MsgSubscribed  = "subscribed"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgError       = "error"
)

// WSMessage is a message sent over WebSocket connections. Symbol, when set,
// limits delivery to clients subscribed to it.
type WSMessage struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// AggregateEvent is the payload of an "aggregate" message.
type AggregateEvent struct {
	ID        string              `json:"id"`
	Seq       int64               `json:"seq"`
	Aggregate models.AggregateRow `json:"aggregate"`
}

// SubscribeRequest is the payload of a "subscribe" or "unsubscribe" message.
type SubscribeRequest struct {
	Symbols []string `json:"symbols"`
}

// publishAggregate pushes a freshly ingested snapshot's aggregate row.
func (s *Server) publishAggregate(symbol string, rec store.Record, agg models.AggregateRow) {
	s.wsHub.Broadcast(WSMessage{
		Type:   MsgAggregate,
		Symbol: symbol,
		Data:   AggregateEvent{ID: rec.ID, Seq: rec.Seq, Aggregate: agg},
	})
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSHub manages WebSocket connections and message broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage

	mu      sync.RWMutex
	symbols map[string]bool // empty means every symbol
}

// NewWSClient creates a client attached to hub.
func NewWSClient(hub *WSHub) *WSClient {
	return &WSClient{hub: hub, send: make(chan WSMessage, 256), symbols: make(map[string]bool)}
}

// Subscribe narrows delivery to the given symbols and returns the canonical
// names accepted. Unknown symbols are ignored.
func (c *WSClient) Subscribe(symbols []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.symbols == nil {
		c.symbols = make(map[string]bool)
	}
	accepted := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if sym, ok := utils.NormalizeSymbol(s); ok {
			c.symbols[sym] = true
			accepted = append(accepted, sym)
		}
	}
	return accepted
}

// Unsubscribe drops symbols from the filter. With no symbols it clears the
// filter, so every symbol is delivered again.
func (c *WSClient) Unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(symbols) == 0 {
		c.symbols = make(map[string]bool)
		return
	}
	for _, s := range symbols {
		if sym, ok := utils.NormalizeSymbol(s); ok {
			delete(c.symbols, sym)
		}
	}
}

// Wants reports whether msg should be delivered to c.
func (c *WSClient) Wants(msg WSMessage) bool {
	if msg.Symbol == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[msg.Symbol]
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.Wants(msg) {
					continue
				}
				select {
				case client.send <- msg:
				default:
					// Slow client; drop the message
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}

// ============================================================
// Connection pumps
// ============================================================

// handleWebSocket upgrades HTTP connections to WebSocket and streams
// aggregate updates for ingested snapshots.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewWSClient(s.wsHub)
	s.wsHub.Register(client)
	s.svc.Metrics().WSClients.Inc()

	// Start reader and writer goroutines
	go wsWritePump(conn, client)
	go s.wsReadPump(conn, client)
}

// reply queues a direct response without blocking the read loop.
func reply(client *WSClient, msg WSMessage) {
	select {
	case client.send <- msg:
	default:
	}
}

// wsReadPump pumps messages from the WebSocket connection to the hub.
func (s *Server) wsReadPump(conn *websocket.Conn, client *WSClient) {
	defer func() {
		client.hub.Unregister(client)
		s.svc.Metrics().WSClients.Dec()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			break
		}

		var msg struct {
			Type string           `json:"type"`
			Data SubscribeRequest `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			reply(client, WSMessage{Type: MsgError, Data: "invalid message"})
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			reply(client, WSMessage{Type: MsgSubscribed, Data: SubscribeRequest{Symbols: client.Subscribe(msg.Data.Symbols)}})
		case MsgUnsubscribe:
			client.Unsubscribe(msg.Data.Symbols)
		case MsgPing:
			reply(client, WSMessage{Type: MsgPong})
		}
	}
}

// wsWritePump pumps messages from the hub to the WebSocket connection.
func wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
