package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/godlewis/process-list/internal/cache"
	"github.com/godlewis/process-list/internal/refresh"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks belong at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// refreshMessage mirrors one finished refresh attempt.
type refreshMessage struct {
	Event   string    `json:"event"` // always "refresh"
	OK      bool      `json:"ok"`
	Trigger string    `json:"trigger"`
	Records int       `json:"records"`
	TookMS  int64     `json:"took_ms"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

// validityMessage is sent once when a client connects.
type validityMessage struct {
	Event string         `json:"event"` // always "validity"
	Data  cache.Validity `json:"data"`
}

// Hub manages WebSocket clients and pushes a message for every completed
// refresh attempt, successful or not.
type Hub struct {
	cache *cache.Cache
	log   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub reading validity snapshots from c.
func New(c *cache.Cache, log *slog.Logger) *Hub {
	return &Hub{
		cache:   c,
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Run consumes refresh results and broadcasts them to all connected
// clients. It blocks until ctx is cancelled or results closes, then
// closes all active connections.
func (h *Hub) Run(ctx context.Context, results <-chan refresh.Result) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case res, ok := <-results:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(res)
		}
	}
}

// ServeHTTP upgrades the connection and serves the client. The current
// validity report is sent immediately on connect so consumers have state
// before the first refresh lands. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := json.Marshal(validityMessage{Event: "validity", Data: h.cache.Validity()}); err == nil {
		h.trySend(c, data)
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// trySend queues data for c unless it has been unregistered or its buffer
// is full.
func (h *Hub) trySend(c *client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) broadcast(res refresh.Result) {
	msg := refreshMessage{
		Event:   "refresh",
		OK:      res.Err == nil,
		Trigger: string(res.Trigger),
		Records: len(res.Records),
		TookMS:  res.Took.Milliseconds(),
		At:      res.At,
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	// Sends stay under the read lock: close only happens under the write
	// lock, so no channel in the map can be closed mid-send.
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// Outgoing buffer full, disconnect the laggards.
	for _, c := range slow {
		h.unregister(c)
		h.log.Debug("dropped slow websocket client")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel into the connection and
// sends periodic pings. Runs in its own goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel closed: hub shutdown or client removed.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes frames to process pong/close control messages and
// detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
