package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/netrecon/internal/api/middleware"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/scanning"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriodRatio = 0.9
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio)
	maxMessageSize  = 512
	bufferSize      = 256
	clientQueue     = 64

	// MessageScanProgress is the type of progress messages.
	MessageScanProgress = "scan_progress"
)

// WebSocketMessage represents a WebSocket message structure.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type outbound struct {
	scanID  string
	payload []byte
}

// client is one connection. A non-empty scanID limits it to that scan.
type client struct {
	conn   *websocket.Conn
	scanID string
	send   chan []byte
}

// WebSocketHandler streams scan progress to connected clients.
type WebSocketHandler struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

// NewWebSocketHandler creates the hub and starts its loop.
func NewWebSocketHandler() *WebSocketHandler {
	h := &WebSocketHandler{
		logger: logging.WithComponent("api").WithFields("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, bufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
	}
	go h.run()
	return h
}

// ScanWebSocket handles GET /api/v1/ws. ?scan_id= restricts the stream to
// one scan.
func (h *WebSocketHandler) ScanWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := &client{conn: conn, scanID: r.URL.Query().Get("scan_id"), send: make(chan []byte, clientQueue)}
	select {
	case h.register <- c:
	case <-h.shutdown:
		_ = conn.Close()
		return
	}
	h.logger.Debug("WebSocket client connected", "request_id", requestID, "scan_id", c.scanID)

	go h.writePump(c)
	h.readPump(c)
}

// ScanProgress queues p for every subscribed client. It never blocks the
// scan; when the queue is full the update is dropped.
func (h *WebSocketHandler) ScanProgress(p scanning.Progress) {
	data, err := json.Marshal(WebSocketMessage{
		Type:      MessageScanProgress,
		Timestamp: p.Time.UTC(),
		Data:      p,
	})
	if err != nil {
		h.logger.Error("Failed to marshal progress", "error", err)
		return
	}

	select {
	case h.broadcast <- outbound{scanID: p.ScanID, payload: data}:
	case <-h.shutdown:
	default:
		h.logger.Warn("Broadcast channel full, dropping progress", "scan_id", p.ScanID)
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and stops the hub.
func (h *WebSocketHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}

func (h *WebSocketHandler) run() {
	for {
		select {
		case <-h.shutdown:
			h.mutex.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mutex.Unlock()
			h.logger.Debug("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			h.mutex.Unlock()

		case c := <-h.unregister:
			h.mutex.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for c := range h.clients {
				if c.scanID != "" && c.scanID != msg.scanID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					h.logger.Debug("Client too slow, disconnecting")
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *WebSocketHandler) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (h *WebSocketHandler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
