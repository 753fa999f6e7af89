package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gsis-platform/gsis-dashboard/internal/appstate"
	"github.com/gsis-platform/gsis-dashboard/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is handled by the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is a message from a dashboard client. Only key events are
// accepted; everything else is dropped.
type inbound struct {
	Type        string `json:"type"`
	Key         string `json:"key"`
	InTextInput bool   `json:"in_text_input"`
}

// Hub fans facade state events out to connected dashboard clients and
// feeds key events from clients into the subscribed handler. It implements
// appstate.KeySource.
type Hub struct {
	logger     *slog.Logger
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	keyMu   sync.Mutex
	keySubs map[int]func(appstate.KeyEvent)
	nextSub int
}

// NewHub builds a hub; call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		keySubs:    make(map[int]func(appstate.KeyEvent)),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			metrics.ConnectedClients.Inc()
			h.logger.Debug("realtime client connected", "client_id", c.id)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.ConnectedClients.Dec()
				h.logger.Debug("realtime client disconnected", "client_id", c.id)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					delete(h.clients, c)
					close(c.send)
					metrics.ConnectedClients.Dec()
				}
			}
		}
	}
}

// BroadcastEvent pushes one facade state change to every client. Events
// that cannot be queued are dropped rather than blocking the facade.
func (h *Hub) BroadcastEvent(ev appstate.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode realtime event", "type", ev.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("realtime broadcast queue full, dropping event", "type", ev.Type)
	}
}

// Subscribe registers a key-event handler and returns its remover.
func (h *Hub) Subscribe(fn func(appstate.KeyEvent)) func() {
	h.keyMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.keySubs[id] = fn
	h.keyMu.Unlock()

	return func() {
		h.keyMu.Lock()
		delete(h.keySubs, id)
		h.keyMu.Unlock()
	}
}

func (h *Hub) dispatchKey(ev appstate.KeyEvent) {
	h.keyMu.Lock()
	fns := make([]func(appstate.KeyEvent), 0, len(h.keySubs))
	for _, fn := range h.keySubs {
		fns = append(fns, fn)
	}
	h.keyMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ServeWS upgrades the request and attaches the client to the hub.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	cl := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- cl

	go cl.writePump()
	go cl.readPump()
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "key" {
			c.hub.dispatchKey(appstate.KeyEvent{Key: msg.Key, InTextInput: msg.InTextInput})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
