// Package ws fans board events out to connected browsers over websockets.
package ws

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is public and read-only over this socket.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub keeps the set of connected clients and broadcasts to all of them.
type Hub struct {
	Broadcast  chan []byte
	register   chan *client
	unregister chan *client
	clients    map[*client]bool
	done       chan struct{}
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		Broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
}

// Run serves the hub until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.Broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ServeWs upgrades the request and registers the connection with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case hub.register <- c:
	case <-hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only drains control frames; clients never send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
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

// Message is the envelope every event is sent in.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publish encodes msg and queues it for every connected client.
func (h *Hub) Publish(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("error marshalling ws message", zap.Error(err))
		return
	}
	select {
	case h.Broadcast <- raw:
	case <-h.done:
	}
}
