package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"timetable/internal/domain/notification"
	"timetable/internal/domain/viewer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// PushMessage is the JSON frame sent to connected viewers.
type PushMessage struct {
	Type      string `json:"type"`
	ClassCode string `json:"classCode"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Hub pushes notifications to connected viewers of the matching cohort.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	session viewer.Session
	conn    *websocket.Conn
	send    chan PushMessage
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin requests only.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*client]struct{}),
	}
}

// Notify queues the notification for every connected member of its cohort.
// Slow clients whose buffer is full miss the message.
func (h *Hub) Notify(_ context.Context, n notification.Notification) error {
	msg := PushMessage{Type: "notification", ClassCode: n.RecipientsScope, Subject: n.Subject, Body: n.Body}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients {
		if c.session.ClassCode != n.RecipientsScope {
			continue
		}
		select {
		case c.send <- msg:
			delivered++
		default:
			slog.Warn("ws_client_slow", "viewer_id", c.session.ID)
		}
	}
	slog.Debug("ws_notification_pushed", "class_code", n.RecipientsScope, "clients", delivered)
	return nil
}

// Connected returns the number of open connections.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and keeps the connection until the peer leaves.
// PRE: session has already been authenticated by the caller
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session viewer.Session) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws_upgrade_failed", "error", err)
		return
	}
	c := &client{session: session, conn: conn, send: make(chan PushMessage, sendBuffer)}
	h.register(c)
	slog.Info("ws_connected", "viewer_id", session.ID, "class_code", session.ClassCode)

	go c.writeLoop()
	c.readLoop()

	h.unregister(c)
	slog.Info("ws_disconnected", "viewer_id", session.ID)
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

// readLoop drains control frames; viewers never send data.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
