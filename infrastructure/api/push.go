package api

import (
	"context"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain/event"
	"mini-chat/services"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ contract.EventSink = (*PushHub)(nil)

const (
	writeTimeout = 5 * time.Second
	outboxSize   = 256
)

// client is one browser connection. Views wait in outbox and a single writer drains it.
type client struct {
	conn   *websocket.Conn
	outbox chan services.EventView
	done   chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn:   conn,
		outbox: make(chan services.EventView, outboxSize),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// enqueue never blocks. It reports false when the client is gone or too slow.
func (c *client) enqueue(view services.EventView) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- view:
		return true
	default:
		c.close()
		return false
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case view := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(view); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// PushHub streams every domain event to the connected browsers.
// A browser that stops reading is disconnected instead of slowing down the fanout.
type PushHub struct {
	log      *slog.Logger
	service  services.IChatService
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewPushHub(log *slog.Logger, service services.IChatService, allowedOrigins []string) *PushHub {
	return &PushHub{
		log:      log,
		service:  service,
		upgrader: createUpgrader(allowedOrigins),
		clients:  make(map[*client]struct{}),
	}
}

// createUpgrader accepts same-origin requests and the configured origins.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
func (h *PushHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := newClient(conn)
	defer c.close()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("WebSocket client connected", "clients", total)

	// Inbound frames only keep the connection alive.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			remaining := h.remove(c)
			h.log.Debug("WebSocket client disconnected", "clients", remaining)
			return
		}
	}
}

func (h *PushHub) Consume(ctx context.Context, e event.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	view := h.service.ToEventView(e)

	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.enqueue(view) {
			h.log.Debug("Dropping slow WebSocket client", "event", e.Name())
			h.remove(c)
		}
	}
	return nil
}

func (h *PushHub) remove(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

func (h *PushHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
