// Package ws pushes report summaries to websocket subscribers.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"comove/internal/domain/models"
	xhttp "comove/pkg/http"
	"comove/pkg/logger"
	"comove/pkg/util"
)

const (
	Path           = "/ws/reports"
	sendBuffer     = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = pongWait * 9 / 10
	maxMessageSize = 512
)

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	primaries map[string]struct{} // empty means every primary
}

func (c *client) wants(primary string) bool {
	if len(c.primaries) == 0 {
		return true
	}
	_, ok := c.primaries[strings.ToUpper(primary)]
	return ok
}

// Hub fans report summaries out to every connected client. Clients that
// cannot keep up are disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
	closed   bool
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET(Path, h.Serve)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyReport broadcasts s without blocking on slow clients.
func (h *Hub) NotifyReport(s models.ReportSummary) {
	b, err := json.Marshal(s)
	if err != nil {
		h.log.Error("ws marshal summary", logger.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(s.Primary) {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.log.Warn("ws client too slow, dropping", logger.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

// Serve upgrades the request and keeps the connection until the client
// goes away. An optional primary query parameter ("GME,AMC") limits the
// summaries the client receives.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", logger.Error(err))
		return nil
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), primaries: map[string]struct{}{}}
	for _, p := range util.SplitList(c.QueryParam("primary")) {
		cl.primaries[strings.ToUpper(p)] = struct{}{}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return xhttp.InternalServerErrorResponse(c)
	}
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("ws client connected", logger.String("remote", conn.RemoteAddr().String()), logger.Int("clients", n))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// readPump discards client frames; it only exists to notice disconnects
// and answer pings.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

var _ xhttp.Handler = (*Hub)(nil)
