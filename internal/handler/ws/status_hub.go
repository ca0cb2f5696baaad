package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// StatusHub keeps the latest snapshot per symbol and streams every new one
// to connected dashboard clients. It is a StatusSink.
type StatusHub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	latest  map[string]models.StatusSnapshot
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewStatusHub builds a hub that accepts browser connections only from
// allowedOrigins. An empty list or a "*" entry admits every origin, and
// clients that send no Origin header are always admitted.
func NewStatusHub(log *logger.Logger, allowedOrigins []string) *StatusHub {
	h := &StatusHub{
		log:     log,
		latest:  map[string]models.StatusSnapshot{},
		clients: map[*client]struct{}{},
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Publish records s and fans it out. A client whose buffer is full misses
// this snapshot; it still gets the next one.
func (h *StatusHub) Publish(_ context.Context, s models.StatusSnapshot) error {
	msg, err := json.Marshal(s)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[s.Symbol] = s
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// Latest returns the most recent snapshot of every symbol, ordered by symbol.
func (h *StatusHub) Latest() []models.StatusSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latestLocked()
}

// Clients reports the number of connected websocket clients.
func (h *StatusHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *StatusHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/status", h.Serve)
}

// Serve upgrades the request, replays the latest snapshots and then streams
// live ones until the client goes away or the hub closes.
func (h *StatusHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("status ws upgrade failed", logger.Error(err))
		return nil
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return nil
	}
	for _, s := range h.latestLocked() {
		msg, err := json.Marshal(s)
		if err != nil {
			continue
		}
		select {
		case cl.send <- msg:
		default:
		}
	}
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("status ws client connected", logger.Int("clients", n))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

func (h *StatusHub) latestLocked() []models.StatusSnapshot {
	out := make([]models.StatusSnapshot, 0, len(h.latest))
	for _, s := range h.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (h *StatusHub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		cl.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("status ws client disconnected", logger.Int("clients", n))
}

// readPump only watches for close and pong frames; clients send nothing.
func (h *StatusHub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StatusHub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *StatusHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		cl.close()
	}
	return nil
}

var _ domrepo.StatusSink = (*StatusHub)(nil)
