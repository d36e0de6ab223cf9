// Package websocket pushes alerts and admin updates to connected admin
// dashboards and receives their notification consent and audio unlock.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SneHope/TVH-NotiZAR/internal/alert"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Outbound message types.
const (
	TypeBanner            = "banner"
	TypeNotification      = "notification"
	TypeRequestPermission = "request_permission"
	TypeSound             = "sound"
	TypeAdminUpdate       = "admin_update"
)

// Inbound message types.
const (
	TypePermission  = "permission"
	TypeInteraction = "interaction"
)

// ErrNoClients is returned when an operation needs at least one connected admin.
var ErrNoClients = errors.New("no admin clients connected")

// Message is the envelope for every frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Value   string          `json:"value,omitempty"`
}

type soundPayload struct {
	Sound string `json:"sound"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin routes are authenticated before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks connected admin clients. It implements alert.Broadcaster,
// alert.NotificationPlatform, and alert.SoundPlayer.
type Hub struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	clients map[string]*client
}

var (
	_ alert.Broadcaster          = (*Hub)(nil)
	_ alert.NotificationPlatform = (*Hub)(nil)
	_ alert.SoundPlayer          = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		permission: alert.PermissionDefault,
	}
	h.register(c)

	go c.writePump()
	go h.readPump(c)
}

// Clients returns the number of connected admins.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast renders the alert banner on every connected dashboard. With no
// dashboards connected there is nothing to render.
func (h *Hub) Broadcast(_ context.Context, a domain.Alert) error {
	msg, err := encode(TypeBanner, a)
	if err != nil {
		return err
	}
	h.sendWhere(msg, func(*client) bool { return true })
	return nil
}

// PublishUpdate pushes an admin update to every dashboard. It matches the
// admin update feed callback signature.
func (h *Hub) PublishUpdate(u domain.AdminUpdate) {
	msg, err := encode(TypeAdminUpdate, u)
	if err != nil {
		h.logger.Warn("encode admin update failed", "update_id", u.ID, "error", err)
		return
	}
	h.sendWhere(msg, func(*client) bool { return true })
}

// Permission is granted if any connected admin granted it, denied if every
// connected admin denied it, and default otherwise.
func (h *Hub) Permission() alert.Permission {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return alert.PermissionDefault
	}
	denied := 0
	for _, c := range h.clients {
		switch c.getPermission() {
		case alert.PermissionGranted:
			return alert.PermissionGranted
		case alert.PermissionDenied:
			denied++
		}
	}
	if denied == len(h.clients) {
		return alert.PermissionDenied
	}
	return alert.PermissionDefault
}

// RequestPermission asks undecided dashboards to prompt for notification consent.
func (h *Hub) RequestPermission(_ context.Context) error {
	msg, _ := json.Marshal(Message{Type: TypeRequestPermission})
	if h.sendWhere(msg, func(c *client) bool { return c.getPermission() == alert.PermissionDefault }) == 0 {
		return ErrNoClients
	}
	return nil
}

// Notify shows a desktop notification on dashboards that granted permission.
func (h *Hub) Notify(_ context.Context, n alert.Notification) error {
	msg, err := encode(TypeNotification, n)
	if err != nil {
		return err
	}
	h.sendWhere(msg, func(c *client) bool { return c.getPermission() == alert.PermissionGranted })
	return nil
}

// Play sends the audio cue to dashboards whose user has interacted with the
// page. Browsers block autoplay otherwise.
func (h *Hub) Play(_ context.Context, sound string) error {
	msg, err := encode(TypeSound, soundPayload{Sound: sound})
	if err != nil {
		return err
	}
	if h.sendWhere(msg, func(c *client) bool { return c.interacted.Load() }) == 0 {
		return alert.ErrAudioBlocked
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.metrics.AdminClients.Set(0)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.AdminClients.Set(float64(n))
	h.logger.Info("admin client connected", "client_id", c.id, "clients", n)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.metrics.AdminClients.Set(float64(n))
	h.logger.Info("admin client disconnected", "client_id", c.id, "clients", n)
}

// sendWhere queues msg for matching clients and returns how many were
// selected. Clients whose buffer is full are dropped.
func (h *Hub) sendWhere(msg []byte, match func(*client) bool) int {
	h.mu.RLock()
	var targets, slow []*client
	for _, c := range h.clients {
		if match(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.trySend(msg) {
			sent++
			continue
		}
		slow = append(slow, c)
	}
	for _, c := range slow {
		h.logger.Warn("dropping slow admin client", "client_id", c.id)
		h.unregister(c)
	}
	return sent
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("admin client read failed", "client_id", c.id, "error", err)
			}
			return
		}
		h.handleInbound(c, msg)
	}
}

func (h *Hub) handleInbound(c *client, msg Message) {
	switch msg.Type {
	case TypePermission:
		switch p := alert.Permission(msg.Value); p {
		case alert.PermissionGranted, alert.PermissionDenied, alert.PermissionDefault:
			c.setPermission(p)
			h.logger.Info("notification permission updated", "client_id", c.id, "permission", p)
		default:
			h.logger.Warn("unknown notification permission", "client_id", c.id, "value", msg.Value)
		}
	case TypeInteraction:
		c.interacted.Store(true)
	default:
		h.logger.Debug("ignoring admin client message", "client_id", c.id, "type", msg.Type)
	}
}

func encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Message{Type: typ, Payload: raw})
}

type client struct {
	id         string
	conn       *websocket.Conn
	send       chan []byte
	interacted atomic.Bool

	mu         sync.Mutex
	permission alert.Permission
	closed     bool
}

func (c *client) getPermission() alert.Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

func (c *client) setPermission(p alert.Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permission = p
}

func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writePump() {
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
