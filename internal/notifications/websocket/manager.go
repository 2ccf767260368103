package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Manager streams market events to websocket subscribers. It is registered
// with the dispatcher as a sink.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	UserID       string
	Conn         *websocket.Conn
	Send         chan notifications.WebSocketMessage
	ConnectedAt  time.Time
	LastActivity time.Time
	UserAgent    string
	IPAddress    string

	mu        sync.Mutex
	creditIDs map[uint64]struct{}
}

// wants reports whether the connection is subscribed to creditID. A
// connection without subscriptions receives everything.
func (c *Connection) wants(creditID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.creditIDs) == 0 || creditID == 0 {
		return true
	}
	_, ok := c.creditIDs[creditID]
	return ok
}

func (c *Connection) subscribe(ids []uint64) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creditIDs = make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		c.creditIDs[id] = struct{}{}
	}
	return ids
}

type envelope struct {
	message  notifications.WebSocketMessage
	creditID uint64
	target   *Connection
}

// Hub owns the connection set. Only the hub goroutine closes Send channels.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan envelope
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	done        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger, allowedOrigins []string) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan envelope, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleConnection upgrades the request and starts streaming events to it
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:           uuid.New().String(),
		UserID:       userID,
		Conn:         conn,
		Send:         make(chan notifications.WebSocketMessage, sendBuffer),
		ConnectedAt:  now,
		LastActivity: now,
		UserAgent:    r.Header.Get("User-Agent"),
		IPAddress:    r.RemoteAddr,
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.done:
		conn.Close()
		return nil, fmt.Errorf("websocket manager closed")
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.done:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	_ = conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg notifications.WebSocketMessage
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("Websocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()

		m.handleMessage(conn, &msg)
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) handleMessage(conn *Connection, msg *notifications.WebSocketMessage) {
	switch msg.Type {
	case notifications.WSMessageTypeSubscribe:
		ids := conn.subscribe(parseCreditIDs(msg.Data["credit_ids"]))
		m.sendTo(conn, notifications.WebSocketMessage{
			Type:      notifications.WSMessageTypeStatus,
			Data:      map[string]interface{}{"status": "subscribed", "credit_ids": ids},
			Timestamp: time.Now().UTC(),
			Channel:   "private",
			Target:    conn.UserID,
		})
	default:
		m.logger.Debug("Ignoring websocket message", zap.String("type", msg.Type))
	}
}

func parseCreditIDs(raw interface{}) []uint64 {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case float64:
			if v > 0 {
				ids = append(ids, uint64(v))
			}
		case string:
			if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (m *Manager) sendTo(conn *Connection, message notifications.WebSocketMessage) {
	select {
	case m.hub.broadcast <- envelope{message: message, target: conn}:
	case <-m.hub.done:
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.offer(conn, notifications.WebSocketMessage{
				Type:      notifications.WSMessageTypeStatus,
				Data:      map[string]interface{}{"status": "connected", "connection_id": conn.ID},
				Timestamp: time.Now().UTC(),
				Channel:   "private",
				Target:    conn.UserID,
			})
			h.logger.Debug("Websocket registered", zap.String("connection_id", conn.ID), zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			h.drop(conn)

		case env := <-h.broadcast:
			if env.target != nil {
				h.offer(env.target, env.message)
				continue
			}
			for conn := range h.connections {
				if conn.wants(env.creditID) {
					h.offer(conn, env.message)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				h.drop(conn)
			}
			return
		}
	}
}

// offer queues a message without blocking; slow consumers are dropped
func (h *Hub) offer(conn *Connection, message notifications.WebSocketMessage) {
	if !h.connections[conn] {
		return
	}
	select {
	case conn.Send <- message:
	default:
		h.logger.Warn("Websocket send buffer full, disconnecting", zap.String("connection_id", conn.ID))
		h.drop(conn)
	}
}

func (h *Hub) drop(conn *Connection) {
	if _, ok := h.connections[conn]; !ok {
		return
	}
	delete(h.connections, conn)
	close(conn.Send)
	h.logger.Debug("Websocket unregistered", zap.String("connection_id", conn.ID))
}

func (m *Manager) Name() string { return "websocket" }

// Deliver forwards event to every subscribed connection
func (m *Manager) Deliver(ctx context.Context, event *notifications.Event) error {
	select {
	case m.hub.broadcast <- envelope{message: event.ToMessage(), creditID: event.CreditID}:
		return nil
	case <-m.hub.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// ConnectionInfo represents connection information for monitoring
type ConnectionInfo struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	CreditIDs    []uint64  `json:"credit_ids"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
}

// GetConnectionInfo returns information about all active connections
func (m *Manager) GetConnectionInfo() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make([]ConnectionInfo, 0, len(m.connections))
	for _, conn := range m.connections {
		conn.mu.Lock()
		ci := ConnectionInfo{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.LastActivity,
			UserAgent:    conn.UserAgent,
			IPAddress:    conn.IPAddress,
		}
		for id := range conn.creditIDs {
			ci.CreditIDs = append(ci.CreditIDs, id)
		}
		conn.mu.Unlock()
		info = append(info, ci)
	}
	return info
}

// Close disconnects every client and stops the hub
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)
		<-m.hub.done
	})
}
