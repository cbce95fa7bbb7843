package notify

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Connection is one live push subscription for a user. Payloads arrive
// on Messages as pre-marshaled JSON; a consumer that stops reading has
// events dropped, never queued unbounded.
type Connection struct {
	ID       string
	TenantID string
	UserID   string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Messages returns the channel push payloads are delivered on. It is
// closed when the connection is unregistered.
func (c *Connection) Messages() <-chan []byte {
	return c.send
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// trySend queues a payload without blocking. Sending and closing hold
// the same lock, so a broadcast racing an unregister drops the event
// instead of hitting a closed channel.
func (c *Connection) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Hub is the in-memory connection directory. It maps users and tenant
// rooms to their live connections and broadcasts best-effort: a
// disconnected or slow consumer misses the live push and re-fetches
// persisted rows instead.
type Hub struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]*Connection
	byTenant map[string]map[string]*Connection
	buffer   int
	closed   bool
}

// NewHub creates a connection hub. buffer is the per-connection
// outbound queue size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		byUser:   make(map[string]map[string]*Connection),
		byTenant: make(map[string]map[string]*Connection),
		buffer:   buffer,
	}
}

// Register adds a connection for the given user and tenant room.
func (h *Hub) Register(tenantID, userID string) *Connection {
	conn := &Connection{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		UserID:   userID,
		send:     make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		conn.close()
		return conn
	}

	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*Connection)
	}
	h.byUser[userID][conn.ID] = conn

	if h.byTenant[tenantID] == nil {
		h.byTenant[tenantID] = make(map[string]*Connection)
	}
	h.byTenant[tenantID][conn.ID] = conn

	recordConnections(h.connectionCountLocked())
	return conn
}

// Unregister removes a connection and closes its message channel.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()

	if conns := h.byUser[conn.UserID]; conns != nil {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.byUser, conn.UserID)
		}
	}
	if conns := h.byTenant[conn.TenantID]; conns != nil {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.byTenant, conn.TenantID)
		}
	}

	recordConnections(h.connectionCountLocked())
	h.mu.Unlock()

	conn.close()
}

// BroadcastToUser pushes a payload to every live connection of one
// user. Returns the number of connections that accepted the payload.
func (h *Hub) BroadcastToUser(userID string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	conns := snapshot(h.byUser[userID])
	h.mu.RUnlock()

	return deliver(conns, data)
}

// BroadcastToTenantRoom pushes a payload to every connection in a
// tenant's room.
func (h *Hub) BroadcastToTenantRoom(tenantID string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	conns := snapshot(h.byTenant[tenantID])
	h.mu.RUnlock()

	return deliver(conns, data)
}

// ConnectedUsers returns the number of distinct users with at least one
// live connection. tenantID == "" counts across tenants.
func (h *Hub) ConnectedUsers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if tenantID == "" {
		return len(h.byUser)
	}

	users := make(map[string]struct{})
	for _, conn := range h.byTenant[tenantID] {
		users[conn.UserID] = struct{}{}
	}
	return len(users)
}

// Close unregisters every connection. Registered after Close,
// connections arrive already closed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var conns []*Connection
	for _, byID := range h.byUser {
		for _, conn := range byID {
			conns = append(conns, conn)
		}
	}
	h.byUser = make(map[string]map[string]*Connection)
	h.byTenant = make(map[string]map[string]*Connection)
	recordConnections(0)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}

func (h *Hub) connectionCountLocked() int {
	n := 0
	for _, byID := range h.byUser {
		n += len(byID)
	}
	return n
}

func snapshot(m map[string]*Connection) []*Connection {
	conns := make([]*Connection, 0, len(m))
	for _, conn := range m {
		conns = append(conns, conn)
	}
	return conns
}

func deliver(conns []*Connection, data []byte) int {
	delivered := 0
	for _, conn := range conns {
		if conn.trySend(data) {
			delivered++
			recordPush("delivered")
		} else {
			// Slow or departed consumer, drop the event.
			recordPush("dropped")
		}
	}
	return delivered
}
