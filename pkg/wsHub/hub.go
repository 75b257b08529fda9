package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub хранит и управляет всеми активными WebSocket соединениями.
// Единственный источник правды о достижимости клиента.
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		l:       l,
	}
}

// Add registers a connection. Last wins: an existing channel for the
// same entity is closed and replaced, so a reconnecting client never
// races its own stale connection.
func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "add_ws_connection")

	if existing, ok := h.clients[newConn.entityID]; ok {
		h.l.Warn(ctx,
			"replacing existing connection",
			"entity_id", existing.entityID,
		)
		if err := existing.Close(); err != nil {
			h.l.Warn(ctx,
				"failed to close existing conn",
				"entity_id", existing.entityID,
				"err", err.Error(),
			)
		}
	}

	h.clients[newConn.entityID] = newConn

	return nil
}

// Detach removes the connection only if it is still the registered one
// for its entity. A read loop that exits after its connection was
// replaced must not evict the replacement.
func (h *ConnectionHub) Detach(conn *Conn) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	current, ok := h.clients[conn.entityID]
	if ok && current == conn {
		delete(h.clients, conn.entityID)
	}
	h.mu.Unlock()

	_ = conn.Close()
}

// Delete удаляет и закрывает соединение по ID.
func (h *ConnectionHub) Delete(entityID uuid.UUID) error {
	h.mu.Lock()
	conn, ok := h.clients[entityID]
	if ok {
		delete(h.clients, entityID)
	}
	h.mu.Unlock()

	if !ok {
		return ErrConnIsNotFound
	}
	return conn.Close()
}

// SendTo enqueues a message for one client. ErrConnIsNotFound means
// the client is unreachable right now, not that it does not exist.
func (h *ConnectionHub) SendTo(id uuid.UUID, msg any) error {
	h.mu.Lock()
	conn, ok := h.clients[id]
	h.mu.Unlock()

	if !ok {
		return ErrConnIsNotFound
	}
	return conn.Send(msg)
}

// Reachable reports whether a live channel exists for the entity.
func (h *ConnectionHub) Reachable(id uuid.UUID) bool {
	h.mu.Lock()
	conn, ok := h.clients[id]
	h.mu.Unlock()

	if !ok {
		return false
	}
	select {
	case <-conn.Done():
		return false
	default:
		return true
	}
}

// GetConn возвращает соединение по UUID.
func (h *ConnectionHub) GetConn(id uuid.UUID) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[id]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}

// Len returns the number of registered connections.
func (h *ConnectionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drains and closes every connection.
func (h *ConnectionHub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	// копируем клиентов под локом, закрываем вне лока
	h.mu.Lock()
	clients := make([]*Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clients = make(map[uuid.UUID]*Conn)
	h.mu.Unlock()

	for _, conn := range clients {
		_ = conn.CloseGraceful()
	}

	h.l.Info(ctx, "all websocket connections closed gracefully")
}
