package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hubber defines the gateway for session management and push routing.
type Hubber interface {
	Broadcast(p *Push) bool
	Register(conn Connector)
	Unregister(userID string, connID uuid.UUID)
	IsConnected(userID string) bool
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int
	sendTimeout      time.Duration
}

// Hub implements a [SCALABLE_REGISTRY] using the Virtual Cell pattern.
type Hub struct {
	// cells stores map[string]Celler, keyed by user id
	cells  sync.Map
	config hubConfig
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			evictionInterval: 5 * time.Minute,
			idleTimeout:      10 * time.Minute,
			mailboxSize:      256,
			sendTimeout:      500 * time.Millisecond,
		},
		logger: logger,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.wg.Add(1)
	go h.janitor()
	return h
}

func (h *Hub) IsConnected(userID string) bool {
	val, ok := h.cells.Load(userID)
	return ok && val.(Celler).Sessions() > 0
}

// Broadcast routes p to the user's cell. False on miss or overflow.
func (h *Hub) Broadcast(p *Push) bool {
	if val, ok := h.cells.Load(p.UserID); ok {
		return val.(Celler).Push(p)
	}
	return false
}

// Register creates the user cell on first use and attaches conn.
func (h *Hub) Register(conn Connector) {
	uID := conn.GetUserID()

	val, ok := h.cells.Load(uID)
	if !ok {
		cell := NewCell(uID, h.config.mailboxSize, h.config.sendTimeout)
		var loaded bool
		if val, loaded = h.cells.LoadOrStore(uID, cell); loaded {
			cell.Stop()
		}
	}
	val.(Celler).Attach(conn)

	h.logger.Debug("SESSION_REGISTERED", "user_id", uID, "conn_id", conn.GetID())
}

// Unregister detaches a session. The empty cell is left to the janitor so a
// quick reconnect reuses it.
func (h *Hub) Unregister(userID string, connID uuid.UUID) {
	if val, ok := h.cells.Load(userID); ok {
		val.(Celler).Detach(connID)
	}
	h.logger.Debug("SESSION_UNREGISTERED", "user_id", userID, "conn_id", connID)
}

func (h *Hub) janitor() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.evictIdle()
		}
	}
}

func (h *Hub) evictIdle() {
	evicted := 0
	h.cells.Range(func(key, val any) bool {
		if cell := val.(Celler); cell.IsIdle(h.config.idleTimeout) {
			h.cells.Delete(key)
			cell.Stop()
			evicted++
		}
		return true
	})
	if evicted > 0 {
		h.logger.Debug("CELLS_EVICTED", "count", evicted)
	}
}

// Shutdown stops the janitor and every cell, closing all sessions.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()

		h.cells.Range(func(key, val any) bool {
			h.cells.Delete(key)
			val.(Celler).Stop()
			return true
		})
	})
}

// Subscribe registers a new session for userID that ends with ctx.
func (h *Hub) Subscribe(ctx context.Context, userID string, buffer int) Connector {
	conn := NewConnector(ctx, userID, buffer)
	h.Register(conn)
	return conn
}
