/*
Package registry fans pushes out to the live sessions of the development
server, based on the Actor Model.

  - Cells: every online user is an isolated Cell owning all of that user's
    sessions (push streams and sockets).
  - Backpressure: a per-user mailbox decouples ingest from slow consumers.
  - Reclamation: a janitor evicts cells with no sessions after a quiet period.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Celler defines the internal API for user-specific delivery units.
type Celler interface {
	Push(p *Push) bool
	Attach(conn Connector)
	Detach(connID uuid.UUID) bool
	Sessions() int
	IsIdle(timeout time.Duration) bool
	Stop()
}

var _ Celler = (*Cell)(nil)

// Cell implements [ISOLATED_DELIVERY] for a single user.
type Cell struct {
	userID string

	// [MAILBOX] absorbs bursts so ingest never waits on a slow session
	mailbox chan *Push

	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	sendTimeout    time.Duration
	lastActivityAt time.Time

	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewCell(userID string, mailboxSize int, sendTimeout time.Duration) *Cell {
	c := &Cell{
		userID:         userID,
		mailbox:        make(chan *Push, mailboxSize),
		sessions:       make(map[uuid.UUID]Connector),
		sendTimeout:    sendTimeout,
		lastActivityAt: time.Now(),
		doneCh:         make(chan struct{}),
	}
	go c.loop()
	return c
}

// IsIdle reports a cell with no sessions and no traffic for timeout.
func (c *Cell) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions) == 0 && time.Since(c.lastActivityAt) > timeout
}

func (c *Cell) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cell) touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()
}

// Push enqueues p without blocking. False means the mailbox is full or the
// cell is stopped.
func (c *Cell) Push(p *Push) bool {
	c.touch()
	select {
	case <-c.doneCh:
		return false
	default:
	}

	select {
	case c.mailbox <- p:
		return true
	default:
		return false
	}
}

func (c *Cell) Attach(conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// [EVICTED] lost the race with the janitor, the client reconnects
	select {
	case <-c.doneCh:
		conn.Close()
		return
	default:
	}

	c.lastActivityAt = time.Now()
	c.sessions[conn.GetID()] = conn
}

// Detach removes a session and reports whether the cell became empty.
func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, connID)
	c.lastActivityAt = time.Now()
	return len(c.sessions) == 0
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case p := <-c.mailbox:
			c.deliver(p)
		}
	}
}

func (c *Cell) deliver(p *Push) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, conn := range c.sessions {
		conn.Send(p, c.sendTimeout)
	}
}

// Stop ends the cell loop and closes every attached session.
func (c *Cell) Stop() {
	c.stopOnce.Do(func() {
		close(c.doneCh)

		c.mu.Lock()
		defer c.mu.Unlock()
		for id, conn := range c.sessions {
			conn.Close()
			delete(c.sessions, id)
		}
	})
}
