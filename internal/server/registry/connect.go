package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Interface guard
var _ Connector = (*connect)(nil)

// Connector is one live session as seen by the hub.
type Connector interface {
	GetID() uuid.UUID
	GetUserID() string
	// Send enqueues p, waiting at most timeout for buffer space.
	Send(p *Push, timeout time.Duration) bool
	// Recv is closed when the session ends.
	Recv() <-chan *Push
	Done() <-chan struct{}
	Dropped() uint64
	Close()
}

type connect struct {
	id        uuid.UUID
	userID    string
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	// [SEND_GUARD] serializes senders with Close so sendCh is never
	// written after it is closed
	mu     sync.RWMutex
	sendCh chan *Push
	closed bool

	closeOnce    sync.Once
	droppedCount atomic.Uint64
}

func NewConnector(ctx context.Context, userID string, bufferSize int) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        uuid.New(),
		userID:    userID,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan *Push, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID      { return c.id }
func (c *connect) GetUserID() string     { return c.userID }
func (c *connect) Recv() <-chan *Push    { return c.sendCh }
func (c *connect) Done() <-chan struct{} { return c.ctx.Done() }
func (c *connect) Dropped() uint64       { return c.droppedCount.Load() }

func (c *connect) Send(p *Push, timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- p:
		return true
	case <-timer.C:
		return c.handleBackpressure(p)
	}
}

// handleBackpressure sheds low-priority pushes and lets a higher-priority push
// replace the oldest queued one.
func (c *connect) handleBackpressure(p *Push) bool {
	if p.Priority <= PriorityLow {
		c.droppedCount.Add(1)
		return false
	}

	select {
	case old := <-c.sendCh:
		if old.Priority < p.Priority {
			select {
			case c.sendCh <- p:
				c.droppedCount.Add(1)
				return true
			default:
			}
		} else {
			select {
			case c.sendCh <- old:
			default:
				c.droppedCount.Add(1)
			}
		}
	default:
	}

	c.droppedCount.Add(1)
	return false
}

// Close cancels the session and closes Recv. Idempotent.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()

		c.mu.Lock()
		c.closed = true
		close(c.sendCh)
		c.mu.Unlock()
	})
}
