package service

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/reconnect"
	"github.com/webitel/im-live-notify/internal/transport"
)

// Listener observes notifications newly inserted into the cache. It runs on
// the connection loop and must not block.
type Listener func(n model.Notification)

// SystemListener observes typed system messages of the socket transport.
type SystemListener func(p event.SystemPayload)

// Coordinator is the application-facing side of the live channel. It is the
// only writer of the local cache.
type Coordinator struct {
	ctrl     *reconnect.Controller
	cache    *Cache
	alerter  Alerter
	recorder Recorder
	logger   *slog.Logger

	mu         sync.Mutex
	errorShown bool // [TOAST_DEDUP] cleared only on connected
	listeners  map[int]Listener
	systems    []SystemListener
	nextListen int
}

// NewCoordinator builds the controller over driver. opts configure the
// controller; the coordinator installs its own hooks and logger last.
func NewCoordinator(
	driver transport.Driver,
	tokens reconnect.TokenSource,
	alerter Alerter,
	recorder Recorder,
	logger *slog.Logger,
	opts ...reconnect.Option,
) *Coordinator {
	if recorder == nil {
		recorder = NopRecorder{}
	}

	c := &Coordinator{
		cache:     NewCache(),
		alerter:   alerter,
		recorder:  recorder,
		logger:    logger,
		listeners: make(map[int]Listener),
	}

	opts = append(slices.Clone(opts),
		reconnect.WithLogger(logger),
		reconnect.WithHooks(reconnect.Hooks{
			OnStatusChange:   c.onStatusChange,
			OnConnected:      c.onConnected,
			OnNotification:   c.onNotification,
			OnHeartbeat:      c.onHeartbeat,
			OnSystem:         c.onSystem,
			OnError:          c.onError,
			OnDisconnected:   c.onDisconnected,
			OnStale:          c.onStale,
			OnRetryScheduled: c.onRetryScheduled,
		}),
	)
	c.ctrl = reconnect.New(driver, tokens, opts...)
	c.recorder.Status(model.StatusIdle)

	return c
}

// --- LIFECYCLE ---

func (c *Coordinator) Enable() {
	c.logger.Info("[COORDINATOR] live channel enabled")
	c.ctrl.Enable()
}

// Disable tears the channel down and forgets everything the session knew:
// the cache and every ephemeral flag, so a later Enable starts clean.
func (c *Coordinator) Disable() {
	c.ctrl.Disable()

	c.mu.Lock()
	c.errorShown = false
	c.mu.Unlock()

	c.cache.Clear()
	c.recorder.Unread(0)
	c.logger.Info("[COORDINATOR] live channel disabled, cache cleared")
}

func (c *Coordinator) Close() {
	c.Disable()
	c.ctrl.Close()
}

// --- QUERIES ---

func (c *Coordinator) Status() model.ConnectionStatus { return c.ctrl.Status() }
func (c *Coordinator) IsStale() bool                  { return c.ctrl.IsStale() }
func (c *Coordinator) Snapshot() model.State          { return c.ctrl.Snapshot() }
func (c *Coordinator) UnreadCount() int               { return c.cache.Unread() }
func (c *Coordinator) Notifications() []model.Notification {
	return c.cache.List()
}

func (c *Coordinator) Notification(id model.ID) (model.Notification, bool) {
	return c.cache.Get(id)
}

// --- CACHE COMMANDS ---

// MergeHistory merges a fetched history page, deduplicating against ids
// already delivered live.
func (c *Coordinator) MergeHistory(items []*model.Notification) int {
	added := c.cache.Merge(items)
	c.recorder.Unread(c.cache.Unread())
	return added
}

func (c *Coordinator) MarkRead(id model.ID) bool {
	changed := c.cache.MarkRead(id)
	c.recorder.Unread(c.cache.Unread())
	return changed
}

func (c *Coordinator) MarkAllRead() int {
	changed := c.cache.MarkAllRead()
	c.recorder.Unread(0)
	return changed
}

func (c *Coordinator) DeleteRead() int {
	return c.cache.DeleteRead()
}

// --- OBSERVERS ---

// Subscribe registers l and returns its cancel func.
func (c *Coordinator) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextListen
	c.nextListen++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) OnSystem(l SystemListener) {
	c.mu.Lock()
	c.systems = append(c.systems, l)
	c.mu.Unlock()
}

// --- CONTROLLER HOOKS ---

func (c *Coordinator) onNotification(n *model.Notification) {
	// [DEDUP] arrival order is not trusted across reconnects, the id is
	if !c.cache.Insert(n) {
		c.recorder.Duplicate()
		c.logger.Debug("[COORDINATOR] duplicate delivery dropped", slog.String("id", n.ID.String()))
		return
	}

	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(*n)
	}

	c.recorder.Delivered()
	c.recorder.Unread(c.cache.Unread())
}

func (c *Coordinator) onStatusChange(from, to model.ConnectionStatus) {
	c.recorder.Status(to)
	c.logger.Debug("[COORDINATOR] status", slog.String("from", from.String()), slog.String("to", to.String()))
}

func (c *Coordinator) onConnected(p event.ConnectedPayload) {
	c.mu.Lock()
	recovered := c.errorShown
	c.errorShown = false
	c.mu.Unlock()

	c.logger.Info("[COORDINATOR] connected", slog.String("message", p.Message), slog.String("connection_id", p.ConnectionID))
	if recovered {
		c.alerter.Info("Live notifications restored")
	}
}

func (c *Coordinator) onError(err error) {
	switch c.ctrl.Status() {
	case model.StatusError:
		c.mu.Lock()
		shown := c.errorShown
		c.errorShown = true
		c.mu.Unlock()

		// [TOAST_DEDUP] an episode that already showed its error only gets a notice
		if shown {
			c.alerter.Warn("Live notifications unavailable, reconnecting stopped")
			return
		}
		c.alerter.Error("Live notifications unavailable", err)

	case model.StatusReconnecting:
		c.mu.Lock()
		shown := c.errorShown
		c.errorShown = true
		c.mu.Unlock()

		// [TOAST_DEDUP] once per error episode, not per retry
		if !shown {
			c.alerter.Error("Connection lost, reconnecting", err)
		}

	default:
		// server-reported, the connection is still up
		c.alerter.Warn(fmt.Sprintf("Server: %v", err))
	}
}

func (c *Coordinator) onHeartbeat(at time.Time) {
	c.logger.Debug("[COORDINATOR] heartbeat", slog.Time("at", at))
}

func (c *Coordinator) onStale(last time.Time) {
	c.recorder.Stale()
	c.alerter.Warn(fmt.Sprintf("No heartbeat since %s, updates may be delayed", last.Format(time.TimeOnly)))
}

func (c *Coordinator) onSystem(p event.SystemPayload) {
	c.logger.Info("[COORDINATOR] system message", slog.String("type", p.Type))

	c.mu.Lock()
	ls := slices.Clone(c.systems)
	c.mu.Unlock()

	for _, l := range ls {
		l(p)
	}
}

func (c *Coordinator) onDisconnected() {
	c.logger.Info("[COORDINATOR] disconnected")
}

func (c *Coordinator) onRetryScheduled(attempt int, delay time.Duration) {
	c.recorder.RetryScheduled(attempt, delay)
}
