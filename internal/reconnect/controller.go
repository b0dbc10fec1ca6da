/*
Package reconnect drives a transport.Driver through the connection lifecycle.

Key concepts:
  - Serialized loop: transport frames, the retry timer, the heartbeat-timeout
    timer and owner commands are all executed on one goroutine, so lifecycle
    state is never touched concurrently.
  - Generations: every physical connection gets a generation. Events of a
    retired generation are dropped, which is what keeps a close event that
    arrives after teardown from resurrecting the channel.
  - Single retry timer: scheduling a retry always stops the previous timer.
  - Staleness: every heartbeat re-arms a timeout; expiry marks the channel
    stale and warns once per stale episode. Staleness never triggers a retry.
*/
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/transport"
)

var (
	ErrMissingToken      = errors.New("reconnect: access token required")
	ErrAttemptsExhausted = errors.New("reconnect: reconnection attempts exhausted")
	ErrAbnormalClose     = errors.New("reconnect: connection closed abnormally")
)

// TokenSource supplies the bearer token used to authenticate the channel.
// An empty token with a nil error means no token is stored.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Endpoint locates the channel: Base + Path.
type Endpoint struct {
	Base string
	Path string
}

// generation is the controller's handle on one physical connection.
type generation struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	retired chan struct{}
}

type Controller struct {
	driver           transport.Driver
	tokens           TokenSource
	endpoint         Endpoint
	curve            Backoff
	heartbeatTimeout time.Duration
	hooks            Hooks
	logger           *slog.Logger
	clock            clockwork.Clock
	tracer           trace.Tracer
	mailboxSize      int

	ctx    context.Context
	cancel context.CancelFunc

	// [MAILBOX] every state mutation runs here, in arrival order
	mailbox  chan func()
	stopCh   chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once

	// [ATOMIC_FIELDS] side-effect free status queries
	status        atomic.Int32
	stale         atomic.Bool
	lastHeartbeat atomic.Int64
	attemptView   atomic.Int64
	retryPending  atomic.Bool
	nextDelay     atomic.Int64

	// [LOOP_OWNED]
	enabled     bool
	genSeq      uint64
	conn        *generation
	attempts    int
	sched       *schedule
	retryTimer  clockwork.Timer
	retrySeq    uint64
	hbTimer     clockwork.Timer
	hbSeq       uint64
	staleWarned bool
}

// New builds a controller in the idle state and starts its loop.
func New(driver transport.Driver, tokens TokenSource, opts ...Option) *Controller {
	c := &Controller{
		driver:           driver,
		tokens:           tokens,
		curve:            Backoff{Base: DefaultBaseDelay, Max: DefaultMaxDelay},
		heartbeatTimeout: DefaultHeartbeatTimeout,
		logger:           slog.Default(),
		clock:            clockwork.NewRealClock(),
		tracer:           otel.Tracer("github.com/webitel/im-live-notify/internal/reconnect"),
		mailboxSize:      256,
		stopCh:           make(chan struct{}),
		loopDone:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With(slog.String("transport", string(driver.Kind())))
	c.sched = newSchedule(c.curve)
	c.mailbox = make(chan func(), c.mailboxSize)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.loop()
	return c
}

// --- OWNER COMMANDS ---

// Enable starts connecting. It is a no-op while already enabled.
func (c *Controller) Enable() {
	c.do(c.enable)
}

// Disable tears the channel down synchronously: all timers are cancelled, the
// connection is closed and late events of it are ignored.
func (c *Controller) Disable() {
	c.do(c.disable)
}

// Close disables the controller and stops its loop. The controller cannot be
// reused afterwards.
func (c *Controller) Close() {
	c.stopOnce.Do(func() {
		c.do(c.disable)
		close(c.stopCh)
		<-c.loopDone
		c.cancel()
	})
}

// --- STATUS QUERIES ---

func (c *Controller) Status() model.ConnectionStatus {
	return model.ConnectionStatus(c.status.Load())
}

func (c *Controller) IsStale() bool { return c.stale.Load() }

func (c *Controller) Snapshot() model.State {
	var last time.Time
	if ns := c.lastHeartbeat.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return model.State{
		Status:    c.Status(),
		Heartbeat: model.HeartbeatState{LastAt: last, IsStale: c.IsStale()},
		Retry: model.RetryState{
			Attempt:     int(c.attemptView.Load()),
			Pending:     c.retryPending.Load(),
			NextDelay:   time.Duration(c.nextDelay.Load()),
			MaxAttempts: c.driver.Policy().MaxAttempts,
		},
	}
}

// --- LOOP ---

func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.stopCh:
			return
		case fn := <-c.mailbox:
			fn()
		}
	}
}

// post enqueues fn on the loop. It reports false once the loop has stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case c.mailbox <- fn:
		return true
	case <-c.stopCh:
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (c *Controller) do(fn func()) {
	done := make(chan struct{})
	if !c.post(func() { fn(); close(done) }) {
		return
	}
	select {
	case <-done:
	case <-c.loopDone:
	}
}

// send enqueues work on behalf of a connection; it gives up as soon as the
// connection is retired so a driver never blocks on a torn-down owner.
func (c *Controller) send(g *generation, fn func()) {
	select {
	case c.mailbox <- fn:
	case <-g.retired:
	case <-c.stopCh:
	}
}

// --- STATE MACHINE ---

func (c *Controller) enable() {
	if c.enabled {
		return
	}
	c.enabled = true
	c.setAttempts(0)
	c.sched.reset()
	c.connect()
}

func (c *Controller) disable() {
	c.enabled = false
	c.stopRetry()
	c.stopHeartbeat()
	c.retire()

	c.setAttempts(0)
	c.sched.reset()
	c.resetLiveness()

	if c.setStatus(model.StatusDisconnected) {
		c.hooks.disconnected()
	}
}

// connect opens a new generation: idle|reconnecting -> connecting.
func (c *Controller) connect() {
	c.stopRetry()

	token, err := c.tokens.Token(c.ctx)
	if err != nil {
		c.logger.Warn("[CREDENTIALS] token lookup failed", slog.Any("err", err))
		token = ""
	}

	// [AUTH_PRECONDITION] terminal, no attempt is made and nothing is scheduled
	if token == "" && c.driver.Policy().RequireToken {
		c.logger.Error("[CONTROLLER] no access token, channel not opened")
		c.terminate(ErrMissingToken)
		return
	}

	endpoint, err := transport.BuildURL(c.endpoint.Base, c.endpoint.Path, token, c.driver.Kind())
	if err != nil {
		c.logger.Error("[CONTROLLER] invalid endpoint", slog.Any("err", err))
		c.terminate(err)
		return
	}

	g := c.nextGeneration()
	c.setStatus(model.StatusConnecting)
	go c.dial(g, endpoint)
}

func (c *Controller) dial(g *generation, endpoint string) {
	ctx, span := c.tracer.Start(g.ctx, "transport.connect", trace.WithAttributes(
		attribute.String("transport.kind", string(c.driver.Kind())),
		attribute.Int64("connection.generation", int64(g.id)),
	))
	defer span.End()

	err := c.driver.Connect(ctx, endpoint, func(ev event.Eventer) {
		c.send(g, func() { c.handle(g, ev) })
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		c.send(g, func() { c.fail(g, err) })
	}
}

func (c *Controller) handle(g *generation, ev event.Eventer) {
	if !c.current(g) {
		c.logger.Debug("[CONTROLLER] event of retired connection dropped",
			slog.String("kind", ev.GetKind().String()),
			slog.Uint64("generation", g.id),
		)
		return
	}

	switch p := ev.GetPayload().(type) {
	case *event.ConnectedPayload:
		c.setAttempts(0)
		c.sched.reset()
		c.stopRetry()
		c.setStatus(model.StatusConnected)
		c.hooks.connected(*p)

	case *model.Notification:
		c.hooks.notification(p)

	case *event.HeartbeatPayload:
		c.recordHeartbeat(p.At)

	case *event.SystemPayload:
		c.hooks.system(*p)

	case *event.ErrorPayload:
		if ev.GetKind() == event.ServerError {
			c.logger.Warn("[CONTROLLER] server reported error", slog.Any("err", p.Err))
			c.hooks.error(p.Err)
			return
		}
		c.fail(g, p.Err)

	case *event.ClosedPayload:
		if p.Normal {
			c.closedByPeer(p)
			return
		}
		c.fail(g, fmt.Errorf("%w: code=%d reason=%q", ErrAbnormalClose, p.Code, p.Reason))
	}
}

// fail handles a transport error or abnormal close: connected|connecting ->
// reconnecting, or -> error once the transport's attempt cap is reached.
func (c *Controller) fail(g *generation, err error) {
	// [RESURRECTION_GUARD] late failures of a torn-down or replaced connection
	if !c.current(g) {
		return
	}

	c.stopHeartbeat()
	c.resetLiveness()
	c.setAttempts(c.attempts + 1)

	policy := c.driver.Policy()
	if policy.MaxAttempts > 0 && c.attempts >= policy.MaxAttempts {
		c.logger.Error("[CONTROLLER] reconnection attempts exhausted",
			slog.Int("attempts", c.attempts),
			slog.Any("err", err),
		)
		c.terminate(fmt.Errorf("%w: %w", ErrAttemptsExhausted, err))
		return
	}

	delay := c.sched.next()
	c.logger.Warn("[CONTROLLER] connection failed, retry scheduled",
		slog.Int("attempt", c.attempts),
		slog.Duration("delay", delay),
		slog.Any("err", err),
	)

	// [RELEASE] nothing of the failed connection outlives the backoff wait
	c.retire()

	c.setStatus(model.StatusReconnecting)
	c.hooks.error(err)
	c.scheduleRetry(delay)
}

// terminate moves to the terminal error state. Nothing is scheduled; a later
// Enable starts a fresh session.
func (c *Controller) terminate(err error) {
	c.enabled = false
	c.stopRetry()
	c.stopHeartbeat()
	c.retire()
	c.setStatus(model.StatusError)
	c.hooks.error(err)
}

// closedByPeer handles an intentional close by the server. No retry follows;
// the session ends as if the owner had disabled it.
func (c *Controller) closedByPeer(p *event.ClosedPayload) {
	c.logger.Info("[CONTROLLER] connection closed normally by server", slog.String("reason", p.Reason))
	c.enabled = false
	c.stopRetry()
	c.stopHeartbeat()
	c.resetLiveness()
	c.retire()
	if c.setStatus(model.StatusDisconnected) {
		c.hooks.disconnected()
	}
}

// --- RETRY TIMER ---

// scheduleRetry arms the retry timer. [SINGLE_TIMER] any previous timer is stopped first.
func (c *Controller) scheduleRetry(delay time.Duration) {
	c.stopRetry()

	c.retrySeq++
	seq := c.retrySeq
	c.retryTimer = c.clock.AfterFunc(delay, func() {
		c.post(func() { c.retryFired(seq) })
	})
	c.retryPending.Store(true)
	c.nextDelay.Store(int64(delay))
	c.hooks.retryScheduled(c.attempts, delay)
}

func (c *Controller) retryFired(seq uint64) {
	// a timer stopped after it fired can still reach the mailbox
	if seq != c.retrySeq || c.retryTimer == nil {
		return
	}
	c.retryTimer = nil
	c.retryPending.Store(false)

	if !c.enabled || c.Status() != model.StatusReconnecting {
		return
	}
	c.connect()
}

func (c *Controller) stopRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retrySeq++
	c.retryPending.Store(false)
	c.nextDelay.Store(0)
}

// --- HEARTBEAT ---

func (c *Controller) recordHeartbeat(at time.Time) {
	c.lastHeartbeat.Store(at.UnixNano())
	if c.stale.Swap(false) {
		c.logger.Info("[HEARTBEAT] liveness restored")
	}
	c.staleWarned = false

	c.stopHeartbeat()
	c.hbSeq++
	seq := c.hbSeq
	c.hbTimer = c.clock.AfterFunc(c.heartbeatTimeout, func() {
		c.post(func() { c.heartbeatExpired(seq) })
	})

	c.hooks.heartbeat(at)
}

func (c *Controller) heartbeatExpired(seq uint64) {
	if seq != c.hbSeq || c.hbTimer == nil {
		return
	}
	c.hbTimer = nil
	c.stale.Store(true)

	// [ONE_WARNING_PER_EPISODE]
	if c.staleWarned {
		return
	}
	c.staleWarned = true

	last := time.Unix(0, c.lastHeartbeat.Load())
	c.logger.Warn("[HEARTBEAT] channel stale", slog.Time("last_heartbeat", last))
	c.hooks.stale(last)
}

// resetLiveness forgets the heartbeat state of the previous connection; a new
// one starts fresh and may raise its own stale warning.
func (c *Controller) resetLiveness() {
	c.stale.Store(false)
	c.staleWarned = false
	c.lastHeartbeat.Store(0)
}

func (c *Controller) stopHeartbeat() {
	if c.hbTimer != nil {
		c.hbTimer.Stop()
		c.hbTimer = nil
	}
	c.hbSeq++
}

// --- GENERATIONS ---

func (c *Controller) nextGeneration() *generation {
	if c.conn != nil {
		c.conn.cancel()
		close(c.conn.retired)
	}

	c.genSeq++
	ctx, cancel := context.WithCancel(c.ctx)
	c.conn = &generation{
		id:      c.genSeq,
		ctx:     ctx,
		cancel:  cancel,
		retired: make(chan struct{}),
	}
	return c.conn
}

// retire drops the current generation and closes the physical connection.
func (c *Controller) retire() {
	if c.conn != nil {
		c.conn.cancel()
		close(c.conn.retired)
		c.conn = nil
	}
	if err := c.driver.Disconnect(); err != nil {
		c.logger.Warn("[CONTROLLER] driver disconnect failed", slog.Any("err", err))
	}
}

func (c *Controller) current(g *generation) bool {
	return c.enabled && c.conn != nil && c.conn.id == g.id
}

// --- HELPERS ---

// setStatus reports whether the status actually changed.
func (c *Controller) setStatus(s model.ConnectionStatus) bool {
	prev := model.ConnectionStatus(c.status.Swap(int32(s)))
	if prev == s {
		return false
	}
	c.logger.Info("[CONTROLLER] status changed",
		slog.String("from", prev.String()),
		slog.String("to", s.String()),
	)
	c.hooks.statusChange(prev, s)
	return true
}

func (c *Controller) setAttempts(n int) {
	c.attempts = n
	c.attemptView.Store(int64(n))
}
