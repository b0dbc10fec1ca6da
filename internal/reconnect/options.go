package reconnect

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

const DefaultHeartbeatTimeout = 60 * time.Second

// Option defines a functional configuration type for the Controller.
type Option func(*Controller)

// WithEndpoint sets the API base and the channel path appended to it.
func WithEndpoint(base, path string) Option {
	return func(c *Controller) {
		c.endpoint = Endpoint{Base: base, Path: path}
	}
}

// WithBackoff sets the [RETRY_CURVE] used between failed attempts.
func WithBackoff(b Backoff) Option {
	return func(c *Controller) {
		if b.Base > 0 {
			c.curve.Base = b.Base
		}
		if b.Max > 0 {
			c.curve.Max = b.Max
		}
		c.curve.Jitter = b.Jitter
	}
}

// WithHeartbeatTimeout sets the [STALENESS_WINDOW] armed on every heartbeat.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.heartbeatTimeout = d
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithMailboxSize sets the buffer of the serialized event loop.
func WithMailboxSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.mailboxSize = n
		}
	}
}
