package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// Option defines a functional configuration type for the Driver.
type Option func(*Driver)

// WithPingInterval sets the [KEEP_ALIVE] period of outbound ping frames.
func WithPingInterval(d time.Duration) Option {
	return func(drv *Driver) {
		if d > 0 {
			drv.pingInterval = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		if d > 0 {
			drv.writeTimeout = d
		}
	}
}

// WithMaxAttempts caps consecutive failed connection attempts before the
// controller gives up with a terminal error.
func WithMaxAttempts(n int) Option {
	return func(drv *Driver) {
		if n > 0 {
			drv.maxAttempts = n
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(drv *Driver) { drv.clock = c }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(drv *Driver) { drv.dialer = dialer }
}
