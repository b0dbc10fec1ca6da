package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithEvictionInterval configures how often the [JANITOR] reclaims cells of
// users without sessions.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.evictionInterval = d
		}
	}
}

// WithIdleTimeout defines the [QUIET_PERIOD] after which an empty cell is
// eligible for eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.idleTimeout = d
		}
	}
}

// WithMailboxSize sets the [BACKPRESSURE] threshold of each user mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.mailboxSize = size
		}
	}
}

// WithSendTimeout bounds how long a cell waits on one slow session.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.sendTimeout = d
		}
	}
}
