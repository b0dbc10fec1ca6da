package model

import "time"

// HeartbeatState is derived and never persisted.
type HeartbeatState struct {
	LastAt  time.Time // zero when no heartbeat has been received yet
	IsStale bool
}

// Stale reports whether now lies past LastAt plus the timeout window.
func (h HeartbeatState) Stale(now time.Time, timeout time.Duration) bool {
	if h.LastAt.IsZero() {
		return false
	}
	return now.Sub(h.LastAt) >= timeout
}

// RetryState mirrors the controller's retry bookkeeping for observers.
type RetryState struct {
	Attempt     int
	Pending     bool
	NextDelay   time.Duration
	MaxAttempts int // 0 means unlimited
}

// State is a point-in-time view of a connection for status queries.
type State struct {
	Status    ConnectionStatus
	Heartbeat HeartbeatState
	Retry     RetryState
}
