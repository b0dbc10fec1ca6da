package model

// ConnectionStatus is the single source of truth for connection indicators.
// The zero value is StatusIdle.
type ConnectionStatus int32

const (
	StatusIdle ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusDisconnected
	StatusError
)

var statusNames = [...]string{
	StatusIdle:         "idle",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusDisconnected: "disconnected",
	StatusError:        "error",
}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// IsTerminal reports whether no further connection attempt will be made
// without an explicit Enable.
func (s ConnectionStatus) IsTerminal() bool {
	return s == StatusDisconnected || s == StatusError
}

// IsDegraded reports whether the status belongs to an error episode.
func (s ConnectionStatus) IsDegraded() bool {
	return s == StatusReconnecting || s == StatusError
}
