package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// heartbeatFrame is the wire body of a heartbeat: epoch seconds.
type heartbeatFrame struct {
	Timestamp *float64 `json:"timestamp"`
}

// ParseHeartbeat decodes a heartbeat body into the server time it carries.
func ParseHeartbeat(data []byte) (time.Time, error) {
	var f heartbeatFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return time.Time{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	if f.Timestamp == nil {
		return time.Time{}, fmt.Errorf("decode heartbeat: missing timestamp")
	}

	sec := int64(*f.Timestamp)
	nsec := int64((*f.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), nil
}
