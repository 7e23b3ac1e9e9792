package ws

import "time"

// ConnInfo identifies one event channel connection for logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	UserName    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
