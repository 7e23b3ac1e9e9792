package observability

import "time"

const (
	// RoutingKeyConnections carries connect/disconnect/error events of the event channel.
	RoutingKeyConnections = "ws_events.connections"
)

type EventEnvelope struct {
	EventType  string    `json:"event_type"`
	EventName  string    `json:"event_name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// ConnIdentity identifies the user and device behind a connection.
type ConnIdentity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// ConnLifecycle describes one connection transition.
type ConnLifecycle struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type ConnEventPayload struct {
	WS       ConnLifecycle `json:"ws"`
	Identity ConnIdentity  `json:"identity"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
