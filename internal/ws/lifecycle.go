package ws

import (
	"context"
	"time"

	"pairchat/internal/observability"
)

// publishLifecycle reports a connection transition to the broker and metrics.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := observability.ConnEventPayload{
		WS: observability.ConnLifecycle{
			Event:      event,
			ConnID:     info.ConnID,
			DurationMS: duration,
			Reason:     reason,
		},
		Identity: observability.ConnIdentity{
			UserID:   info.UserID,
			DeviceID: info.DeviceID,
			IP:       info.IP,
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, observability.RoutingKeyConnections, observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}, headers)
	observability.IncWSEvent(event, "ok")
}
