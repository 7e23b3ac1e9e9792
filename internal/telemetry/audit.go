package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEmitter records security-relevant user actions to the broker.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string            `json:"level"`
	Action string            `json:"action"`
	Text   string            `json:"text"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// AuditEntry is one action to record.
type AuditEntry struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    string
	Attrs     map[string]string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes entry. Failures are logged and never surface to the caller.
func (e *AuditEmitter) Emit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	}

	e.logger.Debug("audit emit",
		zap.String("action", entry.Action),
		zap.String("request_id", entry.RequestID),
		zap.String("user_id", entry.UserID),
	)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		UserID:        entry.UserID,
		Payload: AuditPayload{
			Level:  entry.Level,
			Action: entry.Action,
			Text:   entry.Text,
			Attrs:  entry.Attrs,
		},
	}

	headers := map[string]string{}
	if entry.RequestID != "" {
		headers["x-request-id"] = entry.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn("audit publish failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
