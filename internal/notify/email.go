// Package notify queues out-of-band notifications for users who are offline.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pairchat/internal/models"
	"pairchat/internal/telemetry"
)

// RoutingKeyNewMessageEmail is consumed by the mail worker.
const RoutingKeyNewMessageEmail = "notifications.email.new_message"

const previewLength = 80

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// NewMessageEmail asks the mail worker to tell Recipient about a message they missed.
type NewMessageEmail struct {
	To            string    `json:"to"`
	RecipientName string    `json:"recipient_name"`
	SenderName    string    `json:"sender_name"`
	Subject       string    `json:"subject"`
	ChatID        string    `json:"chat_id"`
	MessageID     string    `json:"message_id"`
	Preview       string    `json:"preview,omitempty"`
	LoginURL      string    `json:"login_url,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EmailNotifier publishes NewMessageEmail jobs to the broker.
type EmailNotifier struct {
	publisher Publisher
	appURL    string
	logger    *zap.Logger
}

func NewEmailNotifier(publisher Publisher, appURL string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{publisher: publisher, appURL: strings.TrimRight(appURL, "/"), logger: logger}
}

// NewMessage queues an email for recipient about msg from sender.
func (n *EmailNotifier) NewMessage(ctx context.Context, recipient, sender models.User, msg models.Message) error {
	if recipient.Email == "" {
		return nil
	}
	job := NewMessageEmail{
		To:            recipient.Email,
		RecipientName: recipient.Name,
		SenderName:    sender.Name,
		Subject:       fmt.Sprintf("You have a new message from %s!", sender.Name),
		ChatID:        msg.ChatID,
		MessageID:     msg.ID,
		Preview:       preview(msg),
		OccurredAt:    msg.CreatedAt,
	}
	if n.appURL != "" {
		job.LoginURL = n.appURL + "/login"
	}

	headers := map[string]string{}
	if requestID := telemetry.RequestIDFrom(ctx); requestID != "" {
		headers["x-request-id"] = requestID
	}
	if err := n.publisher.Publish(ctx, RoutingKeyNewMessageEmail, job, headers); err != nil {
		return fmt.Errorf("queue new message email: %w", err)
	}
	n.logger.Debug("new message email queued", zap.String("user_id", recipient.ID), zap.String("message_id", msg.ID))
	return nil
}

func preview(msg models.Message) string {
	if msg.Type != models.MessageTypeText {
		return fmt.Sprintf("[%s]", msg.Type)
	}
	text := []rune(msg.Content.Text)
	if len(text) <= previewLength {
		return string(text)
	}
	return string(text[:previewLength]) + "…"
}
