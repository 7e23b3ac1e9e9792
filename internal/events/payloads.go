package events

import (
	"time"

	"pairchat/internal/models"
)

type UserStatusPayload struct {
	UserID   string        `json:"userId"`
	IsOnline bool          `json:"isOnline"`
	Status   models.Status `json:"status"`
	LastSeen time.Time     `json:"lastSeen"`
}

type ChatRequestsLoadedPayload struct {
	Received []models.ChatRequestView `json:"received"`
	Sent     []models.ChatRequestView `json:"sent"`
	Count    int                      `json:"count"`
}

type StatusPayload struct {
	Status models.Status `json:"status"`
}

type OfflineMessagesPayload struct {
	Count   int            `json:"count"`
	Chats   map[string]int `json:"chats"`
	Message string         `json:"message"`
}

type ChatRequestPayload struct {
	Request models.ChatRequestView `json:"request"`
	Message string                 `json:"message,omitempty"`
}

type RequestRefPayload struct {
	RequestID string `json:"requestId"`
}

type UserRefPayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message,omitempty"`
}

type SidebarPayload struct {
	ChatID  string              `json:"chatId"`
	Message models.Message      `json:"message"`
	Sender  *models.UserSummary `json:"sender,omitempty"`
}

type MessageSentPayload struct {
	MessageID   string     `json:"messageId"`
	TempID      string     `json:"tempId,omitempty"`
	Success     bool       `json:"success"`
	IsDelivered bool       `json:"isDelivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

type MessageDeliveredPayload struct {
	MessageID   string    `json:"messageId"`
	ChatID      string    `json:"chatId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	ReadAt    time.Time `json:"readAt"`
	ReadBy    string    `json:"readBy"`
}

type ChatReadPayload struct {
	ChatID    string    `json:"chatId"`
	ReadAt    time.Time `json:"readAt"`
	ReadCount int       `json:"readCount"`
	ReadBy    string    `json:"readBy"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type ChatClearedPayload struct {
	ChatID    string `json:"chatId"`
	ClearedBy string `json:"clearedBy,omitempty"`
	Reason    string `json:"reason"`
	Count     int    `json:"deletedCount"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Reason    string `json:"reason"`
}

type ReactionUpdatedPayload struct {
	MessageID string            `json:"messageId"`
	ChatID    string            `json:"chatId"`
	Reactions []models.Reaction `json:"reactions"`
}

type IncognitoPayload struct {
	ChatID    string     `json:"chatId"`
	Enabled   bool       `json:"enabled"`
	EnabledBy string     `json:"enabledBy,omitempty"`
	EnabledAt *time.Time `json:"enabledAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type MessagesLoadedPayload struct {
	ChatID   string           `json:"chatId"`
	Messages []models.Message `json:"messages"`
}

// ErrorPayload is carried by every *Error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TempID  string `json:"tempId,omitempty"`
}
