package models

import (
	"fmt"
	"time"
)

// MessageType classifies the payload of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
	MessageTypeVoice MessageType = "voice"
)

// ParseMessageType defaults an empty value to text.
func ParseMessageType(raw string) (MessageType, error) {
	if raw == "" {
		return MessageTypeText, nil
	}
	switch t := MessageType(raw); t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeAudio, MessageTypeVideo, MessageTypeVoice:
		return t, nil
	}
	return "", fmt.Errorf("invalid message type %q", raw)
}

// Content is the body of a message. Text messages carry Text, media messages carry a file reference.
type Content struct {
	Text     string `json:"text,omitempty" bson:"text,omitempty"`
	FileURL  string `json:"fileUrl,omitempty" bson:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty" bson:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty" bson:"fileSize,omitempty"`
	MimeType string `json:"mimeType,omitempty" bson:"mimeType,omitempty"`
}

// Empty reports whether the content has neither text nor a file.
func (c Content) Empty() bool {
	return c.Text == "" && c.FileURL == ""
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID    string    `json:"userId" bson:"userId"`
	Emoji     string    `json:"emoji" bson:"emoji"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ReplySnapshot freezes the replied-to message at send time.
type ReplySnapshot struct {
	MessageID string       `json:"messageId" bson:"messageId"`
	Sender    ReplySender  `json:"sender" bson:"sender"`
	Content   ReplyContent `json:"content" bson:"content"`
}

type ReplySender struct {
	ID     string `json:"id" bson:"id"`
	Name   string `json:"name" bson:"name"`
	Avatar string `json:"avatar" bson:"avatar"`
}

type ReplyContent struct {
	Text     string `json:"text,omitempty" bson:"text,omitempty"`
	FileURL  string `json:"fileUrl,omitempty" bson:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty" bson:"fileName,omitempty"`
}

// NewReplySnapshot copies the parts of original that a reply keeps.
func NewReplySnapshot(original Message, sender User) *ReplySnapshot {
	return &ReplySnapshot{
		MessageID: original.ID,
		Sender:    ReplySender{ID: sender.ID, Name: sender.Name, Avatar: sender.Avatar},
		Content: ReplyContent{
			Text:     original.Content.Text,
			FileURL:  original.Content.FileURL,
			FileName: original.Content.FileName,
		},
	}
}

// Message is a single chat message.
type Message struct {
	ID          string         `json:"id" bson:"_id"`
	SenderID    string         `json:"senderId" bson:"senderId"`
	ReceiverID  string         `json:"receiverId" bson:"receiverId"`
	ChatID      string         `json:"chatId" bson:"chatId"`
	Type        MessageType    `json:"messageType" bson:"messageType"`
	Content     Content        `json:"content" bson:"content"`
	IsDelivered bool           `json:"isDelivered" bson:"isDelivered"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	IsRead      bool           `json:"isRead" bson:"isRead"`
	ReadAt      *time.Time     `json:"readAt,omitempty" bson:"readAt,omitempty"`
	Reactions   []Reaction     `json:"reactions" bson:"reactions"`
	ReplyTo     *ReplySnapshot `json:"replyTo,omitempty" bson:"replyTo,omitempty"`
	IsDeleted   bool           `json:"isDeleted" bson:"isDeleted"`
	DeletedAt   *time.Time     `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// ToggleReaction applies the reaction rules for userID: the same emoji twice
// removes it, and any other emoji drops the user's previous reaction and is
// appended last. A user never holds more than one reaction on a message.
func (m *Message) ToggleReaction(userID, emoji string, at time.Time) {
	for i, r := range m.Reactions {
		if r.UserID != userID {
			continue
		}
		m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
		if r.Emoji == emoji {
			return
		}
		break
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
}

// RemoveReaction drops userID's reaction, if any.
func (m *Message) RemoveReaction(userID string) bool {
	for i, r := range m.Reactions {
		if r.UserID == userID {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true
		}
	}
	return false
}

// MarkDelivered flips the delivery flag once. It never moves back.
func (m *Message) MarkDelivered(at time.Time) bool {
	if m.IsDelivered {
		return false
	}
	m.IsDelivered = true
	m.DeliveredAt = &at
	return true
}

// MarkRead flips the read flag once. A read message is also delivered.
func (m *Message) MarkRead(at time.Time) bool {
	if m.IsRead {
		return false
	}
	m.MarkDelivered(at)
	m.IsRead = true
	m.ReadAt = &at
	return true
}

// SoftDelete hides the message without removing the row.
func (m *Message) SoftDelete(at time.Time) {
	m.IsDeleted = true
	m.DeletedAt = &at
	m.Content = Content{}
}

// ChatEvent is the frame written to event channel clients.
type ChatEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
