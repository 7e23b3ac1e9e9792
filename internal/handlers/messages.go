package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairchat/internal/events"
)

// MessageService is the message history surface exposed over REST.
type MessageService interface {
	History(ctx context.Context, callerID, chatID string, limit int) (events.MessagesLoadedPayload, error)
	DeleteHistory(ctx context.Context, callerID, chatID string) (events.ChatClearedPayload, error)
	DeleteMessage(ctx context.Context, callerID, chatID, messageID string) (events.MessageDeletedPayload, error)
}

// MessageHandler serves /api/messages.
type MessageHandler struct {
	messages MessageService
	logger   *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// History returns the latest messages of a chat the caller belongs to.
func (h *MessageHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	payload, err := h.messages.History(c.Request.Context(), userIDFromContext(c), c.Param("chatId"), limit)
	if err != nil {
		writeError(c, h.logger, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, payload)
}

// DeleteHistory removes every message of a chat for both participants.
func (h *MessageHandler) DeleteHistory(c *gin.Context) {
	payload, err := h.messages.DeleteHistory(c.Request.Context(), userIDFromContext(c), c.Param("chatId"))
	if err != nil {
		writeError(c, h.logger, err, "failed to delete chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat history deleted", "deletedCount": payload.Count})
}

// DeleteMessage soft-deletes one of the caller's own messages.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	payload, err := h.messages.DeleteMessage(c.Request.Context(), userIDFromContext(c), c.Param("chatId"), c.Param("messageId"))
	if err != nil {
		writeError(c, h.logger, err, "failed to delete message")
		return
	}
	c.JSON(http.StatusOK, payload)
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
