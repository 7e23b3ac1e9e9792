package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/permissions"
)

// FriendService lists relationships and updates the declared status.
type FriendService interface {
	ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
	ListBlocked(ctx context.Context, userID string) ([]models.UserSummary, error)
	UpdateStatus(ctx context.Context, userID, raw string) (events.UserStatusPayload, error)
}

// PermissionChecker resolves whether two users may chat.
type PermissionChecker interface {
	Permission(ctx context.Context, callerID, otherID string) (permissions.Permission, error)
}

// UserHandler serves the relationship endpoints under /api/users.
type UserHandler struct {
	friends FriendService
	gate    PermissionChecker
	logger  *zap.Logger
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(friends FriendService, gate PermissionChecker, logger *zap.Logger) *UserHandler {
	return &UserHandler{friends: friends, gate: gate, logger: logger}
}

// ListFriends returns the authenticated user's friends.
func (h *UserHandler) ListFriends(c *gin.Context) {
	friends, err := h.friends.ListFriends(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to load friends")
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListBlocked returns the users the authenticated user has blocked.
func (h *UserHandler) ListBlocked(c *gin.Context) {
	blocked, err := h.friends.ListBlocked(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to load blocked users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockedUsers": blocked})
}

// UpdateStatus sets the declared status. Only the four status names are accepted.
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of online, away, busy, offline"})
		return
	}

	payload, err := h.friends.UpdateStatus(c.Request.Context(), userIDFromContext(c), req.Status)
	if err != nil {
		writeError(c, h.logger, err, "failed to update status")
		return
	}
	c.JSON(http.StatusOK, payload)
}

// Permission reports whether the authenticated user may chat with :id.
func (h *UserHandler) Permission(c *gin.Context) {
	perm, err := h.gate.Permission(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err, "failed to check permission")
		return
	}
	c.JSON(http.StatusOK, perm)
}
