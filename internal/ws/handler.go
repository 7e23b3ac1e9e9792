package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pairchat/internal/auth"
	"pairchat/internal/chat"
	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/repositories"
	"pairchat/internal/telemetry"
)

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ChatService is the message lifecycle surface used by the event channel.
type ChatService interface {
	Send(ctx context.Context, senderID string, in chat.SendInput) (models.Message, error)
	LoadMessages(ctx context.Context, callerID, otherID string, limit int) (events.MessagesLoadedPayload, error)
	DeliverPending(ctx context.Context, userID string) (events.OfflineMessagesPayload, error)
	MarkRead(ctx context.Context, callerID, messageID string) error
	MarkChatRead(ctx context.Context, callerID, otherID string) (int, error)
	React(ctx context.Context, callerID, messageID, emoji string) (events.ReactionUpdatedPayload, error)
	RemoveReaction(ctx context.Context, callerID, messageID string) (events.ReactionUpdatedPayload, error)
	ClearChat(ctx context.Context, callerID, otherID string) (events.ChatClearedPayload, error)
	DeleteMessage(ctx context.Context, callerID, chatID, messageID string) (events.MessageDeletedPayload, error)
}

// FriendService covers chat requests, blocking and status.
type FriendService interface {
	SendRequest(ctx context.Context, callerID, receiverID string) (models.ChatRequestView, error)
	Accept(ctx context.Context, callerID, requestID string) (models.ChatRequestView, error)
	Reject(ctx context.Context, callerID, requestID string) error
	Cancel(ctx context.Context, callerID, requestID string) error
	Block(ctx context.Context, callerID, targetID string) error
	Unblock(ctx context.Context, callerID, targetID string) error
	RemoveFriend(ctx context.Context, callerID, friendID string) error
	LoadRequests(ctx context.Context, userID string) (events.ChatRequestsLoadedPayload, error)
	UpdateStatus(ctx context.Context, userID, raw string) (events.UserStatusPayload, error)
}

// IncognitoService reads and toggles incognito state.
type IncognitoService interface {
	Status(ctx context.Context, callerID, otherID string) (models.IncognitoStatus, error)
	Toggle(ctx context.Context, callerID, otherID string, enabled bool, hours float64) (events.IncognitoPayload, error)
}

// Config wires a Handler.
type Config struct {
	Hub            *Hub
	Verifier       TokenVerifier
	Users          repositories.UserRepository
	Chat           ChatService
	Friends        FriendService
	Incognito      IncognitoService
	Clock          clockwork.Clock
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handler serves the event channel at GET /ws.
type Handler struct {
	hub       *Hub
	verifier  TokenVerifier
	users     repositories.UserRepository
	chat      ChatService
	friends   FriendService
	incognito IncognitoService
	clock     clockwork.Clock
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	tracer    trace.Tracer
	validate  *validator.Validate
	routes    map[string]route
}

func NewHandler(cfg Config) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Handler{
		hub:       cfg.Hub,
		verifier:  cfg.Verifier,
		users:     cfg.Users,
		chat:      cfg.Chat,
		friends:   cfg.Friends,
		incognito: cfg.Incognito,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		tracer:    otel.Tracer("pairchat/ws"),
		validate:  newValidator(),
	}
	allowed := cfg.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowed, r.Header.Get("Origin"))
		},
	}
	h.routes = h.routeTable()
	return h
}

// Handle authenticates the caller, upgrades the connection and starts serving it.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	user, err := h.users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("load connecting user", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	requestID := telemetry.RequestIDFrom(c.Request.Context())
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		UserName:    user.Name,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: h.clock.Now(),
	}
	client := newClient(conn, info)
	client.link = trace.LinkFromContext(ctx)

	session := telemetry.WithRequestID(context.Background(), info.RequestID)
	go client.writePump()
	h.connect(session, client, user)
	go h.serve(session, client)
}

func (h *Handler) connect(ctx context.Context, c *Client, user models.User) {
	first := h.hub.Register(c)
	observability.IncWSActive()
	publishLifecycle(ctx, c.info, "ws_connect", "")
	h.logger.Info("event channel connected",
		zap.String("user_id", user.ID),
		zap.String("conn_id", c.info.ConnID),
		zap.Bool("first", first),
	)
	if first {
		h.setPresence(ctx, user, true)
	}

	requests, err := h.friends.LoadRequests(ctx, user.ID)
	if err != nil {
		h.logger.Error("load chat requests", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		h.hub.Send(c, events.ChatRequestsLoaded, requests)
	}

	pending, err := h.chat.DeliverPending(ctx, user.ID)
	if err != nil {
		h.logger.Error("deliver pending messages", zap.String("user_id", user.ID), zap.Error(err))
	} else if pending.Count > 0 {
		h.hub.Send(c, events.OfflineMessagesNotification, pending)
	}
}

func (h *Handler) serve(ctx context.Context, c *Client) {
	var reason string
	defer func() { h.disconnect(ctx, c, reason) }()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(ctx, c.info, "ws_error", reason)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.hub.registry.Touch(c.UserID())

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			h.hub.Send(c, events.Error, events.ErrorPayload{Message: "malformed frame", Code: codeValidation})
			continue
		}
		h.dispatch(ctx, c, in)
	}
}

func (h *Handler) disconnect(ctx context.Context, c *Client, reason string) {
	last := h.hub.Unregister(c)
	c.Close()
	observability.DecWSActive()
	publishLifecycle(ctx, c.info, "ws_disconnect", reason)
	h.logger.Info("event channel disconnected",
		zap.String("user_id", c.UserID()),
		zap.String("conn_id", c.info.ConnID),
		zap.String("reason", reason),
	)
	if !last || h.hub.registry.IsOnline(c.UserID()) {
		return
	}
	user, err := h.users.GetUser(ctx, c.UserID())
	if err != nil {
		h.logger.Error("load disconnecting user", zap.String("user_id", c.UserID()), zap.Error(err))
		user = models.User{ID: c.UserID()}
	}
	h.setPresence(ctx, user, false)
}

// setPresence persists the online flag and announces the change to everyone.
func (h *Handler) setPresence(ctx context.Context, user models.User, online bool) {
	now := h.clock.Now().UTC()
	if err := h.users.SetPresence(ctx, user.ID, online, now); err != nil {
		h.logger.Error("persist presence", zap.String("user_id", user.ID), zap.Bool("online", online), zap.Error(err))
	}
	h.hub.Broadcast(events.UserStatus, events.UserStatusPayload{
		UserID:   user.ID,
		IsOnline: online,
		Status:   user.Status,
		LastSeen: now,
	})
}
