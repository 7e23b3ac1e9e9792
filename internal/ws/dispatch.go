package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pairchat/internal/chat"
	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/permissions"
)

const (
	codeValidation   = "VALIDATION_ERROR"
	codeNotFound     = "NOT_FOUND"
	codeForbidden    = "FORBIDDEN"
	codeConflict     = "CONFLICT"
	codeUnauthorized = "UNAUTHORIZED"
	codeUnknownEvent = "UNKNOWN_EVENT"
	codeInternal     = "INTERNAL_ERROR"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// route handles one inbound event. Failures are reported with errorEvent;
// routes without one drop failures silently.
type route struct {
	errorEvent string
	handle     func(ctx context.Context, c *Client, raw json.RawMessage) error
}

// tempIDError carries the client's optimistic message ID back in the error event.
type tempIDError struct {
	err    error
	tempID string
}

func (e *tempIDError) Error() string { return e.err.Error() }

func (e *tempIDError) Unwrap() error { return e.err }

func (h *Handler) routeTable() map[string]route {
	return map[string]route{
		events.SendChatRequest:    {events.ChatRequestError, h.onSendChatRequest},
		events.AcceptChatRequest:  {events.ChatRequestError, h.onAcceptChatRequest},
		events.RejectChatRequest:  {events.ChatRequestError, h.onRejectChatRequest},
		events.CancelChatRequest:  {events.ChatRequestError, h.onCancelChatRequest},
		events.BlockUser:          {events.BlockUserError, h.onBlockUser},
		events.UnblockUser:        {events.UnblockUserError, h.onUnblockUser},
		events.RemoveFriend:       {events.RemoveFriendError, h.onRemoveFriend},
		events.JoinChat:           {events.JoinChatError, h.onJoinChat},
		events.LeaveChat:          {"", h.onLeaveChat},
		events.LoadMessages:       {events.MessagesLoadError, h.onLoadMessages},
		events.SendMessage:        {events.SendMessageError, h.onSendMessage},
		events.Typing:             {"", h.onTyping(events.Typing)},
		events.StopTyping:         {"", h.onTyping(events.StopTyping)},
		events.MarkMessageAsRead:  {events.ReadError, h.onMarkMessageAsRead},
		events.MarkChatAsRead:     {events.ReadError, h.onMarkChatAsRead},
		events.ClearChat:          {events.ChatClearError, h.onClearChat},
		events.DeleteMessage:      {events.DeleteMessageError, h.onDeleteMessage},
		events.UpdateStatus:       {events.StatusUpdateError, h.onUpdateStatus},
		events.UserActivity:       {"", h.onUserActivity},
		events.AddReaction:        {events.ReactionError, h.onAddReaction},
		events.RemoveReaction:     {events.ReactionError, h.onRemoveReaction},
		events.GetIncognitoStatus: {events.IncognitoError, h.onGetIncognitoStatus},
		events.ToggleIncognito:    {events.IncognitoError, h.onToggleIncognito},
	}
}

// dispatch runs one inbound event to completion. A failing or panicking
// handler never takes the connection down.
func (h *Handler) dispatch(ctx context.Context, c *Client, in inboundFrame) {
	r, ok := h.routes[in.Event]
	if !ok {
		observability.IncWSEvent("unknown", "error")
		h.hub.Send(c, events.Error, events.ErrorPayload{
			Message: fmt.Sprintf("unknown event %q", in.Event),
			Code:    codeUnknownEvent,
		})
		return
	}

	ctx, span := h.tracer.Start(ctx, "ws."+in.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithLinks(c.link),
		trace.WithAttributes(
			attribute.String("user.id", c.UserID()),
			attribute.String("ws.conn_id", c.info.ConnID),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("event handler panic",
				zap.String("event", in.Event),
				zap.String("user_id", c.UserID()),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			span.SetStatus(codes.Error, "panic")
			observability.IncWSEvent(in.Event, "panic")
			h.fail(c, in.Event, r.errorEvent, fmt.Errorf("panic: %v", rec))
		}
	}()

	if err := r.handle(ctx, c, in.Data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.IncWSEvent(in.Event, "error")
		h.fail(c, in.Event, r.errorEvent, err)
		return
	}
	observability.IncWSEvent(in.Event, "ok")
}

func (h *Handler) fail(c *Client, event, errorEvent string, err error) {
	payload := events.ErrorPayload{Message: "internal error", Code: errorCode(err)}
	if errs.Public(err) {
		payload.Message = err.Error()
	} else {
		h.logger.Error("event failed",
			zap.String("event", event),
			zap.String("user_id", c.UserID()),
			zap.Error(err),
		)
	}
	var withTemp *tempIDError
	if errors.As(err, &withTemp) {
		payload.TempID = withTemp.tempID
	}
	if errorEvent == "" {
		return
	}
	h.hub.Send(c, errorEvent, payload)
}

func errorCode(err error) string {
	var denied *permissions.DeniedError
	switch {
	case errors.As(err, &denied):
		return string(denied.Code)
	case errors.Is(err, errs.ErrValidation):
		return codeValidation
	case errors.Is(err, errs.ErrNotFound):
		return codeNotFound
	case errors.Is(err, errs.ErrForbidden):
		return codeForbidden
	case errors.Is(err, errs.ErrConflict):
		return codeConflict
	case errors.Is(err, errs.ErrUnauthorized):
		return codeUnauthorized
	}
	return codeInternal
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals and validates an event payload into T.
func decode[T any](v *validator.Validate, raw json.RawMessage) (T, error) {
	var out T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, errs.Validation("malformed event payload")
		}
	}
	if err := v.Struct(out); err != nil {
		return out, errs.Validation(validationMessage(err))
	}
	return out, nil
}

func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "invalid event payload"
	}
	fe := fields[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

type receiverRef struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

type requestRef struct {
	RequestID string `json:"requestId" validate:"required"`
}

type blockRequest struct {
	UserID string `json:"userIdToBlock" validate:"required"`
}

type unblockRequest struct {
	UserID string `json:"userIdToUnblock" validate:"required"`
}

type friendRef struct {
	FriendID string `json:"friendId" validate:"required"`
}

type otherUserRef struct {
	OtherUserID string `json:"otherUserId" validate:"required"`
}

type loadMessagesRequest struct {
	OtherUserID string `json:"otherUserId" validate:"required"`
	Limit       int    `json:"limit" validate:"gte=0"`
}

type replyRef struct {
	MessageID string `json:"messageId"`
}

type sendMessageRequest struct {
	ReceiverID  string         `json:"receiverId" validate:"required"`
	Content     models.Content `json:"content"`
	MessageType string         `json:"messageType"`
	TempID      string         `json:"tempId"`
	ReplyTo     *replyRef      `json:"replyTo"`
}

type messageRef struct {
	MessageID string `json:"messageId" validate:"required"`
}

type deleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	ChatID    string `json:"chatId"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type reactionRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

type toggleIncognitoRequest struct {
	OtherUserID   string  `json:"otherUserId" validate:"required"`
	Enabled       *bool   `json:"enabled" validate:"required"`
	DurationHours float64 `json:"durationHours" validate:"gte=0"`
}

type chatRef struct {
	ChatID string `json:"chatId" validate:"required"`
}

// decodeChatRef accepts either {"chatId": "..."} or a bare chat ID string.
func (h *Handler) decodeChatRef(raw json.RawMessage) (chatRef, error) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		raw, _ = json.Marshal(chatRef{ChatID: bare})
	}
	return decode[chatRef](h.validate, raw)
}

func (h *Handler) onSendChatRequest(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[receiverRef](h.validate, raw)
	if err != nil {
		return err
	}
	_, err = h.friends.SendRequest(ctx, c.UserID(), in.ReceiverID)
	return err
}

func (h *Handler) onAcceptChatRequest(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[requestRef](h.validate, raw)
	if err != nil {
		return err
	}
	_, err = h.friends.Accept(ctx, c.UserID(), in.RequestID)
	return err
}

func (h *Handler) onRejectChatRequest(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[requestRef](h.validate, raw)
	if err != nil {
		return err
	}
	return h.friends.Reject(ctx, c.UserID(), in.RequestID)
}

func (h *Handler) onCancelChatRequest(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[requestRef](h.validate, raw)
	if err != nil {
		return err
	}
	return h.friends.Cancel(ctx, c.UserID(), in.RequestID)
}

func (h *Handler) onBlockUser(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[blockRequest](h.validate, raw)
	if err != nil {
		return err
	}
	return h.friends.Block(ctx, c.UserID(), in.UserID)
}

func (h *Handler) onUnblockUser(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[unblockRequest](h.validate, raw)
	if err != nil {
		return err
	}
	return h.friends.Unblock(ctx, c.UserID(), in.UserID)
}

func (h *Handler) onRemoveFriend(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[friendRef](h.validate, raw)
	if err != nil {
		return err
	}
	return h.friends.RemoveFriend(ctx, c.UserID(), in.FriendID)
}

func (h *Handler) onJoinChat(_ context.Context, c *Client, raw json.RawMessage) error {
	in, err := h.decodeChatRef(raw)
	if err != nil {
		return err
	}
	if _, _, err := models.ParseChatID(in.ChatID); err != nil {
		return errs.Validation("invalid chat id")
	}
	if !models.ChatHasMember(in.ChatID, c.UserID()) {
		return errs.Forbidden("not a member of this chat")
	}
	h.hub.Join(in.ChatID, c)
	h.hub.Send(c, events.JoinedChat, chatRef{ChatID: in.ChatID})
	return nil
}

func (h *Handler) onLeaveChat(_ context.Context, c *Client, raw json.RawMessage) error {
	in, err := h.decodeChatRef(raw)
	if err != nil {
		return err
	}
	h.hub.Leave(in.ChatID, c)
	return nil
}

func (h *Handler) onLoadMessages(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[loadMessagesRequest](h.validate, raw)
	if err != nil {
		return err
	}
	payload, err := h.chat.LoadMessages(ctx, c.UserID(), in.OtherUserID, in.Limit)
	if err != nil {
		return err
	}
	h.hub.Send(c, events.MessagesLoaded, payload)
	return nil
}

func (h *Handler) onSendMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[sendMessageRequest](h.validate, raw)
	if err != nil {
		return &tempIDError{err: err, tempID: tempIDOf(raw)}
	}
	send := chat.SendInput{
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		Type:       in.MessageType,
		TempID:     in.TempID,
	}
	if in.ReplyTo != nil {
		send.ReplyToID = in.ReplyTo.MessageID
	}
	msg, err := h.chat.Send(ctx, c.UserID(), send)
	if err != nil {
		return &tempIDError{err: err, tempID: in.TempID}
	}
	h.hub.Send(c, events.MessageSent, events.MessageSentPayload{
		MessageID:   msg.ID,
		TempID:      in.TempID,
		Success:     true,
		IsDelivered: msg.IsDelivered,
		DeliveredAt: msg.DeliveredAt,
	})
	if msg.IsDelivered && msg.DeliveredAt != nil {
		h.hub.Send(c, events.MessageDelivered, events.MessageDeliveredPayload{
			MessageID:   msg.ID,
			ChatID:      msg.ChatID,
			DeliveredAt: *msg.DeliveredAt,
		})
	}
	return nil
}

func tempIDOf(raw json.RawMessage) string {
	var probe struct {
		TempID string `json:"tempId"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.TempID
}

// onTyping relays typing indicators to the other members of a joined room.
func (h *Handler) onTyping(event string) func(context.Context, *Client, json.RawMessage) error {
	return func(_ context.Context, c *Client, raw json.RawMessage) error {
		in, err := h.decodeChatRef(raw)
		if err != nil {
			return err
		}
		if !models.ChatHasMember(in.ChatID, c.UserID()) {
			return errs.Forbidden("not a member of this chat")
		}
		payload := events.TypingPayload{ChatID: in.ChatID, UserID: c.UserID()}
		if event == events.Typing {
			payload.UserName = c.info.UserName
		}
		h.hub.ToRoomExcept(in.ChatID, c, event, payload)
		return nil
	}
}

func (h *Handler) onMarkMessageAsRead(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[messageRef](h.validate, raw)
	if err != nil {
		return err
	}
	return h.chat.MarkRead(ctx, c.UserID(), in.MessageID)
}

func (h *Handler) onMarkChatAsRead(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[otherUserRef](h.validate, raw)
	if err != nil {
		return err
	}
	_, err = h.chat.MarkChatRead(ctx, c.UserID(), in.OtherUserID)
	return err
}

func (h *Handler) onClearChat(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[otherUserRef](h.validate, raw)
	if err != nil {
		return err
	}
	payload, err := h.chat.ClearChat(ctx, c.UserID(), in.OtherUserID)
	if err != nil {
		return err
	}
	h.hub.Send(c, events.ChatClearSuccess, payload)
	return nil
}

func (h *Handler) onDeleteMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[deleteMessageRequest](h.validate, raw)
	if err != nil {
		return err
	}
	_, err = h.chat.DeleteMessage(ctx, c.UserID(), in.ChatID, in.MessageID)
	return err
}

func (h *Handler) onUpdateStatus(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[statusRequest](h.validate, raw)
	if err != nil {
		return err
	}
	payload, err := h.friends.UpdateStatus(ctx, c.UserID(), in.Status)
	if err != nil {
		return err
	}
	h.hub.Send(c, events.StatusUpdateSuccess, events.StatusPayload{Status: payload.Status})
	return nil
}

func (h *Handler) onUserActivity(_ context.Context, c *Client, _ json.RawMessage) error {
	h.hub.registry.Touch(c.UserID())
	return nil
}

func (h *Handler) onAddReaction(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[reactionRequest](h.validate, raw)
	if err != nil {
		return err
	}
	payload, err := h.chat.React(ctx, c.UserID(), in.MessageID, in.Emoji)
	if err != nil {
		return err
	}
	h.fanOutReaction(c, payload)
	return nil
}

func (h *Handler) onRemoveReaction(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[messageRef](h.validate, raw)
	if err != nil {
		return err
	}
	payload, err := h.chat.RemoveReaction(ctx, c.UserID(), in.MessageID)
	if err != nil {
		return err
	}
	h.fanOutReaction(c, payload)
	return nil
}

// fanOutReaction answers the caller directly and updates everyone else in the room.
func (h *Handler) fanOutReaction(c *Client, payload events.ReactionUpdatedPayload) {
	h.hub.Send(c, events.ReactionUpdated, payload)
	h.hub.ToRoomExcept(payload.ChatID, c, events.ReactionUpdated, payload)
}

func (h *Handler) onGetIncognitoStatus(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[otherUserRef](h.validate, raw)
	if err != nil {
		return err
	}
	status, err := h.incognito.Status(ctx, c.UserID(), in.OtherUserID)
	if err != nil {
		return err
	}
	h.hub.Send(c, events.IncognitoStatus, status)
	return nil
}

func (h *Handler) onToggleIncognito(ctx context.Context, c *Client, raw json.RawMessage) error {
	in, err := decode[toggleIncognitoRequest](h.validate, raw)
	if err != nil {
		return err
	}
	_, err = h.incognito.Toggle(ctx, c.UserID(), in.OtherUserID, *in.Enabled, in.DurationHours)
	return err
}
