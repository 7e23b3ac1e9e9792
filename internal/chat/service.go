// Package chat implements the message lifecycle: sending, delivery and read
// receipts, reactions, replies and deletion.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/permissions"
	"pairchat/internal/repositories"
	"pairchat/internal/telemetry"
)

const (
	DefaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Notifier nudges an offline recipient out of band.
type Notifier interface {
	NewMessage(ctx context.Context, recipient, sender models.User, msg models.Message) error
}

// AutoDeleter schedules deletion of a message when its chat is incognito.
type AutoDeleter interface {
	ScheduleIfActive(ctx context.Context, msg models.Message, a, b models.User)
}

// Deps wires a Service.
type Deps struct {
	Gate         *permissions.Gate
	Messages     repositories.MessageRepository
	Emitter      events.Emitter
	Presence     events.Presence
	Notifier     Notifier
	AutoDeleter  AutoDeleter
	Audit        *telemetry.AuditEmitter
	Clock        clockwork.Clock
	HistoryLimit int
	Logger       *zap.Logger
}

// Service is the message lifecycle engine.
type Service struct {
	gate         *permissions.Gate
	messages     repositories.MessageRepository
	emitter      events.Emitter
	presence     events.Presence
	notifier     Notifier
	autoDeleter  AutoDeleter
	audit        *telemetry.AuditEmitter
	clock        clockwork.Clock
	historyLimit int
	logger       *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = DefaultHistoryLimit
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		gate:         d.Gate,
		messages:     d.Messages,
		emitter:      d.Emitter,
		presence:     d.Presence,
		notifier:     d.Notifier,
		autoDeleter:  d.AutoDeleter,
		audit:        d.Audit,
		clock:        d.Clock,
		historyLimit: d.HistoryLimit,
		logger:       d.Logger,
	}
}

// SendInput is a message as submitted by its sender.
type SendInput struct {
	ReceiverID string
	Content    models.Content
	Type       string
	TempID     string
	ReplyToID  string
}

// Send stores a message from senderID and fans it out. Delivery is decided by
// whether the receiver is online at send time.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (models.Message, error) {
	if in.ReceiverID == "" {
		return models.Message{}, errs.Validation("receiverId is required")
	}
	msgType, err := models.ParseMessageType(in.Type)
	if err != nil {
		return models.Message{}, errs.Validation(err.Error())
	}
	in.Content.Text = strings.TrimSpace(in.Content.Text)
	if in.Content.Empty() {
		return models.Message{}, errs.Validation("message content is required")
	}

	pair, err := s.gate.Authorize(ctx, senderID, in.ReceiverID)
	if err != nil {
		return models.Message{}, err
	}
	chatID := models.ChatID(senderID, in.ReceiverID)

	var reply *models.ReplySnapshot
	if in.ReplyToID != "" {
		reply, err = s.replySnapshot(ctx, chatID, in.ReplyToID, pair)
		if err != nil {
			return models.Message{}, err
		}
	}

	now := s.clock.Now().UTC()
	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: in.ReceiverID,
		ChatID:     chatID,
		Type:       msgType,
		Content:    in.Content,
		Reactions:  []models.Reaction{},
		ReplyTo:    reply,
		CreatedAt:  now,
	}
	online := s.presence.IsOnline(in.ReceiverID)
	if online {
		msg.MarkDelivered(now)
	}

	saved, err := s.messages.Create(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("save message: %w", err)
	}
	observability.IncMessageSent(string(saved.Type), saved.IsDelivered)

	senderSummary := pair.Caller.Summary()
	s.emitter.ToRoom(chatID, events.ReceiveMessage, saved)
	if online {
		s.emitter.ToUser(in.ReceiverID, events.NewMessageForSidebar, events.SidebarPayload{
			ChatID:  chatID,
			Message: saved,
			Sender:  &senderSummary,
		})
	} else {
		s.nudge(ctx, pair.Other, pair.Caller, saved)
	}
	s.emitter.ToUser(senderID, events.NewMessageForSidebar, events.SidebarPayload{
		ChatID:  chatID,
		Message: saved,
	})

	if s.autoDeleter != nil {
		s.autoDeleter.ScheduleIfActive(ctx, saved, pair.Caller, pair.Other)
	}
	return saved, nil
}

func (s *Service) replySnapshot(ctx context.Context, chatID, replyToID string, pair permissions.Pair) (*models.ReplySnapshot, error) {
	original, err := s.messages.Get(ctx, replyToID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, errs.Validation("reply target not found")
		}
		return nil, fmt.Errorf("load reply target: %w", err)
	}
	if original.ChatID != chatID {
		return nil, errs.Validation("reply target belongs to another chat")
	}
	if original.IsDeleted {
		return nil, errs.Validation("cannot reply to a deleted message")
	}
	author := pair.Caller
	if original.SenderID == pair.Other.ID {
		author = pair.Other
	}
	return models.NewReplySnapshot(original, author), nil
}

func (s *Service) nudge(ctx context.Context, recipient, sender models.User, msg models.Message) {
	if s.notifier == nil || recipient.Email == "" {
		return
	}
	if err := s.notifier.NewMessage(ctx, recipient, sender, msg); err != nil {
		s.logger.Warn("offline notification failed",
			zap.String("user_id", recipient.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// LoadMessages returns the latest messages exchanged with otherID in ascending order.
func (s *Service) LoadMessages(ctx context.Context, callerID, otherID string, limit int) (events.MessagesLoadedPayload, error) {
	if otherID == "" {
		return events.MessagesLoadedPayload{}, errs.Validation("otherUserId is required")
	}
	if _, err := s.gate.Authorize(ctx, callerID, otherID); err != nil {
		return events.MessagesLoadedPayload{}, err
	}
	chatID := models.ChatID(callerID, otherID)
	msgs, err := s.messages.ListByChat(ctx, chatID, s.limit(limit))
	if err != nil {
		return events.MessagesLoadedPayload{}, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return events.MessagesLoadedPayload{ChatID: chatID, Messages: msgs}, nil
}

// History is LoadMessages addressed by chat ID, for REST callers.
func (s *Service) History(ctx context.Context, callerID, chatID string, limit int) (events.MessagesLoadedPayload, error) {
	otherID, err := s.counterpart(chatID, callerID)
	if err != nil {
		return events.MessagesLoadedPayload{}, err
	}
	return s.LoadMessages(ctx, callerID, otherID, limit)
}

func (s *Service) limit(requested int) int {
	switch {
	case requested <= 0:
		return s.historyLimit
	case requested > maxHistoryLimit:
		return maxHistoryLimit
	}
	return requested
}

// DeliverPending marks every message that reached userID while offline as
// delivered, notifies the senders and returns per-chat counts.
func (s *Service) DeliverPending(ctx context.Context, userID string) (events.OfflineMessagesPayload, error) {
	msgs, err := s.messages.ListUndelivered(ctx, userID)
	if err != nil {
		return events.OfflineMessagesPayload{}, fmt.Errorf("list undelivered: %w", err)
	}
	payload := events.OfflineMessagesPayload{Chats: map[string]int{}}
	now := s.clock.Now().UTC()
	for _, msg := range msgs {
		payload.Count++
		payload.Chats[msg.ChatID]++
		if err := s.markDelivered(ctx, msg, now); err != nil {
			s.logger.Warn("mark pending message delivered", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	if payload.Count > 0 {
		payload.Message = fmt.Sprintf("You have %d new message(s) in %d chat(s)", payload.Count, len(payload.Chats))
	}
	return payload, nil
}

// MarkDelivered acknowledges delivery of a message addressed to callerID. It is idempotent.
func (s *Service) MarkDelivered(ctx context.Context, callerID, messageID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != callerID {
		return errs.Forbidden("message is not addressed to you")
	}
	return s.markDelivered(ctx, msg, s.clock.Now().UTC())
}

func (s *Service) markDelivered(ctx context.Context, msg models.Message, at time.Time) error {
	changed, err := s.messages.MarkDelivered(ctx, msg.ID, at)
	if err != nil || !changed {
		return err
	}
	s.emitter.ToUser(msg.SenderID, events.MessageDelivered, events.MessageDeliveredPayload{
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		DeliveredAt: at,
	})
	return nil
}

// MarkRead marks one message as read by callerID. Messages the caller sent are left alone.
func (s *Service) MarkRead(ctx context.Context, callerID, messageID string) error {
	if messageID == "" {
		return errs.Validation("messageId is required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if !models.ChatHasMember(msg.ChatID, callerID) {
		return errs.Forbidden("not a member of this chat")
	}
	if msg.SenderID == callerID {
		return nil
	}
	now := s.clock.Now().UTC()
	changed, err := s.messages.MarkRead(ctx, msg.ID, now)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if changed {
		s.emitter.ToRoom(msg.ChatID, events.MessageRead, events.MessageReadPayload{
			MessageID: msg.ID,
			ChatID:    msg.ChatID,
			ReadAt:    now,
			ReadBy:    callerID,
		})
	}
	return nil
}

// MarkChatRead marks every unread message otherID sent to callerID as read.
func (s *Service) MarkChatRead(ctx context.Context, callerID, otherID string) (int, error) {
	if otherID == "" {
		return 0, errs.Validation("otherUserId is required")
	}
	if callerID == otherID {
		return 0, permissions.ErrSelfTarget
	}
	chatID := models.ChatID(callerID, otherID)
	now := s.clock.Now().UTC()
	n, err := s.messages.MarkChatRead(ctx, chatID, otherID, now)
	if err != nil {
		return 0, fmt.Errorf("mark chat read: %w", err)
	}
	if n > 0 {
		s.emitter.ToRoom(chatID, events.ChatRead, events.ChatReadPayload{
			ChatID:    chatID,
			ReadAt:    now,
			ReadCount: n,
			ReadBy:    callerID,
		})
	}
	return n, nil
}

// React toggles callerID's emoji on a message. The caller fans out the result.
func (s *Service) React(ctx context.Context, callerID, messageID, emoji string) (events.ReactionUpdatedPayload, error) {
	if emoji == "" {
		return events.ReactionUpdatedPayload{}, errs.Validation("emoji is required")
	}
	msg, err := s.reactable(ctx, callerID, messageID)
	if err != nil {
		return events.ReactionUpdatedPayload{}, err
	}
	msg.ToggleReaction(callerID, emoji, s.clock.Now().UTC())
	if err := s.messages.UpdateReactions(ctx, msg.ID, msg.Reactions); err != nil {
		return events.ReactionUpdatedPayload{}, fmt.Errorf("save reactions: %w", err)
	}
	return reactionPayload(msg), nil
}

// RemoveReaction strips callerID's reaction from a message, if present.
func (s *Service) RemoveReaction(ctx context.Context, callerID, messageID string) (events.ReactionUpdatedPayload, error) {
	msg, err := s.reactable(ctx, callerID, messageID)
	if err != nil {
		return events.ReactionUpdatedPayload{}, err
	}
	if msg.RemoveReaction(callerID) {
		if err := s.messages.UpdateReactions(ctx, msg.ID, msg.Reactions); err != nil {
			return events.ReactionUpdatedPayload{}, fmt.Errorf("save reactions: %w", err)
		}
	}
	return reactionPayload(msg), nil
}

func (s *Service) reactable(ctx context.Context, callerID, messageID string) (models.Message, error) {
	if messageID == "" {
		return models.Message{}, errs.Validation("messageId is required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	otherID, ok := models.Counterpart(msg.ChatID, callerID)
	if !ok {
		return models.Message{}, errs.Forbidden("not a member of this chat")
	}
	if msg.IsDeleted {
		return models.Message{}, errs.Validation("message was deleted")
	}
	if _, err := s.gate.Authorize(ctx, callerID, otherID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func reactionPayload(msg models.Message) events.ReactionUpdatedPayload {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	return events.ReactionUpdatedPayload{MessageID: msg.ID, ChatID: msg.ChatID, Reactions: reactions}
}

// ClearChat hard-deletes the whole conversation between callerID and otherID.
func (s *Service) ClearChat(ctx context.Context, callerID, otherID string) (events.ChatClearedPayload, error) {
	if otherID == "" {
		return events.ChatClearedPayload{}, errs.Validation("otherUserId is required")
	}
	if callerID == otherID {
		return events.ChatClearedPayload{}, permissions.ErrSelfTarget
	}
	return s.clear(ctx, callerID, models.ChatID(callerID, otherID), "chat.clear")
}

// DeleteHistory is ClearChat addressed by chat ID. The caller must be a participant.
func (s *Service) DeleteHistory(ctx context.Context, callerID, chatID string) (events.ChatClearedPayload, error) {
	if _, err := s.counterpart(chatID, callerID); err != nil {
		return events.ChatClearedPayload{}, err
	}
	return s.clear(ctx, callerID, chatID, "chat.delete_history")
}

func (s *Service) clear(ctx context.Context, callerID, chatID, action string) (events.ChatClearedPayload, error) {
	n, err := s.messages.DeleteByChat(ctx, chatID)
	if err != nil {
		return events.ChatClearedPayload{}, fmt.Errorf("delete messages: %w", err)
	}
	payload := events.ChatClearedPayload{ChatID: chatID, ClearedBy: callerID, Reason: events.ReasonCleared, Count: n}
	s.emitter.ToRoom(chatID, events.ChatCleared, payload)
	s.audit.Emit(ctx, telemetry.AuditEntry{
		Action:    action,
		Text:      "chat history deleted",
		RequestID: telemetry.RequestIDFrom(ctx),
		UserID:    callerID,
		Attrs:     map[string]string{"chat_id": chatID, "deleted": fmt.Sprint(n)},
	})
	return payload, nil
}

// DeleteMessage soft-deletes a message on behalf of its sender. A non-empty
// chatID must match the message's chat.
func (s *Service) DeleteMessage(ctx context.Context, callerID, chatID, messageID string) (events.MessageDeletedPayload, error) {
	if messageID == "" {
		return events.MessageDeletedPayload{}, errs.Validation("messageId is required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return events.MessageDeletedPayload{}, err
	}
	if chatID != "" && msg.ChatID != chatID {
		return events.MessageDeletedPayload{}, repositories.ErrMessageNotFound
	}
	if msg.SenderID != callerID {
		return events.MessageDeletedPayload{}, errs.Forbidden("only the sender can delete a message")
	}
	payload := events.MessageDeletedPayload{MessageID: msg.ID, ChatID: msg.ChatID, Reason: events.ReasonSender}
	if msg.IsDeleted {
		return payload, nil
	}
	if err := s.messages.SoftDelete(ctx, msg.ID, s.clock.Now().UTC()); err != nil {
		return events.MessageDeletedPayload{}, fmt.Errorf("delete message: %w", err)
	}
	s.emitter.ToRoom(msg.ChatID, events.MessageDeleted, payload)
	return payload, nil
}

func (s *Service) counterpart(chatID, callerID string) (string, error) {
	if _, _, err := models.ParseChatID(chatID); err != nil {
		return "", errs.Validation("invalid chat id")
	}
	otherID, ok := models.Counterpart(chatID, callerID)
	if !ok {
		return "", errs.Forbidden("not a member of this chat")
	}
	return otherID, nil
}
