// Package friends runs the chat request workflow, friendship and blocking.
package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/permissions"
	"pairchat/internal/repositories"
	"pairchat/internal/telemetry"
)

// Service owns chat requests and the social graph. Every successful
// operation is announced to all live connections of each affected user.
type Service struct {
	users    repositories.UserRepository
	requests repositories.ChatRequestRepository
	emitter  events.Emitter
	audit    *telemetry.AuditEmitter
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewService(users repositories.UserRepository, requests repositories.ChatRequestRepository, emitter events.Emitter, audit *telemetry.AuditEmitter, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		requests: requests,
		emitter:  emitter,
		audit:    audit,
		clock:    clock,
		logger:   logger,
	}
}

// SendRequest opens a pending chat request from callerID to receiverID.
func (s *Service) SendRequest(ctx context.Context, callerID, receiverID string) (models.ChatRequestView, error) {
	if err := target(callerID, receiverID, "receiverId"); err != nil {
		return models.ChatRequestView{}, err
	}
	caller, err := s.users.GetUser(ctx, callerID)
	if err != nil {
		return models.ChatRequestView{}, fmt.Errorf("load caller: %w", err)
	}
	receiver, err := s.users.GetUser(ctx, receiverID)
	if err != nil {
		return models.ChatRequestView{}, fmt.Errorf("load receiver: %w", err)
	}
	switch {
	case permissions.AreFriends(caller, receiver):
		return models.ChatRequestView{}, errs.Conflict("already friends with this user")
	case permissions.IsBlocked(receiver, callerID):
		return models.ChatRequestView{}, errs.Forbidden("cannot send request to this user")
	case permissions.IsBlocked(caller, receiverID):
		return models.ChatRequestView{}, errs.Forbidden("unblock this user before sending a request")
	}

	now := s.clock.Now().UTC()
	req, err := s.requests.Create(ctx, models.ChatRequest{
		ID:         uuid.NewString(),
		SenderID:   callerID,
		ReceiverID: receiverID,
		PairKey:    models.ChatID(callerID, receiverID),
		Status:     models.RequestPending,
		CreatedAt:  now,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrPendingRequestExists) {
			return models.ChatRequestView{}, errs.Conflict("chat request already exists")
		}
		return models.ChatRequestView{}, fmt.Errorf("create chat request: %w", err)
	}

	view := newView(req, caller, receiver)
	s.emitter.ToUser(callerID, events.ChatRequestSent, events.ChatRequestPayload{Request: view})
	s.emitter.ToUser(receiverID, events.NewChatRequest, events.ChatRequestPayload{
		Request: view,
		Message: fmt.Sprintf("%s wants to chat with you", caller.Name),
	})
	return view, nil
}

// Accept makes the sender and the receiver friends. Only the receiver may accept.
func (s *Service) Accept(ctx context.Context, callerID, requestID string) (models.ChatRequestView, error) {
	req, err := s.pending(ctx, requestID)
	if err != nil {
		return models.ChatRequestView{}, err
	}
	if req.ReceiverID != callerID {
		return models.ChatRequestView{}, errs.Forbidden("only the receiver can accept this request")
	}
	req, err = s.requests.Resolve(ctx, req.ID, models.RequestAccepted, s.clock.Now().UTC())
	if err != nil {
		return models.ChatRequestView{}, fmt.Errorf("accept chat request: %w", err)
	}
	if err := s.users.AddFriendship(ctx, req.SenderID, req.ReceiverID); err != nil {
		return models.ChatRequestView{}, fmt.Errorf("add friendship: %w", err)
	}

	view, err := s.view(ctx, req)
	if err != nil {
		return models.ChatRequestView{}, err
	}
	payload := events.ChatRequestPayload{Request: view}
	s.emitter.ToUser(req.SenderID, events.ChatRequestAccepted, payload)
	s.emitter.ToUser(req.ReceiverID, events.ChatRequestAccepted, payload)
	return view, nil
}

// Reject closes the request for good. Only the receiver may reject.
func (s *Service) Reject(ctx context.Context, callerID, requestID string) error {
	req, err := s.pending(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != callerID {
		return errs.Forbidden("only the receiver can reject this request")
	}
	if _, err := s.requests.Resolve(ctx, req.ID, models.RequestRejected, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("reject chat request: %w", err)
	}
	payload := events.RequestRefPayload{RequestID: req.ID}
	s.emitter.ToUser(req.SenderID, events.ChatRequestRejected, payload)
	s.emitter.ToUser(req.ReceiverID, events.ChatRequestRejected, payload)
	return nil
}

// Cancel withdraws a pending request. Only the sender may cancel.
func (s *Service) Cancel(ctx context.Context, callerID, requestID string) error {
	req, err := s.pending(ctx, requestID)
	if err != nil {
		return err
	}
	if req.SenderID != callerID {
		return errs.Forbidden("only the sender can cancel this request")
	}
	if err := s.requests.DeletePending(ctx, req.ID); err != nil {
		return fmt.Errorf("cancel chat request: %w", err)
	}
	payload := events.RequestRefPayload{RequestID: req.ID}
	s.emitter.ToUser(req.SenderID, events.ChatRequestCancelled, payload)
	s.emitter.ToUser(req.ReceiverID, events.ChatRequestCancelled, payload)
	return nil
}

func (s *Service) pending(ctx context.Context, requestID string) (models.ChatRequest, error) {
	if requestID == "" {
		return models.ChatRequest{}, errs.Validation("requestId is required")
	}
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return models.ChatRequest{}, err
	}
	if req.Status != models.RequestPending {
		return models.ChatRequest{}, errs.Conflict(fmt.Sprintf("request is already %s", req.Status))
	}
	return req, nil
}

// Block records callerID blocking targetID. Any friendship between them ends.
func (s *Service) Block(ctx context.Context, callerID, targetID string) error {
	if err := target(callerID, targetID, "userIdToBlock"); err != nil {
		return err
	}
	if _, err := s.users.GetUser(ctx, targetID); err != nil {
		return err
	}
	if err := s.users.Block(ctx, callerID, targetID); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	s.emitter.ToUser(callerID, events.UserBlocked, events.UserRefPayload{UserID: targetID})
	s.auditAction(ctx, callerID, "user.block", "user blocked", targetID)
	return nil
}

// Unblock lifts a block. Friendship is not restored.
func (s *Service) Unblock(ctx context.Context, callerID, targetID string) error {
	if err := target(callerID, targetID, "userIdToUnblock"); err != nil {
		return err
	}
	if err := s.users.Unblock(ctx, callerID, targetID); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	s.emitter.ToUser(callerID, events.UserUnblocked, events.UserRefPayload{UserID: targetID})
	s.auditAction(ctx, callerID, "user.unblock", "user unblocked", targetID)
	return nil
}

// RemoveFriend drops the friendship on both sides and tells both users.
func (s *Service) RemoveFriend(ctx context.Context, callerID, friendID string) error {
	if err := target(callerID, friendID, "friendId"); err != nil {
		return err
	}
	if err := s.users.RemoveFriendship(ctx, callerID, friendID); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	s.emitter.ToUser(callerID, events.FriendRemoved, events.UserRefPayload{UserID: friendID})
	s.emitter.ToUser(friendID, events.FriendRemoved, events.UserRefPayload{UserID: callerID})
	return nil
}

// LoadRequests returns the user's pending requests split by direction.
func (s *Service) LoadRequests(ctx context.Context, userID string) (events.ChatRequestsLoadedPayload, error) {
	reqs, err := s.requests.ListPending(ctx, userID)
	if err != nil {
		return events.ChatRequestsLoadedPayload{}, fmt.Errorf("list chat requests: %w", err)
	}
	ids := make([]string, 0, len(reqs)*2)
	for _, r := range reqs {
		ids = append(ids, r.SenderID, r.ReceiverID)
	}
	users, err := s.byID(ctx, ids)
	if err != nil {
		return events.ChatRequestsLoadedPayload{}, err
	}

	payload := events.ChatRequestsLoadedPayload{
		Received: []models.ChatRequestView{},
		Sent:     []models.ChatRequestView{},
	}
	for _, r := range reqs {
		view := newView(r, users[r.SenderID], users[r.ReceiverID])
		if r.ReceiverID == userID {
			payload.Received = append(payload.Received, view)
		} else {
			payload.Sent = append(payload.Sent, view)
		}
	}
	payload.Count = len(payload.Received)
	return payload, nil
}

// ListFriends returns the public view of the user's friends.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, user.Friends)
}

// ListBlocked returns the public view of the users the caller has blocked.
func (s *Service) ListBlocked(ctx context.Context, userID string) ([]models.UserSummary, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, user.BlockedUsers)
}

// UpdateStatus sets the user's declared status and announces it to everyone.
func (s *Service) UpdateStatus(ctx context.Context, userID, raw string) (events.UserStatusPayload, error) {
	status, err := models.ParseStatus(raw)
	if err != nil {
		return events.UserStatusPayload{}, errs.Validation("invalid status")
	}
	if err := s.users.SetStatus(ctx, userID, status); err != nil {
		return events.UserStatusPayload{}, fmt.Errorf("set status: %w", err)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return events.UserStatusPayload{}, err
	}
	payload := events.UserStatusPayload{
		UserID:   user.ID,
		IsOnline: user.IsOnline,
		Status:   user.Status,
		LastSeen: user.LastSeen,
	}
	s.emitter.Broadcast(events.UserStatus, payload)
	return payload, nil
}

func (s *Service) view(ctx context.Context, req models.ChatRequest) (models.ChatRequestView, error) {
	users, err := s.byID(ctx, []string{req.SenderID, req.ReceiverID})
	if err != nil {
		return models.ChatRequestView{}, err
	}
	return newView(req, users[req.SenderID], users[req.ReceiverID]), nil
}

func (s *Service) byID(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := map[string]models.User{}
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Service) summaries(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	out := []models.UserSummary{}
	if len(ids) == 0 {
		return out, nil
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

func (s *Service) auditAction(ctx context.Context, callerID, action, text, targetID string) {
	s.audit.Emit(ctx, telemetry.AuditEntry{
		Action:    action,
		Text:      text,
		RequestID: telemetry.RequestIDFrom(ctx),
		UserID:    callerID,
		Attrs:     map[string]string{"target_user_id": targetID},
	})
}

func newView(req models.ChatRequest, sender, receiver models.User) models.ChatRequestView {
	if sender.ID == "" {
		sender.ID = req.SenderID
	}
	if receiver.ID == "" {
		receiver.ID = req.ReceiverID
	}
	return models.ChatRequestView{
		ID:        req.ID,
		Sender:    sender.Summary(),
		Receiver:  receiver.Summary(),
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
	}
}

func target(callerID, otherID, field string) error {
	if otherID == "" {
		return errs.Validation(field + " is required")
	}
	if callerID == otherID {
		return permissions.ErrSelfTarget
	}
	return nil
}
