package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairchat/internal/errs"
	"pairchat/internal/models"
)

var (
	ErrUserNotFound         = fmt.Errorf("user %w", errs.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", errs.ErrNotFound)
	ErrChatRequestNotFound  = fmt.Errorf("chat request %w", errs.ErrNotFound)
	ErrPendingRequestExists = fmt.Errorf("a pending chat request already exists for this pair: %w", errs.ErrConflict)
)

// UserRepository persists users and their social graph.
type UserRepository interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
	SetStatus(ctx context.Context, id string, status models.Status) error
	// AddFriendship adds the symmetric friend edge between a and b.
	AddFriendship(ctx context.Context, a, b string) error
	// RemoveFriendship removes the friend edge on both sides.
	RemoveFriendship(ctx context.Context, a, b string) error
	// Block records blockerID blocking blockedID and drops the friend edge on both sides.
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	// PutIncognito replaces any record for rec.ChatID on the user with rec.
	PutIncognito(ctx context.Context, userID string, rec models.IncognitoRecord) error
	RemoveIncognito(ctx context.Context, userID, chatID string) error
	// RemoveExpiredIncognito drops records for chatID whose expiry is at or before now.
	// A record renewed concurrently with a later expiry is kept.
	RemoveExpiredIncognito(ctx context.Context, userID, chatID string, now time.Time) error
	ListWithIncognito(ctx context.Context) ([]models.User, error)
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	Get(ctx context.Context, id string) (models.Message, error)
	// ListByChat returns the latest limit messages of the chat in ascending creation order.
	ListByChat(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	ListIDsByChat(ctx context.Context, chatID string) ([]string, error)
	ListUndelivered(ctx context.Context, receiverID string) ([]models.Message, error)
	// MarkDelivered reports whether the flag changed.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkRead sets read and delivered; it reports whether the read flag changed.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkChatRead marks every unread message authored by senderID in chatID as read.
	MarkChatRead(ctx context.Context, chatID, senderID string, at time.Time) (int, error)
	UpdateReactions(ctx context.Context, id string, reactions []models.Reaction) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// Delete hard-deletes a message and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByChat(ctx context.Context, chatID string) (int, error)
}

// ChatRequestRepository persists chat requests.
type ChatRequestRepository interface {
	// Create fails with ErrPendingRequestExists when the pair already has a pending request.
	Create(ctx context.Context, req models.ChatRequest) (models.ChatRequest, error)
	Get(ctx context.Context, id string) (models.ChatRequest, error)
	FindPending(ctx context.Context, pairKey string) (models.ChatRequest, error)
	// Latest returns the most recent request of the pair regardless of status.
	Latest(ctx context.Context, pairKey string) (models.ChatRequest, error)
	ListPending(ctx context.Context, userID string) ([]models.ChatRequest, error)
	// Resolve moves a pending request to status; a non-pending request yields ErrChatRequestNotFound.
	Resolve(ctx context.Context, id string, status models.RequestStatus, at time.Time) (models.ChatRequest, error)
	// DeletePending removes a pending request; anything else yields ErrChatRequestNotFound.
	DeletePending(ctx context.Context, id string) error
}

// Store bundles the repositories of one backing driver.
type Store struct {
	Users    UserRepository
	Messages MessageRepository
	Requests ChatRequestRepository
	close    func(context.Context) error
}

// Close releases the driver's resources.
func (s Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// IsNotFound reports whether err is any repository not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
