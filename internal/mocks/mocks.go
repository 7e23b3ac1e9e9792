package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)

func (m *UserRepositoryMock) Create(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	args := m.Called(ctx, id, online, lastSeen)
	return args.Error(0)
}

func (m *UserRepositoryMock) SetStatus(ctx context.Context, id string, status models.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *UserRepositoryMock) AddFriendship(ctx context.Context, a, b string) error {
	args := m.Called(ctx, a, b)
	return args.Error(0)
}

func (m *UserRepositoryMock) RemoveFriendship(ctx context.Context, a, b string) error {
	args := m.Called(ctx, a, b)
	return args.Error(0)
}

func (m *UserRepositoryMock) Block(ctx context.Context, blockerID, blockedID string) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *UserRepositoryMock) Unblock(ctx context.Context, blockerID, blockedID string) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *UserRepositoryMock) PutIncognito(ctx context.Context, userID string, rec models.IncognitoRecord) error {
	args := m.Called(ctx, userID, rec)
	return args.Error(0)
}

func (m *UserRepositoryMock) RemoveIncognito(ctx context.Context, userID, chatID string) error {
	args := m.Called(ctx, userID, chatID)
	return args.Error(0)
}

func (m *UserRepositoryMock) RemoveExpiredIncognito(ctx context.Context, userID, chatID string, now time.Time) error {
	args := m.Called(ctx, userID, chatID, now)
	return args.Error(0)
}

func (m *UserRepositoryMock) ListWithIncognito(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListByChat(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListIDsByChat(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *MessageRepositoryMock) ListUndelivered(ctx context.Context, receiverID string) ([]models.Message, error) {
	args := m.Called(ctx, receiverID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkChatRead(ctx context.Context, chatID, senderID string, at time.Time) (int, error) {
	args := m.Called(ctx, chatID, senderID, at)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) UpdateReactions(ctx context.Context, id string, reactions []models.Reaction) error {
	args := m.Called(ctx, id, reactions)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteByChat(ctx context.Context, chatID string) (int, error) {
	args := m.Called(ctx, chatID)
	return args.Int(0), args.Error(1)
}

type ChatRequestRepositoryMock struct {
	mock.Mock
}

var _ repositories.ChatRequestRepository = (*ChatRequestRepositoryMock)(nil)

func (m *ChatRequestRepositoryMock) Create(ctx context.Context, req models.ChatRequest) (models.ChatRequest, error) {
	args := m.Called(ctx, req)
	var out models.ChatRequest
	if val := args.Get(0); val != nil {
		out = val.(models.ChatRequest)
	}
	return out, args.Error(1)
}

func (m *ChatRequestRepositoryMock) Get(ctx context.Context, id string) (models.ChatRequest, error) {
	args := m.Called(ctx, id)
	var out models.ChatRequest
	if val := args.Get(0); val != nil {
		out = val.(models.ChatRequest)
	}
	return out, args.Error(1)
}

func (m *ChatRequestRepositoryMock) FindPending(ctx context.Context, pairKey string) (models.ChatRequest, error) {
	args := m.Called(ctx, pairKey)
	var out models.ChatRequest
	if val := args.Get(0); val != nil {
		out = val.(models.ChatRequest)
	}
	return out, args.Error(1)
}

func (m *ChatRequestRepositoryMock) Latest(ctx context.Context, pairKey string) (models.ChatRequest, error) {
	args := m.Called(ctx, pairKey)
	var out models.ChatRequest
	if val := args.Get(0); val != nil {
		out = val.(models.ChatRequest)
	}
	return out, args.Error(1)
}

func (m *ChatRequestRepositoryMock) ListPending(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	args := m.Called(ctx, userID)
	var out []models.ChatRequest
	if val := args.Get(0); val != nil {
		out = val.([]models.ChatRequest)
	}
	return out, args.Error(1)
}

func (m *ChatRequestRepositoryMock) Resolve(ctx context.Context, id string, status models.RequestStatus, at time.Time) (models.ChatRequest, error) {
	args := m.Called(ctx, id, status, at)
	var out models.ChatRequest
	if val := args.Get(0); val != nil {
		out = val.(models.ChatRequest)
	}
	return out, args.Error(1)
}

func (m *ChatRequestRepositoryMock) DeletePending(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
