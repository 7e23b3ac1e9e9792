package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/permissions"
)

type FriendServiceMock struct {
	mock.Mock
}

func (m *FriendServiceMock) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.UserSummary), args.Error(1)
}

func (m *FriendServiceMock) ListBlocked(ctx context.Context, userID string) ([]models.UserSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.UserSummary), args.Error(1)
}

func (m *FriendServiceMock) UpdateStatus(ctx context.Context, userID, raw string) (events.UserStatusPayload, error) {
	args := m.Called(ctx, userID, raw)
	return args.Get(0).(events.UserStatusPayload), args.Error(1)
}

type PermissionCheckerMock struct {
	mock.Mock
}

func (m *PermissionCheckerMock) Permission(ctx context.Context, callerID, otherID string) (permissions.Permission, error) {
	args := m.Called(ctx, callerID, otherID)
	return args.Get(0).(permissions.Permission), args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) History(ctx context.Context, callerID, chatID string, limit int) (events.MessagesLoadedPayload, error) {
	args := m.Called(ctx, callerID, chatID, limit)
	return args.Get(0).(events.MessagesLoadedPayload), args.Error(1)
}

func (m *MessageServiceMock) DeleteHistory(ctx context.Context, callerID, chatID string) (events.ChatClearedPayload, error) {
	args := m.Called(ctx, callerID, chatID)
	return args.Get(0).(events.ChatClearedPayload), args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, callerID, chatID, messageID string) (events.MessageDeletedPayload, error) {
	args := m.Called(ctx, callerID, chatID, messageID)
	return args.Get(0).(events.MessageDeletedPayload), args.Error(1)
}
