package friends

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pairchat/internal/chat"
	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/mocks"
	"pairchat/internal/models"
	"pairchat/internal/permissions"
	"pairchat/internal/repositories"
	"pairchat/internal/telemetry"
)

type fixture struct {
	store     repositories.Store
	emitter   *mocks.EmitterRecorder
	publisher *mocks.PublisherMock
	clock     *clockwork.FakeClock
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	for _, id := range []string{"ann", "ben", "cat"} {
		_, err := store.Users.Create(ctx, models.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	f := &fixture{
		store:     store,
		emitter:   &mocks.EmitterRecorder{},
		publisher: &mocks.PublisherMock{},
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)),
	}
	audit := telemetry.NewAuditEmitter(f.publisher, "audit.logs", "pairchat", "test", zap.NewNop())
	f.svc = NewService(store.Users, store.Requests, f.emitter, audit, f.clock, zap.NewNop())
	return f
}

// Scenario: a request is sent, accepted, and both sides become friends.
func TestRequestAcceptMakesFriends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendRequest(ctx, "ann", "ben")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, sent.Status)
	assert.Equal(t, "ann", sent.Sender.ID)
	assert.Equal(t, "ben@example.com", sent.Receiver.Email)

	assert.Len(t, f.emitter.Named(events.ChatRequestSent), 1)
	incoming := f.emitter.Named(events.NewChatRequest)
	require.Len(t, incoming, 1)
	assert.Equal(t, "ben", incoming[0].ID)

	loaded, err := f.svc.LoadRequests(ctx, "ben")
	require.NoError(t, err)
	require.Len(t, loaded.Received, 1)
	assert.Empty(t, loaded.Sent)
	assert.Equal(t, 1, loaded.Count)

	_, err = f.svc.Accept(ctx, "ann", sent.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden, "the sender cannot accept")

	accepted, err := f.svc.Accept(ctx, "ben", sent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, accepted.Status)

	ann, err := f.store.Users.GetUser(ctx, "ann")
	require.NoError(t, err)
	ben, err := f.store.Users.GetUser(ctx, "ben")
	require.NoError(t, err)
	assert.True(t, permissions.AreFriends(ann, ben))
	assert.True(t, permissions.AreFriends(ben, ann))

	_, err = f.store.Requests.FindPending(ctx, models.ChatID("ann", "ben"))
	assert.ErrorIs(t, err, repositories.ErrChatRequestNotFound)

	notified := f.emitter.Named(events.ChatRequestAccepted)
	require.Len(t, notified, 2)
	assert.ElementsMatch(t, []string{"ann", "ben"}, []string{notified[0].ID, notified[1].ID})

	_, err = f.svc.Accept(ctx, "ben", sent.ID)
	assert.ErrorIs(t, err, errs.ErrConflict)
	_, err = f.svc.SendRequest(ctx, "ben", "ann")
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestOnePendingRequestPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendRequest(ctx, "ann", "ben")
	require.NoError(t, err)
	_, err = f.svc.SendRequest(ctx, "ben", "ann")
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = f.svc.SendRequest(ctx, "ann", "ann")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.SendRequest(ctx, "ann", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.SendRequest(ctx, "ann", "nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRejectAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SendRequest(ctx, "ann", "ben")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Reject(ctx, "ann", first.ID), errs.ErrForbidden)
	require.NoError(t, f.svc.Reject(ctx, "ben", first.ID))
	assert.Len(t, f.emitter.Named(events.ChatRequestRejected), 2)

	perm, err := permissions.NewGate(f.store.Users, f.store.Requests).Permission(ctx, "ann", "ben")
	require.NoError(t, err)
	assert.Equal(t, permissions.StatusRejected, perm.Status)

	second, err := f.svc.SendRequest(ctx, "ann", "ben")
	require.NoError(t, err, "a rejected request does not block a new one")
	assert.ErrorIs(t, f.svc.Cancel(ctx, "ben", second.ID), errs.ErrForbidden)
	require.NoError(t, f.svc.Cancel(ctx, "ann", second.ID))
	assert.Len(t, f.emitter.Named(events.ChatRequestCancelled), 2)

	_, err = f.store.Requests.Get(ctx, second.ID)
	assert.ErrorIs(t, err, repositories.ErrChatRequestNotFound)
	assert.ErrorIs(t, f.svc.Cancel(ctx, "ann", second.ID), errs.ErrNotFound)
}

// Scenario: a block ends the friendship and stops messages in both directions.
func TestBlockStopsMessaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Users.AddFriendship(ctx, "ann", "ben"))
	f.publisher.On("Publish", mock.Anything, "audit.logs", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).Return(nil)

	require.NoError(t, f.svc.Block(ctx, "ann", "ben"))

	ann, err := f.store.Users.GetUser(ctx, "ann")
	require.NoError(t, err)
	assert.False(t, ann.IsFriendWith("ben"))
	assert.True(t, ann.HasBlocked("ben"))
	blocked := f.emitter.Named(events.UserBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, events.UserRefPayload{UserID: "ben"}, blocked[0].Data)

	messages := chat.NewService(chat.Deps{
		Gate:     permissions.NewGate(f.store.Users, f.store.Requests),
		Messages: f.store.Messages,
		Emitter:  f.emitter,
		Presence: mocks.NewStaticPresence(),
	})
	_, err = messages.Send(ctx, "ben", chat.SendInput{ReceiverID: "ann", Content: models.Content{Text: "hello?"}})
	var denied *permissions.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, permissions.CodeUserBlocked, denied.Code)

	_, err = f.svc.SendRequest(ctx, "ben", "ann")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	list, err := f.svc.ListBlocked(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ben", list[0].ID)

	require.NoError(t, f.svc.Unblock(ctx, "ann", "ben"))
	ann, err = f.store.Users.GetUser(ctx, "ann")
	require.NoError(t, err)
	assert.False(t, ann.HasBlocked("ben"))
	assert.False(t, ann.IsFriendWith("ben"), "unblock does not restore friendship")

	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestRemoveFriendNotifiesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Users.AddFriendship(ctx, "ann", "cat"))

	friends, err := f.svc.ListFriends(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, friends, 1)

	require.NoError(t, f.svc.RemoveFriend(ctx, "ann", "cat"))
	removed := f.emitter.Named(events.FriendRemoved)
	require.Len(t, removed, 2)
	assert.Equal(t, mocks.Frame{Target: "user", ID: "cat", Event: events.FriendRemoved, Data: events.UserRefPayload{UserID: "ann"}}, removed[1])

	friends, err = f.svc.ListFriends(ctx, "cat")
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestUpdateStatusIsStrict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"true", "false", "ONLINE", ""} {
		_, err := f.svc.UpdateStatus(ctx, "ann", raw)
		assert.ErrorIs(t, err, errs.ErrValidation, raw)
	}

	payload, err := f.svc.UpdateStatus(ctx, "ann", "busy")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBusy, payload.Status)
	status := f.emitter.Named(events.UserStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "all", status[0].Target)
}
