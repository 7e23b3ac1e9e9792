package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/models"
)

func seedUsers(t *testing.T, store Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := store.Users.Create(context.Background(), models.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
}

func TestMemoryBlockDropsFriendshipBothSides(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedUsers(t, store, "a", "b")

	require.NoError(t, store.Users.AddFriendship(ctx, "a", "b"))
	require.NoError(t, store.Users.Block(ctx, "a", "b"))

	a, err := store.Users.GetUser(ctx, "a")
	require.NoError(t, err)
	b, err := store.Users.GetUser(ctx, "b")
	require.NoError(t, err)

	assert.True(t, a.HasBlocked("b"))
	assert.False(t, a.IsFriendWith("b"))
	assert.False(t, b.IsFriendWith("a"))
	assert.False(t, b.HasBlocked("a"))
}

func TestMemoryReturnedUsersAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedUsers(t, store, "a", "b")
	require.NoError(t, store.Users.AddFriendship(ctx, "a", "b"))

	a, err := store.Users.GetUser(ctx, "a")
	require.NoError(t, err)
	a.Friends[0] = "mutated"

	again, err := store.Users.GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, again.Friends)
}

func TestMemoryOnePendingRequestPerPair(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pair := models.ChatID("a", "b")

	_, err := store.Requests.Create(ctx, models.ChatRequest{ID: "r1", SenderID: "a", ReceiverID: "b", PairKey: pair, Status: models.RequestPending, CreatedAt: time.Now()})
	require.NoError(t, err)

	_, err = store.Requests.Create(ctx, models.ChatRequest{ID: "r2", SenderID: "b", ReceiverID: "a", PairKey: pair, Status: models.RequestPending, CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrPendingRequestExists)

	_, err = store.Requests.Resolve(ctx, "r1", models.RequestRejected, time.Now())
	require.NoError(t, err)

	_, err = store.Requests.Create(ctx, models.ChatRequest{ID: "r3", SenderID: "b", ReceiverID: "a", PairKey: pair, Status: models.RequestPending, CreatedAt: time.Now()})
	require.NoError(t, err)

	_, err = store.Requests.Resolve(ctx, "r1", models.RequestAccepted, time.Now())
	assert.ErrorIs(t, err, ErrChatRequestNotFound, "resolved requests are terminal")
}

func TestMemoryListByChatReturnsLatestAscending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	chatID := models.ChatID("a", "b")
	base := time.Now()

	for i := 0; i < 5; i++ {
		_, err := store.Messages.Create(ctx, models.Message{
			ID: fmt.Sprintf("m%d", i), ChatID: chatID, SenderID: "a", ReceiverID: "b",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := store.Messages.ListByChat(ctx, chatID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m4", msgs[2].ID)
}

func TestMemoryMarkChatReadOnlyFlipsSenderMessages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	chatID := models.ChatID("a", "b")
	now := time.Now()

	_, _ = store.Messages.Create(ctx, models.Message{ID: "m1", ChatID: chatID, SenderID: "a", ReceiverID: "b", CreatedAt: now})
	_, _ = store.Messages.Create(ctx, models.Message{ID: "m2", ChatID: chatID, SenderID: "b", ReceiverID: "a", CreatedAt: now})
	_, _ = store.Messages.Create(ctx, models.Message{ID: "m3", ChatID: chatID, SenderID: "a", ReceiverID: "b", CreatedAt: now})

	count, err := store.Messages.MarkChatRead(ctx, chatID, "a", now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	m2, err := store.Messages.Get(ctx, "m2")
	require.NoError(t, err)
	assert.False(t, m2.IsRead)

	m1, err := store.Messages.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m1.IsRead)
	assert.True(t, m1.IsDelivered)

	count, err = store.Messages.MarkChatRead(ctx, chatID, "a", now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryMarkDeliveredIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _ = store.Messages.Create(ctx, models.Message{ID: "m1", ChatID: "a_b", SenderID: "a", ReceiverID: "b", CreatedAt: time.Now()})

	changed, err := store.Messages.MarkDelivered(ctx, "m1", time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Messages.MarkDelivered(ctx, "m1", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.Messages.MarkDelivered(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryRemoveExpiredIncognitoKeepsRenewedRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedUsers(t, store, "a")
	now := time.Now()

	require.NoError(t, store.Users.PutIncognito(ctx, "a", models.IncognitoRecord{ChatID: "a_b", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Users.PutIncognito(ctx, "a", models.IncognitoRecord{ChatID: "a_c", ExpiresAt: now.Add(-time.Hour)}))

	require.NoError(t, store.Users.RemoveExpiredIncognito(ctx, "a", "a_b", now))
	require.NoError(t, store.Users.RemoveExpiredIncognito(ctx, "a", "a_c", now))

	a, err := store.Users.GetUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a.IncognitoChats, 1)
	assert.Equal(t, "a_b", a.IncognitoChats[0].ChatID)

	users, err := store.Users.ListWithIncognito(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestMemoryPutIncognitoReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedUsers(t, store, "a")
	now := time.Now()

	require.NoError(t, store.Users.PutIncognito(ctx, "a", models.IncognitoRecord{ChatID: "a_b", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Users.PutIncognito(ctx, "a", models.IncognitoRecord{ChatID: "a_b", ExpiresAt: now.Add(2 * time.Hour)}))

	a, err := store.Users.GetUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a.IncognitoChats, 1)
	assert.Equal(t, now.Add(2*time.Hour), a.IncognitoChats[0].ExpiresAt)
}
