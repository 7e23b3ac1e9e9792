package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/errs"
	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

func TestCheckMessaging(t *testing.T) {
	pending := &models.ChatRequest{ID: "r", SenderID: "a", ReceiverID: "b", Status: models.RequestPending}
	rejected := &models.ChatRequest{ID: "r", SenderID: "a", ReceiverID: "b", Status: models.RequestRejected}
	accepted := &models.ChatRequest{ID: "r", SenderID: "a", ReceiverID: "b", Status: models.RequestAccepted}

	tests := []struct {
		name   string
		a, b   models.User
		latest *models.ChatRequest
		code   Code
	}{
		{
			name: "friends",
			a:    models.User{ID: "a", Friends: []string{"b"}},
			b:    models.User{ID: "b", Friends: []string{"a"}},
		},
		{
			name: "no request",
			a:    models.User{ID: "a"},
			b:    models.User{ID: "b"},
			code: CodeNoRequest,
		},
		{
			name:   "pending",
			a:      models.User{ID: "a"},
			b:      models.User{ID: "b"},
			latest: pending,
			code:   CodeRequestPending,
		},
		{
			name:   "rejected",
			a:      models.User{ID: "a"},
			b:      models.User{ID: "b"},
			latest: rejected,
			code:   CodeRequestRejected,
		},
		{
			name:   "accepted then unfriended",
			a:      models.User{ID: "a"},
			b:      models.User{ID: "b"},
			latest: accepted,
			code:   CodeNotFriends,
		},
		{
			name: "blocked by caller wins over friendship",
			a:    models.User{ID: "a", Friends: []string{"b"}, BlockedUsers: []string{"b"}},
			b:    models.User{ID: "b", Friends: []string{"a"}},
			code: CodeUserBlocked,
		},
		{
			name:   "blocked by other wins over pending",
			a:      models.User{ID: "a"},
			b:      models.User{ID: "b", BlockedUsers: []string{"a"}},
			latest: pending,
			code:   CodeUserBlocked,
		},
		{
			name: "one-sided friend edge",
			a:    models.User{ID: "a", Friends: []string{"b"}},
			b:    models.User{ID: "b"},
			code: CodeNoRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMessaging(tt.a, tt.b, tt.latest)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			var denied *DeniedError
			require.ErrorAs(t, err, &denied)
			assert.Equal(t, tt.code, denied.Code)
			assert.ErrorIs(t, err, errs.ErrForbidden)
		})
	}
}

func TestCheckMessagingSelf(t *testing.T) {
	u := models.User{ID: "a", Friends: []string{"a"}}
	err := CheckMessaging(u, u, nil)
	assert.ErrorIs(t, err, ErrSelfTarget)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestResolve(t *testing.T) {
	a := models.User{ID: "a"}
	b := models.User{ID: "b", BlockedUsers: []string{"a"}}

	p := Resolve(a, b, nil)
	assert.Equal(t, StatusBlocked, p.Status)
	assert.Equal(t, "b", p.BlockedBy)

	p = Resolve(models.User{ID: "a"}, models.User{ID: "b"}, &models.ChatRequest{ID: "r", SenderID: "a", Status: models.RequestPending})
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "a", p.SenderID)
	assert.False(t, p.CanChat)

	p = Resolve(models.User{ID: "a", Friends: []string{"b"}}, models.User{ID: "b", Friends: []string{"a"}}, nil)
	assert.Equal(t, StatusAccepted, p.Status)
	assert.True(t, p.CanChat)
}

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Users.Create(ctx, models.User{ID: id, Name: id, Email: id})
		require.NoError(t, err)
	}
	require.NoError(t, store.Users.AddFriendship(ctx, "a", "b"))
	_, err := store.Requests.Create(ctx, models.ChatRequest{
		ID: "r1", SenderID: "a", ReceiverID: "c", PairKey: models.ChatID("a", "c"),
		Status: models.RequestPending, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	gate := NewGate(store.Users, store.Requests)

	pair, err := gate.Authorize(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", pair.Other.ID)

	_, err = gate.Authorize(ctx, "a", "c")
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, CodeRequestPending, denied.Code)

	_, err = gate.Authorize(ctx, "a", "missing")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)

	_, err = gate.Authorize(ctx, "a", "a")
	assert.ErrorIs(t, err, ErrSelfTarget)

	perm, err := gate.Permission(ctx, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, perm.Status)
}
