package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/mocks"
	"pairchat/internal/models"
	"pairchat/internal/permissions"
	"pairchat/internal/repositories"
)

type notifierStub struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *notifierStub) NewMessage(_ context.Context, recipient, _ models.User, _ models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recipient.ID)
	return n.err
}

type autoDeleterStub struct {
	scheduled []string
}

func (d *autoDeleterStub) ScheduleIfActive(_ context.Context, msg models.Message, _, _ models.User) {
	d.scheduled = append(d.scheduled, msg.ID)
}

type fixture struct {
	store    repositories.Store
	emitter  *mocks.EmitterRecorder
	presence *mocks.StaticPresence
	notifier *notifierStub
	deleter  *autoDeleterStub
	clock    *clockwork.FakeClock
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := store.Users.Create(ctx, models.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	require.NoError(t, store.Users.AddFriendship(ctx, "alice", "bob"))

	f := &fixture{
		store:    store,
		emitter:  &mocks.EmitterRecorder{},
		presence: mocks.NewStaticPresence(),
		notifier: &notifierStub{},
		deleter:  &autoDeleterStub{},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = NewService(Deps{
		Gate:        permissions.NewGate(store.Users, store.Requests),
		Messages:    store.Messages,
		Emitter:     f.emitter,
		Presence:    f.presence,
		Notifier:    f.notifier,
		AutoDeleter: f.deleter,
		Clock:       f.clock,
	})
	return f
}

func (f *fixture) send(t *testing.T, from, to, text string) models.Message {
	t.Helper()
	msg, err := f.svc.Send(context.Background(), from, SendInput{ReceiverID: to, Content: models.Content{Text: text}})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return msg
}

func TestSendToOnlineReceiverIsDelivered(t *testing.T) {
	f := newFixture(t)
	f.presence.Set("bob", true)

	msg, err := f.svc.Send(context.Background(), "alice", SendInput{
		ReceiverID: "bob",
		Content:    models.Content{Text: "  hi bob  "},
		TempID:     "tmp-1",
	})
	require.NoError(t, err)

	assert.True(t, msg.IsDelivered)
	require.NotNil(t, msg.DeliveredAt)
	assert.Equal(t, f.clock.Now(), *msg.DeliveredAt)
	assert.Equal(t, "hi bob", msg.Content.Text)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Equal(t, models.ChatID("alice", "bob"), msg.ChatID)

	frames := f.emitter.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, mocks.Frame{Target: "room", ID: msg.ChatID, Event: events.ReceiveMessage, Data: msg}, frames[0])
	assert.Equal(t, "bob", frames[1].ID)
	assert.Equal(t, events.NewMessageForSidebar, frames[1].Event)
	assert.Equal(t, "alice", frames[1].Data.(events.SidebarPayload).Sender.ID)
	assert.Equal(t, "alice", frames[2].ID)
	assert.Equal(t, events.NewMessageForSidebar, frames[2].Event)

	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, []string{msg.ID}, f.deleter.scheduled)

	stored, err := f.store.Messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDelivered)
}

func TestSendToOfflineReceiverNudgesByEmail(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	msg, err := f.svc.Send(context.Background(), "alice", SendInput{ReceiverID: "bob", Content: models.Content{Text: "are you there?"}})
	require.NoError(t, err, "notification failures do not fail the send")

	assert.False(t, msg.IsDelivered)
	assert.Nil(t, msg.DeliveredAt)
	assert.Equal(t, []string{"bob"}, f.notifier.sent)
	assert.Equal(t, []string{events.ReceiveMessage, events.NewMessageForSidebar}, f.emitter.EventNames())
	assert.Equal(t, "alice", f.emitter.Named(events.NewMessageForSidebar)[0].ID)
}

func TestSendRequiresFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice", SendInput{ReceiverID: "carol", Content: models.Content{Text: "hey"}})
	var denied *permissions.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, permissions.CodeNoRequest, denied.Code)

	require.NoError(t, f.store.Users.Block(ctx, "bob", "alice"))
	_, err = f.svc.Send(ctx, "alice", SendInput{ReceiverID: "bob", Content: models.Content{Text: "hey"}})
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, permissions.CodeUserBlocked, denied.Code)

	assert.Empty(t, f.emitter.Frames())
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]SendInput{
		"missing receiver": {Content: models.Content{Text: "x"}},
		"empty content":    {ReceiverID: "bob", Content: models.Content{Text: "   "}},
		"bad type":         {ReceiverID: "bob", Type: "sticker", Content: models.Content{Text: "x"}},
		"self":             {ReceiverID: "alice", Content: models.Content{Text: "x"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, "alice", in)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestSendPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	_, _ = store.Users.Create(ctx, models.User{ID: "alice"})
	_, _ = store.Users.Create(ctx, models.User{ID: "bob"})
	require.NoError(t, store.Users.AddFriendship(ctx, "alice", "bob"))

	messages := new(mocks.MessageRepositoryMock)
	messages.On("Create", mock.Anything, mock.AnythingOfType("models.Message")).Return(nil, assert.AnError).Once()
	emitter := &mocks.EmitterRecorder{}
	svc := NewService(Deps{
		Gate:     permissions.NewGate(store.Users, store.Requests),
		Messages: messages,
		Emitter:  emitter,
		Presence: mocks.NewStaticPresence("bob"),
	})

	_, err := svc.Send(ctx, "alice", SendInput{ReceiverID: "bob", Content: models.Content{Text: "hi"}})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, emitter.Frames())
	messages.AssertExpectations(t)
}

func TestSendReplyKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.send(t, "bob", "alice", "lunch?")

	reply, err := f.svc.Send(ctx, "alice", SendInput{ReceiverID: "bob", Content: models.Content{Text: "sure"}, ReplyToID: original.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, original.ID, reply.ReplyTo.MessageID)
	assert.Equal(t, "bob", reply.ReplyTo.Sender.ID)
	assert.Equal(t, "lunch?", reply.ReplyTo.Content.Text)

	_, err = f.svc.DeleteMessage(ctx, "bob", "", original.ID)
	require.NoError(t, err)
	stored, err := f.store.Messages.Get(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "lunch?", stored.ReplyTo.Content.Text, "snapshot is frozen")

	_, err = f.svc.Send(ctx, "alice", SendInput{ReceiverID: "bob", Content: models.Content{Text: "x"}, ReplyToID: "missing"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLoadMessagesReturnsLatestAscending(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"one", "two", "three"} {
		f.send(t, "alice", "bob", text)
	}

	loaded, err := f.svc.LoadMessages(context.Background(), "bob", "alice", 2)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "two", loaded.Messages[0].Content.Text)
	assert.Equal(t, "three", loaded.Messages[1].Content.Text)

	_, err = f.svc.LoadMessages(context.Background(), "carol", "alice", 0)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	history, err := f.svc.History(context.Background(), "alice", loaded.ChatID, 0)
	require.NoError(t, err)
	assert.Len(t, history.Messages, 3)

	_, err = f.svc.History(context.Background(), "carol", loaded.ChatID, 0)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestDeliverPendingNotifiesSenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m1 := f.send(t, "alice", "bob", "one")
	f.send(t, "alice", "bob", "two")
	f.emitter = &mocks.EmitterRecorder{}
	f.svc.emitter = f.emitter

	payload, err := f.svc.DeliverPending(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, map[string]int{m1.ChatID: 2}, payload.Chats)
	assert.NotEmpty(t, payload.Message)

	delivered := f.emitter.Named(events.MessageDelivered)
	require.Len(t, delivered, 2)
	assert.Equal(t, "alice", delivered[0].ID)

	payload, err = f.svc.DeliverPending(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, payload.Count)

	require.NoError(t, f.svc.MarkDelivered(ctx, "bob", m1.ID))
	assert.Len(t, f.emitter.Named(events.MessageDelivered), 2, "second acknowledgement is a no-op")
	assert.ErrorIs(t, f.svc.MarkDelivered(ctx, "alice", m1.ID), errs.ErrForbidden)
}

func TestMarkReadImpliesDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "read me")

	require.NoError(t, f.svc.MarkRead(ctx, "alice", msg.ID))
	assert.Empty(t, f.emitter.Named(events.MessageRead), "own messages are ignored")

	require.NoError(t, f.svc.MarkRead(ctx, "bob", msg.ID))
	require.NoError(t, f.svc.MarkRead(ctx, "bob", msg.ID))
	read := f.emitter.Named(events.MessageRead)
	require.Len(t, read, 1)
	assert.Equal(t, "room", read[0].Target)

	stored, err := f.store.Messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
	assert.True(t, stored.IsDelivered)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, "carol", msg.ID), errs.ErrForbidden)
}

func TestMarkChatReadOnlyFlipsCounterpartMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "alice", "bob", "a1")
	f.send(t, "alice", "bob", "a2")
	own := f.send(t, "bob", "alice", "b1")

	n, err := f.svc.MarkChatRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := f.store.Messages.Get(ctx, own.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)

	chatRead := f.emitter.Named(events.ChatRead)
	require.Len(t, chatRead, 1)
	assert.Equal(t, 2, chatRead[0].Data.(events.ChatReadPayload).ReadCount)

	n, err = f.svc.MarkChatRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.emitter.Named(events.ChatRead), 1)
}

func TestReactToggleSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "react to me")

	res, err := f.svc.React(ctx, "bob", msg.ID, "❤️")
	require.NoError(t, err)
	require.Len(t, res.Reactions, 1)

	res, err = f.svc.React(ctx, "bob", msg.ID, "😂")
	require.NoError(t, err)
	require.Len(t, res.Reactions, 1)
	assert.Equal(t, "😂", res.Reactions[0].Emoji)

	res, err = f.svc.React(ctx, "alice", msg.ID, "👍")
	require.NoError(t, err)
	assert.Len(t, res.Reactions, 2)

	res, err = f.svc.React(ctx, "bob", msg.ID, "😂")
	require.NoError(t, err)
	require.Len(t, res.Reactions, 1)
	assert.Equal(t, "alice", res.Reactions[0].UserID)

	res, err = f.svc.RemoveReaction(ctx, "alice", msg.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Reactions)

	stored, err := f.store.Messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Reactions)

	_, err = f.svc.React(ctx, "carol", msg.ID, "❤️")
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.React(ctx, "bob", msg.ID, "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestReactRequiresFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "hello")
	require.NoError(t, f.store.Users.Block(ctx, "alice", "bob"))

	_, err := f.svc.React(ctx, "bob", msg.ID, "❤️")
	var denied *permissions.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, permissions.CodeUserBlocked, denied.Code)
}

func TestClearChatAndDeleteHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "one")
	f.send(t, "bob", "alice", "two")

	payload, err := f.svc.ClearChat(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, events.ReasonCleared, payload.Reason)
	ids, err := f.store.Messages.ListIDsByChat(ctx, msg.ChatID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	require.Len(t, f.emitter.Named(events.ChatCleared), 1)

	_, err = f.svc.ClearChat(ctx, "alice", "alice")
	assert.ErrorIs(t, err, errs.ErrValidation)

	f.send(t, "alice", "bob", "three")
	_, err = f.svc.DeleteHistory(ctx, "carol", msg.ChatID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.DeleteHistory(ctx, "alice", "not-a-chat")
	assert.ErrorIs(t, err, errs.ErrValidation)

	payload, err = f.svc.DeleteHistory(ctx, "bob", msg.ChatID)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.Count)
}

func TestDeleteMessageBySenderOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, "alice", "bob", "oops")

	_, err := f.svc.DeleteMessage(ctx, "bob", "", msg.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.DeleteMessage(ctx, "alice", "other_chat", msg.ID)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)

	payload, err := f.svc.DeleteMessage(ctx, "alice", msg.ChatID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, events.ReasonSender, payload.Reason)

	stored, err := f.store.Messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Empty(t, stored.Content.Text)

	_, err = f.svc.DeleteMessage(ctx, "alice", msg.ChatID, msg.ID)
	require.NoError(t, err)
	assert.Len(t, f.emitter.Named(events.MessageDeleted), 1)
}
