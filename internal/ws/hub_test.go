package ws

import (
	"encoding/json"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pairchat/internal/models"
)

func newTestHub() *Hub {
	return NewHub(NewRegistry(clockwork.NewFakeClock()), zap.NewNop())
}

func drain(c *Client) []string {
	var names []string
	for {
		select {
		case frame := <-c.send:
			var ev models.ChatEvent
			_ = json.Unmarshal(frame, &ev)
			names = append(names, ev.Event)
		default:
			return names
		}
	}
}

func TestHubJoinAndLeaveRoom(t *testing.T) {
	hub := newTestHub()
	c := newClient(nil, ConnInfo{UserID: "a"})
	hub.Register(c)

	hub.Join("a_b", c)
	require.Len(t, hub.rooms, 1)
	assert.True(t, hub.InRoom("a_b", c))

	hub.Leave("a_b", c)
	assert.Empty(t, hub.rooms)
	assert.False(t, hub.InRoom("a_b", c))
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	hub := newTestHub()
	c := newClient(nil, ConnInfo{UserID: "a"})
	assert.True(t, hub.Register(c))
	hub.Join("a_b", c)
	hub.Join("a_c", c)

	assert.True(t, hub.Unregister(c))
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.joined)
	assert.False(t, hub.registry.IsOnline("a"))
}

func TestHubFanOut(t *testing.T) {
	hub := newTestHub()
	a1 := newClient(nil, ConnInfo{UserID: "a"})
	a2 := newClient(nil, ConnInfo{UserID: "a"})
	b := newClient(nil, ConnInfo{UserID: "b"})
	c := newClient(nil, ConnInfo{UserID: "c"})
	for _, cl := range []*Client{a1, a2, b, c} {
		hub.Register(cl)
	}
	hub.Join("a_b", a1)
	hub.Join("a_b", b)

	hub.ToUser("a", "one", nil)
	hub.ToRoom("a_b", "two", nil)
	hub.ToRoomExcept("a_b", a1, "three", nil)
	hub.Broadcast("four", nil)
	hub.Send(c, "five", nil)

	assert.Equal(t, []string{"one", "two", "four"}, drain(a1))
	assert.Equal(t, []string{"one", "four"}, drain(a2))
	assert.Equal(t, []string{"two", "three", "four"}, drain(b))
	assert.Equal(t, []string{"four", "five"}, drain(c))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := newTestHub()
	slow := newClient(nil, ConnInfo{UserID: "a"})
	hub.Register(slow)

	for i := 0; i < sendBufferSize; i++ {
		hub.ToUser("a", "tick", i)
	}
	select {
	case <-slow.done:
		t.Fatal("client closed before its buffer filled")
	default:
	}

	hub.ToUser("a", "tick", "overflow")
	select {
	case <-slow.done:
	default:
		t.Fatal("expected slow client to be closed")
	}
	assert.False(t, slow.enqueue([]byte("{}")))
}

func TestEncodeFrame(t *testing.T) {
	frame, err := encodeFrame("userStatus", map[string]bool{"isOnline": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"userStatus","data":{"isOnline":true}}`, string(frame))
}
