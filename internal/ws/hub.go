package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/observability"
)

// Hub tracks connections and the chat rooms they joined, and fans frames out
// to users, rooms or everyone.
type Hub struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	joined  map[*Client]map[string]bool
}

var _ events.Emitter = (*Hub)(nil)

// NewHub creates an empty hub bound to registry.
func NewHub(registry *Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry: registry,
		logger:   logger,
		clients:  make(map[*Client]bool),
		rooms:    make(map[string]map[*Client]bool),
		joined:   make(map[*Client]map[string]bool),
	}
}

// Register adds c and binds it to its user. It reports whether c is the
// user's first live connection.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	first := h.registry.Bind(c.UserID(), c)
	observability.SetOnlineUsers(h.registry.Online())
	return first
}

// Unregister removes c from every room and unbinds it. It reports whether c
// was the user's last live connection.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	delete(h.clients, c)
	for chatID := range h.joined[c] {
		h.leaveLocked(chatID, c)
	}
	delete(h.joined, c)
	h.mu.Unlock()
	last := h.registry.Unbind(c.UserID(), c)
	observability.SetOnlineUsers(h.registry.Online())
	return last
}

// Join subscribes c to the chat room chatID.
func (h *Hub) Join(chatID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]bool)
	}
	h.rooms[chatID][c] = true
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]bool)
	}
	h.joined[c][chatID] = true
}

// Leave unsubscribes c from chatID.
func (h *Hub) Leave(chatID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(chatID, c)
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, chatID)
	}
}

func (h *Hub) leaveLocked(chatID string, c *Client) {
	if conns, ok := h.rooms[chatID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// InRoom reports whether c joined chatID.
func (h *Hub) InRoom(chatID string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[chatID][c]
}

// ToUser sends to every live connection of userID.
func (h *Hub) ToUser(userID, event string, data any) {
	h.deliver(h.registry.Lookup(userID), event, data)
}

// ToRoom sends to every connection that joined chatID.
func (h *Hub) ToRoom(chatID, event string, data any) {
	h.ToRoomExcept(chatID, nil, event, data)
}

// ToRoomExcept sends to every connection in chatID other than skip.
func (h *Hub) ToRoomExcept(chatID string, skip *Client, event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event, data)
}

// Broadcast sends to every live connection.
func (h *Hub) Broadcast(event string, data any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event, data)
}

// Send replies to a single connection.
func (h *Hub) Send(c *Client, event string, data any) {
	h.deliver([]*Client{c}, event, data)
}

func (h *Hub) deliver(targets []*Client, event string, data any) {
	if len(targets) == 0 {
		return
	}
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range targets {
		if !c.enqueue(frame) {
			h.drop(c, event)
		}
	}
}

// drop disconnects a client that cannot keep up. Its read loop observes the
// closed socket and unregisters it.
func (h *Hub) drop(c *Client, event string) {
	select {
	case <-c.done:
		return
	default:
	}
	observability.IncDroppedFrame()
	h.logger.Warn("dropping slow event channel client",
		zap.String("user_id", c.info.UserID),
		zap.String("conn_id", c.info.ConnID),
		zap.String("event", event),
	)
	publishLifecycle(context.Background(), c.info, "ws_error", "send buffer full")
	c.Close()
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(models.ChatEvent{Event: event, Data: data})
}
