package ws

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Registry maps each user to the live connections they hold. A user is online
// while at least one connection is bound.
type Registry struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	sessions map[string]map[*Client]struct{}
	activity map[string]time.Time
}

func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:    clock,
		sessions: make(map[string]map[*Client]struct{}),
		activity: make(map[string]time.Time),
	}
}

// Bind attaches c to userID and reports whether it is the user's first connection.
func (r *Registry) Bind(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.sessions[userID] = set
	}
	set[c] = struct{}{}
	r.activity[userID] = r.clock.Now()
	return !ok
}

// Unbind detaches c and reports whether it was the user's last connection.
// Unbinding an unknown connection is a no-op.
func (r *Registry) Unbind(userID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, bound := set[c]; !bound {
		return false
	}
	delete(set, c)
	if len(set) > 0 {
		return false
	}
	delete(r.sessions, userID)
	delete(r.activity, userID)
	return true
}

// Lookup returns the user's live connections.
func (r *Registry) Lookup(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sessions[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// Touch records activity for an online user.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; ok {
		r.activity[userID] = r.clock.Now()
	}
}

// Activity returns the last recorded activity of an online user.
func (r *Registry) Activity(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.activity[userID]
	return at, ok
}

// Online returns the number of users holding a connection.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
