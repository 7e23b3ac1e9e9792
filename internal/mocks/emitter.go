package mocks

import (
	"sync"

	"pairchat/internal/events"
)

// Frame is one event captured by EmitterRecorder.
type Frame struct {
	Target string // "user", "room" or "all"
	ID     string
	Event  string
	Data   any
}

// EmitterRecorder captures emitted events in order.
type EmitterRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

var _ events.Emitter = (*EmitterRecorder)(nil)

func (r *EmitterRecorder) ToUser(userID, event string, data any) {
	r.record(Frame{Target: "user", ID: userID, Event: event, Data: data})
}

func (r *EmitterRecorder) ToRoom(chatID, event string, data any) {
	r.record(Frame{Target: "room", ID: chatID, Event: event, Data: data})
}

func (r *EmitterRecorder) Broadcast(event string, data any) {
	r.record(Frame{Target: "all", Event: event, Data: data})
}

func (r *EmitterRecorder) record(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

// Frames returns a copy of everything recorded so far.
func (r *EmitterRecorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Named returns the recorded frames with the given event name.
func (r *EmitterRecorder) Named(event string) []Frame {
	var out []Frame
	for _, f := range r.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// EventNames returns the event names in emission order.
func (r *EmitterRecorder) EventNames() []string {
	frames := r.Frames()
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

// StaticPresence reports the users in the set as online.
type StaticPresence struct {
	mu     sync.Mutex
	Online map[string]bool
}

var _ events.Presence = (*StaticPresence)(nil)

func NewStaticPresence(online ...string) *StaticPresence {
	p := &StaticPresence{Online: map[string]bool{}}
	for _, id := range online {
		p.Online[id] = true
	}
	return p
}

func (p *StaticPresence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Online[userID]
}

func (p *StaticPresence) Set(userID string, online bool) {
	p.mu.Lock()
	p.Online[userID] = online
	p.mu.Unlock()
}
