package incognito

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pairchat/internal/events"
	"pairchat/internal/observability"
	"pairchat/internal/repositories"
)

const expireTimeout = 10 * time.Second

// Scheduler arms one timer per message and deletes the message when it fires.
// Every timer is mirrored in a DueStore so Restore can re-arm them after a restart.
type Scheduler struct {
	clock    clockwork.Clock
	store    DueStore
	messages repositories.MessageRepository
	emitter  events.Emitter
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]armedTimer
}

type armedTimer struct {
	timer clockwork.Timer
	dueAt time.Time
}

func NewScheduler(clock clockwork.Clock, store DueStore, messages repositories.MessageRepository, emitter events.Emitter, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:    clock,
		store:    store,
		messages: messages,
		emitter:  emitter,
		logger:   logger,
		timers:   map[string]armedTimer{},
	}
}

// Schedule persists e and arms its timer. A message already queued for an
// earlier time keeps that time. A store failure is logged and the timer is
// still armed, so only restart durability is lost.
func (s *Scheduler) Schedule(ctx context.Context, e DueEntry) {
	if err := s.store.Put(ctx, e); err != nil {
		s.logger.Warn("persist incognito deletion", zap.String("message_id", e.MessageID), zap.Error(err))
	}
	s.arm(e)
}

// Restore re-arms every persisted entry. Entries already past due fire immediately.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	entries, err := s.store.All(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		s.arm(e)
	}
	return len(entries), nil
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms all timers. Persisted entries are kept for the next Restore.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
	observability.SetScheduledTimers(0)
}

func (s *Scheduler) arm(e DueEntry) {
	delay := e.DueAt.Sub(s.clock.Now())
	if delay <= 0 {
		go s.expireDetached(e)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[e.MessageID]; ok {
		if !e.DueAt.Before(existing.dueAt) {
			return
		}
		existing.timer.Stop()
	}
	s.timers[e.MessageID] = armedTimer{
		timer: s.clock.AfterFunc(delay, func() { s.expireDetached(e) }),
		dueAt: e.DueAt,
	}
	observability.SetScheduledTimers(len(s.timers))
}

func (s *Scheduler) expireDetached(e DueEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	s.Expire(ctx, e)
}

// Expire deletes the message of e, notifies the chat and drops the entry.
// It is used by fired timers and by the sweeper for entries left behind by a restart.
func (s *Scheduler) Expire(ctx context.Context, e DueEntry) {
	s.mu.Lock()
	if t, ok := s.timers[e.MessageID]; ok {
		t.timer.Stop()
		delete(s.timers, e.MessageID)
	}
	observability.SetScheduledTimers(len(s.timers))
	s.mu.Unlock()

	deleted, err := s.messages.Delete(ctx, e.MessageID)
	if err != nil {
		s.logger.Error("incognito delete message", zap.String("message_id", e.MessageID), zap.Error(err))
		return
	}
	if err := s.store.Remove(ctx, e.MessageID); err != nil {
		s.logger.Warn("remove incognito deletion entry", zap.String("message_id", e.MessageID), zap.Error(err))
	}
	if !deleted {
		return
	}

	observability.AddIncognitoDeletions(events.ReasonIncognito, 1)
	s.emitter.ToRoom(e.ChatID, events.MessageDeleted, events.MessageDeletedPayload{
		MessageID: e.MessageID,
		ChatID:    e.ChatID,
		Reason:    events.ReasonIncognito,
	})
}
