package incognito

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/repositories"
)

// DefaultSweepInterval is how often expired incognito chats are collected.
const DefaultSweepInterval = 5 * time.Minute

// SweepResult summarizes one sweep.
type SweepResult struct {
	Chats    int
	Messages int
	Drained  int
}

// Sweeper periodically wipes chats whose incognito window has ended and
// drains per-message deletions whose timers were lost to a restart.
type Sweeper struct {
	users     repositories.UserRepository
	messages  repositories.MessageRepository
	scheduler *Scheduler
	store     DueStore
	emitter   events.Emitter
	clock     clockwork.Clock
	interval  time.Duration
	logger    *zap.Logger
}

func NewSweeper(users repositories.UserRepository, messages repositories.MessageRepository, scheduler *Scheduler, store DueStore, emitter events.Emitter, clock clockwork.Clock, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		users:     users,
		messages:  messages,
		scheduler: scheduler,
		store:     store,
		emitter:   emitter,
		clock:     clock,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass. Errors are logged and never abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	start := s.clock.Now()
	defer func() { observability.ObserveSweep(s.clock.Since(start)) }()

	var res SweepResult
	users, err := s.users.ListWithIncognito(ctx)
	if err != nil {
		s.logger.Error("incognito sweep: list users", zap.Error(err))
		users = nil
	}

	now := s.clock.Now()
	cleared := map[string]bool{}
	for _, u := range users {
		expired, _ := models.PartitionIncognito(u.IncognitoChats, now)
		for _, rec := range expired {
			if !cleared[rec.ChatID] {
				n, err := s.messages.DeleteByChat(ctx, rec.ChatID)
				if err != nil {
					s.logger.Error("incognito sweep: delete chat", zap.String("chat_id", rec.ChatID), zap.Error(err))
					continue
				}
				cleared[rec.ChatID] = true
				res.Chats++
				res.Messages += n
				observability.AddIncognitoDeletions(events.ReasonIncognitoExpired, n)
				s.notify(rec.ChatID, n)
			}
			if err := s.users.RemoveExpiredIncognito(ctx, u.ID, rec.ChatID, now); err != nil {
				s.logger.Warn("incognito sweep: strip record", zap.String("user_id", u.ID), zap.String("chat_id", rec.ChatID), zap.Error(err))
			}
		}
	}

	due, err := s.store.Due(ctx, now)
	if err != nil {
		s.logger.Error("incognito sweep: list due deletions", zap.Error(err))
	}
	for _, e := range due {
		s.scheduler.Expire(ctx, e)
		res.Drained++
	}

	if res.Chats > 0 || res.Drained > 0 {
		s.logger.Info("incognito sweep complete",
			zap.Int("chats", res.Chats),
			zap.Int("messages", res.Messages),
			zap.Int("drained", res.Drained),
		)
	}
	return res
}

func (s *Sweeper) notify(chatID string, n int) {
	payload := events.ChatClearedPayload{ChatID: chatID, Reason: events.ReasonIncognitoExpired, Count: n}
	a, b, err := models.ParseChatID(chatID)
	if err != nil {
		s.emitter.ToRoom(chatID, events.ChatCleared, payload)
		return
	}
	s.emitter.ToUser(a, events.ChatCleared, payload)
	s.emitter.ToUser(b, events.ChatCleared, payload)
}
