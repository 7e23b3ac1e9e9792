package incognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

// Tracker maintains the per-user incognito records of a chat. Each participant
// holds an independent copy; writes to the two sides are not atomic, and one
// failed side is tolerated as long as the other succeeds.
type Tracker struct {
	users  repositories.UserRepository
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewTracker(users repositories.UserRepository, clock clockwork.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{users: users, clock: clock, logger: logger}
}

// Enable writes a record expiring after d on both users, replacing any existing one.
func (t *Tracker) Enable(ctx context.Context, callerID, otherID string, d time.Duration) (models.IncognitoRecord, error) {
	now := t.clock.Now().UTC()
	rec := models.IncognitoRecord{
		ChatID:    models.ChatID(callerID, otherID),
		EnabledAt: now,
		ExpiresAt: now.Add(d),
	}
	err := t.bothSides(callerID, otherID, "enable", func(userID string) error {
		return t.users.PutIncognito(ctx, userID, rec)
	})
	if err != nil {
		return models.IncognitoRecord{}, err
	}
	return rec, nil
}

// Disable removes the chat's record from both users.
func (t *Tracker) Disable(ctx context.Context, callerID, otherID string) error {
	chatID := models.ChatID(callerID, otherID)
	return t.bothSides(callerID, otherID, "disable", func(userID string) error {
		return t.users.RemoveIncognito(ctx, userID, chatID)
	})
}

// Status computes the effective incognito state from both users. One failed
// load is tolerated. When nothing is live, stale records are pruned from both sides.
func (t *Tracker) Status(ctx context.Context, a, b string) (models.IncognitoStatus, error) {
	chatID := models.ChatID(a, b)
	ua, errA := t.users.GetUser(ctx, a)
	ub, errB := t.users.GetUser(ctx, b)
	if errA != nil && errB != nil {
		return models.IncognitoStatus{}, fmt.Errorf("load incognito state: %w", errors.Join(errA, errB))
	}
	if errA != nil {
		t.logger.Warn("incognito status with one side missing", zap.String("user_id", a), zap.Error(errA))
	}
	if errB != nil {
		t.logger.Warn("incognito status with one side missing", zap.String("user_id", b), zap.Error(errB))
	}

	now := t.clock.Now()
	status := models.EffectiveIncognito(chatID, now, ua.IncognitoChats, ub.IncognitoChats)
	if !status.Enabled {
		t.prune(ctx, chatID, now, ua, ub)
	}
	return status, nil
}

// Effective computes the state from users the caller already loaded.
func (t *Tracker) Effective(a, b models.User) models.IncognitoStatus {
	return models.EffectiveIncognito(models.ChatID(a.ID, b.ID), t.clock.Now(), a.IncognitoChats, b.IncognitoChats)
}

func (t *Tracker) prune(ctx context.Context, chatID string, now time.Time, users ...models.User) {
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, ok := u.IncognitoFor(chatID); !ok {
			continue
		}
		if err := t.users.RemoveExpiredIncognito(ctx, u.ID, chatID, now); err != nil {
			t.logger.Warn("prune expired incognito record", zap.String("user_id", u.ID), zap.String("chat_id", chatID), zap.Error(err))
		}
	}
}

func (t *Tracker) bothSides(callerID, otherID, op string, write func(userID string) error) error {
	errCaller := write(callerID)
	errOther := write(otherID)
	switch {
	case errCaller != nil && errOther != nil:
		return fmt.Errorf("incognito %s: %w", op, errors.Join(errCaller, errOther))
	case errCaller != nil:
		t.logger.Warn("incognito write failed on one side", zap.String("op", op), zap.String("user_id", callerID), zap.Error(errCaller))
	case errOther != nil:
		t.logger.Warn("incognito write failed on one side", zap.String("op", op), zap.String("user_id", otherID), zap.Error(errOther))
	}
	return nil
}
