package incognito

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pairchat/internal/errs"
	"pairchat/internal/events"
	"pairchat/internal/models"
	"pairchat/internal/repositories"
	"pairchat/internal/telemetry"
)

// Service is the incognito surface used by the event channel and the message engine.
type Service struct {
	tracker   *Tracker
	scheduler *Scheduler
	users     repositories.UserRepository
	messages  repositories.MessageRepository
	emitter   events.Emitter
	audit     *telemetry.AuditEmitter
	logger    *zap.Logger

	defaultDuration time.Duration
	maxDuration     time.Duration
}

// Options bounds the incognito window a caller may request.
type Options struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
}

func NewService(tracker *Tracker, scheduler *Scheduler, users repositories.UserRepository, messages repositories.MessageRepository, emitter events.Emitter, audit *telemetry.AuditEmitter, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 3 * time.Hour
	}
	if opts.MaxDuration < opts.DefaultDuration {
		opts.MaxDuration = opts.DefaultDuration
	}
	return &Service{
		tracker:         tracker,
		scheduler:       scheduler,
		users:           users,
		messages:        messages,
		emitter:         emitter,
		audit:           audit,
		logger:          logger,
		defaultDuration: opts.DefaultDuration,
		maxDuration:     opts.MaxDuration,
	}
}

// Status returns the effective incognito state between the caller and otherID.
func (s *Service) Status(ctx context.Context, callerID, otherID string) (models.IncognitoStatus, error) {
	if callerID == otherID {
		return models.IncognitoStatus{}, errs.Validation("cannot target yourself")
	}
	return s.tracker.Status(ctx, callerID, otherID)
}

// Toggle enables or disables incognito for the chat with otherID and notifies both users.
// hours of zero selects the default window.
func (s *Service) Toggle(ctx context.Context, callerID, otherID string, enabled bool, hours float64) (events.IncognitoPayload, error) {
	if callerID == otherID {
		return events.IncognitoPayload{}, errs.Validation("cannot target yourself")
	}
	if _, err := s.users.GetUser(ctx, otherID); err != nil {
		return events.IncognitoPayload{}, fmt.Errorf("load user: %w", err)
	}
	if enabled {
		return s.enable(ctx, callerID, otherID, hours)
	}
	return s.disable(ctx, callerID, otherID)
}

func (s *Service) enable(ctx context.Context, callerID, otherID string, hours float64) (events.IncognitoPayload, error) {
	d, err := s.duration(hours)
	if err != nil {
		return events.IncognitoPayload{}, err
	}
	rec, err := s.tracker.Enable(ctx, callerID, otherID, d)
	if err != nil {
		return events.IncognitoPayload{}, err
	}

	ids, err := s.messages.ListIDsByChat(ctx, rec.ChatID)
	if err != nil {
		s.logger.Error("list messages for incognito scheduling", zap.String("chat_id", rec.ChatID), zap.Error(err))
	}
	for _, id := range ids {
		s.scheduler.Schedule(ctx, DueEntry{MessageID: id, ChatID: rec.ChatID, DueAt: rec.ExpiresAt})
	}

	payload := events.IncognitoPayload{
		ChatID:    rec.ChatID,
		Enabled:   true,
		EnabledBy: callerID,
		EnabledAt: &rec.EnabledAt,
		ExpiresAt: &rec.ExpiresAt,
	}
	s.emitter.ToUser(callerID, events.IncognitoEnabled, payload)
	s.emitter.ToUser(otherID, events.IncognitoEnabled, payload)
	s.audit.Emit(ctx, telemetry.AuditEntry{
		Action:    "incognito.enable",
		Text:      "incognito enabled",
		RequestID: telemetry.RequestIDFrom(ctx),
		UserID:    callerID,
		Attrs:     map[string]string{"chat_id": rec.ChatID, "expires_at": rec.ExpiresAt.Format(time.RFC3339)},
	})
	return payload, nil
}

// disable leaves already scheduled deletions in place: messages sent while
// incognito was on are still removed at their original time.
func (s *Service) disable(ctx context.Context, callerID, otherID string) (events.IncognitoPayload, error) {
	if err := s.tracker.Disable(ctx, callerID, otherID); err != nil {
		return events.IncognitoPayload{}, err
	}
	payload := events.IncognitoPayload{ChatID: models.ChatID(callerID, otherID), EnabledBy: callerID}
	s.emitter.ToUser(callerID, events.IncognitoDisabled, payload)
	s.emitter.ToUser(otherID, events.IncognitoDisabled, payload)
	s.audit.Emit(ctx, telemetry.AuditEntry{
		Action:    "incognito.disable",
		Text:      "incognito disabled",
		RequestID: telemetry.RequestIDFrom(ctx),
		UserID:    callerID,
		Attrs:     map[string]string{"chat_id": payload.ChatID},
	})
	return payload, nil
}

// ScheduleIfActive arms a deletion for msg when the chat between a and b is incognito.
func (s *Service) ScheduleIfActive(ctx context.Context, msg models.Message, a, b models.User) {
	status := s.tracker.Effective(a, b)
	if !status.Enabled {
		return
	}
	s.scheduler.Schedule(ctx, DueEntry{MessageID: msg.ID, ChatID: msg.ChatID, DueAt: *status.ExpiresAt})
}

func (s *Service) duration(hours float64) (time.Duration, error) {
	if hours == 0 {
		return s.defaultDuration, nil
	}
	if hours < 0 {
		return 0, errs.Validation("durationHours must be positive")
	}
	d := time.Duration(hours * float64(time.Hour))
	if d > s.maxDuration {
		return 0, errs.Validation(fmt.Sprintf("durationHours must not exceed %g", s.maxDuration.Hours()))
	}
	return d, nil
}
