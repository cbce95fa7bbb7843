package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/notify"
	"github.com/bissquit/message-garden/internal/pkg/ctxlog"
	"github.com/bissquit/message-garden/internal/queue"
)

// Config holds the business rules of a reminder campaign.
type Config struct {
	// Intervals are the ascending day offsets from entity creation at
	// which reminders fire.
	Intervals         []int
	MaxReminders      int
	ExcludeWeekends   bool
	BusinessHoursOnly bool
	BusinessStartHour int
	BusinessEndHour   int
}

// Producer enqueues outbound reminder email. Satisfied by
// queue.Service.
type Producer interface {
	Enqueue(ctx context.Context, in queue.EnqueueInput) (string, error)
}

// Notifier raises the in-app counterpart of a reminder. Satisfied by
// notify.Service.
type Notifier interface {
	SendNotification(ctx context.Context, tenantID, userID string, in notify.SendInput) (string, error)
}

// Scheduler computes and fires per-entity reminder schedules.
type Scheduler struct {
	cfg      Config
	repo     Repository
	entities EntitySource
	producer Producer
	notifier Notifier

	now func() time.Time
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(cfg Config, repo Repository, entities EntitySource, producer Producer, notifier Notifier) *Scheduler {
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = []int{1, 3, 7, 14}
	}
	if cfg.MaxReminders <= 0 {
		cfg.MaxReminders = len(cfg.Intervals)
	}
	return &Scheduler{
		cfg:      cfg,
		repo:     repo,
		entities: entities,
		producer: producer,
		notifier: notifier,
		now:      time.Now,
	}
}

// ScheduleReminders runs one scheduling pass over a tenant's open
// form-access records, upserting a reminder log for each eligible one.
// The pass itself is gated by the weekend and business-hours rules.
func (s *Scheduler) ScheduleReminders(ctx context.Context, tenantID string) error {
	now := s.now()
	if !s.passAllowed(now) {
		ctxlog.FromContext(ctx).Debug("scheduling pass outside allowed window", "tenant_id", tenantID)
		return nil
	}

	accesses, err := s.entities.ListOpenAccesses(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list open accesses: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	for _, access := range accesses {
		if access.Status.IsTerminal() {
			continue
		}
		if access.Deadline != nil && access.Deadline.Before(now) {
			continue
		}

		next, ok := s.nextFromCreation(access.CreatedAt, now)
		if !ok {
			// Every configured interval already elapsed.
			continue
		}

		log := &domain.ReminderLog{
			TenantID:       access.TenantID,
			EntityID:       access.ID,
			NextReminderAt: next,
		}
		if err := s.repo.UpsertLog(ctx, log); err != nil {
			logger.Error("failed to upsert reminder log",
				"tenant_id", tenantID, "entity_id", access.ID, "error", err)
		}
	}
	return nil
}

// ProcessPendingReminders fires every due reminder. Each due log is
// handled in isolation: a failure is recorded and never aborts the rest
// of the batch. Returns how many fired and how many were skipped.
func (s *Scheduler) ProcessPendingReminders(ctx context.Context) (fired, skipped int, err error) {
	start := s.now()
	defer func() { recordRunDuration(time.Since(start)) }()

	due, err := s.repo.ListDue(ctx, start)
	if err != nil {
		return 0, 0, fmt.Errorf("list due reminders: %w", err)
	}

	logger := ctxlog.FromContext(ctx)
	for _, log := range due {
		access, err := s.entities.GetAccess(ctx, log.EntityID)
		if err != nil && !errors.Is(err, ErrAccessNotFound) {
			recordOutcome("failed")
			logger.Error("failed to load tracked entity",
				"entity_id", log.EntityID, "error", err)
			continue
		}

		// Entity gone or finished: retire the series.
		if errors.Is(err, ErrAccessNotFound) || access.Status.IsTerminal() {
			if delErr := s.repo.DeleteLog(ctx, log.EntityID); delErr != nil {
				logger.Error("failed to delete retired reminder log",
					"entity_id", log.EntityID, "error", delErr)
			}
			recordOutcome("skipped")
			skipped++
			continue
		}

		if err := s.fire(ctx, log, access); err != nil {
			recordOutcome("failed")
			logger.Error("failed to fire reminder",
				"tenant_id", log.TenantID, "entity_id", log.EntityID, "error", err)
			continue
		}
		recordOutcome("fired")
		fired++
	}
	return fired, skipped, nil
}

// CancelReminders retires the series for one entity, invoked when it
// reaches a terminal state.
func (s *Scheduler) CancelReminders(ctx context.Context, entityID string) error {
	return s.repo.DeleteLog(ctx, entityID)
}

// CleanupOldReminders purges logs whose owning entity is terminal and
// older than daysOld.
func (s *Scheduler) CleanupOldReminders(ctx context.Context, daysOld int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -daysOld)
	return s.repo.DeleteTerminalOlderThan(ctx, cutoff)
}

// GetReminderStats aggregates a tenant's reminder activity.
func (s *Scheduler) GetReminderStats(ctx context.Context, tenantID string) (*Stats, error) {
	return s.repo.Stats(ctx, tenantID)
}

// fire dispatches the reminder through the email queue and the in-app
// notification path, then advances or retires the series.
func (s *Scheduler) fire(ctx context.Context, log *domain.ReminderLog, access *domain.FormAccess) error {
	now := s.now()
	reminderNo := log.ReminderCount + 1

	subject := fmt.Sprintf("Reminder %d: your form is waiting", reminderNo)
	body := "You started a form that has not been submitted yet. " +
		"Please complete it at your earliest convenience."
	if access.Deadline != nil {
		body += fmt.Sprintf(" The deadline is %s.", access.Deadline.Format("January 2, 2006"))
	}

	if _, err := s.producer.Enqueue(ctx, queue.EnqueueInput{
		TenantID:  access.TenantID,
		Recipient: access.Email,
		Subject:   subject,
		BodyHTML:  "<p>" + body + "</p>",
		BodyText:  body,
		Priority:  domain.PriorityHigh,
	}); err != nil {
		return fmt.Errorf("enqueue reminder email: %w", err)
	}

	// The in-app nudge is best effort.
	if access.UserID != "" && s.notifier != nil {
		_, err := s.notifier.SendNotification(ctx, access.TenantID, access.UserID, notify.SendInput{
			Title:           subject,
			Message:         body,
			Type:            domain.NotificationTypeWarning,
			Category:        "reminders",
			RelatedEntityID: access.ID,
		})
		if err != nil {
			ctxlog.FromContext(ctx).Error("in-app reminder failed",
				"tenant_id", access.TenantID, "entity_id", access.ID, "error", err)
		}
	}

	if reminderNo >= s.cfg.MaxReminders {
		return s.repo.DeleteLog(ctx, log.EntityID)
	}

	next := now.AddDate(0, 0, s.intervalDays(reminderNo))
	return s.repo.MarkFired(ctx, log.EntityID, now, next)
}

// passAllowed applies the weekend and business-hours gates to a
// scheduling pass.
func (s *Scheduler) passAllowed(now time.Time) bool {
	if s.cfg.ExcludeWeekends {
		switch now.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}
	if s.cfg.BusinessHoursOnly {
		hour := now.Hour()
		if hour < s.cfg.BusinessStartHour || hour >= s.cfg.BusinessEndHour {
			return false
		}
	}
	return true
}

// nextFromCreation returns createdAt plus the smallest configured
// interval still in the future, or false when the series is exhausted.
func (s *Scheduler) nextFromCreation(createdAt, now time.Time) (time.Time, bool) {
	for _, days := range s.cfg.Intervals {
		next := createdAt.AddDate(0, 0, days)
		if next.After(now) {
			return next, true
		}
	}
	return time.Time{}, false
}

// intervalDays returns the interval for the given fire count, clamped
// to the last configured interval.
func (s *Scheduler) intervalDays(count int) int {
	if count >= len(s.cfg.Intervals) {
		return s.cfg.Intervals[len(s.cfg.Intervals)-1]
	}
	return s.cfg.Intervals[count]
}
