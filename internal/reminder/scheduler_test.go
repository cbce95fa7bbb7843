package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monday returns a weekday instant inside business hours.
func monday() time.Time {
	return time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
}

func saturday() time.Time {
	return time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func newTestScheduler(cfg Config, store *memStore) (*Scheduler, *recordingProducer, *recordingNotifier) {
	producer := &recordingProducer{}
	notifier := &recordingNotifier{}
	s := NewScheduler(cfg, store, store, producer, notifier)
	return s, producer, notifier
}

func TestScheduler_ScheduleReminders(t *testing.T) {
	store := newMemStore()
	now := monday()
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1", Email: "a@example.com",
		Status: domain.FormAccessPending, CreatedAt: now.AddDate(0, 0, -2),
	})

	s, _, _ := newTestScheduler(Config{Intervals: []int{1, 3, 7, 14}}, store)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ScheduleReminders(context.Background(), "t1"))

	log := store.log("a1")
	require.NotNil(t, log)
	// Created 2 days ago: day 1 has passed, day 3 is the next due point.
	assert.Equal(t, now.AddDate(0, 0, 1), log.NextReminderAt)
}

func TestScheduler_ScheduleReminders_SkipsIneligible(t *testing.T) {
	store := newMemStore()
	now := monday()
	past := now.AddDate(0, 0, -1)

	store.addAccess(&domain.FormAccess{
		ID: "submitted", TenantID: "t1",
		Status: domain.FormAccessSubmitted, CreatedAt: now.AddDate(0, 0, -2),
	})
	store.addAccess(&domain.FormAccess{
		ID: "past-deadline", TenantID: "t1",
		Status: domain.FormAccessPending, Deadline: &past,
		CreatedAt: now.AddDate(0, 0, -2),
	})
	store.addAccess(&domain.FormAccess{
		ID: "exhausted", TenantID: "t1",
		Status: domain.FormAccessPending, CreatedAt: now.AddDate(0, 0, -30),
	})

	s, _, _ := newTestScheduler(Config{Intervals: []int{1, 3, 7, 14}}, store)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ScheduleReminders(context.Background(), "t1"))
	assert.Equal(t, 0, store.logCount())
}

func TestScheduler_ScheduleReminders_WeekendGate(t *testing.T) {
	store := newMemStore()
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1",
		Status: domain.FormAccessPending, CreatedAt: monday().AddDate(0, 0, -1),
	})

	s, _, _ := newTestScheduler(Config{
		Intervals:       []int{1, 3},
		ExcludeWeekends: true,
	}, store)

	s.now = saturday
	require.NoError(t, s.ScheduleReminders(context.Background(), "t1"))
	assert.Equal(t, 0, store.logCount(), "no pass on a Saturday")

	// The Monday pass schedules normally.
	s.now = monday
	require.NoError(t, s.ScheduleReminders(context.Background(), "t1"))
	assert.Equal(t, 1, store.logCount())
}

func TestScheduler_ScheduleReminders_BusinessHoursGate(t *testing.T) {
	store := newMemStore()
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1",
		Status: domain.FormAccessPending, CreatedAt: monday().AddDate(0, 0, -1),
	})

	s, _, _ := newTestScheduler(Config{
		Intervals:         []int{1, 3},
		BusinessHoursOnly: true,
		BusinessStartHour: 9,
		BusinessEndHour:   18,
	}, store)

	evening := time.Date(2025, time.March, 3, 22, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return evening }
	require.NoError(t, s.ScheduleReminders(context.Background(), "t1"))
	assert.Equal(t, 0, store.logCount())

	s.now = monday
	require.NoError(t, s.ScheduleReminders(context.Background(), "t1"))
	assert.Equal(t, 1, store.logCount())
}

func TestScheduler_ProcessPendingReminders_FiresAndAdvances(t *testing.T) {
	store := newMemStore()
	now := monday()
	deadline := now.AddDate(0, 0, 10)
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1", UserID: "alice",
		Email: "alice@example.com", Status: domain.FormAccessInProgress,
		Deadline: &deadline, CreatedAt: now.AddDate(0, 0, -1),
	})
	store.logs["a1"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "a1",
		ReminderCount: 0, NextReminderAt: now.Add(-time.Minute),
	}

	s, producer, notifier := newTestScheduler(Config{Intervals: []int{1, 3, 7, 14}}, store)
	s.now = func() time.Time { return now }

	fired, skipped, err := s.ProcessPendingReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, skipped)

	emails := producer.enqueued()
	require.Len(t, emails, 1)
	assert.Equal(t, "alice@example.com", emails[0].Recipient)
	assert.Equal(t, "Reminder 1: your form is waiting", emails[0].Subject)
	assert.Contains(t, emails[0].BodyText, "deadline")
	assert.Equal(t, domain.PriorityHigh, emails[0].Priority)

	nudges := notifier.sent()
	require.Len(t, nudges, 1)
	assert.Equal(t, domain.NotificationTypeWarning, nudges[0].Type)
	assert.Equal(t, "reminders", nudges[0].Category)
	assert.Equal(t, "a1", nudges[0].RelatedEntityID)

	log := store.log("a1")
	require.NotNil(t, log)
	assert.Equal(t, 1, log.ReminderCount)
	require.NotNil(t, log.LastReminderAt)
	// Second reminder follows the second interval: 3 days out.
	assert.Equal(t, now.AddDate(0, 0, 3), log.NextReminderAt)
}

func TestScheduler_ProcessPendingReminders_SeriesRetiredAtMax(t *testing.T) {
	store := newMemStore()
	now := monday()
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1", Email: "a@example.com",
		Status: domain.FormAccessPending, CreatedAt: now.AddDate(0, 0, -20),
	})
	store.logs["a1"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "a1",
		ReminderCount: 3, NextReminderAt: now.Add(-time.Minute),
	}

	s, producer, _ := newTestScheduler(Config{
		Intervals:    []int{1, 3, 7, 14},
		MaxReminders: 4,
	}, store)
	s.now = func() time.Time { return now }

	fired, _, err := s.ProcessPendingReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// The fourth and final reminder went out and the series is gone.
	require.Len(t, producer.enqueued(), 1)
	assert.Equal(t, "Reminder 4: your form is waiting", producer.enqueued()[0].Subject)
	assert.Nil(t, store.log("a1"))
}

func TestScheduler_ProcessPendingReminders_RetiresTerminalAndMissing(t *testing.T) {
	store := newMemStore()
	now := monday()
	store.addAccess(&domain.FormAccess{
		ID: "done", TenantID: "t1",
		Status: domain.FormAccessSubmitted, CreatedAt: now.AddDate(0, 0, -2),
	})
	store.logs["done"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "done", NextReminderAt: now.Add(-time.Minute),
	}
	store.logs["gone"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "gone", NextReminderAt: now.Add(-time.Minute),
	}

	s, producer, _ := newTestScheduler(Config{Intervals: []int{1, 3}}, store)
	s.now = func() time.Time { return now }

	fired, skipped, err := s.ProcessPendingReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 2, skipped)
	assert.Empty(t, producer.enqueued())
	assert.Equal(t, 0, store.logCount())
}

func TestScheduler_ProcessPendingReminders_EnqueueFailureIsIsolated(t *testing.T) {
	store := newMemStore()
	now := monday()
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1", Email: "a@example.com",
		Status: domain.FormAccessPending, CreatedAt: now.AddDate(0, 0, -1),
	})
	store.logs["a1"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "a1", NextReminderAt: now.Add(-time.Minute),
	}

	s, producer, _ := newTestScheduler(Config{Intervals: []int{1, 3}}, store)
	producer.enqueErr = assert.AnError
	s.now = func() time.Time { return now }

	fired, skipped, err := s.ProcessPendingReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, skipped)

	// The log is untouched so the next run can retry.
	log := store.log("a1")
	require.NotNil(t, log)
	assert.Equal(t, 0, log.ReminderCount)
}

func TestScheduler_IntervalClamp(t *testing.T) {
	store := newMemStore()
	now := monday()
	store.addAccess(&domain.FormAccess{
		ID: "a1", TenantID: "t1", Email: "a@example.com",
		Status: domain.FormAccessPending, CreatedAt: now.AddDate(0, 0, -40),
	})
	// More reminders allowed than configured intervals: the cadence
	// sticks to the last interval.
	store.logs["a1"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "a1",
		ReminderCount: 4, NextReminderAt: now.Add(-time.Minute),
	}

	s, _, _ := newTestScheduler(Config{
		Intervals:    []int{1, 3},
		MaxReminders: 10,
	}, store)
	s.now = func() time.Time { return now }

	fired, _, err := s.ProcessPendingReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	assert.Equal(t, now.AddDate(0, 0, 3), store.log("a1").NextReminderAt)
}

func TestScheduler_CancelReminders(t *testing.T) {
	store := newMemStore()
	store.logs["a1"] = &domain.ReminderLog{TenantID: "t1", EntityID: "a1"}

	s, _, _ := newTestScheduler(Config{}, store)
	require.NoError(t, s.CancelReminders(context.Background(), "a1"))
	assert.Equal(t, 0, store.logCount())

	// Cancelling twice is a no-op.
	require.NoError(t, s.CancelReminders(context.Background(), "a1"))
}

func TestScheduler_CleanupOldReminders(t *testing.T) {
	store := newMemStore()
	now := monday()
	store.addAccess(&domain.FormAccess{
		ID: "done", TenantID: "t1", Status: domain.FormAccessSubmitted,
	})
	store.addAccess(&domain.FormAccess{
		ID: "open", TenantID: "t1", Status: domain.FormAccessPending,
	})
	store.logs["done"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "done", CreatedAt: now.AddDate(0, 0, -60),
	}
	store.logs["open"] = &domain.ReminderLog{
		TenantID: "t1", EntityID: "open", CreatedAt: now.AddDate(0, 0, -60),
	}

	s, _, _ := newTestScheduler(Config{}, store)
	s.now = func() time.Time { return now }

	deleted, err := s.CleanupOldReminders(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	// Open-entity logs survive regardless of age.
	assert.NotNil(t, store.log("open"))
}
