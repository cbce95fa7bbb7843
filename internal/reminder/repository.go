// Package reminder implements the time-based reminder campaign engine
// that runs against incomplete form-access records.
package reminder

import (
	"context"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
)

// Stats aggregates a tenant's reminder activity.
type Stats struct {
	TotalReminders   int64   `json:"total_reminders"`
	PendingReminders int64   `json:"pending_reminders"`
	SentToday        int64   `json:"sent_today"`
	CompletionRate   float64 `json:"completion_rate"`
}

// Repository defines reminder log storage access.
type Repository interface {
	// UpsertLog creates the log on first schedule and refreshes
	// next_reminder_at on subsequent passes, keyed by entity id.
	UpsertLog(ctx context.Context, log *domain.ReminderLog) error

	// ListDue returns logs whose next_reminder_at is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*domain.ReminderLog, error)

	// MarkFired refreshes a fired log: increments reminder_count, sets
	// last_reminder_at and the next due instant.
	MarkFired(ctx context.Context, entityID string, firedAt, nextAt time.Time) error

	// DeleteLog removes the log for one entity. Deleting an absent log
	// is not an error.
	DeleteLog(ctx context.Context, entityID string) error

	// DeleteTerminalOlderThan purges logs whose owning entity is
	// terminal and whose log predates the cutoff.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Stats(ctx context.Context, tenantID string) (*Stats, error)
}

// EntitySource reads the tracked form-access records owned by the
// application layer.
type EntitySource interface {
	ListOpenAccesses(ctx context.Context, tenantID string) ([]*domain.FormAccess, error)
	GetAccess(ctx context.Context, entityID string) (*domain.FormAccess, error)
	ListTenantsWithOpenAccesses(ctx context.Context) ([]string, error)
}
