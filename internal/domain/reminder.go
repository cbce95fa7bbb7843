package domain

import "time"

// FormAccessStatus is the lifecycle state of a tracked form-access record.
type FormAccessStatus string

// Form access statuses. Submitted and expired are terminal: reminders
// stop and their logs are removed.
const (
	FormAccessPending    FormAccessStatus = "pending"
	FormAccessInProgress FormAccessStatus = "in_progress"
	FormAccessSubmitted  FormAccessStatus = "submitted"
	FormAccessExpired    FormAccessStatus = "expired"
)

// IsTerminal reports whether the entity no longer receives reminders.
func (s FormAccessStatus) IsTerminal() bool {
	return s == FormAccessSubmitted || s == FormAccessExpired
}

// FormAccess is the tracked entity reminder campaigns run against.
// The table is owned by the application layer; this subsystem reads it
// and deletes nothing but its own reminder logs.
type FormAccess struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	UserID    string           `json:"user_id,omitempty"`
	Email     string           `json:"email"`
	Status    FormAccessStatus `json:"status"`
	Deadline  *time.Time       `json:"deadline,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ReminderLog tracks the reminder series for one entity.
// Created on first schedule, refreshed on each fire, deleted when the
// entity reaches a terminal state or the series is exhausted.
type ReminderLog struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	EntityID       string     `json:"entity_id"`
	ReminderCount  int        `json:"reminder_count"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
	NextReminderAt time.Time  `json:"next_reminder_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
