// Package notify implements the notification fan-out service: persisted
// per-user notification records, best-effort real-time push over the
// connection hub, and preference-gated dispatch through the outbound
// channel senders.
package notify

import (
	"context"

	"github.com/bissquit/message-garden/internal/domain"
)

// ListOptions controls notification listing.
type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
	SortBy     string // created_at (default) or is_read
	SortOrder  string // desc (default) or asc
}

// Repository defines notification storage access.
type Repository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListUserNotifications(ctx context.Context, tenantID, userID string, opts ListOptions) ([]*domain.Notification, error)
	CountUserNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool) (int64, error)
	MarkRead(ctx context.Context, tenantID, userID, id string) error
	MarkAllRead(ctx context.Context, tenantID, userID string) (int64, error)
	DeleteNotification(ctx context.Context, tenantID, userID, id string) error

	// GetPreferences returns ErrPreferencesNotFound when the user never
	// saved any; callers fall back to domain.DefaultPreferences.
	GetPreferences(ctx context.Context, tenantID, userID string) (*domain.NotificationPreference, error)
	UpsertPreferences(ctx context.Context, p *domain.NotificationPreference) error
}

// Directory resolves recipient sets and contact targets from the
// tenant/user/role collaborator.
type Directory interface {
	ListActiveUserIDs(ctx context.Context, tenantID string) ([]string, error)
	ListUserIDsByRole(ctx context.Context, tenantID, role string) ([]string, error)
	GetContact(ctx context.Context, tenantID, userID string) (*domain.TenantUser, error)
}
