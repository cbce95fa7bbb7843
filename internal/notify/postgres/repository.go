// Package postgres provides the PostgreSQL implementation of the notify
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/notify"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements notify.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateNotification inserts a new notification row.
func (r *Repository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, tenant_id, user_id, title, message, type, category,
			action_type, priority, related_entity_id, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		n.ID,
		n.TenantID,
		n.UserID,
		n.Title,
		n.Message,
		n.Type,
		n.Category,
		n.ActionType,
		n.Priority,
		n.RelatedEntityID,
		n.Data,
	).Scan(&n.CreatedAt)
}

// ListUserNotifications lists a user's notifications with paging and
// sorting. Sort inputs are normalized by the service; values are still
// whitelisted here because they are interpolated into the query.
func (r *Repository) ListUserNotifications(ctx context.Context, tenantID, userID string, opts notify.ListOptions) ([]*domain.Notification, error) {
	sortBy := "created_at"
	if opts.SortBy == "is_read" {
		sortBy = "is_read"
	}
	sortOrder := "DESC"
	if opts.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, user_id, title, message, type, category,
			action_type, priority, related_entity_id, data, is_read, created_at
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND ($3 = FALSE OR is_read = FALSE)
		ORDER BY %s %s
		LIMIT $4 OFFSET $5
	`, sortBy, sortOrder)

	rows, err := r.db.Query(ctx, query, tenantID, userID, opts.UnreadOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID,
			&n.TenantID,
			&n.UserID,
			&n.Title,
			&n.Message,
			&n.Type,
			&n.Category,
			&n.ActionType,
			&n.Priority,
			&n.RelatedEntityID,
			&n.Data,
			&n.IsRead,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// CountUserNotifications counts a user's notifications.
func (r *Repository) CountUserNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND ($3 = FALSE OR is_read = FALSE)
	`
	var count int64
	if err := r.db.QueryRow(ctx, query, tenantID, userID, unreadOnly).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification read.
func (r *Repository) MarkRead(ctx context.Context, tenantID, userID, id string) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE tenant_id = $1 AND user_id = $2 AND id = $3
	`
	result, err := r.db.Exec(ctx, query, tenantID, userID, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notify.ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user read.
func (r *Repository) MarkAllRead(ctx context.Context, tenantID, userID string) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE
		WHERE tenant_id = $1 AND user_id = $2 AND is_read = FALSE
	`
	result, err := r.db.Exec(ctx, query, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteNotification removes one notification.
func (r *Repository) DeleteNotification(ctx context.Context, tenantID, userID, id string) error {
	query := `DELETE FROM notifications WHERE tenant_id = $1 AND user_id = $2 AND id = $3`
	result, err := r.db.Exec(ctx, query, tenantID, userID, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notify.ErrNotificationNotFound
	}
	return nil
}

// GetPreferences loads a user's saved channel preferences.
func (r *Repository) GetPreferences(ctx context.Context, tenantID, userID string) (*domain.NotificationPreference, error) {
	query := `
		SELECT tenant_id, user_id, email_enabled, sms_enabled, whatsapp_enabled, push_enabled,
			frequency, categories, updated_at
		FROM notification_preferences
		WHERE tenant_id = $1 AND user_id = $2
	`
	var p domain.NotificationPreference
	err := r.db.QueryRow(ctx, query, tenantID, userID).Scan(
		&p.TenantID,
		&p.UserID,
		&p.Email,
		&p.SMS,
		&p.WhatsApp,
		&p.Push,
		&p.Frequency,
		&p.Categories,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notify.ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

// UpsertPreferences writes a user's channel preferences, keyed by
// (tenant, user).
func (r *Repository) UpsertPreferences(ctx context.Context, p *domain.NotificationPreference) error {
	query := `
		INSERT INTO notification_preferences (tenant_id, user_id, email_enabled, sms_enabled,
			whatsapp_enabled, push_enabled, frequency, categories, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			whatsapp_enabled = EXCLUDED.whatsapp_enabled,
			push_enabled = EXCLUDED.push_enabled,
			frequency = EXCLUDED.frequency,
			categories = EXCLUDED.categories,
			updated_at = NOW()
		RETURNING updated_at
	`
	return r.db.QueryRow(ctx, query,
		p.TenantID,
		p.UserID,
		p.Email,
		p.SMS,
		p.WhatsApp,
		p.Push,
		p.Frequency,
		p.Categories,
	).Scan(&p.UpdatedAt)
}
