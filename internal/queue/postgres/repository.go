// Package postgres provides the PostgreSQL implementation of the queue
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const messageColumns = `
	id, tenant_id, recipient, subject, body_html, body_text, variables,
	priority, status, attempts, max_attempts, error_message,
	scheduled_at, processed_at, created_at, updated_at
`

func scanMessage(row pgx.Row) (*domain.QueuedMessage, error) {
	var msg domain.QueuedMessage
	err := row.Scan(
		&msg.ID,
		&msg.TenantID,
		&msg.Recipient,
		&msg.Subject,
		&msg.BodyHTML,
		&msg.BodyText,
		&msg.Variables,
		&msg.Priority,
		&msg.Status,
		&msg.Attempts,
		&msg.MaxAttempts,
		&msg.ErrorMessage,
		&msg.ScheduledAt,
		&msg.ProcessedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateMessage inserts a new pending message.
func (r *Repository) CreateMessage(ctx context.Context, msg *domain.QueuedMessage) error {
	query := `
		INSERT INTO queued_messages (id, tenant_id, recipient, subject, body_html, body_text,
			variables, priority, status, attempts, max_attempts, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		msg.ID,
		msg.TenantID,
		msg.Recipient,
		msg.Subject,
		msg.BodyHTML,
		msg.BodyText,
		msg.Variables,
		msg.Priority,
		msg.Status,
		msg.Attempts,
		msg.MaxAttempts,
		msg.ScheduledAt,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
}

// GetMessage loads one message scoped by tenant.
func (r *Repository) GetMessage(ctx context.Context, tenantID, id string) (*domain.QueuedMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM queued_messages WHERE tenant_id = $1 AND id = $2`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// MarkProcessing flips a pending message to processing and increments
// attempts, returning the new count. A non-pending row is a conflict
// and reported as not found so the caller drops its stale entry.
func (r *Repository) MarkProcessing(ctx context.Context, tenantID, id string) (int, error) {
	query := `
		UPDATE queued_messages
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'pending'
		RETURNING attempts
	`
	var attempts int
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, queue.ErrMessageNotFound
		}
		return 0, fmt.Errorf("mark processing: %w", err)
	}
	return attempts, nil
}

// MarkSent finalizes a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, tenantID, id string) error {
	query := `
		UPDATE queued_messages
		SET status = 'sent', processed_at = NOW(), error_message = '', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.db.Exec(ctx, query, tenantID, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}

// MarkFailed finalizes an exhausted delivery.
func (r *Repository) MarkFailed(ctx context.Context, tenantID, id, errMsg string) error {
	query := `
		UPDATE queued_messages
		SET status = 'failed', processed_at = NOW(), error_message = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`
	result, err := r.db.Exec(ctx, query, tenantID, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}

// MarkRetryPending reverts a processing row to pending after a
// retryable failure. Attempts keep their incremented value.
func (r *Repository) MarkRetryPending(ctx context.Context, tenantID, id, errMsg string) error {
	query := `
		UPDATE queued_messages
		SET status = 'pending', error_message = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'processing'
	`
	result, err := r.db.Exec(ctx, query, tenantID, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark retry pending: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}

// ResetFailed flips retryable failed rows back to pending and returns
// them. Attempt counters are intentionally left untouched.
func (r *Repository) ResetFailed(ctx context.Context, tenantID string) ([]*domain.QueuedMessage, error) {
	query := `
		UPDATE queued_messages
		SET status = 'pending', error_message = '', processed_at = NULL, updated_at = NOW()
		WHERE status = 'failed'
		  AND attempts < max_attempts
		  AND ($1 = '' OR tenant_id = $1)
		RETURNING ` + messageColumns

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reset failed: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// RecoverStuckProcessing resolves rows stuck in processing so a crashed
// cycle cannot strand them. Staleness is measured from updated_at, which
// every status transition refreshes. Rows with attempts still under
// budget go back to pending; rows that crashed on their final attempt
// are failed outright so attempts never exceeds max_attempts.
func (r *Repository) RecoverStuckProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.QueuedMessage, error) {
	query := `
		UPDATE queued_messages
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
		    error_message = CASE WHEN attempts >= max_attempts THEN 'processing interrupted' ELSE error_message END,
		    processed_at = CASE WHEN attempts >= max_attempts THEN NOW() ELSE processed_at END,
		    updated_at = NOW()
		WHERE status = 'processing' AND updated_at < NOW() - $1::interval
		RETURNING ` + messageColumns

	rows, err := r.db.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("recover stuck processing: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// DeleteProcessedBefore removes terminal rows older than the cutoff.
func (r *Repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM queued_messages
		WHERE status IN ('sent', 'failed') AND processed_at < $1
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats aggregates per-status counts, tenant-scoped or global.
func (r *Repository) Stats(ctx context.Context, tenantID string) (*queue.Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM queued_messages
		WHERE $1 = '' OR tenant_id = $1
	`
	var stats queue.Stats
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Sent,
		&stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}

// GetActiveTemplate loads an active template scoped by tenant.
func (r *Repository) GetActiveTemplate(ctx context.Context, tenantID, templateID string) (*domain.MessageTemplate, error) {
	query := `
		SELECT id, tenant_id, name, subject, body_html, body_text, variables, is_active, created_at, updated_at
		FROM message_templates
		WHERE tenant_id = $1 AND id = $2 AND is_active = TRUE
	`
	var tmpl domain.MessageTemplate
	err := r.db.QueryRow(ctx, query, tenantID, templateID).Scan(
		&tmpl.ID,
		&tmpl.TenantID,
		&tmpl.Name,
		&tmpl.Subject,
		&tmpl.BodyHTML,
		&tmpl.BodyText,
		&tmpl.Variables,
		&tmpl.IsActive,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &tmpl, nil
}

// CreateDeliveryAudit writes one delivery audit row.
func (r *Repository) CreateDeliveryAudit(ctx context.Context, audit *domain.DeliveryAudit) error {
	query := `
		INSERT INTO delivery_audits (tenant_id, message_id, channel, recipient, status, provider_message_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query,
		audit.TenantID,
		audit.MessageID,
		audit.Channel,
		audit.Recipient,
		audit.Status,
		audit.ProviderMessageID,
		audit.ErrorMessage,
	).Scan(&audit.ID, &audit.CreatedAt)
}

func collectMessages(rows pgx.Rows) ([]*domain.QueuedMessage, error) {
	msgs := make([]*domain.QueuedMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
