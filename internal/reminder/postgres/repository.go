// Package postgres provides the PostgreSQL implementation of the
// reminder repository and the form-access entity source.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/reminder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements reminder.Repository and reminder.EntitySource
// using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertLog creates the log on first schedule and refreshes the next
// due instant on subsequent passes.
func (r *Repository) UpsertLog(ctx context.Context, log *domain.ReminderLog) error {
	query := `
		INSERT INTO reminder_logs (tenant_id, entity_id, next_reminder_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id) DO UPDATE SET
			next_reminder_at = EXCLUDED.next_reminder_at,
			updated_at = NOW()
		RETURNING id, reminder_count, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		log.TenantID,
		log.EntityID,
		log.NextReminderAt,
	).Scan(&log.ID, &log.ReminderCount, &log.CreatedAt, &log.UpdatedAt)
}

// ListDue returns logs whose next reminder is at or before now.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]*domain.ReminderLog, error) {
	query := `
		SELECT id, tenant_id, entity_id, reminder_count, last_reminder_at,
			next_reminder_at, created_at, updated_at
		FROM reminder_logs
		WHERE next_reminder_at <= $1
		ORDER BY next_reminder_at
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	logs := make([]*domain.ReminderLog, 0)
	for rows.Next() {
		var log domain.ReminderLog
		err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.EntityID,
			&log.ReminderCount,
			&log.LastReminderAt,
			&log.NextReminderAt,
			&log.CreatedAt,
			&log.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reminder log: %w", err)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// MarkFired advances a fired series.
func (r *Repository) MarkFired(ctx context.Context, entityID string, firedAt, nextAt time.Time) error {
	query := `
		UPDATE reminder_logs
		SET reminder_count = reminder_count + 1,
			last_reminder_at = $2,
			next_reminder_at = $3,
			updated_at = NOW()
		WHERE entity_id = $1
	`
	result, err := r.db.Exec(ctx, query, entityID, firedAt, nextAt)
	if err != nil {
		return fmt.Errorf("mark fired: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("mark fired: no log for entity %s", entityID)
	}
	return nil
}

// DeleteLog removes the log for one entity.
func (r *Repository) DeleteLog(ctx context.Context, entityID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM reminder_logs WHERE entity_id = $1`, entityID)
	if err != nil {
		return fmt.Errorf("delete reminder log: %w", err)
	}
	return nil
}

// DeleteTerminalOlderThan purges logs whose owning form access is
// terminal and whose log predates the cutoff.
func (r *Repository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM reminder_logs rl
		USING form_accesses fa
		WHERE fa.id = rl.entity_id
		  AND fa.status IN ('submitted', 'expired')
		  AND rl.created_at < $1
	`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup reminder logs: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats aggregates a tenant's reminder activity. The completion rate is
// the share of the tenant's tracked form accesses that were submitted.
func (r *Repository) Stats(ctx context.Context, tenantID string) (*reminder.Stats, error) {
	query := `
		SELECT
			(SELECT COALESCE(SUM(reminder_count), 0) FROM reminder_logs WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM reminder_logs WHERE tenant_id = $1 AND next_reminder_at <= NOW()),
			(SELECT COUNT(*) FROM reminder_logs
				WHERE tenant_id = $1 AND last_reminder_at >= date_trunc('day', NOW())),
			(SELECT COUNT(*) FROM form_accesses WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM form_accesses WHERE tenant_id = $1 AND status = 'submitted')
	`
	var stats reminder.Stats
	var total, submitted int64
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&stats.TotalReminders,
		&stats.PendingReminders,
		&stats.SentToday,
		&total,
		&submitted,
	)
	if err != nil {
		return nil, fmt.Errorf("reminder stats: %w", err)
	}
	if total > 0 {
		stats.CompletionRate = float64(submitted) / float64(total)
	}
	return &stats, nil
}

// ListOpenAccesses returns a tenant's non-terminal form accesses.
func (r *Repository) ListOpenAccesses(ctx context.Context, tenantID string) ([]*domain.FormAccess, error) {
	query := `
		SELECT id, tenant_id, user_id, email, status, deadline, created_at
		FROM form_accesses
		WHERE tenant_id = $1 AND status IN ('pending', 'in_progress')
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list open accesses: %w", err)
	}
	defer rows.Close()

	accesses := make([]*domain.FormAccess, 0)
	for rows.Next() {
		var fa domain.FormAccess
		err := rows.Scan(&fa.ID, &fa.TenantID, &fa.UserID, &fa.Email, &fa.Status, &fa.Deadline, &fa.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan form access: %w", err)
		}
		accesses = append(accesses, &fa)
	}
	return accesses, rows.Err()
}

// GetAccess loads one form access by id.
func (r *Repository) GetAccess(ctx context.Context, entityID string) (*domain.FormAccess, error) {
	query := `
		SELECT id, tenant_id, user_id, email, status, deadline, created_at
		FROM form_accesses
		WHERE id = $1
	`
	var fa domain.FormAccess
	err := r.db.QueryRow(ctx, query, entityID).Scan(
		&fa.ID, &fa.TenantID, &fa.UserID, &fa.Email, &fa.Status, &fa.Deadline, &fa.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reminder.ErrAccessNotFound
		}
		return nil, fmt.Errorf("get form access: %w", err)
	}
	return &fa, nil
}

// ListTenantsWithOpenAccesses returns tenants with at least one
// non-terminal form access.
func (r *Repository) ListTenantsWithOpenAccesses(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT tenant_id
		FROM form_accesses
		WHERE status IN ('pending', 'in_progress')
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
