// Package postgres provides the PostgreSQL communications audit store.
package postgres

import (
	"context"
	"fmt"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/sender"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements sender.CommunicationLog and sender.StatsRepository.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogCommunication writes one audit row.
func (r *Repository) LogCommunication(ctx context.Context, comm *domain.Communication) error {
	query := `
		INSERT INTO communications (tenant_id, channel, recipient, body, status, provider_message_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRow(ctx, query,
		comm.TenantID,
		comm.Channel,
		comm.Recipient,
		comm.Body,
		comm.Status,
		comm.ProviderMessageID,
		comm.ErrorMessage,
	).Scan(&comm.ID, &comm.CreatedAt)
}

// CommunicationStats aggregates audit rows for one tenant.
// channel == "" aggregates across channels.
func (r *Repository) CommunicationStats(ctx context.Context, tenantID, channel string) (*sender.CommunicationStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM communications
		WHERE tenant_id = $1 AND ($2 = '' OR channel = $2)
	`
	var stats sender.CommunicationStats
	if err := r.db.QueryRow(ctx, query, tenantID, channel).Scan(&stats.Sent, &stats.Failed); err != nil {
		return nil, fmt.Errorf("communication stats: %w", err)
	}
	return &stats, nil
}
