package sender

import (
	"context"

	"github.com/bissquit/message-garden/internal/domain"
)

// CommunicationLog persists an audit row for every SMS/WhatsApp attempt,
// sent or failed. The SMS and WhatsApp senders write through it
// regardless of outcome.
type CommunicationLog interface {
	LogCommunication(ctx context.Context, comm *domain.Communication) error
}

// CommunicationStats aggregates audit rows per tenant.
type CommunicationStats struct {
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}

// StatsRepository reads communication statistics.
type StatsRepository interface {
	CommunicationStats(ctx context.Context, tenantID, channel string) (*CommunicationStats, error)
}
