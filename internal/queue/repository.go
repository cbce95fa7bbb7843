// Package queue implements the durable message store, its ephemeral
// priority index and the periodic processor that drains it.
package queue

import (
	"context"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
)

// Stats is the per-status row count aggregation.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
}

// Repository defines durable message store access. The relational store
// is the single source of truth for message status; the priority index
// only mirrors it.
type Repository interface {
	CreateMessage(ctx context.Context, msg *domain.QueuedMessage) error
	GetMessage(ctx context.Context, tenantID, id string) (*domain.QueuedMessage, error)

	// MarkProcessing flips a pending message to processing and
	// increments its attempt counter, returning the new count.
	MarkProcessing(ctx context.Context, tenantID, id string) (int, error)
	MarkSent(ctx context.Context, tenantID, id string) error
	MarkFailed(ctx context.Context, tenantID, id, errMsg string) error
	// MarkRetryPending reverts a processing message to pending after a
	// retryable failure, storing the error. Attempts stay as counted.
	MarkRetryPending(ctx context.Context, tenantID, id, errMsg string) error

	// ResetFailed flips failed rows with attempts < max_attempts back
	// to pending and clears their error. tenantID == "" resets across
	// tenants (administrative). Returns the affected rows so index
	// entries can be re-created.
	ResetFailed(ctx context.Context, tenantID string) ([]*domain.QueuedMessage, error)

	// RecoverStuckProcessing reverts rows stuck in processing longer
	// than olderThan back to pending, returning them for re-indexing.
	RecoverStuckProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.QueuedMessage, error)

	// DeleteProcessedBefore removes terminal rows whose processed_at
	// predates the cutoff. Cross-tenant by design.
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats aggregates per-status counts. tenantID == "" aggregates
	// across tenants (administrative).
	Stats(ctx context.Context, tenantID string) (*Stats, error)

	GetActiveTemplate(ctx context.Context, tenantID, templateID string) (*domain.MessageTemplate, error)

	CreateDeliveryAudit(ctx context.Context, audit *domain.DeliveryAudit) error
}
