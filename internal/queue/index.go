package queue

import (
	"context"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
)

// IndexEntry is the ephemeral mirror of a pending message: just enough
// to pick the next candidate without scanning the durable store.
type IndexEntry struct {
	MessageID   string
	ScheduledAt time.Time
}

// PriorityIndex is the per-tenant, per-priority ordering structure the
// processor drains. It is a derived optimization: it may transiently
// disagree with the durable store and self-heals when the processor
// drops entries whose durable status turned terminal.
type PriorityIndex interface {
	// Add inserts an entry for a pending message.
	Add(ctx context.Context, tenantID string, priority domain.MessagePriority, entry IndexEntry) error

	// Peek returns up to limit entries at the given tier in scheduled
	// order without removing them.
	Peek(ctx context.Context, tenantID string, priority domain.MessagePriority, limit int) ([]IndexEntry, error)

	// Remove drops one entry. Removing an absent entry is not an error.
	Remove(ctx context.Context, tenantID string, priority domain.MessagePriority, messageID string) error

	// Tenants lists tenants that currently have index entries.
	Tenants(ctx context.Context) ([]string, error)
}
