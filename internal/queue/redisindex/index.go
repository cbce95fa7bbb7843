// Package redisindex provides the Redis-backed priority index.
//
// Each (tenant, priority) pair maps to a sorted set keyed
// queue:index:{tenant}:{priority} whose members are message ids scored
// by scheduled time, so one ZRANGE returns the next candidates in
// approximate insertion order within the tier. A plain set tracks
// tenants that ever had entries.
package redisindex

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/queue"
	"github.com/redis/go-redis/v9"
)

const tenantsKey = "queue:index:tenants"

// Index implements queue.PriorityIndex on Redis sorted sets.
type Index struct {
	client *redis.Client
}

// NewIndex creates a new Redis priority index.
func NewIndex(client *redis.Client) *Index {
	return &Index{client: client}
}

func key(tenantID string, priority domain.MessagePriority) string {
	return fmt.Sprintf("queue:index:%s:%d", tenantID, priority)
}

// Add inserts an entry scored by its scheduled time.
func (i *Index) Add(ctx context.Context, tenantID string, priority domain.MessagePriority, entry queue.IndexEntry) error {
	pipe := i.client.TxPipeline()
	pipe.ZAdd(ctx, key(tenantID, priority), redis.Z{
		Score:  float64(entry.ScheduledAt.UnixMilli()),
		Member: entry.MessageID,
	})
	pipe.SAdd(ctx, tenantsKey, tenantID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add index entry: %w", err)
	}
	return nil
}

// Peek returns up to limit entries in score order without removing them.
func (i *Index) Peek(ctx context.Context, tenantID string, priority domain.MessagePriority, limit int) ([]queue.IndexEntry, error) {
	zs, err := i.client.ZRangeWithScores(ctx, key(tenantID, priority), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("peek index: %w", err)
	}

	entries := make([]queue.IndexEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, queue.IndexEntry{
			MessageID:   id,
			ScheduledAt: time.UnixMilli(int64(z.Score)),
		})
	}
	return entries, nil
}

// Remove drops one entry. Absent members are a no-op, matching the
// self-healing contract.
func (i *Index) Remove(ctx context.Context, tenantID string, priority domain.MessagePriority, messageID string) error {
	if err := i.client.ZRem(ctx, key(tenantID, priority), messageID).Err(); err != nil {
		return fmt.Errorf("remove index entry: %w", err)
	}
	return nil
}

// Tenants lists tenants that have had index entries. A tenant whose
// sets drained stays listed; peeking it is cheap and returns nothing.
func (i *Index) Tenants(ctx context.Context) ([]string, error) {
	tenants, err := i.client.SMembers(ctx, tenantsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list index tenants: %w", err)
	}
	return tenants, nil
}
