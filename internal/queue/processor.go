package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/sender"
)

// ProcessorConfig contains processor configuration.
type ProcessorConfig struct {
	Interval    time.Duration
	BatchSize   int
	SendTimeout time.Duration
	StuckAfter  time.Duration
}

// DefaultProcessorConfig returns default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Interval:    30 * time.Second,
		BatchSize:   10,
		SendTimeout: 15 * time.Second,
		StuckAfter:  10 * time.Minute,
	}
}

// Processor drains the priority index on a fixed interval: every tenant
// with entries is visited each cycle, urgent before high before normal
// before low. Cycles never overlap within a process.
//
// The design assumes exactly one active processor instance; there is no
// cross-process claim mechanism, and running two concurrently can
// double-send.
type Processor struct {
	config ProcessorConfig
	repo   Repository
	index  PriorityIndex
	email  sender.EmailSender

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewProcessor creates a new queue processor.
func NewProcessor(config ProcessorConfig, repo Repository, index PriorityIndex, email sender.EmailSender) *Processor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &Processor{
		config: config,
		repo:   repo,
		index:  index,
		email:  email,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the processing loop.
func (p *Processor) Start(ctx context.Context) {
	slog.Info("starting queue processor",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize,
	)

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop gracefully stops the processor.
func (p *Processor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	slog.Info("queue processor stopped")
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.ProcessCycle(ctx)
		}
	}
}

// ProcessCycle runs one full drain pass. A cycle already in flight
// makes the call a no-op, so slow provider calls cannot stack cycles.
func (p *Processor) ProcessCycle(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		slog.Warn("previous processing cycle still running, skipping")
		return
	}
	defer p.running.Store(false)

	start := p.now()

	p.recoverStuck(ctx)

	tenants, err := p.index.Tenants(ctx)
	if err != nil {
		slog.Error("failed to list tenants with queued messages", "error", err)
		return
	}

	for _, tenantID := range tenants {
		p.processTenant(ctx, tenantID)
	}

	recordCycleDuration(time.Since(start))
}

// processTenant drains one tenant in strict priority order.
func (p *Processor) processTenant(ctx context.Context, tenantID string) {
	for prio := domain.PriorityUrgent; prio >= domain.PriorityLow; prio-- {
		entries, err := p.index.Peek(ctx, tenantID, prio, p.config.BatchSize)
		if err != nil {
			slog.Error("failed to peek priority index",
				"tenant_id", tenantID,
				"priority", prio.String(),
				"error", err,
			)
			continue
		}

		for _, entry := range entries {
			// Not due yet: leave the entry for a later cycle.
			if entry.ScheduledAt.After(p.now()) {
				continue
			}
			p.processEntry(ctx, tenantID, prio, entry)
		}
	}
}

func (p *Processor) processEntry(ctx context.Context, tenantID string, prio domain.MessagePriority, entry IndexEntry) {
	msg, err := p.repo.GetMessage(ctx, tenantID, entry.MessageID)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			p.dropEntry(ctx, tenantID, prio, entry.MessageID)
			recordStaleEntry()
			return
		}
		slog.Error("failed to load queued message", "message_id", entry.MessageID, "error", err)
		return
	}

	// Self-healing: the index must never drive an attempt for a record
	// that is no longer pending.
	if msg.Status != domain.MessageStatusPending {
		p.dropEntry(ctx, tenantID, prio, entry.MessageID)
		recordStaleEntry()
		return
	}

	attempts, err := p.repo.MarkProcessing(ctx, tenantID, msg.ID)
	if err != nil {
		slog.Error("failed to mark message processing", "message_id", msg.ID, "error", err)
		return
	}

	sendErr := p.send(ctx, msg)

	if sendErr == nil {
		if err := p.repo.MarkSent(ctx, tenantID, msg.ID); err != nil {
			slog.Error("failed to mark message sent", "message_id", msg.ID, "error", err)
		}
		p.writeAudit(ctx, msg)
		p.dropEntry(ctx, tenantID, prio, msg.ID)
		recordProcessed(prio.String(), "sent")
		slog.Debug("message sent", "message_id", msg.ID, "tenant_id", tenantID)
		return
	}

	slog.Warn("message send failed",
		"message_id", msg.ID,
		"tenant_id", tenantID,
		"attempt", attempts,
		"max_attempts", msg.MaxAttempts,
		"error", sendErr,
	)

	if attempts >= msg.MaxAttempts {
		if err := p.repo.MarkFailed(ctx, tenantID, msg.ID, sendErr.Error()); err != nil {
			slog.Error("failed to mark message failed", "message_id", msg.ID, "error", err)
		}
		recordProcessed(prio.String(), "failed")
	} else {
		if err := p.repo.MarkRetryPending(ctx, tenantID, msg.ID, sendErr.Error()); err != nil {
			slog.Error("failed to revert message to pending", "message_id", msg.ID, "error", err)
		}
		recordProcessed(prio.String(), "retry")
	}

	// The entry is dropped on failure too: another attempt requires a
	// fresh index entry via retry or re-enqueue, which prevents silent
	// re-attempt storms.
	p.dropEntry(ctx, tenantID, prio, msg.ID)
}

// send invokes the email sender with a per-call timeout so one slow
// provider cannot stall the tenant's processing slot.
func (p *Processor) send(ctx context.Context, msg *domain.QueuedMessage) error {
	if p.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.SendTimeout)
		defer cancel()
	}
	return p.email.Send(ctx, msg.Recipient, msg.Subject, msg.BodyHTML, msg.BodyText)
}

func (p *Processor) writeAudit(ctx context.Context, msg *domain.QueuedMessage) {
	audit := &domain.DeliveryAudit{
		TenantID:  msg.TenantID,
		MessageID: msg.ID,
		Channel:   "email",
		Recipient: msg.Recipient,
		Status:    domain.MessageStatusSent,
	}
	if err := p.repo.CreateDeliveryAudit(ctx, audit); err != nil {
		slog.Error("failed to write delivery audit", "message_id", msg.ID, "error", err)
	}
}

func (p *Processor) dropEntry(ctx context.Context, tenantID string, prio domain.MessagePriority, messageID string) {
	if err := p.index.Remove(ctx, tenantID, prio, messageID); err != nil {
		slog.Error("failed to drop index entry",
			"tenant_id", tenantID,
			"message_id", messageID,
			"error", err,
		)
	}
}

// recoverStuck resolves rows left in processing by a crashed run.
// Rows requeued as pending get fresh index entries; rows the
// repository failed for exhausted attempts must not be retried.
func (p *Processor) recoverStuck(ctx context.Context) {
	if p.config.StuckAfter <= 0 {
		return
	}

	msgs, err := p.repo.RecoverStuckProcessing(ctx, p.config.StuckAfter)
	if err != nil {
		slog.Error("failed to recover stuck messages", "error", err)
		return
	}

	requeued, exhausted := 0, 0
	for _, msg := range msgs {
		if msg.Status != domain.MessageStatusPending {
			exhausted++
			recordProcessed(msg.Priority.String(), "failed")
			continue
		}
		requeued++
		entry := IndexEntry{MessageID: msg.ID, ScheduledAt: msg.ScheduledAt}
		if err := p.index.Add(ctx, msg.TenantID, msg.Priority, entry); err != nil {
			slog.Error("failed to re-index recovered message", "message_id", msg.ID, "error", err)
		}
	}

	if len(msgs) > 0 {
		slog.Info("recovered stuck messages", "requeued", requeued, "failed", exhausted)
	}
}
