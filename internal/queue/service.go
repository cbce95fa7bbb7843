package queue

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/google/uuid"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Service provides enqueue, retry, cleanup and stats over the durable
// message store. Calls only write state and return; delivery happens
// asynchronously in the Processor.
type Service struct {
	repo        Repository
	index       PriorityIndex
	maxAttempts int
}

// NewService creates a new queue service. maxAttempts is stamped onto
// every enqueued message.
func NewService(repo Repository, index PriorityIndex, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		repo:        repo,
		index:       index,
		maxAttempts: maxAttempts,
	}
}

// EnqueueInput contains data for enqueuing a message.
type EnqueueInput struct {
	TenantID    string
	Recipient   string
	Subject     string
	BodyHTML    string
	BodyText    string
	Variables   map[string]string
	Priority    domain.MessagePriority
	ScheduledAt time.Time
}

// Enqueue validates the input, writes a pending durable record and
// mirrors it into the priority index. Returns the message id; the
// caller gets acceptance, not delivery confirmation.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) (string, error) {
	if err := validateEnqueue(in); err != nil {
		return "", err
	}

	scheduledAt := in.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	msg := &domain.QueuedMessage{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		Recipient:   in.Recipient,
		Subject:     in.Subject,
		BodyHTML:    in.BodyHTML,
		BodyText:    in.BodyText,
		Variables:   in.Variables,
		Priority:    in.Priority,
		Status:      domain.MessageStatusPending,
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		ScheduledAt: scheduledAt,
	}

	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	entry := IndexEntry{MessageID: msg.ID, ScheduledAt: scheduledAt}
	if err := s.index.Add(ctx, msg.TenantID, msg.Priority, entry); err != nil {
		// The durable row exists; without an index entry it will only
		// surface again through RetryFailed or stuck recovery.
		return "", fmt.Errorf("index message: %w", err)
	}

	slog.Debug("message enqueued",
		"message_id", msg.ID,
		"tenant_id", msg.TenantID,
		"priority", msg.Priority.String(),
	)

	return msg.ID, nil
}

// TemplateEnqueueInput contains data for template-based enqueuing.
type TemplateEnqueueInput struct {
	TenantID    string
	TemplateID  string
	Recipient   string
	Variables   map[string]string
	Priority    domain.MessagePriority
	ScheduledAt time.Time
}

// EnqueueFromTemplate resolves an active template, validates the
// supplied variables against its declared set, substitutes placeholders
// and delegates to Enqueue.
func (s *Service) EnqueueFromTemplate(ctx context.Context, in TemplateEnqueueInput) (string, error) {
	tmpl, err := s.repo.GetActiveTemplate(ctx, in.TenantID, in.TemplateID)
	if err != nil {
		return "", err
	}

	if missing := missingVariables(tmpl.Variables, in.Variables); len(missing) > 0 {
		return "", fmt.Errorf("%w: missing template variables: %s", ErrValidation, strings.Join(missing, ", "))
	}

	return s.Enqueue(ctx, EnqueueInput{
		TenantID:    in.TenantID,
		Recipient:   in.Recipient,
		Subject:     substitute(tmpl.Subject, in.Variables),
		BodyHTML:    substitute(tmpl.BodyHTML, in.Variables),
		BodyText:    substitute(tmpl.BodyText, in.Variables),
		Variables:   in.Variables,
		Priority:    in.Priority,
		ScheduledAt: in.ScheduledAt,
	})
}

// RetryFailed flips failed messages with remaining attempts back to
// pending and re-creates their index entries. The attempt counter is
// deliberately NOT reset: a message close to max_attempts can exhaust
// its budget after one more cycle. tenantID == "" retries across
// tenants. Returns the number of messages re-queued.
func (s *Service) RetryFailed(ctx context.Context, tenantID string) (int, error) {
	msgs, err := s.repo.ResetFailed(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("reset failed messages: %w", err)
	}

	count := 0
	for _, msg := range msgs {
		entry := IndexEntry{MessageID: msg.ID, ScheduledAt: msg.ScheduledAt}
		if err := s.index.Add(ctx, msg.TenantID, msg.Priority, entry); err != nil {
			slog.Error("failed to re-index retried message",
				"message_id", msg.ID,
				"tenant_id", msg.TenantID,
				"error", err,
			)
			continue
		}
		count++
	}

	slog.Info("failed messages re-queued", "tenant_id", tenantID, "count", count)
	return count, nil
}

// Cleanup deletes sent/failed rows processed more than olderThanDays
// ago. Administrative and cross-tenant.
func (s *Service) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("%w: olderThanDays must be positive", ErrValidation)
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	return s.repo.DeleteProcessedBefore(ctx, cutoff)
}

// Stats aggregates per-status counts. tenantID == "" is the
// cross-tenant administrative aggregate.
func (s *Service) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	return s.repo.Stats(ctx, tenantID)
}

// GetMessage loads a single message scoped by tenant.
func (s *Service) GetMessage(ctx context.Context, tenantID, id string) (*domain.QueuedMessage, error) {
	return s.repo.GetMessage(ctx, tenantID, id)
}

func validateEnqueue(in EnqueueInput) error {
	if in.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if !emailRe.MatchString(in.Recipient) {
		return fmt.Errorf("%w: invalid recipient address", ErrValidation)
	}
	if strings.TrimSpace(in.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(in.BodyHTML) == "" && strings.TrimSpace(in.BodyText) == "" {
		return fmt.Errorf("%w: message body is required", ErrValidation)
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority", ErrValidation)
	}
	return nil
}
