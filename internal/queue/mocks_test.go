package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
)

// memRepository implements Repository in memory for testing.
type memRepository struct {
	mu        sync.Mutex
	messages  map[string]*domain.QueuedMessage
	templates map[string]*domain.MessageTemplate
	audits    []*domain.DeliveryAudit

	createErr error
}

func newMemRepository() *memRepository {
	return &memRepository{
		messages:  make(map[string]*domain.QueuedMessage),
		templates: make(map[string]*domain.MessageTemplate),
	}
}

func (m *memRepository) CreateMessage(_ context.Context, msg *domain.QueuedMessage) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memRepository) GetMessage(_ context.Context, tenantID, id string) (*domain.QueuedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.TenantID != tenantID {
		return nil, ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memRepository) MarkProcessing(_ context.Context, tenantID, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.TenantID != tenantID || msg.Status != domain.MessageStatusPending {
		return 0, ErrMessageNotFound
	}
	msg.Status = domain.MessageStatusProcessing
	msg.Attempts++
	msg.UpdatedAt = time.Now()
	return msg.Attempts, nil
}

func (m *memRepository) MarkSent(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.TenantID != tenantID {
		return ErrMessageNotFound
	}
	now := time.Now()
	msg.Status = domain.MessageStatusSent
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
	msg.UpdatedAt = now
	return nil
}

func (m *memRepository) MarkFailed(_ context.Context, tenantID, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.TenantID != tenantID {
		return ErrMessageNotFound
	}
	now := time.Now()
	msg.Status = domain.MessageStatusFailed
	msg.ProcessedAt = &now
	msg.ErrorMessage = errMsg
	msg.UpdatedAt = now
	return nil
}

func (m *memRepository) MarkRetryPending(_ context.Context, tenantID, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.TenantID != tenantID || msg.Status != domain.MessageStatusProcessing {
		return ErrMessageNotFound
	}
	msg.Status = domain.MessageStatusPending
	msg.ErrorMessage = errMsg
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *memRepository) ResetFailed(_ context.Context, tenantID string) ([]*domain.QueuedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reset []*domain.QueuedMessage
	for _, msg := range m.messages {
		if msg.Status != domain.MessageStatusFailed || msg.Attempts >= msg.MaxAttempts {
			continue
		}
		if tenantID != "" && msg.TenantID != tenantID {
			continue
		}
		msg.Status = domain.MessageStatusPending
		msg.ErrorMessage = ""
		msg.ProcessedAt = nil
		msg.UpdatedAt = time.Now()
		cp := *msg
		reset = append(reset, &cp)
	}
	return reset, nil
}

func (m *memRepository) RecoverStuckProcessing(_ context.Context, olderThan time.Duration) ([]*domain.QueuedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-olderThan)
	var recovered []*domain.QueuedMessage
	for _, msg := range m.messages {
		if msg.Status != domain.MessageStatusProcessing || !msg.UpdatedAt.Before(cutoff) {
			continue
		}
		if msg.Attempts >= msg.MaxAttempts {
			msg.Status = domain.MessageStatusFailed
			msg.ErrorMessage = "processing interrupted"
			processed := now
			msg.ProcessedAt = &processed
		} else {
			msg.Status = domain.MessageStatusPending
		}
		msg.UpdatedAt = now
		cp := *msg
		recovered = append(recovered, &cp)
	}
	return recovered, nil
}

func (m *memRepository) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, msg := range m.messages {
		if msg.Status.IsTerminal() && msg.ProcessedAt != nil && msg.ProcessedAt.Before(cutoff) {
			delete(m.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memRepository) Stats(_ context.Context, tenantID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{}
	for _, msg := range m.messages {
		if tenantID != "" && msg.TenantID != tenantID {
			continue
		}
		switch msg.Status {
		case domain.MessageStatusPending:
			stats.Pending++
		case domain.MessageStatusProcessing:
			stats.Processing++
		case domain.MessageStatusSent:
			stats.Sent++
		case domain.MessageStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *memRepository) GetActiveTemplate(_ context.Context, tenantID, templateID string) (*domain.MessageTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tmpl, ok := m.templates[templateID]
	if !ok || tmpl.TenantID != tenantID || !tmpl.IsActive {
		return nil, ErrTemplateNotFound
	}
	cp := *tmpl
	return &cp, nil
}

func (m *memRepository) CreateDeliveryAudit(_ context.Context, audit *domain.DeliveryAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, audit)
	return nil
}

func (m *memRepository) message(id string) *domain.QueuedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[id]
}

// memIndex implements PriorityIndex in memory for testing.
type memIndex struct {
	mu      sync.Mutex
	entries map[string]map[domain.MessagePriority][]IndexEntry
}

func newMemIndex() *memIndex {
	return &memIndex{entries: make(map[string]map[domain.MessagePriority][]IndexEntry)}
}

func (m *memIndex) Add(_ context.Context, tenantID string, priority domain.MessagePriority, entry IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[tenantID] == nil {
		m.entries[tenantID] = make(map[domain.MessagePriority][]IndexEntry)
	}
	m.entries[tenantID][priority] = append(m.entries[tenantID][priority], entry)
	sort.SliceStable(m.entries[tenantID][priority], func(i, j int) bool {
		return m.entries[tenantID][priority][i].ScheduledAt.Before(m.entries[tenantID][priority][j].ScheduledAt)
	})
	return nil
}

func (m *memIndex) Peek(_ context.Context, tenantID string, priority domain.MessagePriority, limit int) ([]IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[tenantID][priority]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]IndexEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *memIndex) Remove(_ context.Context, tenantID string, priority domain.MessagePriority, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[tenantID][priority]
	for i, e := range entries {
		if e.MessageID == messageID {
			m.entries[tenantID][priority] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memIndex) Tenants(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenants := make([]string, 0, len(m.entries))
	for tenant := range m.entries {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (m *memIndex) size(tenantID string, priority domain.MessagePriority) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[tenantID][priority])
}

// recordingEmailSender implements sender.EmailSender, recording calls
// and failing per recipient when told to.
type recordingEmailSender struct {
	mu      sync.Mutex
	sent    []string
	failErr map[string]error
}

func newRecordingEmailSender() *recordingEmailSender {
	return &recordingEmailSender{failErr: make(map[string]error)}
}

func (s *recordingEmailSender) Send(_ context.Context, to, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failErr[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *recordingEmailSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}
