package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/notify"
	"github.com/bissquit/message-garden/internal/queue"
)

// memStore implements Repository and EntitySource in memory.
type memStore struct {
	mu       sync.Mutex
	logs     map[string]*domain.ReminderLog // by entity id
	accesses map[string]*domain.FormAccess
}

func newMemStore() *memStore {
	return &memStore{
		logs:     make(map[string]*domain.ReminderLog),
		accesses: make(map[string]*domain.FormAccess),
	}
}

func (m *memStore) addAccess(a *domain.FormAccess) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accesses[a.ID] = a
}

func (m *memStore) UpsertLog(_ context.Context, log *domain.ReminderLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.logs[log.EntityID]; ok {
		existing.NextReminderAt = log.NextReminderAt
		return nil
	}
	cp := *log
	cp.CreatedAt = time.Now()
	m.logs[log.EntityID] = &cp
	return nil
}

func (m *memStore) ListDue(_ context.Context, now time.Time) ([]*domain.ReminderLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.ReminderLog
	for _, log := range m.logs {
		if !log.NextReminderAt.After(now) {
			cp := *log
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextReminderAt.Before(due[j].NextReminderAt)
	})
	return due, nil
}

func (m *memStore) MarkFired(_ context.Context, entityID string, firedAt, nextAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[entityID]
	if !ok {
		return ErrAccessNotFound
	}
	log.ReminderCount++
	fired := firedAt
	log.LastReminderAt = &fired
	log.NextReminderAt = nextAt
	return nil
}

func (m *memStore) DeleteLog(_ context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, entityID)
	return nil
}

func (m *memStore) DeleteTerminalOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for entityID, log := range m.logs {
		access, ok := m.accesses[entityID]
		if ok && access.Status.IsTerminal() && log.CreatedAt.Before(cutoff) {
			delete(m.logs, entityID)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memStore) Stats(_ context.Context, tenantID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{}
	for _, log := range m.logs {
		if log.TenantID == tenantID {
			stats.TotalReminders += int64(log.ReminderCount)
			stats.PendingReminders++
		}
	}
	return stats, nil
}

func (m *memStore) ListOpenAccesses(_ context.Context, tenantID string) ([]*domain.FormAccess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []*domain.FormAccess
	for _, a := range m.accesses {
		if a.TenantID == tenantID && !a.Status.IsTerminal() {
			cp := *a
			open = append(open, &cp)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open, nil
}

func (m *memStore) GetAccess(_ context.Context, entityID string) (*domain.FormAccess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accesses[entityID]
	if !ok {
		return nil, ErrAccessNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListTenantsWithOpenAccesses(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var tenants []string
	for _, a := range m.accesses {
		if a.Status.IsTerminal() {
			continue
		}
		if _, ok := seen[a.TenantID]; !ok {
			seen[a.TenantID] = struct{}{}
			tenants = append(tenants, a.TenantID)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (m *memStore) log(entityID string) *domain.ReminderLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs[entityID]
}

func (m *memStore) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

// recordingProducer captures enqueued reminder emails.
type recordingProducer struct {
	mu       sync.Mutex
	inputs   []queue.EnqueueInput
	enqueErr error
}

func (p *recordingProducer) Enqueue(_ context.Context, in queue.EnqueueInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enqueErr != nil {
		return "", p.enqueErr
	}
	p.inputs = append(p.inputs, in)
	return "msg-1", nil
}

func (p *recordingProducer) enqueued() []queue.EnqueueInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.EnqueueInput, len(p.inputs))
	copy(out, p.inputs)
	return out
}

// recordingNotifier captures in-app reminder notifications.
type recordingNotifier struct {
	mu     sync.Mutex
	inputs []notify.SendInput
}

func (n *recordingNotifier) SendNotification(_ context.Context, _, _ string, in notify.SendInput) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, in)
	return "n-1", nil
}

func (n *recordingNotifier) sent() []notify.SendInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.SendInput, len(n.inputs))
	copy(out, n.inputs)
	return out
}
