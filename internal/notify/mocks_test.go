package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/sender"
)

// memRepository implements Repository in memory for testing.
type memRepository struct {
	mu            sync.Mutex
	notifications map[string]*domain.Notification
	prefs         map[string]*domain.NotificationPreference // key tenant|user

	createErr error
}

func newMemRepository() *memRepository {
	return &memRepository{
		notifications: make(map[string]*domain.Notification),
		prefs:         make(map[string]*domain.NotificationPreference),
	}
}

func prefKey(tenantID, userID string) string { return tenantID + "|" + userID }

func (m *memRepository) CreateNotification(_ context.Context, n *domain.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *memRepository) ListUserNotifications(_ context.Context, tenantID, userID string, opts ListOptions) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Notification
	for _, n := range m.notifications {
		if n.TenantID != tenantID || n.UserID != userID {
			continue
		}
		if opts.UnreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else {
		out = nil
	}
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memRepository) CountUserNotifications(_ context.Context, tenantID, userID string, unreadOnly bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.TenantID != tenantID || n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		count++
	}
	return count, nil
}

func (m *memRepository) MarkRead(_ context.Context, tenantID, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.TenantID != tenantID || n.UserID != userID {
		return ErrNotificationNotFound
	}
	n.IsRead = true
	return nil
}

func (m *memRepository) MarkAllRead(_ context.Context, tenantID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flipped int64
	for _, n := range m.notifications {
		if n.TenantID == tenantID && n.UserID == userID && !n.IsRead {
			n.IsRead = true
			flipped++
		}
	}
	return flipped, nil
}

func (m *memRepository) DeleteNotification(_ context.Context, tenantID, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.TenantID != tenantID || n.UserID != userID {
		return ErrNotificationNotFound
	}
	delete(m.notifications, id)
	return nil
}

func (m *memRepository) GetPreferences(_ context.Context, tenantID, userID string) (*domain.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[prefKey(tenantID, userID)]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepository) UpsertPreferences(_ context.Context, p *domain.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.prefs[prefKey(p.TenantID, p.UserID)] = &cp
	return nil
}

func (m *memRepository) setPrefs(p *domain.NotificationPreference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[prefKey(p.TenantID, p.UserID)] = p
}

func (m *memRepository) notificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

// memDirectory implements Directory in memory for testing.
type memDirectory struct {
	users map[string][]*domain.TenantUser // by tenant
}

func newMemDirectory(users ...*domain.TenantUser) *memDirectory {
	d := &memDirectory{users: make(map[string][]*domain.TenantUser)}
	for _, u := range users {
		d.users[u.TenantID] = append(d.users[u.TenantID], u)
	}
	return d
}

func (d *memDirectory) ListActiveUserIDs(_ context.Context, tenantID string) ([]string, error) {
	var ids []string
	for _, u := range d.users[tenantID] {
		if u.IsActive {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (d *memDirectory) ListUserIDsByRole(_ context.Context, tenantID, role string) ([]string, error) {
	var ids []string
	for _, u := range d.users[tenantID] {
		if u.IsActive && u.Role == role {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (d *memDirectory) GetContact(_ context.Context, tenantID, userID string) (*domain.TenantUser, error) {
	for _, u := range d.users[tenantID] {
		if u.ID == userID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.New("user not found")
}

// recordingEmailSender implements sender.EmailSender for dispatch tests.
type recordingEmailSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingEmailSender) Send(_ context.Context, to, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
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

// recordingSMSSender implements sender.SMSSender for dispatch tests.
type recordingSMSSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSMSSender) Send(_ context.Context, _, to, message string) sender.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+"|"+message)
	return sender.Result{Success: true, ProviderMessageID: "prov-1"}
}

func (s *recordingSMSSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}
