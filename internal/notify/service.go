package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/pkg/ctxlog"
	"github.com/bissquit/message-garden/internal/sender"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Senders bundles the outbound channels available for side-channel
// dispatch. Nil fields mean the channel is not wired.
type Senders struct {
	Email    sender.EmailSender
	SMS      sender.SMSSender
	WhatsApp sender.WhatsAppSender
}

// Service implements notification fan-out.
type Service struct {
	repo      Repository
	directory Directory
	hub       *Hub
	senders   Senders

	dispatchSem chan struct{}
	dispatchWG  sync.WaitGroup
}

// NewService creates a new notify service. dispatchConcurrency bounds
// the number of in-flight side-channel dispatch tasks.
func NewService(repo Repository, directory Directory, hub *Hub, senders Senders, dispatchConcurrency int) *Service {
	if dispatchConcurrency <= 0 {
		dispatchConcurrency = 4
	}
	return &Service{
		repo:        repo,
		directory:   directory,
		hub:         hub,
		senders:     senders,
		dispatchSem: make(chan struct{}, dispatchConcurrency),
	}
}

// SendInput is the producer-facing notification event.
type SendInput struct {
	Title           string
	Message         string
	Type            domain.NotificationType
	Category        string
	ActionType      string
	Priority        string
	RelatedEntityID string
	Data            map[string]any
}

// pushEvent is the payload shape written to live connections.
type pushEvent struct {
	Type string               `json:"type"`
	Data *domain.Notification `json:"data"`
}

// SendNotification persists one notification row, pushes it best-effort
// to the user's live connections and the tenant room, and dispatches it
// through enabled side channels. Side-channel failures are logged, never
// returned.
func (s *Service) SendNotification(ctx context.Context, tenantID, userID string, in SendInput) (string, error) {
	if tenantID == "" || userID == "" {
		return "", fmt.Errorf("%w: tenant and user are required", ErrValidation)
	}
	if in.Title == "" || in.Message == "" {
		return "", fmt.Errorf("%w: title and message are required", ErrValidation)
	}
	if in.Type == "" {
		in.Type = domain.NotificationTypeInfo
	}

	n := &domain.Notification{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		UserID:          userID,
		Title:           in.Title,
		Message:         in.Message,
		Type:            in.Type,
		Category:        in.Category,
		ActionType:      in.ActionType,
		Priority:        in.Priority,
		RelatedEntityID: in.RelatedEntityID,
		Data:            in.Data,
	}

	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	recordCreated(string(n.Type))

	event := pushEvent{Type: "notification", Data: n}
	s.hub.BroadcastToUser(userID, event)
	s.hub.BroadcastToTenantRoom(tenantID, event)

	s.dispatchSideChannels(ctx, n)

	return n.ID, nil
}

// SendBulkNotification fans one event out to many users sequentially.
// A failure for one user is logged and skipped; returns the ids that
// were persisted.
func (s *Service) SendBulkNotification(ctx context.Context, tenantID string, userIDs []string, in SendInput) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, ErrNoRecipients
	}

	logger := ctxlog.FromContext(ctx)
	ids := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		id, err := s.SendNotification(ctx, tenantID, userID, in)
		if err != nil {
			logger.Error("bulk notification failed for user",
				"tenant_id", tenantID, "user_id", userID, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SendTenantNotification fans out to every active user of a tenant.
func (s *Service) SendTenantNotification(ctx context.Context, tenantID string, in SendInput) ([]string, error) {
	userIDs, err := s.directory.ListActiveUserIDs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant users: %w", err)
	}
	return s.SendBulkNotification(ctx, tenantID, userIDs, in)
}

// SendRoleNotification fans out to the tenant's users holding a role.
func (s *Service) SendRoleNotification(ctx context.Context, tenantID, role string, in SendInput) ([]string, error) {
	userIDs, err := s.directory.ListUserIDsByRole(ctx, tenantID, role)
	if err != nil {
		return nil, fmt.Errorf("resolve role users: %w", err)
	}
	return s.SendBulkNotification(ctx, tenantID, userIDs, in)
}

// GetUserNotifications lists a user's notifications.
func (s *Service) GetUserNotifications(ctx context.Context, tenantID, userID string, opts ListOptions) ([]*domain.Notification, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	switch opts.SortBy {
	case "created_at", "is_read":
	default:
		opts.SortBy = "created_at"
	}
	switch opts.SortOrder {
	case "asc", "desc":
	default:
		opts.SortOrder = "desc"
	}

	return s.repo.ListUserNotifications(ctx, tenantID, userID, opts)
}

// GetUserNotificationCount counts a user's notifications.
func (s *Service) GetUserNotificationCount(ctx context.Context, tenantID, userID string, unreadOnly bool) (int64, error) {
	return s.repo.CountUserNotifications(ctx, tenantID, userID, unreadOnly)
}

// MarkNotificationAsRead flags one notification read.
func (s *Service) MarkNotificationAsRead(ctx context.Context, tenantID, userID, id string) error {
	return s.repo.MarkRead(ctx, tenantID, userID, id)
}

// MarkAllAsRead flags every unread notification of the user read and
// returns how many were flipped.
func (s *Service) MarkAllAsRead(ctx context.Context, tenantID, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, tenantID, userID)
}

// DeleteNotification removes one notification.
func (s *Service) DeleteNotification(ctx context.Context, tenantID, userID, id string) error {
	return s.repo.DeleteNotification(ctx, tenantID, userID, id)
}

// GetUserPreferences loads the user's channel preferences, falling back
// to defaults when none were saved.
func (s *Service) GetUserPreferences(ctx context.Context, tenantID, userID string) (*domain.NotificationPreference, error) {
	prefs, err := s.repo.GetPreferences(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrPreferencesNotFound) {
			return domain.DefaultPreferences(tenantID, userID), nil
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return prefs, nil
}

// UpdateUserPreferences upserts the user's channel preferences.
func (s *Service) UpdateUserPreferences(ctx context.Context, prefs *domain.NotificationPreference) error {
	if prefs.TenantID == "" || prefs.UserID == "" {
		return fmt.Errorf("%w: tenant and user are required", ErrValidation)
	}
	switch prefs.Frequency {
	case domain.FrequencyImmediate, domain.FrequencyDaily, domain.FrequencyWeekly:
	case "":
		prefs.Frequency = domain.FrequencyImmediate
	default:
		return fmt.Errorf("%w: unknown delivery frequency %q", ErrValidation, prefs.Frequency)
	}
	return s.repo.UpsertPreferences(ctx, prefs)
}

// RegisterConnection adds a live push connection for a user.
func (s *Service) RegisterConnection(tenantID, userID string) *Connection {
	return s.hub.Register(tenantID, userID)
}

// UnregisterConnection removes a live push connection.
func (s *Service) UnregisterConnection(conn *Connection) {
	s.hub.Unregister(conn)
}

// GetConnectedUsersCount reports distinct users with a live connection.
// tenantID == "" aggregates across tenants.
func (s *Service) GetConnectedUsersCount(tenantID string) int {
	return s.hub.ConnectedUsers(tenantID)
}

// Close waits for in-flight side-channel dispatch tasks to finish.
func (s *Service) Close() {
	s.dispatchWG.Wait()
}

// dispatchSideChannels re-dispatches the notification through the
// channels the user enabled. Each dispatch runs as its own bounded
// task; a failing channel never blocks the others or the caller.
func (s *Service) dispatchSideChannels(ctx context.Context, n *domain.Notification) {
	prefs, err := s.GetUserPreferences(ctx, n.TenantID, n.UserID)
	if err != nil {
		ctxlog.FromContext(ctx).Error("side-channel dispatch skipped, preferences unavailable",
			"tenant_id", n.TenantID, "user_id", n.UserID, "error", err)
		return
	}

	if prefs.Frequency != domain.FrequencyImmediate {
		// Daily/weekly digests are assembled by a separate job.
		return
	}
	if !prefs.WantsCategory(n.Category) {
		return
	}
	if !prefs.Email && !prefs.SMS && !prefs.WhatsApp {
		return
	}

	contact, err := s.directory.GetContact(ctx, n.TenantID, n.UserID)
	if err != nil {
		ctxlog.FromContext(ctx).Error("side-channel dispatch skipped, contact lookup failed",
			"tenant_id", n.TenantID, "user_id", n.UserID, "error", err)
		return
	}

	// Dispatch outlives the producing request.
	dispatchCtx := context.WithoutCancel(ctx)

	if prefs.Email && s.senders.Email != nil && contact.Email != "" {
		s.spawnDispatch(dispatchCtx, "email", n, func(taskCtx context.Context) error {
			return s.senders.Email.Send(taskCtx, contact.Email, n.Title, "", n.Message)
		})
	}
	if prefs.SMS && s.senders.SMS != nil && contact.Phone != "" {
		s.spawnDispatch(dispatchCtx, "sms", n, func(taskCtx context.Context) error {
			result := s.senders.SMS.Send(taskCtx, n.TenantID, contact.Phone, n.Title+": "+n.Message)
			return result.Err
		})
	}
	if prefs.WhatsApp && s.senders.WhatsApp != nil && contact.Phone != "" {
		s.spawnDispatch(dispatchCtx, "whatsapp", n, func(taskCtx context.Context) error {
			result := s.senders.WhatsApp.SendText(taskCtx, n.TenantID, contact.Phone, n.Title+": "+n.Message)
			return result.Err
		})
	}
}

func (s *Service) spawnDispatch(ctx context.Context, channel string, n *domain.Notification, send func(context.Context) error) {
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()

		s.dispatchSem <- struct{}{}
		defer func() { <-s.dispatchSem }()

		taskCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := send(taskCtx); err != nil {
			recordDispatch(channel, "failed")
			ctxlog.FromContext(ctx).Error("side-channel dispatch failed",
				"channel", channel,
				"tenant_id", n.TenantID,
				"user_id", n.UserID,
				"notification_id", n.ID,
				"error", err)
			return
		}
		recordDispatch(channel, "sent")
	}()
}
