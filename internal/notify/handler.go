package notify

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrNoRecipients, Status: http.StatusBadRequest, Message: "no recipients resolved"},
}

// Handler handles HTTP requests for the notify module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notify handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification routes (require tenant context).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/count", h.Count)
		r.Get("/stream", h.Stream)
		r.Post("/read-all", h.MarkAllRead)
		r.Post("/{id}/read", h.MarkRead)
		r.Delete("/{id}", h.Delete)
	})

	r.Get("/me/preferences", h.GetPreferences)
	r.Put("/me/preferences", h.UpdatePreferences)
}

// RegisterAdminRoutes registers producer-facing fan-out routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/notifications/send", h.Send)
	r.Post("/notifications/send-tenant", h.SendTenant)
	r.Post("/notifications/send-role", h.SendRole)
	r.Get("/notifications/connections", h.Connections)
}

// SendRequest represents request body for fan-out to explicit users.
type SendRequest struct {
	UserIDs         []string       `json:"user_ids" validate:"required,min=1,dive,required"`
	Title           string         `json:"title" validate:"required"`
	Message         string         `json:"message" validate:"required"`
	Type            string         `json:"type" validate:"omitempty,oneof=info success warning error system"`
	Category        string         `json:"category"`
	ActionType      string         `json:"action_type"`
	Priority        string         `json:"priority"`
	RelatedEntityID string         `json:"related_entity_id"`
	Data            map[string]any `json:"data"`
}

func (req *SendRequest) toInput() SendInput {
	return SendInput{
		Title:           req.Title,
		Message:         req.Message,
		Type:            domain.NotificationType(req.Type),
		Category:        req.Category,
		ActionType:      req.ActionType,
		Priority:        req.Priority,
		RelatedEntityID: req.RelatedEntityID,
		Data:            req.Data,
	}
}

// Send handles POST /admin/notifications/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ids, err := h.service.SendBulkNotification(r.Context(), tenantID, req.UserIDs, req.toInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, map[string]any{"notification_ids": ids})
}

// TenantSendRequest represents request body for whole-tenant fan-out.
type TenantSendRequest struct {
	Title           string         `json:"title" validate:"required"`
	Message         string         `json:"message" validate:"required"`
	Type            string         `json:"type" validate:"omitempty,oneof=info success warning error system"`
	Category        string         `json:"category"`
	ActionType      string         `json:"action_type"`
	Priority        string         `json:"priority"`
	RelatedEntityID string         `json:"related_entity_id"`
	Data            map[string]any `json:"data"`
	Role            string         `json:"role"`
}

func (req *TenantSendRequest) toInput() SendInput {
	return SendInput{
		Title:           req.Title,
		Message:         req.Message,
		Type:            domain.NotificationType(req.Type),
		Category:        req.Category,
		ActionType:      req.ActionType,
		Priority:        req.Priority,
		RelatedEntityID: req.RelatedEntityID,
		Data:            req.Data,
	}
}

// SendTenant handles POST /admin/notifications/send-tenant.
func (h *Handler) SendTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req TenantSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ids, err := h.service.SendTenantNotification(r.Context(), tenantID, req.toInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, map[string]any{"notification_ids": ids})
}

// SendRole handles POST /admin/notifications/send-role.
func (h *Handler) SendRole(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req TenantSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Role == "" {
		httputil.Error(w, http.StatusBadRequest, "role is required")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	ids, err := h.service.SendRoleNotification(r.Context(), tenantID, req.Role, req.toInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, map[string]any{"notification_ids": ids})
}

// List handles GET /notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())

	q := r.URL.Query()
	opts := ListOptions{
		UnreadOnly: q.Get("unread_only") == "true",
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	notifications, err := h.service.GetUserNotifications(r.Context(), tenantID, userID, opts)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, notifications)
}

// Count handles GET /notifications/count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	count, err := h.service.GetUserNotificationCount(r.Context(), tenantID, userID, unreadOnly)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"count": count})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())
	notificationID := chi.URLParam(r, "id")

	if err := h.service.MarkNotificationAsRead(r.Context(), tenantID, userID, notificationID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())

	updated, err := h.service.MarkAllAsRead(r.Context(), tenantID, userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"updated": updated})
}

// Delete handles DELETE /notifications/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())
	notificationID := chi.URLParam(r, "id")

	if err := h.service.DeleteNotification(r.Context(), tenantID, userID, notificationID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /notifications/stream as server-sent events. The
// connection is registered with the hub for the request's lifetime.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusBadRequest, "missing X-Actor-ID header")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	conn := h.service.RegisterConnection(tenantID, userID)
	defer h.service.UnregisterConnection(conn)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-conn.Messages():
			if !ok {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Connections handles GET /admin/notifications/connections.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	count := h.service.GetConnectedUsersCount(tenantID)
	httputil.Success(w, http.StatusOK, map[string]int{"connected_users": count})
}

// PreferencesRequest represents request body for updating preferences.
type PreferencesRequest struct {
	Email      bool            `json:"email"`
	SMS        bool            `json:"sms"`
	WhatsApp   bool            `json:"whatsapp"`
	Push       bool            `json:"push"`
	Frequency  string          `json:"frequency" validate:"omitempty,oneof=immediate daily weekly"`
	Categories map[string]bool `json:"categories"`
}

// GetPreferences handles GET /me/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())

	prefs, err := h.service.GetUserPreferences(r.Context(), tenantID, userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /me/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	userID := httputil.GetActorID(r.Context())

	var req PreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	prefs := &domain.NotificationPreference{
		TenantID:   tenantID,
		UserID:     userID,
		Email:      req.Email,
		SMS:        req.SMS,
		WhatsApp:   req.WhatsApp,
		Push:       req.Push,
		Frequency:  domain.DeliveryFrequency(req.Frequency),
		Categories: req.Categories,
	}

	if err := h.service.UpdateUserPreferences(r.Context(), prefs); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, prefs)
}
