package queue

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrMessageNotFound, Status: http.StatusNotFound, Message: "message not found"},
	{Error: ErrTemplateNotFound, Status: http.StatusNotFound, Message: "template not found or inactive"},
}

// Handler handles HTTP requests for the queue module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers queue routes (require tenant context).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Post("/messages", h.Enqueue)
		r.Post("/messages/from-template", h.EnqueueFromTemplate)
		r.Get("/messages/{id}", h.GetMessage)
		r.Post("/retry", h.RetryFailed)
		r.Get("/stats", h.Stats)
	})
}

// RegisterAdminRoutes registers cross-tenant maintenance routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/queue/retry", h.RetryFailedAll)
	r.Post("/queue/cleanup", h.Cleanup)
	r.Get("/queue/stats", h.StatsAll)
}

// EnqueueRequest represents request body for enqueueing a message.
type EnqueueRequest struct {
	Recipient   string            `json:"recipient" validate:"required,email"`
	Subject     string            `json:"subject" validate:"required"`
	BodyHTML    string            `json:"body_html" validate:"required"`
	BodyText    string            `json:"body_text"`
	Variables   map[string]string `json:"variables"`
	Priority    string            `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
}

// Enqueue handles POST /queue/messages.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	in := EnqueueInput{
		TenantID:  tenantID,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		BodyHTML:  req.BodyHTML,
		BodyText:  req.BodyText,
		Variables: req.Variables,
		Priority:  parsePriority(req.Priority),
	}
	if req.ScheduledAt != nil {
		in.ScheduledAt = *req.ScheduledAt
	}

	id, err := h.service.Enqueue(r.Context(), in)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]string{"id": id})
}

// TemplateEnqueueRequest represents request body for template-based enqueue.
type TemplateEnqueueRequest struct {
	TemplateID  string            `json:"template_id" validate:"required,uuid"`
	Recipient   string            `json:"recipient" validate:"required,email"`
	Variables   map[string]string `json:"variables"`
	Priority    string            `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
}

// EnqueueFromTemplate handles POST /queue/messages/from-template.
func (h *Handler) EnqueueFromTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req TemplateEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	in := TemplateEnqueueInput{
		TenantID:   tenantID,
		TemplateID: req.TemplateID,
		Recipient:  req.Recipient,
		Variables:  req.Variables,
		Priority:   parsePriority(req.Priority),
	}
	if req.ScheduledAt != nil {
		in.ScheduledAt = *req.ScheduledAt
	}

	id, err := h.service.EnqueueFromTemplate(r.Context(), in)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]string{"id": id})
}

// GetMessage handles GET /queue/messages/{id}.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	messageID := chi.URLParam(r, "id")

	msg, err := h.service.GetMessage(r.Context(), tenantID, messageID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, msg)
}

// RetryFailed handles POST /queue/retry.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	count, err := h.service.RetryFailed(r.Context(), tenantID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"requeued": count})
}

// RetryFailedAll handles POST /admin/queue/retry.
func (h *Handler) RetryFailedAll(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.RetryFailed(r.Context(), "")
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{"requeued": count})
}

// CleanupRequest represents request body for queue cleanup.
type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days" validate:"required,min=1"`
}

// Cleanup handles POST /admin/queue/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	deleted, err := h.service.Cleanup(r.Context(), req.OlderThanDays)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// Stats handles GET /queue/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	stats, err := h.service.Stats(r.Context(), tenantID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// StatsAll handles GET /admin/queue/stats.
func (h *Handler) StatsAll(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), "")
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

func parsePriority(s string) domain.MessagePriority {
	switch s {
	case "low":
		return domain.PriorityLow
	case "high":
		return domain.PriorityHigh
	case "urgent":
		return domain.PriorityUrgent
	default:
		return domain.PriorityNormal
	}
}
