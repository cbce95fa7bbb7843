package reminder

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/message-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrAccessNotFound, Status: http.StatusNotFound, Message: "form access not found"},
	{Error: ErrAlreadyTerminal, Status: http.StatusConflict, Message: "form access already completed"},
}

// Handler handles HTTP requests for the reminder module.
type Handler struct {
	scheduler *Scheduler
	validator *validator.Validate
}

// NewHandler creates a new reminder handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{
		scheduler: scheduler,
		validator: validator.New(),
	}
}

// RegisterRoutes registers reminder routes (require tenant context).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reminders", func(r chi.Router) {
		r.Post("/schedule", h.Schedule)
		r.Get("/stats", h.Stats)
		r.Delete("/{entityID}", h.Cancel)
	})
}

// RegisterAdminRoutes registers cross-tenant maintenance routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/reminders/process", h.Process)
	r.Post("/reminders/cleanup", h.Cleanup)
}

// Schedule handles POST /reminders/schedule.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	if err := h.scheduler.ScheduleReminders(r.Context(), tenantID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// Process handles POST /admin/reminders/process.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	fired, skipped, err := h.scheduler.ProcessPendingReminders(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{
		"fired":   fired,
		"skipped": skipped,
	})
}

// Cancel handles DELETE /reminders/{entityID}.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	if err := h.scheduler.CancelReminders(r.Context(), entityID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CleanupRequest represents request body for reminder cleanup.
type CleanupRequest struct {
	DaysOld int `json:"days_old" validate:"required,min=1"`
}

// Cleanup handles POST /admin/reminders/cleanup.
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

	deleted, err := h.scheduler.CleanupOldReminders(r.Context(), req.DaysOld)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// Stats handles GET /reminders/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	stats, err := h.scheduler.GetReminderStats(r.Context(), tenantID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}
