package sender

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bissquit/message-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotConfigured, Status: http.StatusServiceUnavailable, Message: "channel sender not configured"},
	{Error: ErrInvalidPhoneNumber, Status: http.StatusBadRequest, Message: "invalid phone number format"},
}

// Handler exposes direct send endpoints and communication statistics.
// Direct sends bypass the queue: the provider call happens within the
// request and the outcome is returned synchronously.
type Handler struct {
	sms       SMSSender
	whatsapp  WhatsAppSender
	stats     StatsRepository
	validator *validator.Validate
}

// NewHandler creates a new sender handler. Nil senders disable their
// endpoints with 503 responses.
func NewHandler(sms SMSSender, whatsapp WhatsAppSender, stats StatsRepository) *Handler {
	return &Handler{
		sms:       sms,
		whatsapp:  whatsapp,
		stats:     stats,
		validator: validator.New(),
	}
}

// RegisterRoutes registers sender routes (require tenant context).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/send", func(r chi.Router) {
		r.Post("/sms", h.SendSMS)
		r.Post("/whatsapp/text", h.SendWhatsAppText)
		r.Post("/whatsapp/template", h.SendWhatsAppTemplate)
		r.Post("/whatsapp/media", h.SendWhatsAppMedia)
	})
	r.Get("/send/stats", h.Stats)
}

// SendSMSRequest represents request body for a direct SMS send.
type SendSMSRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// SendSMS handles POST /send/sms.
func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req SendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if h.sms == nil {
		httputil.HandleError(r.Context(), w, ErrNotConfigured, errorMappings)
		return
	}

	h.writeResult(w, r, h.sms.Send(r.Context(), tenantID, req.To, req.Message))
}

// WhatsAppTextRequest represents request body for a WhatsApp text send.
type WhatsAppTextRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// SendWhatsAppText handles POST /send/whatsapp/text.
func (h *Handler) SendWhatsAppText(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req WhatsAppTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if h.whatsapp == nil {
		httputil.HandleError(r.Context(), w, ErrNotConfigured, errorMappings)
		return
	}

	h.writeResult(w, r, h.whatsapp.SendText(r.Context(), tenantID, req.To, req.Message))
}

// WhatsAppTemplateRequest represents request body for a templated send.
type WhatsAppTemplateRequest struct {
	To           string   `json:"to" validate:"required"`
	TemplateName string   `json:"template_name" validate:"required"`
	Params       []string `json:"params"`
}

// SendWhatsAppTemplate handles POST /send/whatsapp/template.
func (h *Handler) SendWhatsAppTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req WhatsAppTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if h.whatsapp == nil {
		httputil.HandleError(r.Context(), w, ErrNotConfigured, errorMappings)
		return
	}

	h.writeResult(w, r, h.whatsapp.SendTemplate(r.Context(), tenantID, req.To, req.TemplateName, req.Params))
}

// WhatsAppMediaRequest represents request body for a media send.
type WhatsAppMediaRequest struct {
	To       string `json:"to" validate:"required"`
	MediaURL string `json:"media_url" validate:"required,url"`
	Caption  string `json:"caption"`
}

// SendWhatsAppMedia handles POST /send/whatsapp/media.
func (h *Handler) SendWhatsAppMedia(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())

	var req WhatsAppMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if h.whatsapp == nil {
		httputil.HandleError(r.Context(), w, ErrNotConfigured, errorMappings)
		return
	}

	h.writeResult(w, r, h.whatsapp.SendMedia(r.Context(), tenantID, req.To, req.MediaURL, req.Caption))
}

// Stats handles GET /send/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID := httputil.GetTenantID(r.Context())
	channel := r.URL.Query().Get("channel")

	stats, err := h.stats.CommunicationStats(r.Context(), tenantID, channel)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// sendResponse is the synchronous outcome of a direct send.
type sendResponse struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, result Result) {
	if result.Success {
		httputil.Success(w, http.StatusOK, sendResponse{
			Success:           true,
			ProviderMessageID: result.ProviderMessageID,
		})
		return
	}

	if errors.Is(result.Err, ErrInvalidPhoneNumber) || errors.Is(result.Err, ErrNotConfigured) {
		httputil.HandleError(r.Context(), w, result.Err, errorMappings)
		return
	}

	// Provider rejections are reported, not mapped to 5xx: the request
	// itself succeeded in reaching a verdict.
	msg := ""
	if result.Err != nil {
		msg = result.Err.Error()
	}
	httputil.Success(w, http.StatusOK, sendResponse{Success: false, Error: msg})
}
