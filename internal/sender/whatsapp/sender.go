// Package whatsapp provides WhatsApp delivery through a Business API
// compatible HTTP endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/message-garden/internal/domain"
	"github.com/bissquit/message-garden/internal/sender"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Config holds WhatsApp sender configuration.
type Config struct {
	Enabled     bool
	APIURL      string
	AccessToken string
	PhoneID     string
	RateLimit   float64
	Timeout     time.Duration
}

// Sender implements sender.WhatsAppSender. Like the SMS sender, every
// attempt is recorded in the communications audit regardless of outcome.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	audit      sender.CommunicationLog
}

// NewSender creates a new WhatsApp sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config, audit sender.CommunicationLog) (*Sender, error) {
	if config.Enabled {
		if config.APIURL == "" {
			return nil, fmt.Errorf("whatsapp sender: api url is required when enabled")
		}
		if config.AccessToken == "" {
			return nil, fmt.Errorf("whatsapp sender: access token is required when enabled")
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("whatsapp sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
		audit:      audit,
	}, nil
}

// SendText delivers a plain text message.
func (s *Sender) SendText(ctx context.Context, tenantID, to, message string) sender.Result {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": message},
	}
	return s.send(ctx, tenantID, to, message, payload)
}

// SendTemplate delivers a pre-approved template with positional params.
func (s *Sender) SendTemplate(ctx context.Context, tenantID, to, templateName string, params []string) sender.Result {
	components := make([]map[string]any, 0, 1)
	if len(params) > 0 {
		parameters := make([]map[string]string, len(params))
		for i, p := range params {
			parameters[i] = map[string]string{"type": "text", "text": p}
		}
		components = append(components, map[string]any{
			"type":       "body",
			"parameters": parameters,
		})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":       templateName,
			"language":   map[string]string{"code": "en"},
			"components": components,
		},
	}
	return s.send(ctx, tenantID, to, "template:"+templateName, payload)
}

// SendMedia delivers a media link with an optional caption.
func (s *Sender) SendMedia(ctx context.Context, tenantID, to, mediaURL, caption string) sender.Result {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             map[string]string{"link": mediaURL, "caption": caption},
	}
	return s.send(ctx, tenantID, to, "media:"+mediaURL, payload)
}

func (s *Sender) send(ctx context.Context, tenantID, to, body string, payload map[string]any) sender.Result {
	start := time.Now()

	var result sender.Result
	switch {
	case !sender.ValidPhone(to):
		result = sender.Failure(sender.ErrInvalidPhoneNumber)
	case !s.config.Enabled:
		result = sender.Failure(sender.ErrNotConfigured)
	default:
		result = s.callAPI(ctx, payload)
	}

	s.writeAudit(ctx, tenantID, to, body, result)

	status := "failed"
	if result.Success {
		status = "success"
	}
	sender.RecordSend("whatsapp", status)
	sender.RecordSendDuration("whatsapp", time.Since(start))

	return result
}

type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (s *Sender) callAPI(ctx context.Context, payload map[string]any) sender.Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return sender.Failure(fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/%s/messages", s.config.APIURL, s.config.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return sender.Failure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return sender.Failure(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return sender.Failure(&sender.RetryableError{Message: fmt.Sprintf("send request: %v", err)})
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sender.Failure(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var api apiResponse
		if err := json.Unmarshal(respBody, &api); err != nil {
			slog.Warn("whatsapp api returned unparseable body", "error", err)
		}
		var providerID string
		if len(api.Messages) > 0 {
			providerID = api.Messages[0].ID
		}
		return sender.Result{Success: true, ProviderMessageID: providerID}

	case resp.StatusCode == http.StatusTooManyRequests:
		return sender.Failure(&sender.RetryableError{Code: resp.StatusCode, Message: "rate limited"})

	case resp.StatusCode >= 500:
		return sender.Failure(&sender.RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(respBody)),
		})

	default:
		return sender.Failure(&sender.PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("rejected: %s", string(respBody)),
		})
	}
}

func (s *Sender) writeAudit(ctx context.Context, tenantID, to, body string, result sender.Result) {
	if s.audit == nil {
		return
	}

	comm := &domain.Communication{
		TenantID:          tenantID,
		Channel:           "whatsapp",
		Recipient:         to,
		Body:              body,
		Status:            domain.MessageStatusSent,
		ProviderMessageID: result.ProviderMessageID,
	}
	if !result.Success {
		comm.Status = domain.MessageStatusFailed
		if result.Err != nil {
			comm.ErrorMessage = result.Err.Error()
		}
	}

	if err := s.audit.LogCommunication(ctx, comm); err != nil {
		slog.Error("failed to write whatsapp audit row", "tenant_id", tenantID, "error", err)
	}
}
