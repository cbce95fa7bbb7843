// Package sms provides SMS delivery through a JSON HTTP gateway.
package sms

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

// Config holds SMS gateway configuration.
type Config struct {
	Enabled    bool
	APIURL     string
	APIKey     string
	FromNumber string
	RateLimit  float64 // requests per second, 0 disables limiting
	Timeout    time.Duration
}

// Sender implements sender.SMSSender against a JSON SMS gateway.
// Every attempt writes a communication audit row, sent or failed.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	audit      sender.CommunicationLog
}

// NewSender creates a new SMS sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config, audit sender.CommunicationLog) (*Sender, error) {
	if config.Enabled {
		if config.APIURL == "" {
			return nil, fmt.Errorf("sms sender: api url is required when enabled")
		}
		if config.APIKey == "" {
			return nil, fmt.Errorf("sms sender: api key is required when enabled")
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("sms sender configured",
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

// Send delivers one SMS. The phone shape is validated before any
// provider call; a malformed number fails fast with an audit row and no
// network traffic.
func (s *Sender) Send(ctx context.Context, tenantID, to, message string) sender.Result {
	start := time.Now()

	var result sender.Result
	switch {
	case !sender.ValidPhone(to):
		result = sender.Failure(sender.ErrInvalidPhoneNumber)
	case !s.config.Enabled:
		result = sender.Failure(sender.ErrNotConfigured)
	default:
		result = s.callGateway(ctx, to, message)
	}

	s.writeAudit(ctx, tenantID, to, message, result)

	status := "failed"
	if result.Success {
		status = "success"
	}
	sender.RecordSend("sms", status)
	sender.RecordSendDuration("sms", time.Since(start))

	return result
}

type gatewayRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (s *Sender) callGateway(ctx context.Context, to, message string) sender.Result {
	payload, err := json.Marshal(gatewayRequest{
		From: s.config.FromNumber,
		To:   to,
		Text: message,
	})
	if err != nil {
		return sender.Failure(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewReader(payload))
	if err != nil {
		return sender.Failure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

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

	return s.handleResponse(resp)
}

func (s *Sender) handleResponse(resp *http.Response) sender.Result {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sender.Failure(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var gw gatewayResponse
		if err := json.Unmarshal(body, &gw); err != nil {
			// Provider accepted the message even if the body is odd.
			slog.Warn("sms gateway returned unparseable body", "error", err)
		}
		return sender.Result{Success: true, ProviderMessageID: gw.MessageID}

	case resp.StatusCode == http.StatusTooManyRequests:
		return sender.Failure(&sender.RetryableError{Code: resp.StatusCode, Message: "rate limited"})

	case resp.StatusCode >= 500:
		return sender.Failure(&sender.RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		})

	default:
		return sender.Failure(&sender.PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("rejected: %s", string(body)),
		})
	}
}

func (s *Sender) writeAudit(ctx context.Context, tenantID, to, message string, result sender.Result) {
	if s.audit == nil {
		return
	}

	comm := &domain.Communication{
		TenantID:          tenantID,
		Channel:           "sms",
		Recipient:         to,
		Body:              message,
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
		slog.Error("failed to write sms audit row", "tenant_id", tenantID, "error", err)
	}
}
