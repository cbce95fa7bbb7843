// Package email provides email delivery via SMTP with STARTTLS.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/bissquit/message-garden/internal/sender"
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
}

// Sender implements sender.EmailSender via SMTP.
type Sender struct {
	config Config
	auth   smtp.Auth
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
	)

	return &Sender{
		config: config,
		auth:   auth,
	}, nil
}

// Send delivers one email. With both bodies present the message goes
// out as multipart/alternative so plain-text clients get a readable
// body; with a single body it is sent as-is.
func (s *Sender) Send(ctx context.Context, to, subject, html, text string) error {
	if !s.config.Enabled {
		return sender.ErrNotConfigured
	}

	msg := s.buildMessage(to, subject, html, text)
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	return s.sendWithSTARTTLS(ctx, addr, tlsConfig, to, msg)
}

const altBoundary = "mg-alt-boundary"

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(to, subject, html, text string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if html == "" {
		msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(text)
		return []byte(msg.String())
	}
	if text == "" {
		msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(html)
		return []byte(msg.String())
	}

	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", altBoundary))
	msg.WriteString("\r\n")
	// Plain part first so clients prefer the HTML alternative.
	msg.WriteString(fmt.Sprintf("--%s\r\n", altBoundary))
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(text)
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("--%s\r\n", altBoundary))
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(html)
	msg.WriteString("\r\n")
	msg.WriteString(fmt.Sprintf("--%s--\r\n", altBoundary))

	return []byte(msg.String())
}

// sendWithSTARTTLS sends an email using STARTTLS (port 587).
func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	from := extractEmail(s.config.FromAddress)
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// IsRetryable determines if an SMTP error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures.
	if strings.Contains(errStr, "421") ||
		strings.Contains(errStr, "450") ||
		strings.Contains(errStr, "451") ||
		strings.Contains(errStr, "452") {
		return true
	}

	// 552 - mailbox full is sometimes retryable.
	if strings.Contains(errStr, "552") {
		return true
	}

	return false
}
